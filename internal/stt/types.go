package stt

import (
	"context"
	"strings"
)

// Event is a recognition event: Interim, Final or Failure
type Event interface {
	isEvent()
}

// Interim is transient text that replaces the previous interim display
type Interim struct {
	Text string
}

// Final is a finished utterance, ready for translation
type Final struct {
	Text  string
	Index int
}

// Failure ends the recognition session. No reconnect is attempted.
type Failure struct {
	Err error
}

func (Interim) isEvent() {}
func (Final) isEvent()   {}
func (Failure) isEvent() {}

// Handler receives recognition events in order
type Handler func(Event)

// Recognizer is a live speech recognition session
type Recognizer interface {
	// Start opens the session; events are delivered to handler until Stop
	// or a Failure
	Start(ctx context.Context, handler Handler) error

	// SendAudio sends one chunk of 16 kHz PCM16 mono audio
	SendAudio(audioData []byte) error

	// Stop ends the session. Stopping twice is a no-op.
	Stop() error
}

// Result is one entry of a client-side recognition event
type Result struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// FromResults maps a client recognition event to events. Entries from
// resultIndex on are split into interim and final text; the interim event
// is always emitted so the display clears once a phrase is final.
func FromResults(resultIndex int, results []Result) []Event {
	if resultIndex < 0 {
		resultIndex = 0
	}

	var interim, final strings.Builder
	for i := resultIndex; i < len(results); i++ {
		if results[i].IsFinal {
			final.WriteString(results[i].Transcript)
		} else {
			interim.WriteString(results[i].Transcript)
		}
	}

	events := []Event{Interim{Text: interim.String()}}
	if text := strings.TrimSpace(final.String()); text != "" {
		events = append(events, Final{Text: text, Index: resultIndex})
	}
	return events
}
