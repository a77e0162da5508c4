// Package status carries user-visible failure and progress reports from the
// pipeline to connected clients, the log and the metrics registry.
package status

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
)

// Kind classifies a reported event
type Kind string

const (
	KindConfiguration Kind = "configuration" // Missing or invalid credential/setting
	KindService       Kind = "service"       // Translation, synthesis or recordings call failed
	KindDecode        Kind = "decode"        // Audio payload could not be decoded
	KindDevice        Kind = "device"        // Device enumeration failed
	KindRecognition   Kind = "recognition"   // Speech recognition failed; listening stops
	KindPlayback      Kind = "playback"      // No output available or not resumed
	KindInfo          Kind = "info"          // Progress, not a failure
)

// Event is one status report
type Event struct {
	Kind      Kind      `json:"kind"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Sequence  uint64    `json:"sequence,omitempty"`
	Time      time.Time `json:"time"`
	Err       error     `json:"-"`
}

// IsFailure reports whether the event describes an error
func (e Event) IsFailure() bool {
	return e.Kind != KindInfo
}

// Reporter receives status events. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Event)

// Report calls f(e)
func (f ReporterFunc) Report(e Event) { f(e) }

// Discard drops every event
var Discard Reporter = ReporterFunc(func(Event) {})

// Failure builds a failure event from err
func Failure(kind Kind, component string, seq uint64, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Kind: kind, Component: component, Message: msg, Sequence: seq, Err: err}
}

// Info builds a progress event
func Info(component, message string) Event {
	return Event{Kind: KindInfo, Component: component, Message: message}
}

// Broadcaster logs every event, counts failures and fans them out to
// subscribers such as a client connection.
type Broadcaster struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// NewBroadcaster creates a broadcaster that logs through logger
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		subs:   make(map[int]func(Event)),
	}
}

// Subscribe registers fn and returns a function that removes it
func (b *Broadcaster) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Report implements Reporter
func (b *Broadcaster) Report(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	var evt *zerolog.Event
	switch {
	case e.Kind == KindInfo:
		evt = b.logger.Info()
	case e.Kind == KindConfiguration || e.Kind == KindDevice:
		evt = b.logger.Warn()
	default:
		evt = b.logger.Error()
	}
	evt = evt.Str("kind", string(e.Kind)).Str("component", e.Component)
	if e.Sequence != 0 {
		evt = evt.Uint64("sequence", e.Sequence)
	}
	if e.Err != nil {
		evt = evt.Err(e.Err)
	}
	evt.Msg(e.Message)

	if e.IsFailure() {
		observability.RecordError(string(e.Kind), e.Component)
	}

	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}

// Recorder keeps every reported event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report implements Reporter
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
