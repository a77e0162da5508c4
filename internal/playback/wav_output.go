package playback

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lexiqai/interpreter/internal/audio"
)

// WAVOutput renders the timeline offline. Its clock never advances, so
// buffers are laid out back to back from zero.
type WAVOutput struct {
	mu       sync.Mutex
	timeline *audio.Timeline
	sinkID   string
	sinks    map[string]int
}

// NewWAVOutput creates an offline output at sampleRate
func NewWAVOutput(sampleRate int) *WAVOutput {
	return &WAVOutput{
		timeline: audio.NewTimeline(audio.Mono16(sampleRate)),
		sinks:    make(map[string]int),
	}
}

// Factory returns an OutputFactory that always yields o
func (o *WAVOutput) Factory() OutputFactory {
	return func(context.Context) (Output, error) { return o, nil }
}

func (o *WAVOutput) Resume(context.Context) error { return nil }

func (o *WAVOutput) CurrentTime() time.Duration { return 0 }

func (o *WAVOutput) Route(_ context.Context, sinkID string) error {
	o.mu.Lock()
	o.sinkID = sinkID
	o.mu.Unlock()
	return nil
}

func (o *WAVOutput) Start(_ context.Context, buf ScheduledBuffer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.timeline.Place(buf.StartTime, buf.Clip); err != nil {
		return err
	}
	o.sinks[buf.SinkID]++
	return nil
}

func (o *WAVOutput) Close() error { return nil }

// Duration returns the rendered length
func (o *WAVOutput) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timeline.Duration()
}

// BuffersBySink returns how many buffers were started per sink id
func (o *WAVOutput) BuffersBySink() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int, len(o.sinks))
	for k, v := range o.sinks {
		out[k] = v
	}
	return out
}

// WriteWAV encodes the rendered timeline
func (o *WAVOutput) WriteWAV(w io.WriteSeeker) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timeline.WriteWAV(w)
}
