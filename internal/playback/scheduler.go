// Package playback places decoded speech on a gapless output timeline.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/audio"
	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/status"
)

const component = "playback"

var (
	// ErrDecode is returned when a payload is not valid PCM16
	ErrDecode = errors.New("audio payload could not be decoded")
	// ErrNotResumed is returned when scheduling before a successful Resume
	ErrNotResumed = errors.New("output has not been resumed")
	// ErrNoOutput is returned once output creation has failed
	ErrNoOutput = errors.New("no audio output available")
	// ErrSampleRate is returned for payloads at a rate the output does not play
	ErrSampleRate = errors.New("audio payload sample rate does not match output")
)

// ScheduledBuffer is one decoded payload placed on the timeline
type ScheduledBuffer struct {
	Sequence  uint64
	Clip      *audio.Clip
	StartTime time.Duration
	Duration  time.Duration
	SinkID    string // empty means the platform default sink
}

// End returns the time at which the buffer finishes playing
func (b ScheduledBuffer) End() time.Duration {
	return b.StartTime + b.Duration
}

// Output is the platform audio context a scheduler plays through
type Output interface {
	// Resume moves the output into the running state
	Resume(ctx context.Context) error
	// CurrentTime is the output clock; it advances while running
	CurrentTime() time.Duration
	// Route sends buffers started from now on to sinkID
	Route(ctx context.Context, sinkID string) error
	// Start plays buf at buf.StartTime
	Start(ctx context.Context, buf ScheduledBuffer) error
	Close() error
}

// OutputFactory creates the output on first use
type OutputFactory func(ctx context.Context) (Output, error)

// Scheduler owns one Output and the timeline cursor for a session
type Scheduler struct {
	factory  OutputFactory
	format   beep.Format
	reporter status.Reporter
	logger   zerolog.Logger

	mu      sync.Mutex
	output  Output
	resumed bool
	failed  error
	cursor  time.Duration
	sinkID  string
}

// NewScheduler creates a scheduler for payloads at sampleRate
func NewScheduler(factory OutputFactory, sampleRate int, reporter status.Reporter, logger zerolog.Logger) *Scheduler {
	if reporter == nil {
		reporter = status.Discard
	}
	return &Scheduler{
		factory:  factory,
		format:   audio.Mono16(sampleRate),
		reporter: reporter,
		logger:   observability.WithComponent(logger, component),
	}
}

// Resume creates the output if needed, applies the remembered device and
// resumes playback. Calling it again is a no-op.
func (s *Scheduler) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return s.failed
	}
	if s.resumed {
		return nil
	}

	if s.output == nil {
		out, err := s.factory(ctx)
		if err != nil {
			s.failed = fmt.Errorf("%w: %v", ErrNoOutput, err)
			s.reporter.Report(status.Failure(status.KindPlayback, component, 0, s.failed))
			return s.failed
		}
		s.output = out
		if s.sinkID != "" {
			if err := out.Route(ctx, s.sinkID); err != nil {
				s.logger.Warn().Err(err).Str("sink_id", s.sinkID).Msg("Failed to apply remembered output device")
			}
		}
	}

	if err := s.output.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume output: %w", err)
	}
	s.resumed = true
	s.logger.Debug().Str("sink_id", s.sinkID).Msg("Output resumed")
	return nil
}

// Schedule decodes payload and places it at max(cursor, output clock).
// The cursor only moves when the buffer was started.
func (s *Scheduler) Schedule(ctx context.Context, seq uint64, payload []byte) (ScheduledBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return ScheduledBuffer{}, s.failed
	}
	if s.output == nil || !s.resumed {
		s.reporter.Report(status.Failure(status.KindPlayback, component, seq, ErrNotResumed))
		return ScheduledBuffer{}, ErrNotResumed
	}

	clip, err := audio.DecodePCM16(payload, s.format)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDecode, err)
		s.reporter.Report(status.Failure(status.KindDecode, component, seq, err))
		return ScheduledBuffer{}, err
	}

	start := s.cursor
	if now := s.output.CurrentTime(); now > start {
		start = now
	}
	buf := ScheduledBuffer{
		Sequence:  seq,
		Clip:      clip,
		StartTime: start,
		Duration:  clip.Duration(),
		SinkID:    s.sinkID,
	}
	if buf.Duration == 0 {
		return buf, nil
	}

	if err := s.output.Start(ctx, buf); err != nil {
		err = fmt.Errorf("failed to start buffer: %w", err)
		s.reporter.Report(status.Failure(status.KindPlayback, component, seq, err))
		return ScheduledBuffer{}, err
	}

	s.cursor = buf.End()
	observability.RecordScheduledAudio(buf.Duration)
	s.logger.Debug().
		Uint64("sequence", seq).
		Dur("start", buf.StartTime).
		Dur("duration", buf.Duration).
		Str("sink_id", buf.SinkID).
		Msg("Buffer scheduled")
	return buf, nil
}

// SetOutputDevice remembers id and reroutes the live output. Buffers that
// were already started keep their sink.
func (s *Scheduler) SetOutputDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != nil {
		if err := s.output.Route(ctx, id); err != nil {
			return fmt.Errorf("failed to route output to %q: %w", id, err)
		}
	}
	s.sinkID = id
	return nil
}

// SampleRate is the rate payloads are decoded at
func (s *Scheduler) SampleRate() int {
	return int(s.format.SampleRate)
}

// OutputDevice returns the remembered sink id
func (s *Scheduler) OutputDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinkID
}

// Cursor returns the end of the last scheduled buffer
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Resumed reports whether the output is running
func (s *Scheduler) Resumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumed
}

// Close releases the output
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resumed = false
	if s.output == nil {
		return nil
	}
	err := s.output.Close()
	s.output = nil
	return err
}
