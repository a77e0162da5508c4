package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/playback"
	"github.com/lexiqai/interpreter/internal/status"
	"github.com/lexiqai/interpreter/internal/stt"
	"github.com/lexiqai/interpreter/internal/translate"
	"github.com/lexiqai/interpreter/internal/tts"
)

// TranslationResult is the outcome of the translation step for a segment.
// Translated is false when no translation could run.
type TranslationResult struct {
	Segment        Segment
	TranslatedText string
	Translated     bool
}

// Translator is the translation stage
type Translator interface {
	Translate(ctx context.Context, seq uint64, text string) (translate.Result, error)
}

// Observer receives user-visible progress. Implementations must be safe for
// concurrent use.
type Observer interface {
	Interim(text string)
	Translated(result TranslationResult)
}

type nopObserver struct{}

func (nopObserver) Interim(string)               {}
func (nopObserver) Translated(TranslationResult) {}

// Deps are the collaborators of a session
type Deps struct {
	Translator    Translator
	Synthesizer   tts.Synthesizer
	Output        playback.OutputFactory
	SampleRate    int
	MaxPending    int
	NewRecognizer func() stt.Recognizer // nil disables server-side recognition
	Observer      Observer
	Reporter      status.Reporter
	Logger        zerolog.Logger
}

// Session owns one queue, one scheduler and at most one recognizer
type Session struct {
	ID string

	translator    Translator
	synthesizer   tts.Synthesizer
	scheduler     *playback.Scheduler
	queue         *Queue
	newRecognizer func() stt.Recognizer
	observer      Observer
	reporter      status.Reporter
	logger        zerolog.Logger

	mu         sync.Mutex
	recognizer stt.Recognizer
	closed     bool
	listening  atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a session and starts its consumer
func NewSession(deps Deps) *Session {
	id := observability.NewSessionID()
	logger := deps.Logger.With().Str("session_id", id).Logger()

	reporter := deps.Reporter
	if reporter == nil {
		reporter = status.Discard
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	s := &Session{
		ID:            id,
		translator:    deps.Translator,
		synthesizer:   deps.Synthesizer,
		scheduler:     playback.NewScheduler(deps.Output, deps.SampleRate, reporter, logger),
		newRecognizer: deps.NewRecognizer,
		observer:      observer,
		reporter:      reporter,
		logger:        logger,
		done:          make(chan struct{}),
	}
	s.queue = NewQueue(ProcessorFunc(s.process), deps.MaxPending, reporter, logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.queue.Run(ctx)
	}()

	observability.RecordSessionOpen()
	s.logger.Info().Msg("Session opened")
	return s
}

// Enqueue submits text for translation and playback
func (s *Session) Enqueue(text string, origin Origin) (Segment, error) {
	return s.queue.Enqueue(text, origin)
}

// Queue exposes the session's queue
func (s *Session) Queue() *Queue {
	return s.queue
}

// Scheduler exposes the session's playback scheduler
func (s *Session) Scheduler() *playback.Scheduler {
	return s.scheduler
}

// Resume unlocks playback
func (s *Session) Resume(ctx context.Context) error {
	return s.scheduler.Resume(ctx)
}

// SetOutputDevice routes subsequent playback to id
func (s *Session) SetOutputDevice(ctx context.Context, id string) error {
	return s.scheduler.SetOutputDevice(ctx, id)
}

// process translates, synthesizes and schedules one segment
func (s *Session) process(ctx context.Context, seg Segment) error {
	res, err := s.translator.Translate(ctx, seg.Sequence, seg.Text)
	if err != nil {
		return err
	}

	result := TranslationResult{Segment: seg, TranslatedText: res.Text, Translated: res.Translated}
	s.observer.Translated(result)
	if !result.Translated || strings.TrimSpace(result.TranslatedText) == "" {
		return nil
	}

	chunks, err := s.synthesizer.Synthesize(ctx, seg.Sequence, result.TranslatedText)
	if err != nil {
		return err
	}

	for _, chunk := range chunks {
		if rate := s.scheduler.SampleRate(); chunk.SampleRate != 0 && chunk.SampleRate != rate {
			err := fmt.Errorf("%w: %d Hz payload, %d Hz output", playback.ErrSampleRate, chunk.SampleRate, rate)
			s.reporter.Report(status.Failure(status.KindDecode, "playback", seg.Sequence, err))
			continue
		}
		_, err := s.scheduler.Schedule(ctx, seg.Sequence, chunk.Data)
		switch {
		case err == nil:
		case errors.Is(err, playback.ErrDecode):
			// Only this payload is lost
			continue
		default:
			// Playback is unavailable; the scheduler already reported why
			return nil
		}
	}
	return nil
}

// StartListening opens the session's recognizer and feeds its events to
// handler. A recognition failure is reported and ends listening.
func (s *Session) StartListening(ctx context.Context, handler stt.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session is closed")
	}
	if s.listening.Load() {
		return nil
	}
	if s.recognizer == nil {
		if s.newRecognizer == nil {
			return errors.New("server-side recognition is not configured")
		}
		s.recognizer = s.newRecognizer()
	}

	err := s.recognizer.Start(ctx, func(ev stt.Event) {
		if f, ok := ev.(stt.Failure); ok {
			s.listening.Store(false)
			s.reporter.Report(status.Failure(status.KindRecognition, "recognition", 0, f.Err))
		}
		handler(ev)
	})
	if err != nil {
		err = fmt.Errorf("failed to start recognition: %w", err)
		s.reporter.Report(status.Failure(status.KindRecognition, "recognition", 0, err))
		return err
	}
	s.listening.Store(true)
	return nil
}

// SendAudio forwards microphone audio to the recognizer
func (s *Session) SendAudio(data []byte) error {
	s.mu.Lock()
	rec := s.recognizer
	s.mu.Unlock()

	if !s.listening.Load() || rec == nil {
		return stt.ErrNotActive
	}
	return rec.SendAudio(data)
}

// StopListening stops recognition. Queued and in-flight segments still run.
func (s *Session) StopListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recognizer == nil || !s.listening.Swap(false) {
		return nil
	}
	return s.recognizer.Stop()
}

// Listening reports whether recognition is running
func (s *Session) Listening() bool {
	return s.listening.Load()
}

// Close stops recognition, waits for the queue to drain (bounded by ctx),
// then stops the consumer and releases the output.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.StopListening(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop recognition")
	}

	waitErr := s.queue.WaitIdle(ctx)
	if waitErr != nil {
		s.logger.Warn().Int("pending", s.queue.Len()).Msg("Closing session with segments still pending")
	}

	s.cancel()
	<-s.done

	err := s.scheduler.Close()
	observability.RecordSessionClose()
	s.logger.Info().Msg("Session closed")
	if waitErr != nil {
		return waitErr
	}
	return err
}
