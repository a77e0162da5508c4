// Package translate turns one source-language segment into target-language
// text through an external language model.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/resilience"
	"github.com/lexiqai/interpreter/internal/status"
)

const component = "translation"

var (
	// ErrMissingCredential marks a stage with no API key configured
	ErrMissingCredential = errors.New("translation credential is not configured")
	// ErrService wraps transport and API failures
	ErrService = errors.New("translation service failed")
)

// Backend is one model provider
type Backend interface {
	// Name identifies the provider in logs and metrics
	Name() string
	// Complete sends instruction and text and returns the raw model output
	Complete(ctx context.Context, model, instruction, text string) (string, error)
}

// Result is the outcome of one translation. Translated is false when no
// translation could run; that is a valid terminal state, not an error.
type Result struct {
	Text       string
	Translated bool
}

// Config holds stage settings
type Config struct {
	Model          string
	TargetLanguage string
	Timeout        time.Duration
}

// Stage translates segments one at a time
type Stage struct {
	backend  Backend
	cfg      Config
	guard    *resilience.Guard
	reporter status.Reporter
	logger   zerolog.Logger
}

// NewStage creates a translation stage. A nil backend means the credential
// is missing: every call reports a configuration status and returns an
// untranslated result without touching the network.
func NewStage(backend Backend, cfg Config, guard *resilience.Guard, reporter status.Reporter, logger zerolog.Logger) *Stage {
	if reporter == nil {
		reporter = status.Discard
	}
	return &Stage{
		backend:  backend,
		cfg:      cfg,
		guard:    guard,
		reporter: reporter,
		logger:   observability.WithComponent(logger, component),
	}
}

// Instruction builds the prompt sent with every segment
func Instruction(targetLanguage string) string {
	return fmt.Sprintf(
		"Translate the following text into %s. Respond with the translation only: "+
			"no explanations, no notes, no quotation marks and no markup.",
		targetLanguage)
}

// Translate runs one segment through the backend
func (s *Stage) Translate(ctx context.Context, seq uint64, text string) (Result, error) {
	if s.backend == nil {
		s.reporter.Report(status.Failure(status.KindConfiguration, component, seq, ErrMissingCredential))
		return Result{}, nil
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	var raw string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		out, err := s.backend.Complete(ctx, s.cfg.Model, Instruction(s.cfg.TargetLanguage), text)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	observability.ObserveStage(component, started, err == nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrService, s.backend.Name(), err)
	}

	translated := strings.TrimSpace(raw)
	s.logger.Debug().
		Uint64("sequence", seq).
		Str("provider", s.backend.Name()).
		Dur("latency", time.Since(started)).
		Msg("Segment translated")
	return Result{Text: translated, Translated: true}, nil
}
