package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/config"
	"github.com/lexiqai/interpreter/internal/gateway"
	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/pipeline"
	"github.com/lexiqai/interpreter/internal/recordings"
	"github.com/lexiqai/interpreter/internal/resilience"
	"github.com/lexiqai/interpreter/internal/status"
	"github.com/lexiqai/interpreter/internal/stt"
	"github.com/lexiqai/interpreter/internal/translate"
	"github.com/lexiqai/interpreter/internal/tts"
)

// services are the external capabilities shared by every session. Guards
// are shared so one breaker tracks each capability process-wide.
type services struct {
	cfg    *config.Config
	logger zerolog.Logger

	backend  translate.Backend
	speech   tts.ContentGenerator
	guards   map[string]*resilience.Guard
	archives *recordings.Client
}

func newServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*services, error) {
	backend, err := translate.NewBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation backend: %w", err)
	}

	s := &services{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		guards:  make(map[string]*resilience.Guard),
	}

	if cfg.GeminiAPIKey != "" {
		client, err := translate.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create synthesis client: %w", err)
		}
		s.speech = client.Models
	}

	for _, name := range []string{"translation", "synthesis", "recordings"} {
		s.guards[name] = s.newGuard(name)
	}

	s.archives = recordings.NewClient(recordings.Config{
		APIURL:   cfg.RecordingsAPIURL,
		RelayURL: cfg.RecordingsRelayURL,
		Token:    cfg.RecordingsToken,
	}, nil, s.guards["recordings"], logger)

	if backend == nil {
		logger.Warn().Str("provider", cfg.TranslationProvider).Msg("Translation credential missing; segments will not be translated")
	}
	if s.speech == nil {
		logger.Warn().Msg("Synthesis credential missing; translations will not be spoken")
	}
	return s, nil
}

func (s *services) newGuard(name string) *resilience.Guard {
	g := resilience.NewGuard(name,
		s.cfg.CircuitBreakerMaxFailures,
		time.Duration(s.cfg.CircuitBreakerResetTimeout)*time.Second,
		resilience.NewRetryConfig(s.cfg.RetryMaxAttempts, s.cfg.RetryInitialBackoff))
	g.Breaker.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		s.logger.Warn().Str("service", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	}
	return g
}

// stages builds the per-session translation and synthesis stages
func (s *services) stages(reporter status.Reporter) (pipeline.Translator, tts.Synthesizer) {
	timeout := s.cfg.StageTimeoutDuration()
	translator := translate.NewStage(s.backend, translate.Config{
		Model:          s.cfg.TranslationModel,
		TargetLanguage: s.cfg.TargetLanguage,
		Timeout:        timeout,
	}, s.guards["translation"], reporter, s.logger)

	synthesizer := tts.NewGeminiClient(s.speech, tts.Config{
		Model:      s.cfg.SynthesisModel,
		Voice:      s.cfg.SynthesisVoice,
		SampleRate: s.cfg.SynthesisSampleRate,
		Timeout:    timeout,
	}, s.guards["synthesis"], reporter, s.logger)

	return translator, synthesizer
}

// recognizerFactory returns nil when server-side recognition is not configured
func (s *services) recognizerFactory() func() stt.Recognizer {
	if s.cfg.DeepgramAPIKey == "" {
		return nil
	}
	return func() stt.Recognizer {
		return stt.NewDeepgramClient(stt.DeepgramConfig{
			APIKey:     s.cfg.DeepgramAPIKey,
			Model:      s.cfg.DeepgramModel,
			Language:   s.cfg.DeepgramLanguage,
			SampleRate: s.cfg.DeepgramSampleRate,
		}, s.logger)
	}
}

func (s *services) gatewayDeps() gateway.Deps {
	return gateway.Deps{
		Stages:        s.stages,
		NewRecognizer: s.recognizerFactory(),
		Transcripts:   s.archives,
		SampleRate:    s.cfg.SynthesisSampleRate,
		MaxPending:    s.cfg.QueueMaxPending,
		ImportStagger: s.cfg.ImportStagger(),
	}
}

// checks report a capability as not ready while its breaker is open. A
// missing credential does not make the service unready; sessions report it.
func (s *services) checks() []observability.NamedCheck {
	checks := make([]observability.NamedCheck, 0, len(s.guards))
	for _, name := range []string{"translation", "synthesis", "recordings"} {
		breaker := s.guards[name].Breaker
		checks = append(checks, observability.NamedCheck{
			Name: name,
			Check: func(context.Context) (bool, error) {
				if state := breaker.GetState(); state == resilience.StateOpen {
					return false, fmt.Errorf("circuit breaker is %s", state)
				}
				return true, nil
			},
		})
	}
	return checks
}
