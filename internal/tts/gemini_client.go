// Package tts synthesizes speech for translated text.
package tts

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/resilience"
	"github.com/lexiqai/interpreter/internal/status"
)

const component = "synthesis"

var (
	// ErrMissingCredential marks a stage with no API key configured
	ErrMissingCredential = errors.New("synthesis credential is not configured")
	// ErrService wraps transport and API failures
	ErrService = errors.New("synthesis service failed")
)

// ContentGenerator is the subset of the genai models service used here
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds synthesis settings
type Config struct {
	Model      string
	Voice      string
	SampleRate int
	Timeout    time.Duration
}

// GeminiClient implements Synthesizer with Gemini's audio response modality
type GeminiClient struct {
	models   ContentGenerator
	cfg      Config
	guard    *resilience.Guard
	reporter status.Reporter
	logger   zerolog.Logger
}

// NewGeminiClient creates a synthesizer. A nil models service means the
// credential is missing.
func NewGeminiClient(models ContentGenerator, cfg Config, guard *resilience.Guard, reporter status.Reporter, logger zerolog.Logger) *GeminiClient {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if reporter == nil {
		reporter = status.Discard
	}
	return &GeminiClient{
		models:   models,
		cfg:      cfg,
		guard:    guard,
		reporter: reporter,
		logger:   observability.WithComponent(logger, component),
	}
}

func (c *GeminiClient) requestConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
			},
		},
	}
}

// Synthesize requests speech for text and keeps only audio parts
func (c *GeminiClient) Synthesize(ctx context.Context, seq uint64, text string) ([]AudioChunk, error) {
	if c.models == nil {
		c.reporter.Report(status.Failure(status.KindConfiguration, component, seq, ErrMissingCredential))
		return nil, nil
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	started := time.Now()

	var resp *genai.GenerateContentResponse
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		r, err := c.models.GenerateContent(ctx, c.cfg.Model, contents, c.requestConfig())
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	observability.ObserveStage(component, started, err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrService, err)
	}

	chunks := c.audioParts(resp)
	c.logger.Debug().
		Uint64("sequence", seq).
		Int("parts", len(chunks)).
		Dur("latency", time.Since(started)).
		Msg("Speech synthesized")
	return chunks, nil
}

// audioParts collects inline audio blobs in response order
func (c *GeminiClient) audioParts(resp *genai.GenerateContentResponse) []AudioChunk {
	if resp == nil {
		return nil
	}
	var chunks []AudioChunk
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
				continue
			}
			chunks = append(chunks, AudioChunk{
				Data:       part.InlineData.Data,
				MIMEType:   part.InlineData.MIMEType,
				SampleRate: sampleRateOf(part.InlineData.MIMEType, c.cfg.SampleRate),
				Channels:   1,
			})
		}
	}
	return chunks
}

// sampleRateOf reads the rate parameter of an audio MIME type
func sampleRateOf(mimeType string, fallback int) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}
	if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
		return rate
	}
	return fallback
}
