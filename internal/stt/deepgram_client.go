package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
)

// ErrNotActive is returned when sending audio without a running session
var ErrNotActive = errors.New("recognition session is not active")

// DeepgramConfig holds live transcription settings
type DeepgramConfig struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
}

// messageCallbackHandler embeds the default handler and overrides only
// the methods we need
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse)
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.errorHandler(errorResponse)
	return nil
}

// liveStream is the part of the Deepgram socket the client drives. Stop
// closes the socket; the SDK's Finish only flushes callbacks.
type liveStream interface {
	Write(p []byte) (int, error)
	Stop()
}

// DeepgramClient implements Recognizer with Deepgram's streaming API
type DeepgramClient struct {
	config DeepgramConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	client   liveStream
	handler  Handler
	isActive bool
	finals   int
}

// NewDeepgramClient creates a Deepgram recognizer
func NewDeepgramClient(cfg DeepgramConfig, logger zerolog.Logger) *DeepgramClient {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &DeepgramClient{
		config: cfg,
		logger: observability.WithComponent(logger, "recognition"),
	}
}

// Start opens a live transcription socket
func (d *DeepgramClient) Start(ctx context.Context, handler Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram client is already active")
	}
	if d.config.APIKey == "" {
		return fmt.Errorf("deepgram API key is not configured")
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.Model,
		Language:       d.config.Language,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.config.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler:           d.handleError,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.config.APIKey, nil, tOptions, callback)
	if err != nil {
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		return fmt.Errorf("failed to connect to Deepgram")
	}

	d.client = client
	d.handler = handler
	d.isActive = true
	d.finals = 0

	d.logger.Info().Str("model", d.config.Model).Str("language", d.config.Language).Msg("Deepgram streaming client started")
	return nil
}

func (d *DeepgramClient) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
		return
	}
	d.deliver(msg.Channel.Alternatives[0].Transcript, msg.IsFinal)
}

// deliver turns one transcript into an event for the active handler
func (d *DeepgramClient) deliver(transcript string, isFinal bool) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return
	}

	d.mu.Lock()
	handler := d.handler
	index := d.finals
	if isFinal {
		d.finals++
	}
	d.mu.Unlock()

	if handler == nil {
		return
	}
	if isFinal {
		handler(Final{Text: text, Index: index})
	} else {
		handler(Interim{Text: text})
	}
}

func (d *DeepgramClient) handleError(errorResponse *msginterfaces.ErrorResponse) {
	err := fmt.Errorf("deepgram error: %+v", errorResponse)
	d.logger.Error().Err(err).Msg("Recognition failed")

	d.mu.Lock()
	handler := d.handler
	client := d.client
	d.client = nil
	d.isActive = false
	d.handler = nil
	d.mu.Unlock()

	// Runs on the SDK's reader goroutine, which Stop must not wait on
	if client != nil {
		go client.Stop()
	}
	if handler != nil {
		handler(Failure{Err: err})
	}
}

// SendAudio forwards a chunk of PCM16 audio
func (d *DeepgramClient) SendAudio(audioData []byte) error {
	d.mu.RLock()
	active := d.isActive
	client := d.client
	d.mu.RUnlock()

	if !active || client == nil {
		return ErrNotActive
	}
	if _, err := client.Write(audioData); err != nil {
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// Stop finishes the stream
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nil
	}
	if d.client != nil {
		d.client.Stop()
		d.client = nil
	}
	d.isActive = false
	d.handler = nil
	d.logger.Info().Msg("Deepgram streaming client stopped")
	return nil
}

// IsActive returns whether the client is currently active
func (d *DeepgramClient) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}
