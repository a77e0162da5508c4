// Package gateway serves interpreter sessions to browsers over WebSocket.
// The browser supplies recognition results, device lists and transcripts;
// the server runs the pipeline and tells the browser what to play and when.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/device"
	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/pipeline"
	"github.com/lexiqai/interpreter/internal/recordings"
	"github.com/lexiqai/interpreter/internal/status"
	"github.com/lexiqai/interpreter/internal/stt"
	"github.com/lexiqai/interpreter/internal/transcript"
	"github.com/lexiqai/interpreter/internal/tts"
)

const (
	defaultCloseTimeout    = 5 * time.Second
	defaultMaxMessageBytes = 8 << 20 // room for an imported transcript
)

var upgrader = websocket.Upgrader{
	// The gateway is meant to sit behind a reverse proxy that enforces origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

// TranscriptFetcher retrieves the caption document of a recorded meeting
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, meetingID string) (string, error)
}

// StageFactory builds the translation and synthesis stages of one session,
// reporting to that session's status stream
type StageFactory func(reporter status.Reporter) (pipeline.Translator, tts.Synthesizer)

// Deps are shared by every connection
type Deps struct {
	Stages          StageFactory
	NewRecognizer   func() stt.Recognizer // nil: only browser recognition
	Transcripts     TranscriptFetcher     // nil: recording import is not configured
	SampleRate      int
	MaxPending      int
	ImportStagger   time.Duration
	CloseTimeout    time.Duration // how long a closing session may drain
	MaxMessageBytes int64         // larger client messages close the connection
}

// Handler upgrades requests and runs one session per connection
type Handler struct {
	deps   Deps
	logger zerolog.Logger
}

// NewHandler creates the WebSocket session handler
func NewHandler(deps Deps, logger zerolog.Logger) *Handler {
	if deps.CloseTimeout <= 0 {
		deps.CloseTimeout = defaultCloseTimeout
	}
	if deps.MaxMessageBytes <= 0 {
		deps.MaxMessageBytes = defaultMaxMessageBytes
	}
	return &Handler{deps: deps, logger: observability.WithComponent(logger, "gateway")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer ws.Close()
	ws.SetReadLimit(h.deps.MaxMessageBytes)

	c := h.newConnection(ws)
	c.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Session connection established")
	c.serve(context.Background())
	c.logger.Info().Msg("Session connection ended")
}

// connection is one browser bound to one pipeline session
type connection struct {
	deps     Deps
	peer     *peer
	status   *status.Broadcaster
	session  *pipeline.Session
	registry *device.Registry
	devices  *remoteDevices
	live     *transcript.Live
	importer *transcript.Importer
	logger   zerolog.Logger

	imports sync.WaitGroup
}

func (h *Handler) newConnection(ws *websocket.Conn) *connection {
	p := &peer{ws: ws}
	c := &connection{
		deps:    h.deps,
		peer:    p,
		devices: newRemoteDevices(),
	}

	c.status = status.NewBroadcaster(h.logger)
	translator, synthesizer := h.deps.Stages(c.status)
	output := newBrowserOutput(p, h.deps.SampleRate)
	c.session = pipeline.NewSession(pipeline.Deps{
		Translator:    translator,
		Synthesizer:   synthesizer,
		Output:        output.factory(),
		SampleRate:    h.deps.SampleRate,
		MaxPending:    h.deps.MaxPending,
		NewRecognizer: h.deps.NewRecognizer,
		Observer:      c,
		Reporter:      c.status,
		Logger:        h.logger,
	})
	c.logger = h.logger.With().Str("session_id", c.session.ID).Logger()

	c.registry = device.NewRegistry(c.devices, c.status, c.logger)
	c.registry.OnRefresh(c.sendDevices)
	c.live = transcript.NewLive(c.session, c.Interim, c.logger)
	c.importer = transcript.NewImporter(c.session, h.deps.ImportStagger, c.logger)
	return c
}

// serve reads client messages until the connection drops, then closes the
// session.
func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	unsubscribe := c.status.Subscribe(c.sendStatus)

	defer func() {
		c.peer.close()
		cancel()
		c.imports.Wait()
		unsubscribe()

		closeCtx, closeCancel := context.WithTimeout(context.Background(), c.deps.CloseTimeout)
		defer closeCancel()
		if err := c.session.Close(closeCtx); err != nil {
			c.logger.Warn().Err(err).Msg("Session closed before draining")
		}
	}()

	for {
		msgType, data, err := c.peer.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.handleAudio(data)
		case websocket.TextMessage:
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Error().Err(err).Msg("Failed to parse client message")
				continue
			}
			c.dispatch(ctx, msg)
		}
	}
}

func (c *connection) dispatch(ctx context.Context, msg ClientMessage) {
	switch msg.Event {
	case EventResume:
		if err := c.session.Resume(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to resume playback")
		}

	case EventText:
		c.enqueue(msg.Text)

	case EventRecognition:
		c.live.HandleResults(msg.ResultIndex, msg.Results)

	case EventRecognitionError:
		c.status.Report(status.Failure(status.KindRecognition, "recognition", 0, errors.New(msg.Message)))

	case EventImport:
		doc := msg.Document
		c.startImport(ctx, func(context.Context) (string, error) { return doc, nil })

	case EventImportRecording:
		meetingID := msg.MeetingID
		c.startImport(ctx, func(ctx context.Context) (string, error) { return c.fetchRecording(ctx, meetingID) })

	case EventDevices:
		// Applied before the next message is read so a selection that
		// follows sees this snapshot
		c.devices.update(msg.Devices, msg.Error)
		if err := c.registry.Refresh(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("Device snapshot rejected")
		}

	case EventSelectOutput:
		c.selectOutput(ctx, msg.DeviceID)

	case EventStartListening:
		if err := c.session.StartListening(ctx, c.live.Handle); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to start listening")
		}

	case EventStopListening:
		if err := c.session.StopListening(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to stop listening")
		}

	default:
		c.logger.Warn().Str("event", msg.Event).Msg("Unknown client event")
	}
}

func (c *connection) enqueue(text string) {
	seg, err := c.session.Enqueue(text, pipeline.OriginLive)
	if err != nil {
		// Empty text is ignored; a full queue has already been reported
		c.logger.Debug().Err(err).Msg("Text not queued")
		return
	}
	c.logger.Debug().Uint64("sequence", seg.Sequence).Msg("Text queued")
}

func (c *connection) handleAudio(data []byte) {
	if err := c.session.SendAudio(data); err != nil {
		if errors.Is(err, stt.ErrNotActive) {
			return
		}
		c.logger.Warn().Err(err).Msg("Failed to forward microphone audio")
	}
}

// startImport loads a document and imports it without blocking the reader
func (c *connection) startImport(ctx context.Context, load func(context.Context) (string, error)) {
	c.imports.Add(1)
	go func() {
		defer c.imports.Done()

		doc, err := load(ctx)
		if err != nil {
			return
		}
		n, err := c.importer.Import(ctx, doc)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.status.Report(status.Failure(status.KindService, "import", 0, err))
			return
		}
		c.status.Report(status.Info("import", fmt.Sprintf("Imported %d segments", n)))
	}()
}

// fetchRecording retrieves a meeting transcript and reports why it could not
func (c *connection) fetchRecording(ctx context.Context, meetingID string) (string, error) {
	if c.deps.Transcripts == nil {
		c.status.Report(status.Failure(status.KindConfiguration, "recordings", 0, recordings.ErrMissingCredential))
		return "", recordings.ErrMissingCredential
	}

	doc, err := c.deps.Transcripts.FetchTranscript(ctx, meetingID)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, recordings.ErrMissingCredential):
		c.status.Report(status.Failure(status.KindConfiguration, "recordings", 0, err))
	case errors.Is(err, context.Canceled):
	default:
		c.status.Report(status.Failure(status.KindService, "recordings", 0, err))
	}
	return "", err
}

// selectOutput routes playback to a known output device. An empty id
// selects the default sink.
func (c *connection) selectOutput(ctx context.Context, id string) {
	if id != "" {
		d, ok := c.registry.Lookup(id)
		if !ok || d.Kind != device.KindOutput {
			c.status.Report(status.Failure(status.KindDevice, "device", 0, fmt.Errorf("unknown output device %q", id)))
			return
		}
	}
	if err := c.session.SetOutputDevice(ctx, id); err != nil {
		c.status.Report(status.Failure(status.KindDevice, "device", 0, err))
	}
}

// Interim implements pipeline.Observer
func (c *connection) Interim(text string) {
	c.write(InterimMessage{Event: EventInterim, Text: text})
}

// Translated implements pipeline.Observer
func (c *connection) Translated(r pipeline.TranslationResult) {
	c.write(TranslationMessage{
		Event:      EventTranslation,
		Sequence:   r.Segment.Sequence,
		Source:     r.Segment.Text,
		Text:       r.TranslatedText,
		Translated: r.Translated,
	})
}

func (c *connection) sendStatus(e status.Event) {
	c.write(StatusMessage{
		Event:     EventStatus,
		Kind:      string(e.Kind),
		Component: e.Component,
		Message:   e.Message,
		Sequence:  e.Sequence,
	})
}

func (c *connection) sendDevices() {
	c.write(DevicesMessage{
		Event:   EventDevices,
		Inputs:  c.registry.Inputs(),
		Outputs: c.registry.Outputs(),
	})
}

func (c *connection) write(v any) {
	if err := c.peer.send(v); err != nil && !errors.Is(err, errPeerClosed) {
		c.logger.Debug().Err(err).Msg("Failed to write to client")
	}
}
