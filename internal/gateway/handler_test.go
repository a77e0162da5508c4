package gateway

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/device"
	"github.com/lexiqai/interpreter/internal/pipeline"
	"github.com/lexiqai/interpreter/internal/recordings"
	"github.com/lexiqai/interpreter/internal/status"
	"github.com/lexiqai/interpreter/internal/stt"
	"github.com/lexiqai/interpreter/internal/translate"
	"github.com/lexiqai/interpreter/internal/tts"
)

const sampleRate = 24000

type prefixTranslator struct{}

func (prefixTranslator) Translate(_ context.Context, _ uint64, text string) (translate.Result, error) {
	return translate.Result{Text: "ES:" + text, Translated: true}, nil
}

// toneSynth returns one second of audio per call
type toneSynth struct{}

func (toneSynth) Synthesize(context.Context, uint64, string) ([]tts.AudioChunk, error) {
	pcm := make([]byte, sampleRate*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0x10
	}
	return []tts.AudioChunk{{Data: pcm, MIMEType: "audio/L16;rate=24000", SampleRate: sampleRate, Channels: 1}}, nil
}

type fakeFetcher struct {
	doc string
	err error
}

func (f fakeFetcher) FetchTranscript(context.Context, string) (string, error) {
	return f.doc, f.err
}

type fakeRecognizer struct {
	mu      sync.Mutex
	handler stt.Handler
	audio   int
}

func (r *fakeRecognizer) Start(_ context.Context, h stt.Handler) error {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
	return nil
}

func (r *fakeRecognizer) SendAudio(data []byte) error {
	r.mu.Lock()
	r.audio += len(data)
	h := r.handler
	r.mu.Unlock()
	h(stt.Final{Text: "From the microphone."})
	return nil
}

func (r *fakeRecognizer) Stop() error { return nil }

// serverMsg holds the union of server event fields
type serverMsg struct {
	Event      string
	Kind       string
	Component  string
	Message    string
	Sequence   uint64
	Source     string
	Text       string
	Translated bool
	SinkID     string
	StartTime  float64
	Duration   float64
	SampleRate int
	Payload    []byte
	Inputs     []device.Device
	Outputs    []device.Device
}

func dial(t *testing.T, deps Deps) *websocket.Conn {
	t.Helper()
	if deps.Stages == nil {
		deps.Stages = func(status.Reporter) (pipeline.Translator, tts.Synthesizer) {
			return prefixTranslator{}, toneSynth{}
		}
	}
	deps.SampleRate = sampleRate

	srv := httptest.NewServer(NewHandler(deps, zerolog.Nop()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msg ClientMessage) {
	t.Helper()
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
}

// next reads messages until one matches event, skipping the rest
func next(t *testing.T, ws *websocket.Conn, event string) serverMsg {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg serverMsg
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("Waiting for %q: %v", event, err)
		}
		if msg.Event == event {
			return msg
		}
	}
}

// nextStatus skips ahead to a status of the given kind; the segment before
// may have produced playback statuses
func nextStatus(t *testing.T, ws *websocket.Conn, kind string) serverMsg {
	t.Helper()
	for {
		if st := next(t, ws, EventStatus); st.Kind == kind {
			return st
		}
	}
}

func TestGateway_TranslatesAndSchedulesBackToBack(t *testing.T) {
	ws := dial(t, Deps{})

	send(t, ws, ClientMessage{Event: EventResume})
	next(t, ws, EventResumed)

	send(t, ws, ClientMessage{Event: EventText, Text: "Hello."})
	send(t, ws, ClientMessage{Event: EventText, Text: "Goodbye."})

	tr := next(t, ws, EventTranslation)
	if tr.Sequence != 1 || tr.Source != "Hello." || tr.Text != "ES:Hello." || !tr.Translated {
		t.Errorf("Unexpected translation: %+v", tr)
	}
	first := next(t, ws, EventAudio)
	second := next(t, ws, EventAudio)

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("Expected audio for 1 then 2, got %d then %d", first.Sequence, second.Sequence)
	}
	if first.Duration != 1 || first.SampleRate != sampleRate || len(first.Payload) != sampleRate*2 {
		t.Errorf("Unexpected first buffer: duration=%v rate=%d bytes=%d", first.Duration, first.SampleRate, len(first.Payload))
	}
	if second.StartTime < first.StartTime+first.Duration-1e-9 {
		t.Errorf("Second buffer at %v overlaps first ending at %v", second.StartTime, first.StartTime+first.Duration)
	}
}

func TestGateway_AudioBeforeResumeReportsPlayback(t *testing.T) {
	ws := dial(t, Deps{})

	send(t, ws, ClientMessage{Event: EventText, Text: "Too early."})

	st := next(t, ws, EventStatus)
	if st.Kind != "playback" || st.Sequence != 1 {
		t.Errorf("Expected playback status for segment 1, got %+v", st)
	}
}

func TestGateway_DevicesAndOutputSelection(t *testing.T) {
	ws := dial(t, Deps{})

	send(t, ws, ClientMessage{Event: EventDevices, Devices: []device.Device{
		{ID: "mic-1", Kind: device.KindInput},
		{ID: "spk-1", Label: "Speakers", Kind: device.KindOutput},
		{ID: "hdp-1", Label: "Headphones", Kind: device.KindOutput},
	}})
	devs := next(t, ws, EventDevices)
	if len(devs.Inputs) != 1 || devs.Inputs[0].Label != "Input mic-1" || len(devs.Outputs) != 2 {
		t.Fatalf("Unexpected device lists: %+v", devs)
	}

	send(t, ws, ClientMessage{Event: EventSelectOutput, DeviceID: "nope"})
	if st := next(t, ws, EventStatus); st.Kind != "device" {
		t.Errorf("Expected device status for unknown sink, got %+v", st)
	}

	send(t, ws, ClientMessage{Event: EventSelectOutput, DeviceID: "hdp-1"})
	send(t, ws, ClientMessage{Event: EventResume})
	next(t, ws, EventResumed)
	send(t, ws, ClientMessage{Event: EventText, Text: "Routed."})

	if audio := next(t, ws, EventAudio); audio.SinkID != "hdp-1" {
		t.Errorf("Expected audio on hdp-1, got %q", audio.SinkID)
	}
}

func TestGateway_SelectOutputRightAfterSnapshot(t *testing.T) {
	for i := 0; i < 10; i++ {
		ws := dial(t, Deps{})

		// No wait for the devices echo between snapshot and selection
		send(t, ws, ClientMessage{Event: EventDevices, Devices: []device.Device{
			{ID: "spk-1", Label: "Speakers", Kind: device.KindOutput},
		}})
		send(t, ws, ClientMessage{Event: EventSelectOutput, DeviceID: "spk-1"})
		send(t, ws, ClientMessage{Event: EventResume})
		send(t, ws, ClientMessage{Event: EventText, Text: "Routed."})

		ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			var msg serverMsg
			if err := ws.ReadJSON(&msg); err != nil {
				t.Fatalf("Connection %d: waiting for audio: %v", i, err)
			}
			if msg.Event == EventStatus && msg.Kind == "device" {
				t.Fatalf("Connection %d: selection rejected: %s", i, msg.Message)
			}
			if msg.Event == EventAudio {
				if msg.SinkID != "spk-1" {
					t.Errorf("Connection %d: expected audio on spk-1, got %q", i, msg.SinkID)
				}
				break
			}
		}
	}
}

func TestGateway_DeviceEnumerationError(t *testing.T) {
	ws := dial(t, Deps{})

	send(t, ws, ClientMessage{Event: EventDevices, Error: "NotAllowedError: permission denied"})
	st := next(t, ws, EventStatus)
	if st.Kind != "device" || !strings.Contains(st.Message, "permission denied") {
		t.Errorf("Expected device status, got %+v", st)
	}
}

func TestGateway_BrowserRecognition(t *testing.T) {
	ws := dial(t, Deps{})

	send(t, ws, ClientMessage{Event: EventRecognition, Results: []stt.Result{{Transcript: "Bon"}}})
	if in := next(t, ws, EventInterim); in.Text != "Bon" {
		t.Errorf("Expected interim 'Bon', got %q", in.Text)
	}

	send(t, ws, ClientMessage{Event: EventRecognition, Results: []stt.Result{{Transcript: "Good morning.", IsFinal: true}}})
	if tr := next(t, ws, EventTranslation); tr.Source != "Good morning." {
		t.Errorf("Expected final text translated, got %+v", tr)
	}

	send(t, ws, ClientMessage{Event: EventRecognitionError, Message: "network"})
	if st := nextStatus(t, ws, "recognition"); st.Message != "network" {
		t.Errorf("Expected recognition status 'network', got %+v", st)
	}
}

func TestGateway_ServerRecognition(t *testing.T) {
	rec := &fakeRecognizer{}
	ws := dial(t, Deps{NewRecognizer: func() stt.Recognizer { return rec }})

	// Dropped while not listening
	ws.WriteMessage(websocket.BinaryMessage, []byte{0, 0})

	send(t, ws, ClientMessage{Event: EventStartListening})
	ws.WriteMessage(websocket.BinaryMessage, []byte{0, 0, 0, 0})

	if tr := next(t, ws, EventTranslation); tr.Source != "From the microphone." {
		t.Errorf("Unexpected translation: %+v", tr)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.audio != 4 {
		t.Errorf("Expected 4 bytes forwarded, got %d", rec.audio)
	}
}

func TestGateway_ImportDocument(t *testing.T) {
	ws := dial(t, Deps{ImportStagger: time.Millisecond})

	send(t, ws, ClientMessage{Event: EventImport, Document: "WEBVTT\n\n1\n00:00.000 --> 00:01.000\nOne. Two.\n"})

	if tr := next(t, ws, EventTranslation); tr.Source != "One." {
		t.Errorf("Expected 'One.' first, got %+v", tr)
	}
	if tr := next(t, ws, EventTranslation); tr.Source != "Two." {
		t.Errorf("Expected 'Two.' second, got %+v", tr)
	}
}

func TestGateway_ImportRecording(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		ws := dial(t, Deps{})
		send(t, ws, ClientMessage{Event: EventImportRecording, MeetingID: "123"})
		if st := next(t, ws, EventStatus); st.Kind != "configuration" || st.Component != "recordings" {
			t.Errorf("Expected configuration status, got %+v", st)
		}
	})

	t.Run("no transcript", func(t *testing.T) {
		ws := dial(t, Deps{Transcripts: fakeFetcher{err: recordings.ErrNoTranscript}})
		send(t, ws, ClientMessage{Event: EventImportRecording, MeetingID: "123"})
		if st := next(t, ws, EventStatus); st.Kind != "service" {
			t.Errorf("Expected service status, got %+v", st)
		}
	})

	t.Run("fetched", func(t *testing.T) {
		ws := dial(t, Deps{Transcripts: fakeFetcher{doc: "WEBVTT\n\nHello there.\n"}})
		send(t, ws, ClientMessage{Event: EventImportRecording, MeetingID: "123"})
		if tr := next(t, ws, EventTranslation); tr.Source != "Hello there." {
			t.Errorf("Unexpected translation: %+v", tr)
		}
	})
}

func TestGateway_OversizedMessageClosesConnection(t *testing.T) {
	ws := dial(t, Deps{MaxMessageBytes: 1024})

	send(t, ws, ClientMessage{Event: EventImport, Document: "WEBVTT\n\n" + strings.Repeat("Hello there. ", 200)})

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code != websocket.CloseMessageTooBig {
				t.Errorf("Expected close code %d, got %d", websocket.CloseMessageTooBig, ce.Code)
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				t.Error("Expected the connection to be closed")
			}
			return
		}
	}
}

func TestGateway_StagesReportToConnection(t *testing.T) {
	ws := dial(t, Deps{Stages: func(r status.Reporter) (pipeline.Translator, tts.Synthesizer) {
		stage := translate.NewStage(nil, translate.Config{Model: "m", TargetLanguage: "Spanish"}, nil, r, zerolog.Nop())
		return stage, toneSynth{}
	}})

	send(t, ws, ClientMessage{Event: EventText, Text: "Hello."})

	st := nextStatus(t, ws, "configuration")
	if st.Sequence != 1 {
		t.Errorf("Expected configuration status for segment 1, got %+v", st)
	}
	if tr := next(t, ws, EventTranslation); tr.Translated || tr.Text != "" {
		t.Errorf("Expected untranslated result, got %+v", tr)
	}
}

func TestRemoteDevices_ErrorThenRecovery(t *testing.T) {
	r := newRemoteDevices()
	r.update([]device.Device{{ID: "a", Kind: device.KindOutput}}, "")
	r.update(nil, "boom")

	if _, err := r.Enumerate(context.Background()); err == nil {
		t.Fatal("Expected enumeration error")
	}
	r.update(nil, "")
	devs, err := r.Enumerate(context.Background())
	if err != nil || len(devs) != 0 {
		t.Errorf("Expected empty snapshot, got %v (%v)", devs, err)
	}
}

func TestBrowserOutput_ClockStartsAtResume(t *testing.T) {
	o := newBrowserOutput(&peer{closed: true}, sampleRate)
	if o.CurrentTime() != 0 {
		t.Errorf("Expected zero clock before resume")
	}
	if err := o.Resume(context.Background()); !errors.Is(err, errPeerClosed) {
		t.Errorf("Expected errPeerClosed, got %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if o.CurrentTime() <= 0 {
		t.Errorf("Expected clock to run after resume")
	}
}
