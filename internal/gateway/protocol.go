package gateway

import (
	"github.com/lexiqai/interpreter/internal/device"
	"github.com/lexiqai/interpreter/internal/stt"
)

// Client events
const (
	EventResume           = "resume"
	EventText             = "text"
	EventRecognition      = "recognition"
	EventRecognitionError = "recognition_error"
	EventImport           = "import"
	EventImportRecording  = "import_recording"
	EventDevices          = "devices"
	EventSelectOutput     = "select_output"
	EventStartListening   = "start_listening"
	EventStopListening    = "stop_listening"
)

// Server events
const (
	EventStatus      = "status"
	EventInterim     = "interim"
	EventTranslation = "translation"
	EventAudio       = "audio"
	EventResumed     = "resumed"
)

// ClientMessage is any JSON message sent by the browser. Only the fields of
// the named event are set.
type ClientMessage struct {
	Event string `json:"event"`

	Text        string          `json:"text,omitempty"`
	ResultIndex int             `json:"resultIndex,omitempty"`
	Results     []stt.Result    `json:"results,omitempty"`
	Message     string          `json:"message,omitempty"`
	Document    string          `json:"document,omitempty"`
	MeetingID   string          `json:"meetingId,omitempty"`
	Devices     []device.Device `json:"devices,omitempty"`
	Error       string          `json:"error,omitempty"`
	DeviceID    string          `json:"deviceId,omitempty"`
}

// StatusMessage carries one status event
type StatusMessage struct {
	Event     string `json:"event"`
	Kind      string `json:"kind"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Sequence  uint64 `json:"sequence,omitempty"`
}

// InterimMessage replaces the transient recognition display
type InterimMessage struct {
	Event string `json:"event"`
	Text  string `json:"text"`
}

// TranslationMessage shows a translated segment. Text is empty when the
// segment could not be translated.
type TranslationMessage struct {
	Event      string `json:"event"`
	Sequence   uint64 `json:"sequence"`
	Source     string `json:"source"`
	Text       string `json:"text"`
	Translated bool   `json:"translated"`
}

// AudioMessage asks the browser to play a PCM16 buffer at StartTime
// seconds on its output clock
type AudioMessage struct {
	Event      string  `json:"event"`
	Sequence   uint64  `json:"sequence"`
	SinkID     string  `json:"sinkId"`
	StartTime  float64 `json:"startTime"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sampleRate"`
	Payload    []byte  `json:"payload"` // base64 in JSON
}

// DevicesMessage is the registry's current view
type DevicesMessage struct {
	Event   string          `json:"event"`
	Inputs  []device.Device `json:"inputs"`
	Outputs []device.Device `json:"outputs"`
}

type eventMessage struct {
	Event string `json:"event"`
}
