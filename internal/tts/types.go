package tts

import "context"

// AudioChunk is one audio part of a synthesis response
type AudioChunk struct {
	Data       []byte // Raw PCM16 LE samples
	MIMEType   string // As reported by the service, e.g. audio/L16;codec=pcm;rate=24000
	SampleRate int    // Sample rate in Hz (24000 for Gemini speech)
	Channels   int    // Number of channels (1 for mono)
}

// Synthesizer converts translated text into audio parts
type Synthesizer interface {
	// Synthesize returns the audio parts of the response in order. No audio
	// parts is not an error.
	Synthesize(ctx context.Context, seq uint64, text string) ([]AudioChunk, error)
}
