package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gopxl/beep"
)

const (
	// SynthesisSampleRate is the rate of synthesized speech payloads
	SynthesisSampleRate = 24000
	// CaptureSampleRate is the rate of microphone audio sent for recognition
	CaptureSampleRate = 16000
)

// ErrOddLength is returned when a PCM16 payload does not hold whole samples
var ErrOddLength = errors.New("PCM16 data length must be even")

// Mono16 returns the beep format of signed 16-bit little-endian mono audio
func Mono16(sampleRate int) beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}
}

// Clip is a decoded payload held as normalised stereo frames in [-1, 1]
type Clip struct {
	Format beep.Format
	Frames [][2]float64
}

// DecodePCM16 converts raw PCM16 LE mono bytes into frames. Mono samples are
// copied to both channels.
func DecodePCM16(data []byte, format beep.Format) (*Clip, error) {
	width := format.Width()
	if width == 0 {
		return nil, fmt.Errorf("invalid audio format: %+v", format)
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrOddLength, len(data))
	}

	frames := make([][2]float64, 0, len(data)/width)
	for len(data) > 0 {
		frame, n := format.DecodeSigned(data)
		frames = append(frames, frame)
		data = data[n:]
	}
	return &Clip{Format: format, Frames: frames}, nil
}

// EncodePCM16 converts frames back to PCM16 LE bytes in format
func EncodePCM16(frames [][2]float64, format beep.Format) []byte {
	out := make([]byte, len(frames)*format.Width())
	p := out
	for _, frame := range frames {
		n := format.EncodeSigned(p, frame)
		p = p[n:]
	}
	return out
}

// Len returns the number of frames
func (c *Clip) Len() int {
	return len(c.Frames)
}

// Duration returns the playback length of the clip
func (c *Clip) Duration() time.Duration {
	return c.Format.SampleRate.D(len(c.Frames))
}

// PCM16 re-encodes the clip in its own format
func (c *Clip) PCM16() []byte {
	return EncodePCM16(c.Frames, c.Format)
}

// Streamer returns a beep streamer reading the clip from the start
func (c *Clip) Streamer() beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(c.Frames) {
			return 0, false
		}
		n := copy(samples, c.Frames[pos:])
		pos += n
		return n, true
	})
}
