package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// ErrOverlap is returned when a clip would start before the end of the
// audio already placed on a timeline
var ErrOverlap = errors.New("clip overlaps placed audio")

// Timeline is an offline rendering of scheduled clips. Gaps between clips
// are filled with silence.
type Timeline struct {
	buf *beep.Buffer
}

// NewTimeline creates an empty timeline in format
func NewTimeline(format beep.Format) *Timeline {
	return &Timeline{buf: beep.NewBuffer(format)}
}

// Format returns the timeline's audio format
func (t *Timeline) Format() beep.Format {
	return t.buf.Format()
}

// Len returns the number of frames placed so far
func (t *Timeline) Len() int {
	return t.buf.Len()
}

// Duration returns the end of the last placed clip
func (t *Timeline) Duration() time.Duration {
	return t.buf.Format().SampleRate.D(t.buf.Len())
}

// Place appends clip so that it starts at start. Start times are rounded to
// the nearest frame, and a start up to one frame before the end of placed
// audio is treated as back to back.
func (t *Timeline) Place(start time.Duration, clip *Clip) error {
	sr := t.buf.Format().SampleRate
	at := sr.N(start + sr.D(1)/2)
	if at == t.buf.Len()-1 {
		at = t.buf.Len()
	}
	if at < t.buf.Len() {
		return fmt.Errorf("%w: start frame %d, placed %d", ErrOverlap, at, t.buf.Len())
	}
	if gap := at - t.buf.Len(); gap > 0 {
		t.buf.Append(beep.Silence(gap))
	}
	t.buf.Append(clip.Streamer())
	return nil
}

// WriteWAV encodes the whole timeline as a PCM WAV file
func (t *Timeline) WriteWAV(w io.WriteSeeker) error {
	if err := wav.Encode(w, t.buf.Streamer(0, t.buf.Len()), t.buf.Format()); err != nil {
		return fmt.Errorf("failed to encode WAV: %w", err)
	}
	return nil
}
