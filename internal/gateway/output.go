package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/interpreter/internal/device"
	"github.com/lexiqai/interpreter/internal/playback"
)

const writeTimeout = 10 * time.Second

var errPeerClosed = errors.New("websocket peer is closed")

// peer serializes writes to one WebSocket connection
type peer struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errPeerClosed
	}
	p.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.ws.WriteJSON(v)
}

func (p *peer) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// browserOutput plays scheduled buffers through the connected browser. Its
// clock starts at the first Resume.
type browserOutput struct {
	peer       *peer
	sampleRate int

	mu        sync.Mutex
	resumedAt time.Time
	sinkID    string
	closed    bool
}

func newBrowserOutput(p *peer, sampleRate int) *browserOutput {
	return &browserOutput{peer: p, sampleRate: sampleRate}
}

func (o *browserOutput) factory() playback.OutputFactory {
	return func(context.Context) (playback.Output, error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return nil, errPeerClosed
		}
		return o, nil
	}
}

func (o *browserOutput) Resume(context.Context) error {
	o.mu.Lock()
	if o.resumedAt.IsZero() {
		o.resumedAt = time.Now()
	}
	o.mu.Unlock()
	return o.peer.send(eventMessage{Event: EventResumed})
}

func (o *browserOutput) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resumedAt.IsZero() {
		return 0
	}
	return time.Since(o.resumedAt)
}

func (o *browserOutput) Route(_ context.Context, sinkID string) error {
	o.mu.Lock()
	o.sinkID = sinkID
	o.mu.Unlock()
	return nil
}

func (o *browserOutput) Start(_ context.Context, buf playback.ScheduledBuffer) error {
	return o.peer.send(AudioMessage{
		Event:      EventAudio,
		Sequence:   buf.Sequence,
		SinkID:     buf.SinkID,
		StartTime:  buf.StartTime.Seconds(),
		Duration:   buf.Duration.Seconds(),
		SampleRate: o.sampleRate,
		Payload:    buf.Clip.PCM16(),
	})
}

func (o *browserOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// remoteDevices is a device.Provider fed by the browser's snapshots. The
// connection refreshes its registry as each snapshot arrives, so there is
// no separate hot-plug channel.
type remoteDevices struct {
	mu      sync.Mutex
	devices []device.Device
	err     error
}

func newRemoteDevices() *remoteDevices {
	return &remoteDevices{}
}

func (r *remoteDevices) Enumerate(context.Context) ([]device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return append([]device.Device(nil), r.devices...), nil
}

func (r *remoteDevices) Changes() <-chan struct{} { return nil }

// update stores a snapshot. A non-empty errMsg means the browser could not
// enumerate; the previous snapshot stays.
func (r *remoteDevices) update(devices []device.Device, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errMsg != "" {
		r.err = errors.New(errMsg)
		return
	}
	r.err = nil
	r.devices = append([]device.Device(nil), devices...)
}
