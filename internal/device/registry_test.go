package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/status"
)

type scriptedProvider struct {
	results [][]Device
	err     error
	calls   int
	changes chan struct{}
}

func (p *scriptedProvider) Enumerate(context.Context) ([]Device, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls - 1
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	return p.results[i], nil
}

func (p *scriptedProvider) Changes() <-chan struct{} { return p.changes }

func TestRegistry_RefreshSplitsAndLabels(t *testing.T) {
	p := &scriptedProvider{results: [][]Device{{
		{ID: "1a2b3c4d5e6f", Kind: KindInput},
		{ID: "mic-2", Label: "USB Mic", Kind: KindInput},
		{ID: "out-1", Label: "Speakers", Kind: KindOutput},
		{ID: "cam", Label: "Camera", Kind: "videoinput"},
	}}}
	r := NewRegistry(p, nil, zerolog.Nop())

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	inputs := r.Inputs()
	if len(inputs) != 2 {
		t.Fatalf("Expected 2 inputs, got %d", len(inputs))
	}
	if inputs[0].Label != "Input 1a2b3c4d" {
		t.Errorf("Expected placeholder label 'Input 1a2b3c4d', got '%s'", inputs[0].Label)
	}
	if len(r.Outputs()) != 1 {
		t.Errorf("Expected 1 output, got %d", len(r.Outputs()))
	}
	if _, ok := r.Lookup("cam"); ok {
		t.Error("Expected non-audio device to be ignored")
	}
	if d, ok := r.Lookup("out-1"); !ok || d.Label != "Speakers" {
		t.Errorf("Expected to find out-1, got %+v (ok=%v)", d, ok)
	}
}

func TestRegistry_RefreshReplacesWholesale(t *testing.T) {
	p := &scriptedProvider{results: [][]Device{
		{{ID: "a", Label: "A", Kind: KindOutput}, {ID: "b", Label: "B", Kind: KindOutput}},
		{{ID: "c", Label: "C", Kind: KindOutput}},
	}}
	r := NewRegistry(p, nil, zerolog.Nop())
	ctx := context.Background()

	r.Refresh(ctx)
	r.Refresh(ctx)

	outputs := r.Outputs()
	if len(outputs) != 1 || outputs[0].ID != "c" {
		t.Errorf("Expected only device c, got %+v", outputs)
	}
}

func TestRegistry_FailureKeepsPreviousLists(t *testing.T) {
	p := &scriptedProvider{results: [][]Device{{{ID: "a", Label: "A", Kind: KindInput}}}}
	rec := &status.Recorder{}
	r := NewRegistry(p, rec, zerolog.Nop())
	ctx := context.Background()

	r.Refresh(ctx)
	p.err = errors.New("permission denied")
	if err := r.Refresh(ctx); err == nil {
		t.Fatal("Expected enumeration error")
	}

	if len(r.Inputs()) != 1 {
		t.Errorf("Expected previous inputs to survive, got %d", len(r.Inputs()))
	}
	if rec.Count(status.KindDevice) != 1 {
		t.Errorf("Expected one device status, got %d", rec.Count(status.KindDevice))
	}
}

func TestRegistry_OnRefreshOnlyAfterSuccess(t *testing.T) {
	p := &scriptedProvider{results: [][]Device{{{ID: "a", Label: "A", Kind: KindOutput}}}}
	r := NewRegistry(p, nil, zerolog.Nop())

	calls := 0
	r.OnRefresh(func() { calls++ })

	r.Refresh(context.Background())
	p.err = errors.New("gone")
	r.Refresh(context.Background())

	if calls != 1 {
		t.Errorf("Expected 1 notification, got %d", calls)
	}
}

func TestRegistry_WatchRefreshesOnChange(t *testing.T) {
	p := &scriptedProvider{
		results: [][]Device{
			{{ID: "a", Label: "A", Kind: KindOutput}},
			{{ID: "a", Label: "A", Kind: KindOutput}, {ID: "b", Label: "B", Kind: KindOutput}},
		},
		changes: make(chan struct{}),
	}
	r := NewRegistry(p, nil, zerolog.Nop())
	r.Refresh(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Watch(ctx)
		close(done)
	}()

	p.changes <- struct{}{}

	deadline := time.Now().Add(time.Second)
	for len(r.Outputs()) != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(r.Outputs()) != 2 {
		t.Errorf("Expected 2 outputs after hot-plug, got %d", len(r.Outputs()))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestPlaceholderLabel(t *testing.T) {
	tests := []struct {
		device   Device
		expected string
	}{
		{Device{ID: "1a2b3c4d5e6f", Kind: KindInput}, "Input 1a2b3c4d"},
		{Device{ID: "abc", Kind: KindOutput}, "Output abc"},
	}
	for _, tt := range tests {
		if got := PlaceholderLabel(tt.device); got != tt.expected {
			t.Errorf("Expected '%s', got '%s'", tt.expected, got)
		}
	}
}
