// Package device tracks the audio inputs and outputs a platform exposes.
package device

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/status"
)

const component = "device"

// Kind is the direction of a device
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
)

// Device is one audio endpoint
type Device struct {
	ID    string `json:"deviceId"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

// Provider is the platform device capability
type Provider interface {
	// Enumerate returns every device the platform currently exposes
	Enumerate(ctx context.Context) ([]Device, error)
	// Changes signals hot-plug events. It may return nil.
	Changes() <-chan struct{}
}

// Registry holds the latest device lists
type Registry struct {
	provider Provider
	reporter status.Reporter
	logger   zerolog.Logger

	mu        sync.RWMutex
	inputs    []Device
	outputs   []Device
	onRefresh func()
}

// NewRegistry creates a registry over provider
func NewRegistry(provider Provider, reporter status.Reporter, logger zerolog.Logger) *Registry {
	if reporter == nil {
		reporter = status.Discard
	}
	return &Registry{
		provider: provider,
		reporter: reporter,
		logger:   observability.WithComponent(logger, component),
	}
}

// Refresh re-enumerates and replaces both lists. On failure the previous
// lists are kept.
func (r *Registry) Refresh(ctx context.Context) error {
	devices, err := r.provider.Enumerate(ctx)
	if err != nil {
		err = fmt.Errorf("failed to enumerate devices: %w", err)
		r.reporter.Report(status.Failure(status.KindDevice, component, 0, err))
		return err
	}

	inputs := make([]Device, 0)
	outputs := make([]Device, 0)
	for _, d := range devices {
		if strings.TrimSpace(d.Label) == "" {
			d.Label = PlaceholderLabel(d)
		}
		switch d.Kind {
		case KindInput:
			inputs = append(inputs, d)
		case KindOutput:
			outputs = append(outputs, d)
		}
	}

	r.mu.Lock()
	r.inputs = inputs
	r.outputs = outputs
	notify := r.onRefresh
	r.mu.Unlock()

	if notify != nil {
		notify()
	}

	r.logger.Debug().Int("inputs", len(inputs)).Int("outputs", len(outputs)).Msg("Device lists refreshed")
	return nil
}

// Watch refreshes on every change notification until ctx is done
func (r *Registry) Watch(ctx context.Context) {
	changes := r.provider.Changes()
	if changes == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			// Failures are already reported
			_ = r.Refresh(ctx)
		}
	}
}

// OnRefresh sets a callback run after every successful refresh
func (r *Registry) OnRefresh(fn func()) {
	r.mu.Lock()
	r.onRefresh = fn
	r.mu.Unlock()
}

// Inputs returns a copy of the input list
func (r *Registry) Inputs() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Device(nil), r.inputs...)
}

// Outputs returns a copy of the output list
func (r *Registry) Outputs() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Device(nil), r.outputs...)
}

// Lookup finds a device by id in either list
func (r *Registry) Lookup(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, list := range [][]Device{r.inputs, r.outputs} {
		for _, d := range list {
			if d.ID == id {
				return d, true
			}
		}
	}
	return Device{}, false
}

// PlaceholderLabel names an unlabeled device by kind and short id,
// e.g. "Input 1a2b3c4d"
func PlaceholderLabel(d Device) string {
	short := d.ID
	if len(short) > 8 {
		short = short[:8]
	}
	name := "Device"
	switch d.Kind {
	case KindInput:
		name = "Input"
	case KindOutput:
		name = "Output"
	}
	return name + " " + short
}

// StaticProvider serves a fixed device list and never changes
type StaticProvider struct {
	Devices []Device
}

func (p StaticProvider) Enumerate(context.Context) ([]Device, error) {
	return append([]Device(nil), p.Devices...), nil
}

func (p StaticProvider) Changes() <-chan struct{} { return nil }
