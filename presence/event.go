package presence

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/viamrobotics/usbaudio/logging"
)

// An EventBackend turns driver callbacks, such as a Bluetooth stack's connection events, into
// samples.
type EventBackend struct {
	name   string
	clock  clock.Clock
	logger logging.Logger

	mu   sync.Mutex
	sink func(Sample)
}

// NewEventBackend returns an EventBackend. A nil clock uses the wall clock.
func NewEventBackend(name string, clk clock.Clock, logger logging.Logger) *EventBackend {
	if clk == nil {
		clk = clock.New()
	}
	return &EventBackend{name: name, clock: clk, logger: logger}
}

// Name returns the backend's name.
func (b *EventBackend) Name() string {
	return b.name
}

// Start sets where notifications go.
func (b *EventBackend) Start(ctx context.Context, sink func(Sample)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	return nil
}

// Notify reports a connect or disconnect. It returns false when the backend is not started and
// the notification was dropped.
func (b *EventBackend) Notify(connected bool) bool {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink == nil {
		b.logger.Debugw("dropping event, backend not started", "backend", b.name, "connected", connected)
		return false
	}
	sink(Sample{Detected: connected, Timestamp: b.clock.Now(), Source: b.name})
	return true
}

// Close stops delivering notifications.
func (b *EventBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = nil
	return nil
}
