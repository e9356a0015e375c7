// Package notify publishes presence and output changes for display and telemetry.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/router"
)

// Text sensor states.
const (
	StateConnected    = "Connected"
	StateDisconnected = "Disconnected"
)

// A Sink receives committed presence transitions and applied output changes.
type Sink interface {
	PresenceChanged(ctx context.Context, connected bool, at time.Time)
	OutputChanged(ctx context.Context, output router.EffectiveOutput)
}

// Sinks fans every notification out to each sink in order.
type Sinks []Sink

// PresenceChanged notifies each sink.
func (s Sinks) PresenceChanged(ctx context.Context, connected bool, at time.Time) {
	for _, sink := range s {
		sink.PresenceChanged(ctx, connected, at)
	}
}

// OutputChanged notifies each sink.
func (s Sinks) OutputChanged(ctx context.Context, output router.EffectiveOutput) {
	for _, sink := range s {
		sink.OutputChanged(ctx, output)
	}
}

// A TextSensor holds "Connected" or "Disconnected" and pushes each new state to its subscribers.
type TextSensor struct {
	mu          sync.Mutex
	name        string
	state       string
	hasState    bool
	subscribers []func(string)
}

// NewTextSensor returns a TextSensor with no state yet.
func NewTextSensor(name string) *TextSensor {
	return &TextSensor{name: name}
}

// Name returns the sensor's name.
func (ts *TextSensor) Name() string {
	return ts.name
}

// Subscribe registers f to receive every published state.
func (ts *TextSensor) Subscribe(f func(state string)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.subscribers = append(ts.subscribers, f)
}

// PublishState sets the state and pushes it to subscribers.
func (ts *TextSensor) PublishState(state string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.state = state
	ts.hasState = true
	for _, f := range ts.subscribers {
		f(state)
	}
}

// State returns the last published state. ok is false before the first publish.
func (ts *TextSensor) State() (state string, ok bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.state, ts.hasState
}

// PresenceChanged publishes the matching state.
func (ts *TextSensor) PresenceChanged(ctx context.Context, connected bool, at time.Time) {
	if connected {
		ts.PublishState(StateConnected)
		return
	}
	ts.PublishState(StateDisconnected)
}

// OutputChanged is ignored; the text sensor only tracks presence.
func (ts *TextSensor) OutputChanged(ctx context.Context, output router.EffectiveOutput) {}

// LogSink logs every notification.
type LogSink struct {
	Logger logging.Logger
}

// PresenceChanged logs the transition.
func (s LogSink) PresenceChanged(ctx context.Context, connected bool, at time.Time) {
	s.Logger.CInfow(ctx, "external audio device", "connected", connected, "at", at)
}

// OutputChanged logs the new output.
func (s LogSink) OutputChanged(ctx context.Context, output router.EffectiveOutput) {
	s.Logger.CInfow(ctx, "audio output", "output", output.String())
}

// Func adapts plain functions to a Sink. Nil fields are skipped.
type Func struct {
	Presence func(connected bool)
	Output   func(output router.EffectiveOutput)
}

// PresenceChanged calls Presence.
func (f Func) PresenceChanged(ctx context.Context, connected bool, at time.Time) {
	if f.Presence != nil {
		f.Presence(connected)
	}
}

// OutputChanged calls Output.
func (f Func) OutputChanged(ctx context.Context, output router.EffectiveOutput) {
	if f.Output != nil {
		f.Output(output)
	}
}
