package notify

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/router"
)

func TestTextSensor(t *testing.T) {
	ctx := context.Background()
	ts := NewTextSensor("usb_audio_status")
	test.That(t, ts.Name(), test.ShouldEqual, "usb_audio_status")
	_, ok := ts.State()
	test.That(t, ok, test.ShouldBeFalse)

	var pushed []string
	ts.Subscribe(func(s string) { pushed = append(pushed, s) })

	ts.PresenceChanged(ctx, true, time.Now())
	ts.OutputChanged(ctx, router.OutputExternal)
	ts.PresenceChanged(ctx, false, time.Now())

	state, ok := ts.State()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, state, test.ShouldEqual, StateDisconnected)
	test.That(t, pushed, test.ShouldResemble, []string{StateConnected, StateDisconnected})
}

func TestSinks(t *testing.T) {
	ctx := context.Background()
	logger, observed := logging.NewObservedTestLogger(t)

	var presence []bool
	var outputs []router.EffectiveOutput
	ts := NewTextSensor("status")
	sinks := Sinks{
		ts,
		LogSink{Logger: logger},
		Func{
			Presence: func(c bool) { presence = append(presence, c) },
			Output:   func(o router.EffectiveOutput) { outputs = append(outputs, o) },
		},
		Func{},
	}

	sinks.PresenceChanged(ctx, true, time.Now())
	sinks.OutputChanged(ctx, router.OutputExternal)

	test.That(t, presence, test.ShouldResemble, []bool{true})
	test.That(t, outputs, test.ShouldResemble, []router.EffectiveOutput{router.OutputExternal})
	state, _ := ts.State()
	test.That(t, state, test.ShouldEqual, StateConnected)
	test.That(t, observed.FilterMessage("external audio device").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessage("audio output").Len(), test.ShouldEqual, 1)
}
