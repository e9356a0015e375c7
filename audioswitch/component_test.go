package audioswitch

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/board/fake"
	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/notify"
	"github.com/viamrobotics/usbaudio/router"
	"github.com/viamrobotics/usbaudio/testutils/inject"
	"github.com/viamrobotics/usbaudio/usb"
)

// hourly keeps the scheduler out of the way so tests drive Tick themselves.
const hourly = 3600 * 1000

type harness struct {
	comp  *Component
	board *fake.Board
	path  *inject.AudioPath

	mu       sync.Mutex
	presence []bool
}

func (h *harness) changes() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.presence...)
}

func newHarness(t *testing.T, conf *Config) *harness {
	t.Helper()
	b, err := fake.NewBoard(&fake.Config{
		DigitalInterrupts: []board.DigitalInterruptConfig{{Name: "jack", Pin: "17"}},
	})
	test.That(t, err, test.ShouldBeNil)
	h := &harness{board: b, path: &inject.AudioPath{}}

	comp, err := New("audio", conf, Deps{Boards: map[string]board.Board{"local": b}}, h.path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	comp.OnPresenceChanged(func(connected bool) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.presence = append(h.presence, connected)
	})
	h.comp = comp
	t.Cleanup(func() {
		test.That(t, comp.Close(context.Background()), test.ShouldBeNil)
		test.That(t, b.Close(context.Background()), test.ShouldBeNil)
	})
	return h
}

func levelConfig(mode string) *Config {
	return &Config{
		AudioOutputMode: mode,
		PollIntervalMs:  hourly,
		Board:           "local",
		Backends:        []BackendConfig{{Name: "detect", Type: BackendLevel, Pins: []string{"detect"}}},
	}
}

func (h *harness) setDetect(t *testing.T, high bool) {
	t.Helper()
	test.That(t, h.board.Pin("detect").Set(context.Background(), high, nil), test.ShouldBeNil)
}

func TestComponentNeverDetected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, levelConfig(""))
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)
	test.That(t, h.comp.Start(ctx), test.ShouldNotBeNil)

	for i := 0; i < 5; i++ {
		h.comp.Tick(ctx)
	}
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	test.That(t, h.comp.Effective(), test.ShouldEqual, router.OutputInternal)
	test.That(t, h.path.InternalCalls(), test.ShouldEqual, 1)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 0)
	status, _ := h.comp.Status().State()
	test.That(t, status, test.ShouldEqual, notify.StateDisconnected)
}

func TestComponentAutoSwitchesAfterTwoSamples(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, levelConfig("auto"))
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	h.setDetect(t, true)
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 1)
	test.That(t, h.changes(), test.ShouldResemble, []bool{true})
	status, _ := h.comp.Status().State()
	test.That(t, status, test.ShouldEqual, notify.StateConnected)

	h.comp.Tick(ctx)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 1)
}

func TestComponentInterruptedRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, levelConfig("auto"))
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	for _, high := range []bool{true, false, true} {
		h.setDetect(t, high)
		h.comp.Tick(ctx)
		test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	}
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 1)
}

func TestComponentManualModes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, levelConfig("INTERNAL_SPEAKERS"))
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	h.setDetect(t, true)
	h.comp.Tick(ctx)
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 0)
	test.That(t, h.path.InternalCalls(), test.ShouldEqual, 1)

	test.That(t, h.comp.SetAudioOutputModeCode(ctx, 1), test.ShouldBeNil)
	h.setDetect(t, false)
	h.comp.Tick(ctx)
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 1)
	test.That(t, h.comp.Effective(), test.ShouldEqual, router.OutputExternal)

	test.That(t, h.comp.SetAudioOutputModeCode(ctx, 5), test.ShouldNotBeNil)
	test.That(t, h.comp.Mode(), test.ShouldEqual, router.ModeExternal)

	test.That(t, h.comp.SetAudioOutputMode(ctx, router.ModeAuto), test.ShouldBeNil)
	test.That(t, h.path.InternalCalls(), test.ShouldEqual, 2)
}

func TestComponentEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &Config{
		PollIntervalMs: hourly,
		Backends:       []BackendConfig{{Name: "bluetooth", Type: BackendEvent}},
	})

	// not started, so the event backend drops it and the sample goes straight in
	h.comp.HandleEvent("bluetooth", true)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 1)

	h.comp.HandleEvent("bluetooth", false)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	test.That(t, h.path.InternalCalls(), test.ShouldEqual, 1)

	// unknown sources use the monitor's default threshold
	h.comp.HandleEvent("dongle", true)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	h.comp.HandleEvent("dongle", true)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.changes(), test.ShouldResemble, []bool{true, false, true})
}

func TestComponentInterruptBackend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &Config{
		PollIntervalMs: hourly,
		Board:          "local",
		Backends:       []BackendConfig{{Name: "jack", Type: BackendInterrupt, Interrupt: "jack"}},
	})
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	h.board.Digitals["jack"].Tick(true)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.comp.IsExternalConnected(), test.ShouldBeTrue)
		test.That(tb, h.path.ExternalCalls(), test.ShouldEqual, 1)
	})
	h.board.Digitals["jack"].Tick(false)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	})
}

func TestComponentConcurrentPollAndPush(t *testing.T) {
	ctx := context.Background()
	conf := levelConfig("auto")
	conf.Backends = append(conf.Backends, BackendConfig{Name: "bluetooth", Type: BackendEvent, DebounceCount: 2})
	h := newHarness(t, conf)
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.comp.Tick(ctx)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.comp.HandleEvent("bluetooth", true)
		}
	}()
	wg.Wait()

	h.comp.HandleEvent("bluetooth", true)
	h.comp.HandleEvent("bluetooth", true)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.comp.Effective(), test.ShouldEqual, router.OutputExternal)

	readings, err := h.comp.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	changes := h.changes()
	test.That(t, readings["transitions"], test.ShouldEqual, uint64(len(changes)))
	for i, c := range changes {
		test.That(t, c, test.ShouldEqual, i%2 == 0)
	}
	applied, ok := h.comp.router.Applied()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, applied, test.ShouldEqual, router.OutputExternal)
}

func TestComponentRetriesFailedSwitchOnTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, levelConfig("auto"))
	fail := true
	var mu sync.Mutex
	h.path.ActivateExternalFunc = func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errors.New("codec busy")
		}
		return nil
	}
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	h.setDetect(t, true)
	h.comp.Tick(ctx)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 0)
	// the commit tries once and the same tick's refresh tries again
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 2)
	test.That(t, h.comp.Effective(), test.ShouldEqual, router.OutputExternal)

	h.comp.Tick(ctx)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 3)

	mu.Lock()
	fail = false
	mu.Unlock()
	h.comp.Tick(ctx)
	h.comp.Tick(ctx)
	test.That(t, h.path.ExternalCalls(), test.ShouldEqual, 4)
	applied, _ := h.comp.router.Applied()
	test.That(t, applied, test.ShouldEqual, router.OutputExternal)
}

func TestComponentScheduledTicks(t *testing.T) {
	ctx := context.Background()
	conf := levelConfig("auto")
	conf.PollIntervalMs = 10
	h := newHarness(t, conf)
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	h.setDetect(t, true)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.comp.IsExternalConnected(), test.ShouldBeTrue)
		test.That(tb, h.path.ExternalCalls(), test.ShouldEqual, 1)
	})
}

func TestComponentDescriptorBackend(t *testing.T) {
	ctx := context.Background()
	headset := []byte{
		9, 0x02, 18, 0, 1, 1, 0, 0x80, 50,
		9, 0x04, 0, 0, 0, 0x01, 0x02, 0x00, 0,
	}
	var mu sync.Mutex
	var devices []usb.Device
	enum := &inject.Enumerator{DevicesFunc: func(ctx context.Context) ([]usb.Device, error) {
		mu.Lock()
		defer mu.Unlock()
		return devices, nil
	}}
	path := &inject.AudioPath{}
	comp, err := New("audio", &Config{
		PollIntervalMs: hourly,
		Backends:       []BackendConfig{{Name: "usb", Type: BackendDescriptor}},
	}, Deps{Enumerator: enum}, path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, comp.Close(ctx), test.ShouldBeNil)
	}()
	test.That(t, comp.Start(ctx), test.ShouldBeNil)

	comp.Tick(ctx)
	comp.Tick(ctx)
	test.That(t, comp.IsExternalConnected(), test.ShouldBeFalse)

	mu.Lock()
	devices = []usb.Device{&inject.Device{OpenFunc: func(ctx context.Context) (usb.Handle, error) {
		return &inject.Handle{ConfigDescriptorFunc: func(ctx context.Context) ([]byte, error) {
			return headset, nil
		}}, nil
	}}}
	mu.Unlock()
	comp.Tick(ctx)
	comp.Tick(ctx)
	test.That(t, comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, path.ExternalCalls(), test.ShouldEqual, 1)
}

func TestComponentReconfigure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, levelConfig("auto"))
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	h.setDetect(t, true)
	h.comp.Tick(ctx)
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)

	conf := levelConfig("internal")
	conf.DebounceCount = 3
	test.That(t, h.comp.Reconfigure(ctx, conf), test.ShouldBeNil)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	test.That(t, h.comp.Mode(), test.ShouldEqual, router.ModeInternal)
	test.That(t, h.path.InternalCalls(), test.ShouldEqual, 2)

	h.setDetect(t, false)
	h.comp.Tick(ctx)
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	h.comp.Tick(ctx)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)

	test.That(t, h.comp.Reconfigure(ctx, &Config{}), test.ShouldNotBeNil)
	bad := levelConfig("auto")
	bad.Board = "missing"
	test.That(t, h.comp.Reconfigure(ctx, bad), test.ShouldNotBeNil)
	test.That(t, h.comp.Mode(), test.ShouldEqual, router.ModeInternal)
}

func TestComponentReconfigureDuringTicksAndEvents(t *testing.T) {
	ctx := context.Background()
	confWith := func(debounce uint32) *Config {
		conf := levelConfig("auto")
		conf.DebounceCount = debounce
		conf.Backends = append(conf.Backends, BackendConfig{Name: "bluetooth", Type: BackendEvent})
		return conf
	}
	h := newHarness(t, confWith(2))
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)

	var wg sync.WaitGroup
	var reconfigureErr, detectErr error
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := h.comp.Reconfigure(ctx, confWith(uint32(1+i%3))); err != nil {
				reconfigureErr = err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.comp.HandleEvent("bluetooth", i%3 != 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := h.board.Pin("detect").Set(ctx, i%5 < 2, nil); err != nil {
				detectErr = err
				return
			}
			h.comp.Tick(ctx)
		}
	}()
	wg.Wait()
	test.That(t, reconfigureErr, test.ShouldBeNil)
	test.That(t, detectErr, test.ShouldBeNil)

	consistent := func() {
		t.Helper()
		want := router.Resolve(h.comp.Mode(), h.comp.IsExternalConnected())
		test.That(t, h.comp.Effective(), test.ShouldEqual, want)
		applied, ok := h.comp.router.Applied()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, applied, test.ShouldEqual, want)
		changes := h.changes()
		for i, c := range changes {
			test.That(t, c, test.ShouldEqual, i%2 == 0)
		}
		if len(changes) > 0 {
			test.That(t, changes[len(changes)-1], test.ShouldEqual, h.comp.IsExternalConnected())
		}
	}
	consistent()

	h.comp.HandleEvent("bluetooth", true)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeTrue)
	consistent()

	h.setDetect(t, false)
	for i := 0; i < 3; i++ {
		h.comp.Tick(ctx)
	}
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
	test.That(t, h.comp.Effective(), test.ShouldEqual, router.OutputInternal)
	consistent()
}

func TestComponentSwitchAndCommands(t *testing.T) {
	ctx := context.Background()
	logger, observed := logging.NewObservedTestLogger(t)
	b, err := fake.NewBoard(nil)
	test.That(t, err, test.ShouldBeNil)
	defer b.Close(ctx)
	comp, err := New("audio", levelConfig("auto"), Deps{Boards: map[string]board.Board{"local": b}}, &inject.AudioPath{}, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, comp.Close(ctx), test.ShouldBeNil)
	}()

	n, labels, err := comp.GetNumberOfPositions(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 3)
	test.That(t, labels, test.ShouldResemble, []string{"internal", "external", "auto"})

	pos, err := comp.GetPosition(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 2)
	test.That(t, comp.SetPosition(ctx, 0, nil), test.ShouldBeNil)
	pos, err = comp.GetPosition(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 0)
	test.That(t, comp.SetPosition(ctx, 3, nil), test.ShouldNotBeNil)

	resp, err := comp.DoCommand(ctx, map[string]interface{}{"set_mode": 1.0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["mode"], test.ShouldEqual, "external")
	resp, err = comp.DoCommand(ctx, map[string]interface{}{"set_mode": "auto_select"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["mode"], test.ShouldEqual, "auto")
	_, err = comp.DoCommand(ctx, map[string]interface{}{"set_mode": 1.5})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = comp.DoCommand(ctx, map[string]interface{}{"set_mode": true})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = comp.DoCommand(ctx, map[string]interface{}{"reboot": true})
	test.That(t, err, test.ShouldNotBeNil)

	resp, err = comp.DoCommand(ctx, map[string]interface{}{"get_state": true, "dump_config": true})
	test.That(t, err, test.ShouldBeNil)
	state, ok := resp["state"].(map[string]interface{})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, state["connected"], test.ShouldEqual, false)
	test.That(t, state["mode"], test.ShouldEqual, "auto")
	test.That(t, state["effective_output"], test.ShouldEqual, "internal")
	test.That(t, state["last_change"], test.ShouldEqual, "")
	dump, ok := resp["config"].(map[string]interface{})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, dump["backends"], test.ShouldResemble, []string{"detect(level)"})
	test.That(t, dump["poll_interval_ms"], test.ShouldEqual, int64(hourly))
	test.That(t, observed.FilterMessage("USB audio switch").Len(), test.ShouldEqual, 1)
}

func TestComponentClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &Config{
		PollIntervalMs: hourly,
		Backends:       []BackendConfig{{Name: "bluetooth", Type: BackendEvent}},
	})
	test.That(t, h.comp.Start(ctx), test.ShouldBeNil)
	test.That(t, h.comp.Close(ctx), test.ShouldBeNil)
	test.That(t, h.comp.Start(ctx), test.ShouldNotBeNil)
	test.That(t, h.comp.Reconfigure(ctx, levelConfig("auto")), test.ShouldNotBeNil)

	h.comp.HandleEvent("bluetooth", true)
	test.That(t, h.comp.IsExternalConnected(), test.ShouldBeFalse)
}

func TestNewComponentErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := New("audio", &Config{}, Deps{}, &inject.AudioPath{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = New("audio", levelConfig("auto"), Deps{}, &inject.AudioPath{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = New("audio", &Config{Backends: []BackendConfig{{Name: "bt", Type: BackendEvent}}}, Deps{}, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
