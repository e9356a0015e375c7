// Package audioswitch is the audio output arbitration component. It owns the presence backends,
// the monitor that debounces them and the router that switches the audio path, and runs the
// periodic tick that samples polled backends.
package audioswitch

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/notify"
	"github.com/viamrobotics/usbaudio/presence"
	"github.com/viamrobotics/usbaudio/router"
	"github.com/viamrobotics/usbaudio/usb"
)

var positionLabels = []string{router.ModeInternal.String(), router.ModeExternal.String(), router.ModeAuto.String()}

// Deps are the collaborators a Component is built from.
type Deps struct {
	// Boards are looked up by the config's board name.
	Boards map[string]board.Board
	// Enumerator replaces the sysfs enumerator for descriptor and hotplug backends.
	Enumerator usb.Enumerator
	// Clock stamps samples and transitions. Defaults to the wall clock.
	Clock clock.Clock
	// Sinks receive presence and output changes in addition to the status text sensor.
	Sinks []notify.Sink
}

// A Component arbitrates between the internal speakers and an external audio sink.
type Component struct {
	name   string
	logger logging.Logger
	deps   Deps
	clock  clock.Clock
	router *router.Router
	status *notify.TextSensor
	sinks  notify.Sinks

	cancelCtx  context.Context
	cancelFunc func()

	// lifecycleMu serializes Start, Reconfigure and Close so only one of them owns the scheduler.
	lifecycleMu sync.Mutex

	// monitor lives as long as the component; Reconfigure only changes its thresholds.
	monitor *presence.Monitor

	mu        sync.RWMutex
	conf      *Config
	backends  *backendSet
	scheduler gocron.Scheduler
	started   bool
	closed    bool

	listenersMu sync.Mutex
	listeners   []func(connected bool)
}

// New builds a Component. Backends are not started and nothing is polled until Start.
func New(name string, conf *Config, deps Deps, path router.AudioPath, logger logging.Logger) (*Component, error) {
	if _, err := conf.Validate(name); err != nil {
		return nil, err
	}
	r, err := router.NewRouter(path, conf.Mode(), logger.Sublogger("router"))
	if err != nil {
		return nil, err
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	c := &Component{
		name:       name,
		logger:     logger,
		deps:       deps,
		clock:      clk,
		router:     r,
		status:     notify.NewTextSensor(name + "_status"),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	c.sinks = append(notify.Sinks{c.status}, deps.Sinks...)
	r.OnChange(func(o router.EffectiveOutput) {
		c.sinks.OutputChanged(c.cancelCtx, o)
	})

	bs, err := c.buildBackends(conf)
	if err != nil {
		cancelFunc()
		return nil, err
	}
	c.conf = conf
	c.backends = bs
	c.monitor = presence.NewMonitor(conf.Threshold(), logger.Sublogger("monitor"), presence.WithClock(clk))
	c.monitor.SetThresholds(conf.Threshold(), bs.thresholds)
	c.monitor.OnChange(c.presenceChanged)
	return c, nil
}

// Name returns the component's name.
func (c *Component) Name() string {
	return c.name
}

// presenceChanged runs inside the monitor's lock, so it must not take c.mu.
func (c *Component) presenceChanged(connected bool, at time.Time) {
	c.router.NotifyPresence(c.cancelCtx, connected)
	c.sinks.PresenceChanged(c.cancelCtx, connected, at)

	c.listenersMu.Lock()
	listeners := slices.Clone(c.listeners)
	c.listenersMu.Unlock()
	for _, f := range listeners {
		f(connected)
	}
}

// Start starts push backends, applies the configured output once and begins ticking.
func (c *Component) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("audio switch is closed")
	}
	if c.started {
		return errors.New("audio switch already started")
	}
	if err := c.startLocked(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

func (c *Component) startLocked(ctx context.Context) error {
	m := c.monitor
	if err := c.backends.start(c.cancelCtx, func(s presence.Sample) { m.Ingest(s) }); err != nil {
		return err
	}
	if err := c.router.Refresh(ctx); err != nil {
		c.logger.CWarnw(ctx, "could not apply initial audio output, will retry", "error", err)
	}
	if _, ok := c.status.State(); !ok {
		c.status.PresenceChanged(ctx, m.Stable(), c.clock.Now())
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return multierr.Combine(err, c.backends.close(ctx))
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(c.conf.PollInterval()),
		gocron.NewTask(func() { c.Tick(c.cancelCtx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return multierr.Combine(err, scheduler.Shutdown(), c.backends.close(ctx))
	}
	scheduler.Start()
	c.scheduler = scheduler
	return nil
}

// stopScheduler shuts the scheduler down without holding c.mu, since a running tick may be
// waiting for it.
func (c *Component) stopScheduler() error {
	c.mu.Lock()
	s := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

// Tick samples every polled backend once and retries a failed switch.
func (c *Component) Tick(ctx context.Context) {
	c.mu.RLock()
	pollers := c.backends.pollers
	c.mu.RUnlock()

	for _, p := range pollers {
		if ctx.Err() != nil {
			return
		}
		c.monitor.Ingest(p.Sample(ctx))
	}
	if err := c.router.Refresh(ctx); err != nil {
		c.logger.CDebugw(ctx, "audio switch retry failed", "error", err)
	}
}

// HandleEvent takes a connect or disconnect reported by a host driver callback. Sources that name
// an event backend go through it; anything else is ingested as is.
func (c *Component) HandleEvent(source string, connected bool) {
	c.mu.RLock()
	eb, ok := c.backends.events[source]
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		c.logger.Debugw("dropping event after close", "source", source)
		return
	}
	if ok && eb.Notify(connected) {
		return
	}
	c.monitor.Ingest(presence.Sample{Detected: connected, Timestamp: c.clock.Now(), Source: source})
}

// Reconfigure swaps in a new configuration. The monitor and its debounced presence are kept;
// backends are rebuilt and restarted.
func (c *Component) Reconfigure(ctx context.Context, conf *Config) error {
	if _, err := conf.Validate(c.name); err != nil {
		return err
	}
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	bs, err := c.buildBackends(conf)
	if err != nil {
		return err
	}
	schedErr := c.stopScheduler()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("audio switch is closed")
	}
	closeErr := c.backends.close(ctx)

	c.conf = conf
	c.backends = bs
	c.monitor.SetThresholds(conf.Threshold(), bs.thresholds)
	if err := c.router.SetMode(ctx, conf.Mode()); err != nil {
		return multierr.Combine(err, schedErr, closeErr)
	}
	if c.started {
		if err := c.startLocked(ctx); err != nil {
			c.started = false
			return multierr.Combine(err, schedErr, closeErr)
		}
	}
	c.logger.CInfow(ctx, "reconfigured", "backends", bs.names(), "mode", conf.Mode().String())
	return multierr.Combine(schedErr, closeErr)
}

// Close stops ticking and every backend.
func (c *Component) Close(ctx context.Context) error {
	c.cancelFunc()
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	err := c.stopScheduler()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return err
	}
	c.closed = true
	return multierr.Combine(err, c.backends.close(ctx))
}

// SetAudioOutputMode changes the routing policy.
func (c *Component) SetAudioOutputMode(ctx context.Context, mode router.OutputMode) error {
	return c.router.SetMode(ctx, mode)
}

// SetAudioOutputModeCode changes the routing policy by mode code.
func (c *Component) SetAudioOutputModeCode(ctx context.Context, code int) error {
	return c.router.SetModeCode(ctx, code)
}

// IsExternalConnected returns the debounced presence of the external sink.
func (c *Component) IsExternalConnected() bool {
	return c.monitor.Stable()
}

// OnPresenceChanged registers f to be called on every committed presence transition. f must not
// call back into the component's event or tick entry points.
func (c *Component) OnPresenceChanged(f func(connected bool)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, f)
}

// Status returns the "Connected"/"Disconnected" text sensor.
func (c *Component) Status() *notify.TextSensor {
	return c.status
}

// Mode returns the current routing policy.
func (c *Component) Mode() router.OutputMode {
	return c.router.Mode()
}

// Effective returns where audio should go right now.
func (c *Component) Effective() router.EffectiveOutput {
	return c.router.Effective()
}

// SetPosition sets the mode by its code, so the component can be driven like a 3 position switch.
func (c *Component) SetPosition(ctx context.Context, position uint32, extra map[string]interface{}) error {
	if position > math.MaxInt32 {
		return errors.Errorf("invalid position %d", position)
	}
	return c.SetAudioOutputModeCode(ctx, int(position))
}

// GetPosition returns the current mode code.
func (c *Component) GetPosition(ctx context.Context, extra map[string]interface{}) (uint32, error) {
	return uint32(c.router.Mode()), nil
}

// GetNumberOfPositions returns the number of modes and their labels.
func (c *Component) GetNumberOfPositions(ctx context.Context, extra map[string]interface{}) (uint32, []string, error) {
	return uint32(len(positionLabels)), positionLabels, nil
}

// Readings returns the component's state.
func (c *Component) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	m := c.monitor
	st := m.State()
	lastChange := ""
	if !st.LastChange.IsZero() {
		lastChange = st.LastChange.UTC().Format(time.RFC3339Nano)
	}
	status, _ := c.status.State()
	return map[string]interface{}{
		"connected":        st.Stable,
		"mode":             c.router.Mode().String(),
		"effective_output": c.router.Effective().String(),
		"last_change":      lastChange,
		"transitions":      m.Stats().Transitions,
		"status":           status,
	}, nil
}

// DoCommand supports "set_mode" (a mode name or code), "get_state" and "dump_config".
func (c *Component) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	resp := map[string]interface{}{}
	for key, value := range cmd {
		switch key {
		case "set_mode":
			mode, err := modeFromCommand(value)
			if err != nil {
				return nil, err
			}
			if err := c.SetAudioOutputMode(ctx, mode); err != nil {
				return nil, err
			}
			resp["mode"] = mode.String()
		case "get_state":
			readings, err := c.Readings(ctx, nil)
			if err != nil {
				return nil, err
			}
			resp["state"] = readings
		case "dump_config":
			resp["config"] = c.DumpConfig(ctx)
		default:
			return nil, errors.Errorf("unknown command %q", key)
		}
	}
	return resp, nil
}

func modeFromCommand(value interface{}) (router.OutputMode, error) {
	switch v := value.(type) {
	case string:
		return router.ParseOutputMode(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.Errorf("invalid audio output mode code %v", v)
		}
		return router.ModeFromCode(int(v))
	case int:
		return router.ModeFromCode(v)
	default:
		return 0, errors.Errorf("set_mode expects a mode name or code, got %T", value)
	}
}

// DumpConfig logs the configuration and current state, and returns the same fields.
func (c *Component) DumpConfig(ctx context.Context) map[string]interface{} {
	c.mu.RLock()
	conf := c.conf
	c.mu.RUnlock()
	m := c.monitor

	backends := lo.Map(conf.Backends, func(bc BackendConfig, _ int) string {
		return fmt.Sprintf("%s(%s)", bc.Name, bc.Type)
	})
	dump := map[string]interface{}{
		"mode":             c.router.Mode().String(),
		"connected":        m.Stable(),
		"poll_interval_ms": conf.PollInterval().Milliseconds(),
		"debounce_count":   conf.Threshold(),
		"board":            conf.Board,
		"backends":         backends,
	}
	c.logger.CInfow(ctx, "USB audio switch",
		"mode", dump["mode"],
		"connected", dump["connected"],
		"poll_interval_ms", dump["poll_interval_ms"],
		"debounce_count", dump["debounce_count"],
		"board", dump["board"],
		"backends", backends,
	)
	return dump
}
