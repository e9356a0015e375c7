package audioswitch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/presence"
	"github.com/viamrobotics/usbaudio/usb"
)

// backendSet is everything built from the backends section of a config.
type backendSet struct {
	pollers    []presence.Poller
	pushers    []presence.Pusher
	events     map[string]*presence.EventBackend
	thresholds map[string]uint32
}

func (bs *backendSet) names() []string {
	names := make([]string, 0, len(bs.pollers)+len(bs.pushers))
	for _, p := range bs.pollers {
		names = append(names, p.Name())
	}
	for _, p := range bs.pushers {
		names = append(names, p.Name())
	}
	return names
}

func (bs *backendSet) start(ctx context.Context, sink func(presence.Sample)) error {
	for i, p := range bs.pushers {
		if err := p.Start(ctx, sink); err != nil {
			return multierr.Combine(errors.Wrapf(err, "starting backend %q", p.Name()), closePushers(ctx, bs.pushers[:i]))
		}
	}
	return nil
}

func (bs *backendSet) close(ctx context.Context) error {
	return closePushers(ctx, bs.pushers)
}

func closePushers(ctx context.Context, pushers []presence.Pusher) error {
	var err error
	for _, p := range pushers {
		err = multierr.Combine(err, p.Close(ctx))
	}
	return err
}

func (c *Component) buildBackends(conf *Config) (*backendSet, error) {
	bs := &backendSet{events: map[string]*presence.EventBackend{}, thresholds: map[string]uint32{}}

	var b board.Board
	if conf.Board != "" {
		var ok bool
		if b, ok = c.deps.Boards[conf.Board]; !ok {
			return nil, errors.Errorf("board %q not found", conf.Board)
		}
	}

	for _, bc := range conf.Backends {
		logger := c.logger.Sublogger(bc.Name)
		if bc.usesBoard() && b == nil {
			return nil, errors.Errorf("backend %q needs a board", bc.Name)
		}
		switch bc.Type {
		case BackendLevel:
			lc := presence.LevelConfig{Name: bc.Name, ActiveLow: bc.ActiveLow, Threshold: bc.Threshold, Clock: c.deps.Clock}
			for _, name := range bc.Pins {
				pin, err := b.GPIOPinByName(name)
				if err != nil {
					return nil, errors.Wrapf(err, "backend %q", bc.Name)
				}
				lc.Pins = append(lc.Pins, pin)
			}
			if bc.Analog != "" {
				a, err := b.AnalogByName(bc.Analog)
				if err != nil {
					return nil, errors.Wrapf(err, "backend %q", bc.Name)
				}
				lc.Analog = a
			}
			lb, err := presence.NewLevelBackend(lc, logger)
			if err != nil {
				return nil, err
			}
			bs.pollers = append(bs.pollers, lb)
		case BackendDescriptor:
			db, err := c.descriptorBackend(bc, logger)
			if err != nil {
				return nil, err
			}
			bs.pollers = append(bs.pollers, db)
		case BackendInterrupt:
			ib, err := presence.NewInterruptBackend(presence.InterruptConfig{
				Name:      bc.Name,
				Board:     b,
				Interrupt: bc.Interrupt,
				ActiveLow: bc.ActiveLow,
				Clock:     c.deps.Clock,
			}, logger)
			if err != nil {
				return nil, err
			}
			bs.pushers = append(bs.pushers, ib)
			bs.thresholds[bc.Name] = presence.EventThreshold
		case BackendHotplug:
			probe, err := c.descriptorBackend(bc, logger)
			if err != nil {
				return nil, err
			}
			hb, err := presence.NewHotplugBackend(presence.HotplugConfig{Name: bc.Name, Dir: bc.WatchDir, Probe: probe}, logger)
			if err != nil {
				return nil, err
			}
			bs.pushers = append(bs.pushers, hb)
			bs.thresholds[bc.Name] = presence.EventThreshold
		case BackendEvent:
			eb := presence.NewEventBackend(bc.Name, c.deps.Clock, logger)
			bs.pushers = append(bs.pushers, eb)
			bs.events[bc.Name] = eb
			bs.thresholds[bc.Name] = presence.EventThreshold
		default:
			return nil, errors.Errorf("unknown backend type %q", bc.Type)
		}
		if bc.DebounceCount > 0 {
			bs.thresholds[bc.Name] = bc.DebounceCount
		}
	}
	return bs, nil
}

func (c *Component) descriptorBackend(bc BackendConfig, logger logging.Logger) (*presence.DescriptorBackend, error) {
	return presence.NewDescriptorBackend(presence.DescriptorConfig{
		Name:       bc.Name,
		Enumerator: c.enumerator(bc),
		ScanAll:    bc.ScanAll,
		Attempts:   bc.Attempts,
		RetryDelay: retryDelay(bc),
		Clock:      c.deps.Clock,
	}, logger)
}

func (c *Component) enumerator(bc BackendConfig) usb.Enumerator {
	if c.deps.Enumerator != nil {
		return c.deps.Enumerator
	}
	return usb.NewSysfsEnumerator(bc.SysfsRoot)
}

func retryDelay(bc BackendConfig) time.Duration {
	return time.Duration(bc.RetryDelayMs) * time.Millisecond
}
