package presence

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/logging"
)

// failureLogInterval bounds how often a backend repeats the same failure in the logs.
const failureLogInterval = 30 * time.Second

// LevelConfig configures a LevelBackend. Exactly one of Pins and Analog is set.
type LevelConfig struct {
	Name string
	// Pins are one or two detect lines. The sink is present when any of them reads active.
	Pins []board.GPIOPin
	// ActiveLow inverts the pin levels.
	ActiveLow bool
	// Analog is read against Threshold; a value at or above it means present.
	Analog    board.Analog
	Threshold int
	Clock     clock.Clock
}

// A LevelBackend samples detect pins or an analog level, such as a headphone jack switch or a
// USB VBUS divider.
type LevelBackend struct {
	conf     LevelConfig
	logger   logging.Logger
	failures rate.Sometimes
}

// NewLevelBackend returns a LevelBackend.
func NewLevelBackend(conf LevelConfig, logger logging.Logger) (*LevelBackend, error) {
	switch {
	case len(conf.Pins) == 0 && conf.Analog == nil:
		return nil, errors.Errorf("level backend %q needs a pin or an analog", conf.Name)
	case len(conf.Pins) > 0 && conf.Analog != nil:
		return nil, errors.Errorf("level backend %q takes pins or an analog, not both", conf.Name)
	case len(conf.Pins) > 2:
		return nil, errors.Errorf("level backend %q takes at most 2 pins, got %d", conf.Name, len(conf.Pins))
	}
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	return &LevelBackend{
		conf:     conf,
		logger:   logger,
		failures: rate.Sometimes{Interval: failureLogInterval},
	}, nil
}

// Name returns the backend's name.
func (b *LevelBackend) Name() string {
	return b.conf.Name
}

// Sample reads the current level.
func (b *LevelBackend) Sample(ctx context.Context) Sample {
	return Sample{Detected: b.detected(ctx), Timestamp: b.conf.Clock.Now(), Source: b.conf.Name}
}

func (b *LevelBackend) detected(ctx context.Context) bool {
	if b.conf.Analog != nil {
		v, err := b.conf.Analog.Read(ctx, nil)
		if err != nil {
			b.failures.Do(func() { b.logger.CWarnw(ctx, "analog read failed", "backend", b.conf.Name, "error", err) })
			return false
		}
		return v.Value >= b.conf.Threshold
	}

	for i, pin := range b.conf.Pins {
		high, err := pin.Get(ctx, nil)
		if err != nil {
			b.failures.Do(func() {
				b.logger.CWarnw(ctx, "pin read failed", "backend", b.conf.Name, "pin", i, "error", err)
			})
			continue
		}
		if high != b.conf.ActiveLow {
			return true
		}
	}
	return false
}
