package presence

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/logging"
)

// InterruptConfig configures an InterruptBackend.
type InterruptConfig struct {
	Name      string
	Board     board.Board
	Interrupt string
	// ActiveLow means a falling edge is an attach.
	ActiveLow bool
	Clock     clock.Clock
}

// An InterruptBackend pushes a sample on every edge of a detect line.
type InterruptBackend struct {
	conf      InterruptConfig
	logger    logging.Logger
	interrupt board.DigitalInterrupt

	mu           sync.Mutex
	cancelStream context.CancelFunc
	workers      *utils.StoppableWorkers
}

// NewInterruptBackend resolves the configured interrupt on the board.
func NewInterruptBackend(conf InterruptConfig, logger logging.Logger) (*InterruptBackend, error) {
	if conf.Board == nil {
		return nil, errors.Errorf("interrupt backend %q needs a board", conf.Name)
	}
	di, err := conf.Board.DigitalInterruptByName(conf.Interrupt)
	if err != nil {
		return nil, errors.Wrapf(err, "interrupt backend %q", conf.Name)
	}
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	return &InterruptBackend{conf: conf, logger: logger, interrupt: di}, nil
}

// Name returns the backend's name.
func (b *InterruptBackend) Name() string {
	return b.conf.Name
}

// Start subscribes to the interrupt's ticks and forwards each one to sink.
func (b *InterruptBackend) Start(ctx context.Context, sink func(Sample)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.workers != nil {
		return errors.Errorf("interrupt backend %q already started", b.conf.Name)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	ticks := make(chan board.Tick, 16)
	if err := b.conf.Board.StreamTicks(streamCtx, []board.DigitalInterrupt{b.interrupt}, ticks, nil); err != nil {
		cancel()
		return errors.Wrapf(err, "interrupt backend %q", b.conf.Name)
	}
	b.cancelStream = cancel
	b.workers = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ticks:
				b.logger.Debugw("edge", "backend", b.conf.Name, "high", tick.High)
				sink(Sample{Detected: tick.High != b.conf.ActiveLow, Timestamp: b.conf.Clock.Now(), Source: b.conf.Name})
			}
		}
	})
	return nil
}

// Close stops forwarding ticks.
func (b *InterruptBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.workers == nil {
		return nil
	}
	b.cancelStream()
	b.workers.Stop()
	b.workers = nil
	return nil
}
