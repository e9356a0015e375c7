//go:build linux

package genericlinux

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/viamrobotics/usbaudio/board"
)

type digitalInterrupt struct {
	name  string
	line  *gpio.LineWithEvent
	count atomic.Int64
}

func (b *Board) createDigitalInterrupt(chipDev string, config board.DigitalInterruptConfig) (*digitalInterrupt, error) {
	offset, err := strconv.ParseUint(config.Pin, 10, 32)
	if err != nil {
		return nil, errors.Errorf("unknown interrupt pin %s", config.Pin)
	}

	chip, err := gpio.OpenChip(chipDev)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	line, err := chip.OpenLineWithEvents(uint32(offset), gpio.Input, gpio.BothEdges, "usbaudio-presence")
	if err != nil {
		return nil, err
	}

	di := &digitalInterrupt{name: config.Name, line: line}
	b.workers.Add(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-line.Events():
				if !ok {
					return
				}
				if event == nil {
					continue
				}
				di.count.Add(1)
				b.streams.Deliver(ctx, board.Tick{
					Name:             di.name,
					High:             event.RisingEdge,
					TimestampNanosec: uint64(event.Time.UnixNano()),
				})
			}
		}
	})
	return di, nil
}

func (di *digitalInterrupt) Name() string {
	return di.name
}

func (di *digitalInterrupt) Value(ctx context.Context, extra map[string]interface{}) (int64, error) {
	return di.count.Load(), nil
}

func (di *digitalInterrupt) level() (bool, error) {
	value, err := di.line.Value()
	if err != nil {
		return false, err
	}
	// any non-zero value is high
	return value != 0, nil
}

func (di *digitalInterrupt) Close() error {
	return di.line.Close()
}
