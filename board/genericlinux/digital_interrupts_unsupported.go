//go:build !linux

package genericlinux

import (
	"context"

	"github.com/pkg/errors"

	"github.com/viamrobotics/usbaudio/board"
)

var errNoInterrupts = errors.New("digital interrupts are only supported on linux")

type digitalInterrupt struct{}

func (b *Board) createDigitalInterrupt(chipDev string, config board.DigitalInterruptConfig) (*digitalInterrupt, error) {
	return nil, errNoInterrupts
}

func (di *digitalInterrupt) Name() string { return "" }

func (di *digitalInterrupt) Value(ctx context.Context, extra map[string]interface{}) (int64, error) {
	return 0, errNoInterrupts
}

func (di *digitalInterrupt) level() (bool, error) {
	return false, errNoInterrupts
}

func (di *digitalInterrupt) Close() error {
	return nil
}
