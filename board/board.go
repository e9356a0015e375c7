// Package board defines the read side of a single-board computer's IO that presence detection
// needs: GPIO levels, analog readings and digital interrupt ticks.
package board

import (
	"context"
)

// A Board exposes named IO on a board.
type Board interface {
	// AnalogByName returns an analog reader by name.
	AnalogByName(name string) (Analog, error)

	// DigitalInterruptByName returns a digital interrupt by name.
	DigitalInterruptByName(name string) (DigitalInterrupt, error)

	// GPIOPinByName returns a GPIOPin by name.
	GPIOPinByName(name string) (GPIOPin, error)

	// StreamTicks starts a stream of digital interrupt ticks. Ticks are sent on ch until ctx is
	// done or the board is closed.
	StreamTicks(ctx context.Context, interrupts []DigitalInterrupt, ch chan Tick, extra map[string]interface{}) error

	Close(ctx context.Context) error
}

// A GPIOPin represents an individual GPIO pin on a board.
type GPIOPin interface {
	// Get gets the high/low state of the pin.
	Get(ctx context.Context, extra map[string]interface{}) (bool, error)
}

// AnalogValue contains all info about the analog reading.
// Value represents the reading in bits.
// Min and Max represent the range of raw analog values.
// StepSize is the precision per bit of the reading.
type AnalogValue struct {
	Value    int
	Min      float32
	Max      float32
	StepSize float32
}

// Analog represents an analog pin reader that resides on a board.
type Analog interface {
	// Read reads off the current value.
	Read(ctx context.Context, extra map[string]interface{}) (AnalogValue, error)
}

// A DigitalInterrupt represents a configured interrupt on the board that, when interrupted,
// produces a Tick.
type DigitalInterrupt interface {
	// Name returns the name of the interrupt.
	Name() string
	// Value returns the number of ticks seen so far.
	Value(ctx context.Context, extra map[string]interface{}) (int64, error)
}

// Tick represents a signal received by an interrupt pin. This signal is communicated
// via registered channel to the various drivers. Depending on board implementation there may be a
// wraparound in timestamp values past 4294967295000 nanoseconds (~72 minutes) if the value
// was originally in microseconds as a 32-bit integer. The timestamp in nanoseconds of the
// tick SHOULD ONLY BE USED FOR CALCULATING THE TIME ELAPSED BETWEEN CONSECUTIVE TICKS AND NOT
// AS AN ABSOLUTE TIMESTAMP.
type Tick struct {
	Name             string
	High             bool
	TimestampNanosec uint64
}
