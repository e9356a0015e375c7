// Package fake implements a fake board whose IO is set directly by tests and demos.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/viamrobotics/usbaudio/board"
)

// A Config describes the configuration of a fake board and all of its connected parts.
type Config struct {
	AnalogReaders     []board.AnalogReaderConfig     `json:"analogs,omitempty"`
	DigitalInterrupts []board.DigitalInterruptConfig `json:"digital_interrupts,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	for idx, conf := range conf.AnalogReaders {
		if err := conf.Validate(fmt.Sprintf("%s.%s.%d", path, "analogs", idx)); err != nil {
			return err
		}
	}
	for idx, conf := range conf.DigitalInterrupts {
		if err := conf.Validate(fmt.Sprintf("%s.%s.%d", path, "digital_interrupts", idx)); err != nil {
			return err
		}
	}
	return nil
}

// NewBoard returns a new fake board.
func NewBoard(conf *Config) (*Board, error) {
	if conf == nil {
		conf = &Config{}
	}
	if err := conf.Validate("fake"); err != nil {
		return nil, err
	}
	b := &Board{
		Analogs:  map[string]*Analog{},
		Digitals: map[string]*DigitalInterrupt{},
		GPIOPins: map[string]*GPIOPin{},
		workers:  utils.NewBackgroundStoppableWorkers(),
	}
	for _, c := range conf.AnalogReaders {
		b.Analogs[c.Name] = &Analog{channel: c.Channel}
	}
	for _, c := range conf.DigitalInterrupts {
		b.Digitals[c.Name] = &DigitalInterrupt{conf: c, board: b}
	}
	return b, nil
}

// A Board provides dummy data from fake parts in order to implement a Board.
type Board struct {
	mu         sync.RWMutex
	Analogs    map[string]*Analog
	Digitals   map[string]*DigitalInterrupt
	GPIOPins   map[string]*GPIOPin
	CloseCount int

	streams board.TickStreams
	workers *utils.StoppableWorkers
}

// AnalogByName returns the analog pin by the given name if it exists.
func (b *Board) AnalogByName(name string) (board.Analog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.Analogs[name]
	if !ok {
		return nil, errors.Errorf("can't find AnalogReader (%s)", name)
	}
	return a, nil
}

// DigitalInterruptByName returns the interrupt by the given name if it exists.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.Digitals[name]
	if !ok {
		return nil, errors.Errorf("can't find DigitalInterrupt (%s)", name)
	}
	return d, nil
}

// GPIOPinByName returns the GPIO pin by the given name, creating it if needed.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	return b.Pin(name), nil
}

// Pin returns the concrete fake pin so tests can set it.
func (b *Board) Pin(name string) *GPIOPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.GPIOPins[name]
	if !ok {
		p = &GPIOPin{}
		b.GPIOPins[name] = p
	}
	return p
}

// StreamTicks registers ch to receive ticks from the given interrupts until ctx is done.
func (b *Board) StreamTicks(ctx context.Context, interrupts []board.DigitalInterrupt, ch chan board.Tick,
	extra map[string]interface{},
) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(interrupts))
	for _, di := range interrupts {
		if _, ok := b.Digitals[di.Name()]; !ok {
			return errors.Errorf("could not find digital interrupt: %s", di.Name())
		}
		names = append(names, di.Name())
	}
	b.streams.Add(ctx, names, ch)
	return nil
}

// Close attempts to cleanly close each part of the board.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	b.CloseCount++
	b.mu.Unlock()

	b.streams.Clear()
	b.workers.Stop()
	return nil
}

// An Analog reads back the same set value.
type Analog struct {
	channel string
	mu      sync.RWMutex
	value   int
	err     error
}

// Read returns the last set value or error.
func (a *Analog) Read(ctx context.Context, extra map[string]interface{}) (board.AnalogValue, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.err != nil {
		return board.AnalogValue{}, a.err
	}
	return board.AnalogValue{Value: a.value, Min: 0, Max: 3.3, StepSize: 3.3 / 4095}, nil
}

// Set is used to set the value of an Analog.
func (a *Analog) Set(value int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = value
	a.err = nil
}

// Fail makes subsequent reads return err.
func (a *Analog) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// A GPIOPin reads back the same set values.
type GPIOPin struct {
	mu   sync.Mutex
	high bool
	err  error
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.high = high
	gp.err = nil
	return nil
}

// Fail makes subsequent reads return err.
func (gp *GPIOPin) Fail(err error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.err = err
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.high, gp.err
}

// DigitalInterrupt is a fake digital interrupt. Tick drives it.
type DigitalInterrupt struct {
	mu    sync.Mutex
	conf  board.DigitalInterruptConfig
	value int64
	board *Board
}

// Value returns the number of ticks seen so far.
func (s *DigitalInterrupt) Value(ctx context.Context, extra map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// Name returns the name of the digital interrupt.
func (s *DigitalInterrupt) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conf.Name
}

// Tick records an edge and delivers it to every stream watching this interrupt. It blocks until
// each subscriber has taken the tick or stopped listening.
func (s *DigitalInterrupt) Tick(high bool) {
	s.mu.Lock()
	s.value++
	name := s.conf.Name
	s.mu.Unlock()
	tick := board.Tick{Name: name, High: high, TimestampNanosec: uint64(time.Now().UnixNano())}
	s.board.streams.Deliver(s.board.workers.Context(), tick)
}
