// Package genericlinux implements a Linux board on top of sysfs and the GPIO character device.
// GPIO levels come from periph.io, analogs from industrial IO sysfs files, and digital
// interrupts from line events by way of mkch's gpio package.
package genericlinux

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/logging"
)

var (
	periphOnce sync.Once
	periphErr  error
)

func initPeriph() error {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	return periphErr
}

// Board is a Linux board. Build one with NewBoard.
type Board struct {
	mu         sync.RWMutex
	logger     logging.Logger
	analogs    map[string]*iioAnalog
	interrupts map[string]*digitalInterrupt

	streams board.TickStreams
	workers *goutils.StoppableWorkers
}

// NewBoard opens every configured part of the board.
func NewBoard(ctx context.Context, conf *Config, logger logging.Logger) (*Board, error) {
	if err := conf.Validate("board"); err != nil {
		return nil, err
	}
	b := &Board{
		logger:     logger,
		analogs:    map[string]*iioAnalog{},
		interrupts: map[string]*digitalInterrupt{},
		workers:    goutils.NewBackgroundStoppableWorkers(),
	}
	for _, c := range conf.Analogs {
		b.analogs[c.Name] = newIIOAnalog(conf.iioRoot(), c)
	}
	for _, c := range conf.DigitalInterrupts {
		di, err := b.createDigitalInterrupt(conf.gpioChip(), c)
		if err != nil {
			return nil, multierr.Combine(errors.Wrapf(err, "opening interrupt %q", c.Name), b.Close(ctx))
		}
		b.interrupts[c.Name] = di
	}
	logger.Debugw("board ready", "analogs", len(b.analogs), "digital_interrupts", len(b.interrupts))
	return b, nil
}

// AnalogByName returns the analog reader by the given name if it exists.
func (b *Board) AnalogByName(name string) (board.Analog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.analogs[name]
	if !ok {
		return nil, errors.Errorf("can't find AnalogReader (%s)", name)
	}
	return a, nil
}

// DigitalInterruptByName returns the interrupt by the given name if it exists.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	di, ok := b.interrupts[name]
	if !ok {
		return nil, errors.Errorf("can't find DigitalInterrupt (%s)", name)
	}
	return di, nil
}

// GPIOPinByName returns a GPIO pin. Pins held by a digital interrupt are read through the
// interrupt's line; everything else goes through periph.io.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.RLock()
	di, ok := b.interrupts[name]
	b.mu.RUnlock()
	if ok {
		return interruptPin{di}, nil
	}

	if err := initPeriph(); err != nil {
		return nil, errors.Wrap(err, "initializing periph host drivers")
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no global pin found for %q", name)
	}
	if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "configuring pin %q as input", name)
	}
	return periphGPIOPin{pin}, nil
}

// StreamTicks starts a stream of digital interrupt ticks.
func (b *Board) StreamTicks(ctx context.Context, interrupts []board.DigitalInterrupt, ch chan board.Tick,
	extra map[string]interface{},
) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(interrupts))
	for _, di := range interrupts {
		if _, ok := b.interrupts[di.Name()]; !ok {
			return errors.Errorf("could not find digital interrupt: %s", di.Name())
		}
		names = append(names, di.Name())
	}
	b.streams.Add(ctx, names, ch)
	return nil
}

// Close stops interrupt monitoring and releases every line.
func (b *Board) Close(ctx context.Context) error {
	b.workers.Stop()
	b.streams.Clear()

	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, di := range b.interrupts {
		err = multierr.Combine(err, di.Close())
	}
	b.interrupts = map[string]*digitalInterrupt{}
	return err
}

type periphGPIOPin struct {
	pin gpio.PinIO
}

func (gp periphGPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return gp.pin.Read() == gpio.High, nil
}

type interruptPin struct {
	interrupt *digitalInterrupt
}

func (ip interruptPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	return ip.interrupt.level()
}

// iioAnalog reads an ADC channel through the kernel's industrial IO sysfs interface.
type iioAnalog struct {
	path string
	max  float32
}

func newIIOAnalog(root string, conf board.AnalogReaderConfig) *iioAnalog {
	device := conf.Device
	if device == "" {
		device = "iio:device0"
	}
	return &iioAnalog{
		path: filepath.Join(root, device, fmt.Sprintf("in_voltage%s_raw", conf.Channel)),
		max:  4095,
	}
}

func (a *iioAnalog) Read(ctx context.Context, extra map[string]interface{}) (board.AnalogValue, error) {
	raw, err := os.ReadFile(a.path)
	if err != nil {
		return board.AnalogValue{}, errors.Wrap(err, "reading analog")
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return board.AnalogValue{}, errors.Wrapf(err, "parsing analog value %q", raw)
	}
	return board.AnalogValue{Value: value, Min: 0, Max: a.max, StepSize: 1}, nil
}
