package genericlinux

import (
	"fmt"
	"strconv"

	"go.viam.com/utils"

	"github.com/viamrobotics/usbaudio/board"
)

const (
	defaultGPIOChip = "/dev/gpiochip0"
	defaultIIORoot  = "/sys/bus/iio/devices"
)

// A Config describes the configuration of a board and all of its connected parts.
type Config struct {
	// GPIOChip is the character device digital interrupts are opened on.
	GPIOChip string `json:"gpio_chip,omitempty"`
	// IIORoot is where industrial IO devices are listed; analogs read <root>/<device>/in_voltage<channel>_raw.
	IIORoot           string                         `json:"iio_root,omitempty"`
	Analogs           []board.AnalogReaderConfig     `json:"analogs,omitempty"`
	DigitalInterrupts []board.DigitalInterruptConfig `json:"digital_interrupts,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	for idx, c := range conf.Analogs {
		p := fmt.Sprintf("%s.%s.%d", path, "analogs", idx)
		if err := c.Validate(p); err != nil {
			return err
		}
		if _, err := strconv.Atoi(c.Channel); err != nil {
			return utils.NewConfigValidationError(p, fmt.Errorf("bad analog channel (%s)", c.Channel))
		}
	}
	for idx, c := range conf.DigitalInterrupts {
		p := fmt.Sprintf("%s.%s.%d", path, "digital_interrupts", idx)
		if err := c.Validate(p); err != nil {
			return err
		}
		if _, err := strconv.ParseUint(c.Pin, 10, 32); err != nil {
			return utils.NewConfigValidationError(p, fmt.Errorf("interrupt pin must be a line offset, got %q", c.Pin))
		}
	}
	return nil
}

func (conf *Config) gpioChip() string {
	if conf.GPIOChip == "" {
		return defaultGPIOChip
	}
	return conf.GPIOChip
}

func (conf *Config) iioRoot() string {
	if conf.IIORoot == "" {
		return defaultIIORoot
	}
	return conf.IIORoot
}
