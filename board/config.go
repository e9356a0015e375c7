package board

import (
	"go.viam.com/utils"
)

// AnalogReaderConfig describes the configuration of an analog reader on a board.
type AnalogReaderConfig struct {
	Name    string `json:"name"`
	Channel string `json:"channel"` // e.g. "0" for in_voltage0_raw
	Device  string `json:"device,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *AnalogReaderConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	return nil
}

// DigitalInterruptConfig describes the configuration of digital interrupt for a board.
type DigitalInterruptConfig struct {
	Name string `json:"name"`
	Pin  string `json:"pin"`
}

// Validate ensures all parts of the config are valid.
func (config *DigitalInterruptConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Pin == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pin")
	}
	return nil
}
