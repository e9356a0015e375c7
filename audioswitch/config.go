package audioswitch

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"github.com/viamrobotics/usbaudio/router"
)

// Backend types.
const (
	BackendLevel      = "level"
	BackendDescriptor = "descriptor"
	BackendInterrupt  = "interrupt"
	BackendHotplug    = "hotplug"
	BackendEvent      = "event"
)

var backendTypes = []string{BackendLevel, BackendDescriptor, BackendInterrupt, BackendHotplug, BackendEvent}

const (
	defaultPollInterval  = time.Second
	defaultDebounceCount = 2
)

// BackendConfig configures one presence backend. Which fields apply depends on Type.
type BackendConfig struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// level
	Pins      []string `json:"pins,omitempty"`
	Analog    string   `json:"analog,omitempty"`
	Threshold int      `json:"threshold,omitempty"`
	ActiveLow bool     `json:"active_low,omitempty"`

	// interrupt
	Interrupt string `json:"interrupt,omitempty"`

	// descriptor and hotplug
	SysfsRoot    string `json:"sysfs_root,omitempty"`
	ScanAll      bool   `json:"scan_all,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	RetryDelayMs int    `json:"retry_delay_ms,omitempty"`

	// hotplug
	WatchDir string `json:"watch_dir,omitempty"`

	// DebounceCount overrides the threshold for this backend's samples.
	DebounceCount uint32 `json:"debounce_count,omitempty"`
}

func (bc *BackendConfig) usesBoard() bool {
	return bc.Type == BackendLevel || bc.Type == BackendInterrupt
}

// Validate ensures the backend config is usable.
func (bc *BackendConfig) Validate(path string) error {
	if bc.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if bc.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	if !lo.Contains(backendTypes, bc.Type) {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown backend type %q, expected one of %v", bc.Type, backendTypes))
	}
	switch bc.Type {
	case BackendLevel:
		if len(bc.Pins) == 0 && bc.Analog == "" {
			return utils.NewConfigValidationError(path, errors.New("a level backend needs pins or analog"))
		}
		if len(bc.Pins) > 0 && bc.Analog != "" {
			return utils.NewConfigValidationError(path, errors.New("a level backend takes pins or analog, not both"))
		}
		if len(bc.Pins) > 2 {
			return utils.NewConfigValidationError(path, errors.Errorf("at most 2 pins, got %d", len(bc.Pins)))
		}
	case BackendInterrupt:
		if bc.Interrupt == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "interrupt")
		}
	case BackendDescriptor, BackendHotplug:
		if bc.Attempts < 0 {
			return utils.NewConfigValidationError(path, errors.New("attempts cannot be negative"))
		}
		if bc.RetryDelayMs < 0 {
			return utils.NewConfigValidationError(path, errors.New("retry_delay_ms cannot be negative"))
		}
	}
	return nil
}

// Config configures a Component.
type Config struct {
	// AudioOutputMode is a mode name (auto, internal, external, or their long forms) or a mode
	// code (0 internal, 1 external, 2 auto). Defaults to auto.
	AudioOutputMode string          `json:"audio_output_mode,omitempty"`
	PollIntervalMs  int             `json:"poll_interval_ms,omitempty"`
	DebounceCount   uint32          `json:"debounce_count,omitempty"`
	Board           string          `json:"board,omitempty"`
	Backends        []BackendConfig `json:"backends"`
}

// NewConfig decodes an attribute map, such as a parsed JSON object, into a Config. Unknown keys
// are rejected.
func NewConfig(attributes map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "decoding audio switch config")
	}
	return &conf, nil
}

// Validate ensures all parts of the config are valid and returns the implicit dependencies.
func (conf *Config) Validate(path string) ([]string, error) {
	var deps []string
	if conf.AudioOutputMode != "" {
		if _, err := router.ParseOutputMode(conf.AudioOutputMode); err != nil {
			return nil, utils.NewConfigValidationError(path, err)
		}
	}
	if conf.PollIntervalMs < 0 {
		return nil, utils.NewConfigValidationError(path, errors.New("poll_interval_ms cannot be negative"))
	}
	if len(conf.Backends) == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "backends")
	}
	for idx := range conf.Backends {
		if err := conf.Backends[idx].Validate(fmt.Sprintf("%s.%s.%d", path, "backends", idx)); err != nil {
			return nil, err
		}
	}
	names := lo.Map(conf.Backends, func(bc BackendConfig, _ int) string { return bc.Name })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, utils.NewConfigValidationError(path, errors.Errorf("duplicate backend names %v", dups))
	}
	if lo.ContainsBy(conf.Backends, func(bc BackendConfig) bool { return bc.usesBoard() }) {
		if conf.Board == "" {
			return nil, utils.NewConfigValidationFieldRequiredError(path, "board")
		}
		deps = append(deps, conf.Board)
	}
	return deps, nil
}

// Mode returns the configured mode, or the default when none is set. Call Validate first.
func (conf *Config) Mode() router.OutputMode {
	if conf.AudioOutputMode == "" {
		return router.DefaultMode
	}
	m, err := router.ParseOutputMode(conf.AudioOutputMode)
	if err != nil {
		return router.DefaultMode
	}
	return m
}

// PollInterval returns how often polled backends are sampled.
func (conf *Config) PollInterval() time.Duration {
	if conf.PollIntervalMs == 0 {
		return defaultPollInterval
	}
	return time.Duration(conf.PollIntervalMs) * time.Millisecond
}

// Threshold returns the monitor's default debounce count.
func (conf *Config) Threshold() uint32 {
	if conf.DebounceCount == 0 {
		return defaultDebounceCount
	}
	return conf.DebounceCount
}
