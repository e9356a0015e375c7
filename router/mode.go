package router

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// OutputMode is the user's routing policy. The values are the mode codes used on the wire and in
// configuration.
type OutputMode int

const (
	// ModeInternal always routes to the built in speakers.
	ModeInternal OutputMode = iota
	// ModeExternal always routes to the external sink, attached or not.
	ModeExternal
	// ModeAuto routes to the external sink while one is attached.
	ModeAuto
)

// DefaultMode is used when nothing is configured.
const DefaultMode = ModeAuto

func (m OutputMode) String() string {
	switch m {
	case ModeInternal:
		return "internal"
	case ModeExternal:
		return "external"
	case ModeAuto:
		return "auto"
	default:
		return "unknown(" + strconv.Itoa(int(m)) + ")"
	}
}

// Valid reports whether m is one of the known modes.
func (m OutputMode) Valid() bool {
	return m >= ModeInternal && m <= ModeAuto
}

// ModeFromCode converts a numeric mode code.
func ModeFromCode(code int) (OutputMode, error) {
	m := OutputMode(code)
	if !m.Valid() {
		return 0, errors.Errorf("invalid audio output mode code %d", code)
	}
	return m, nil
}

var modeNames = map[string]OutputMode{
	"internal":          ModeInternal,
	"internal_speakers": ModeInternal,
	"external":          ModeExternal,
	"usb_headset":       ModeExternal,
	"auto":              ModeAuto,
	"auto_select":       ModeAuto,
}

// ParseOutputMode accepts a mode name, in either its short or long form, or a mode code.
func ParseOutputMode(s string) (OutputMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if m, ok := modeNames[name]; ok {
		return m, nil
	}
	if code, err := strconv.Atoi(name); err == nil {
		return ModeFromCode(code)
	}
	return 0, errors.Errorf("invalid audio output mode %q", s)
}

// EffectiveOutput is where audio actually goes.
type EffectiveOutput int

const (
	// OutputInternal is the built in speakers.
	OutputInternal EffectiveOutput = iota
	// OutputExternal is the external sink.
	OutputExternal
)

func (o EffectiveOutput) String() string {
	if o == OutputExternal {
		return "external"
	}
	return "internal"
}

// Resolve computes the output for a mode and a debounced presence.
func Resolve(mode OutputMode, present bool) EffectiveOutput {
	switch mode {
	case ModeExternal:
		return OutputExternal
	case ModeAuto:
		if present {
			return OutputExternal
		}
		return OutputInternal
	default:
		return OutputInternal
	}
}
