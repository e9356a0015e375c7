package inject

import (
	"context"

	"github.com/viamrobotics/usbaudio/board"
)

// GPIOPin is an injected GPIO pin.
type GPIOPin struct {
	board.GPIOPin
	GetFunc func(ctx context.Context, extra map[string]interface{}) (bool, error)
}

// Get calls the injected Get or the real version.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	if gp.GetFunc == nil {
		return gp.GPIOPin.Get(ctx, extra)
	}
	return gp.GetFunc(ctx, extra)
}

// Analog is an injected analog reader.
type Analog struct {
	board.Analog
	ReadFunc func(ctx context.Context, extra map[string]interface{}) (board.AnalogValue, error)
}

// Read calls the injected Read or the real version.
func (a *Analog) Read(ctx context.Context, extra map[string]interface{}) (board.AnalogValue, error) {
	if a.ReadFunc == nil {
		return a.Analog.Read(ctx, extra)
	}
	return a.ReadFunc(ctx, extra)
}
