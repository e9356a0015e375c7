package inject

import (
	"context"

	"go.uber.org/atomic"

	"github.com/viamrobotics/usbaudio/usb"
)

// Enumerator is an injected USB enumerator.
type Enumerator struct {
	usb.Enumerator
	DevicesFunc func(ctx context.Context) ([]usb.Device, error)
}

// Devices calls the injected Devices or the real version.
func (e *Enumerator) Devices(ctx context.Context) ([]usb.Device, error) {
	if e.DevicesFunc == nil {
		return e.Enumerator.Devices(ctx)
	}
	return e.DevicesFunc(ctx)
}

// Device is an injected USB device.
type Device struct {
	usb.Device
	DescriptionFunc func() usb.Description
	OpenFunc        func(ctx context.Context) (usb.Handle, error)

	opens atomic.Int64
}

// Description calls the injected Description or the real version.
func (d *Device) Description() usb.Description {
	if d.DescriptionFunc == nil {
		if d.Device == nil {
			return usb.Description{}
		}
		return d.Device.Description()
	}
	return d.DescriptionFunc()
}

// Open calls the injected Open or the real version.
func (d *Device) Open(ctx context.Context) (usb.Handle, error) {
	d.opens.Inc()
	if d.OpenFunc == nil {
		return d.Device.Open(ctx)
	}
	return d.OpenFunc(ctx)
}

// Opens returns how many times Open was called.
func (d *Device) Opens() int64 {
	return d.opens.Load()
}

// Handle is an injected opened USB device.
type Handle struct {
	usb.Handle
	ConfigDescriptorFunc func(ctx context.Context) ([]byte, error)
	CloseFunc            func() error

	closes atomic.Int64
}

// ConfigDescriptor calls the injected ConfigDescriptor or the real version.
func (h *Handle) ConfigDescriptor(ctx context.Context) ([]byte, error) {
	if h.ConfigDescriptorFunc == nil {
		return h.Handle.ConfigDescriptor(ctx)
	}
	return h.ConfigDescriptorFunc(ctx)
}

// Close calls the injected Close or the real version.
func (h *Handle) Close() error {
	h.closes.Inc()
	if h.CloseFunc == nil {
		if h.Handle == nil {
			return nil
		}
		return h.Handle.Close()
	}
	return h.CloseFunc()
}

// Closes returns how many times Close was called.
func (h *Handle) Closes() int64 {
	return h.closes.Load()
}
