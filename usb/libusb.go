//go:build libusb

package usb

import (
	"context"
	"sync"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

const (
	requestGetDescriptor  = 0x06
	configDescriptorValue = descriptorTypeConfiguration << 8
	maxConfigDescriptor   = 4096

	descriptorTypeConfiguration = 0x02
)

// LibUSBEnumerator lists devices through libusb and reads configuration descriptors with a
// standard GET_DESCRIPTOR control transfer. Build with the "libusb" tag.
type LibUSBEnumerator struct {
	mu  sync.Mutex
	ctx *gousb.Context
}

// NewLibUSBEnumerator creates a libusb context. Close releases it.
func NewLibUSBEnumerator() *LibUSBEnumerator {
	return &LibUSBEnumerator{ctx: gousb.NewContext()}
}

// Devices lists attached devices without opening them.
func (e *LibUSBEnumerator) Devices(ctx context.Context) ([]Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var devices []Device
	// Returning false from the opener keeps libusb from opening anything; we only want the list.
	_, err := e.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		devices = append(devices, &libusbDevice{
			enumerator: e,
			desc: Description{
				ID:      Identifier{Vendor: int(desc.Vendor), Product: int(desc.Product)},
				Bus:     desc.Bus,
				Address: desc.Address,
			},
		})
		return false
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing libusb devices")
	}
	return devices, nil
}

// Close releases the libusb context.
func (e *LibUSBEnumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx.Close()
}

type libusbDevice struct {
	enumerator *LibUSBEnumerator
	desc       Description
}

func (d *libusbDevice) Description() Description {
	return d.desc
}

func (d *libusbDevice) Open(ctx context.Context) (Handle, error) {
	d.enumerator.mu.Lock()
	defer d.enumerator.mu.Unlock()

	devs, err := d.enumerator.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == d.desc.Bus && desc.Address == d.desc.Address
	})
	if err != nil {
		for _, dev := range devs {
			//nolint:errcheck
			dev.Close()
		}
		return nil, errors.Wrapf(err, "opening %s", d.desc)
	}
	if len(devs) == 0 {
		return nil, errors.Errorf("device %s is gone", d.desc)
	}
	for _, extra := range devs[1:] {
		//nolint:errcheck
		extra.Close()
	}
	return &libusbHandle{dev: devs[0]}, nil
}

type libusbHandle struct {
	dev *gousb.Device
}

func (h *libusbHandle) ConfigDescriptor(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, maxConfigDescriptor)
	n, err := h.dev.Control(
		gousb.ControlIn|gousb.ControlStandard|gousb.ControlDevice,
		requestGetDescriptor, configDescriptorValue, 0, buf)
	if err != nil {
		return nil, errors.Wrap(err, "GET_DESCRIPTOR(configuration)")
	}
	return buf[:n], nil
}

func (h *libusbHandle) Close() error {
	return h.dev.Close()
}
