// Package usb provides utilities for finding USB devices and reading their raw descriptors.
package usb

import (
	"context"
	"fmt"
)

// Description describes a specific USB device.
type Description struct {
	ID      Identifier
	Bus     int
	Address int
	Path    string
}

func (d Description) String() string {
	return fmt.Sprintf("%03d:%03d %04x:%04x", d.Bus, d.Address, d.ID.Vendor, d.ID.Product)
}

// Identifier identifies a specific USB device by the vendor
// who produced it and the product that it is. These should
// be unique across products.
type Identifier struct {
	Vendor  int
	Product int
}

// A Device is an enumerated device that has not been opened yet.
type Device interface {
	Description() Description
	// Open claims the device for descriptor reads. Failing to open is a normal outcome (the
	// device went away, or is busy) and callers treat it as "nothing connected".
	Open(ctx context.Context) (Handle, error)
}

// A Handle is an opened device.
type Handle interface {
	// ConfigDescriptor returns the raw bytes of the active configuration descriptor, possibly
	// preceded by other standard descriptors.
	ConfigDescriptor(ctx context.Context) ([]byte, error)
	Close() error
}

// An Enumerator lists the devices currently attached to the host, in bus order.
type Enumerator interface {
	Devices(ctx context.Context) ([]Device, error)
}
