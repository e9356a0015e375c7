//go:build libusb

package main

import "github.com/viamrobotics/usbaudio/usb"

func defaultEnumerator() (usb.Enumerator, func() error) {
	e := usb.NewLibUSBEnumerator()
	return e, e.Close
}
