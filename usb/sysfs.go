package usb

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSysfsRoot is where linux lists USB devices.
const DefaultSysfsRoot = "/sys/bus/usb/devices"

// maxDescriptorsSize bounds how much of a descriptors file is read.
const maxDescriptorsSize = 64 * 1024

// SysfsEnumerator lists devices from a sysfs tree. Each device directory holds a "descriptors"
// file with the device descriptor followed by the descriptors of the active configuration.
type SysfsEnumerator struct {
	Root string
}

// NewSysfsEnumerator returns an enumerator rooted at root, or at DefaultSysfsRoot when root is
// empty.
func NewSysfsEnumerator(root string) *SysfsEnumerator {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsEnumerator{Root: root}
}

// Devices returns the attached devices sorted by sysfs name, skipping root hubs ("usb1") and
// interface entries ("1-1:1.0"). A missing sysfs tree means no devices.
func (e *SysfsEnumerator) Devices(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "listing %s", e.Root)
	}

	var devices []Device
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		devPath := filepath.Join(e.Root, name)
		desc := Description{Path: devPath}
		// Missing attributes leave zero values; the descriptors file is what matters.
		desc.Bus, _ = readSysfsInt(filepath.Join(devPath, "busnum"), 10)
		desc.Address, _ = readSysfsInt(filepath.Join(devPath, "devnum"), 10)
		desc.ID.Vendor, _ = readSysfsInt(filepath.Join(devPath, "idVendor"), 16)
		desc.ID.Product, _ = readSysfsInt(filepath.Join(devPath, "idProduct"), 16)
		devices = append(devices, &sysfsDevice{desc: desc})
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Description().Path < devices[j].Description().Path
	})
	return devices, nil
}

func readSysfsInt(path string, base int) (int, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), base, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", path)
	}
	return int(v), nil
}

type sysfsDevice struct {
	desc Description
}

func (d *sysfsDevice) Description() Description {
	return d.desc
}

func (d *sysfsDevice) Open(ctx context.Context) (Handle, error) {
	//nolint:gosec
	f, err := os.Open(filepath.Join(d.desc.Path, "descriptors"))
	if err != nil {
		return nil, err
	}
	return &sysfsHandle{f: f}, nil
}

type sysfsHandle struct {
	f *os.File
}

func (h *sysfsHandle) ConfigDescriptor(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(h.f, maxDescriptorsSize))
}

func (h *sysfsHandle) Close() error {
	return h.f.Close()
}
