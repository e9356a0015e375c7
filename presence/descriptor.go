package presence

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"golang.org/x/time/rate"

	"github.com/viamrobotics/usbaudio/descriptor"
	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/usb"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 50 * time.Millisecond
)

// DescriptorConfig configures a DescriptorBackend.
type DescriptorConfig struct {
	Name       string
	Enumerator usb.Enumerator
	// ScanAll checks every attached device instead of only the first one.
	ScanAll bool
	// Attempts bounds how many times a device is opened before giving up. Defaults to 3.
	Attempts int
	// RetryDelay is the wait between attempts. Defaults to 50ms.
	RetryDelay time.Duration
	Clock      clock.Clock
}

// A DescriptorBackend reports present when an attached USB device exposes an audio class
// interface.
type DescriptorBackend struct {
	conf     DescriptorConfig
	logger   logging.Logger
	failures rate.Sometimes
}

// NewDescriptorBackend returns a DescriptorBackend.
func NewDescriptorBackend(conf DescriptorConfig, logger logging.Logger) (*DescriptorBackend, error) {
	if conf.Enumerator == nil {
		return nil, errors.Errorf("descriptor backend %q needs an enumerator", conf.Name)
	}
	if conf.Attempts <= 0 {
		conf.Attempts = defaultAttempts
	}
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = defaultRetryDelay
	}
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	return &DescriptorBackend{
		conf:     conf,
		logger:   logger,
		failures: rate.Sometimes{Interval: failureLogInterval},
	}, nil
}

// Name returns the backend's name.
func (b *DescriptorBackend) Name() string {
	return b.conf.Name
}

// Sample enumerates devices and scans their descriptors.
func (b *DescriptorBackend) Sample(ctx context.Context) Sample {
	return Sample{Detected: b.detected(ctx), Timestamp: b.conf.Clock.Now(), Source: b.conf.Name}
}

func (b *DescriptorBackend) detected(ctx context.Context) bool {
	devices, err := b.conf.Enumerator.Devices(ctx)
	if err != nil {
		b.failures.Do(func() { b.logger.CWarnw(ctx, "enumerating usb devices failed", "backend", b.conf.Name, "error", err) })
		return false
	}
	if len(devices) == 0 {
		return false
	}
	if !b.conf.ScanAll {
		devices = devices[:1]
	}

	for _, d := range devices {
		buf, err := b.readDescriptors(ctx, d)
		if err != nil {
			b.failures.Do(func() {
				b.logger.CWarnw(ctx, "reading usb descriptors failed", "backend", b.conf.Name, "device", d.Description(), "error", err)
			})
			continue
		}
		if descriptor.Scan(buf) {
			if ifaces, err := descriptor.Interfaces(buf); err == nil {
				b.logger.CDebugw(ctx, "audio device found", "device", d.Description(), "interfaces", len(ifaces))
			}
			return true
		}
	}
	return false
}

// readDescriptors opens d and reads its configuration descriptor, retrying a bounded number of
// times since freshly attached devices are often not ready yet.
func (b *DescriptorBackend) readDescriptors(ctx context.Context, d usb.Device) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= b.conf.Attempts; attempt++ {
		buf, err := readOnce(ctx, d)
		if err == nil {
			return buf, nil
		}
		lastErr = err
		if attempt == b.conf.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.conf.Clock.After(b.conf.RetryDelay):
		}
	}
	return nil, errors.Wrapf(lastErr, "after %d attempts", b.conf.Attempts)
}

func readOnce(ctx context.Context, d usb.Device) ([]byte, error) {
	h, err := d.Open(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "opening device")
	}
	defer utils.UncheckedErrorFunc(h.Close)
	return h.ConfigDescriptor(ctx)
}
