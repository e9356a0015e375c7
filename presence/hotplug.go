package presence

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/time/rate"

	"github.com/viamrobotics/usbaudio/logging"
)

// DefaultHotplugDir is where the kernel creates USB device nodes.
const DefaultHotplugDir = "/dev/bus/usb"

// HotplugConfig configures a HotplugBackend.
type HotplugConfig struct {
	Name string
	// Dir is watched along with its subdirectories. Defaults to DefaultHotplugDir.
	Dir string
	// Probe is sampled whenever a device node appears or disappears.
	Probe Poller
}

// A HotplugBackend re-probes on USB attach and detach and pushes the result. It stands in for a
// host driver's connect callback on systems that only expose device nodes.
type HotplugBackend struct {
	conf     HotplugConfig
	logger   logging.Logger
	failures rate.Sometimes

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	workers *utils.StoppableWorkers
}

// NewHotplugBackend returns a HotplugBackend.
func NewHotplugBackend(conf HotplugConfig, logger logging.Logger) (*HotplugBackend, error) {
	if conf.Probe == nil {
		return nil, errors.Errorf("hotplug backend %q needs a probe", conf.Name)
	}
	if conf.Dir == "" {
		conf.Dir = DefaultHotplugDir
	}
	return &HotplugBackend{conf: conf, logger: logger, failures: rate.Sometimes{Interval: failureLogInterval}}, nil
}

// Name returns the backend's name.
func (b *HotplugBackend) Name() string {
	return b.conf.Name
}

// Start begins watching. It pushes one probe result right away so the monitor does not wait for
// the first hotplug event.
func (b *HotplugBackend) Start(ctx context.Context, sink func(Sample)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		return errors.Errorf("hotplug backend %q already started", b.conf.Name)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := b.watchTree(watcher, b.conf.Dir); err != nil {
		return multierr.Combine(errors.Wrapf(err, "watching %s", b.conf.Dir), watcher.Close())
	}
	b.watcher = watcher

	b.workers = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		b.push(ctx, sink)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
						utils.UncheckedError(watcher.Add(event.Name))
					}
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
					b.logger.CDebugw(ctx, "usb device node changed", "backend", b.conf.Name, "event", event.String())
					b.push(ctx, sink)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				b.failures.Do(func() { b.logger.CWarnw(ctx, "hotplug watch error", "backend", b.conf.Name, "error", err) })
			}
		}
	})
	return nil
}

func (b *HotplugBackend) push(ctx context.Context, sink func(Sample)) {
	s := b.conf.Probe.Sample(ctx)
	s.Source = b.conf.Name
	sink(s)
}

// watchTree adds dir and its immediate subdirectories, which is how /dev/bus/usb is laid out.
func (b *HotplugBackend) watchTree(watcher *fsnotify.Watcher, dir string) error {
	if err := watcher.Add(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := watcher.Add(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close stops watching.
func (b *HotplugBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher == nil {
		return nil
	}
	b.workers.Stop()
	err := b.watcher.Close()
	b.watcher = nil
	b.workers = nil
	return err
}
