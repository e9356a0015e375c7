package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"go.viam.com/utils"

	"github.com/viamrobotics/usbaudio/audioswitch"
	"github.com/viamrobotics/usbaudio/logging"
)

const reloadDelay = 250 * time.Millisecond

// reloader re-reads the config file when it changes and reconfigures the switch. Editors often
// write a file several times or replace it, so changes are debounced and the directory is watched
// rather than the file.
type reloader struct {
	path      string
	comp      *audioswitch.Component
	logger    logging.Logger
	watcher   *fsnotify.Watcher
	debounced func(func())
	workers   *utils.StoppableWorkers
}

func newReloader(path string, comp *audioswitch.Component, logger logging.Logger) (*reloader, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		utils.UncheckedError(watcher.Close())
		return nil, err
	}

	r := &reloader{
		path:      path,
		comp:      comp,
		logger:    logger,
		watcher:   watcher,
		debounced: debounce.New(reloadDelay),
	}
	r.workers = utils.NewBackgroundStoppableWorkers(r.watch)
	return r, nil
}

func (r *reloader) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			r.logger.CDebugw(ctx, "config changed", "event", event.String())
			r.debounced(func() { r.reload(ctx) })
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.CWarnw(ctx, "config watch error", "error", err)
		}
	}
}

// reload runs on the debounce timer's goroutine, so it can fire after Close; ctx is the watcher's
// and is done by then.
func (r *reloader) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	conf, err := readConfigFile(r.path)
	if err != nil {
		r.logger.CWarnw(ctx, "not reloading config", "path", r.path, "error", err)
		return
	}
	if err := r.comp.Reconfigure(ctx, conf.audio); err != nil {
		r.logger.CErrorw(ctx, "reconfigure failed", "error", err)
		return
	}
	r.comp.DumpConfig(ctx)
}

func (r *reloader) Close() error {
	// replaces any pending reload with a no-op
	r.debounced(func() {})
	r.workers.Stop()
	return r.watcher.Close()
}
