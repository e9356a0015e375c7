// Package router decides where audio goes and switches the audio path when that decision
// changes.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"golang.org/x/time/rate"

	"github.com/viamrobotics/usbaudio/logging"
)

// An AudioPath performs the actual switch, for example by re-pointing an I2S stream or flipping
// an analog mux.
type AudioPath interface {
	ActivateInternal(ctx context.Context) error
	ActivateExternal(ctx context.Context) error
}

// A Router applies Resolve(mode, presence) to an AudioPath and only touches the path when the
// result differs from what was last applied successfully.
type Router struct {
	mu        sync.Mutex
	path      AudioPath
	logger    logging.Logger
	mode      OutputMode
	present   bool
	applied   EffectiveOutput
	hasApply  bool
	listeners []func(EffectiveOutput)
	failures  rate.Sometimes
}

// NewRouter returns a Router. Nothing is applied until the first Start, Refresh, mode change or
// presence notification.
func NewRouter(path AudioPath, mode OutputMode, logger logging.Logger) (*Router, error) {
	if path == nil {
		return nil, errors.New("router needs an audio path")
	}
	if !mode.Valid() {
		return nil, errors.Errorf("invalid audio output mode %d", int(mode))
	}
	return &Router{
		path:     path,
		logger:   logger,
		mode:     mode,
		failures: rate.Sometimes{Interval: 10 * time.Second},
	}, nil
}

// OnChange registers f to be called after every successful switch. Listeners run while the
// router is locked.
func (r *Router) OnChange(f func(EffectiveOutput)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, f)
}

// SetMode changes the policy and applies it. An invalid mode is rejected and leaves the router
// unchanged. A failed switch is logged and retried by the next Refresh.
func (r *Router) SetMode(ctx context.Context, mode OutputMode) error {
	if !mode.Valid() {
		err := errors.Errorf("invalid audio output mode %d", int(mode))
		r.logger.CWarnw(ctx, "ignoring mode change", "error", err)
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != mode {
		r.logger.CInfow(ctx, "audio output mode changed", "from", r.mode.String(), "to", mode.String())
	}
	r.mode = mode
	utils.UncheckedError(r.applyLocked(ctx))
	return nil
}

// SetModeCode is SetMode for a numeric mode code.
func (r *Router) SetModeCode(ctx context.Context, code int) error {
	mode, err := ModeFromCode(code)
	if err != nil {
		r.logger.CWarnw(ctx, "ignoring mode change", "error", err)
		return err
	}
	return r.SetMode(ctx, mode)
}

// NotifyPresence records a debounced presence change and applies it.
func (r *Router) NotifyPresence(ctx context.Context, present bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.present = present
	utils.UncheckedError(r.applyLocked(ctx))
}

// Refresh re-applies the current decision. It is a no-op unless the last switch failed or nothing
// has been applied yet.
func (r *Router) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(ctx)
}

func (r *Router) applyLocked(ctx context.Context) error {
	want := Resolve(r.mode, r.present)
	if r.hasApply && r.applied == want {
		return nil
	}

	var err error
	if want == OutputExternal {
		err = r.path.ActivateExternal(ctx)
	} else {
		err = r.path.ActivateInternal(ctx)
	}
	if err != nil {
		err = errors.Wrapf(err, "switching audio to %s", want)
		r.failures.Do(func() { r.logger.CErrorw(ctx, "audio switch failed", "error", err) })
		return err
	}

	r.applied = want
	r.hasApply = true
	r.logger.CInfow(ctx, "audio output switched", "output", want.String(), "mode", r.mode.String(), "present", r.present)
	for _, f := range r.listeners {
		f(want)
	}
	return nil
}

// Mode returns the current policy.
func (r *Router) Mode() OutputMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Effective returns the output the router wants, whether or not it has been applied.
func (r *Router) Effective() EffectiveOutput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Resolve(r.mode, r.present)
}

// Applied returns the last output switched to successfully. ok is false before the first
// successful switch.
func (r *Router) Applied() (output EffectiveOutput, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied, r.hasApply
}
