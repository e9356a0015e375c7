// Package presence turns noisy hardware signals into one debounced answer to the question "is an
// external audio sink attached?". Backends produce Samples, either when polled or on their own
// goroutines, and a Monitor folds them into a stable state.
package presence

import (
	"context"
	"time"
)

// Default debounce thresholds by backend kind. Polled signals bounce, pushed ones come from a
// driver that already settled.
const (
	PolledThreshold = 2
	EventThreshold  = 1
)

// A Sample is one raw presence observation.
type Sample struct {
	Detected  bool
	Timestamp time.Time
	Source    string
}

// A Backend is any named source of samples.
type Backend interface {
	Name() string
}

// A Poller is sampled on every tick. Sample never fails: an unreadable source reports absent.
type Poller interface {
	Backend
	Sample(ctx context.Context) Sample
}

// A Pusher delivers samples from its own goroutine until closed.
type Pusher interface {
	Backend
	Start(ctx context.Context, sink func(Sample)) error
	Close(ctx context.Context) error
}
