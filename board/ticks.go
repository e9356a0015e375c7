package board

import (
	"context"
	"sync"
)

// TickStreams fans ticks out to the channels registered through StreamTicks. Boards embed it so
// every implementation delivers ticks the same way.
type TickStreams struct {
	mu      sync.Mutex
	streams []tickStream
}

type tickStream struct {
	ctx   context.Context
	names map[string]struct{}
	ch    chan Tick
}

// Add registers ch to receive ticks for the named interrupts until ctx is done.
func (ts *TickStreams) Add(ctx context.Context, names []string, ch chan Tick) {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.streams = append(ts.streams, tickStream{ctx: ctx, names: set, ch: ch})
}

// Deliver sends tick to every live stream subscribed to it. It blocks per stream until the tick
// is taken, that stream's context is done, or stop is done. Streams whose context has ended are
// dropped.
func (ts *TickStreams) Deliver(stop context.Context, tick Tick) {
	ts.mu.Lock()
	live := ts.streams[:0]
	for _, s := range ts.streams {
		if s.ctx.Err() == nil {
			live = append(live, s)
		}
	}
	ts.streams = live
	streams := append([]tickStream(nil), live...)
	ts.mu.Unlock()

	for _, s := range streams {
		if _, ok := s.names[tick.Name]; !ok {
			continue
		}
		select {
		case s.ch <- tick:
		case <-s.ctx.Done():
		case <-stop.Done():
		}
	}
}

// Clear drops every registered stream.
func (ts *TickStreams) Clear() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.streams = nil
}
