package presence

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/viamrobotics/usbaudio/logging"
)

// State is the debounce state of a Monitor.
type State struct {
	Stable           bool
	LastChange       time.Time
	PendingCandidate bool
	ConsecutiveCount uint32
}

// Stats counts what a Monitor has seen.
type Stats struct {
	Ingested    uint64
	Transitions uint64
}

// A Monitor debounces samples from any number of backends into a stable presence value. All
// methods are safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	logger    logging.Logger
	clock     clock.Clock
	threshold uint32
	bySource  map[string]uint32
	state     State
	stats     Stats
	listeners []func(stable bool, at time.Time)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock sets the clock commit times are read from.
func WithClock(c clock.Clock) MonitorOption {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithSourceThreshold overrides the threshold for samples from one source.
func WithSourceThreshold(source string, threshold uint32) MonitorOption {
	return func(m *Monitor) {
		m.bySource[source] = normalizeThreshold(threshold)
	}
}

// WithInitialState starts the monitor at a known stable value instead of absent, for example when
// carrying state over a reconfiguration.
func WithInitialState(stable bool, lastChange time.Time) MonitorOption {
	return func(m *Monitor) {
		m.state = State{Stable: stable, LastChange: lastChange, PendingCandidate: stable}
	}
}

// NewMonitor returns a Monitor that starts out absent. A threshold of 0 is treated as 1.
func NewMonitor(threshold uint32, logger logging.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		logger:    logger,
		clock:     clock.New(),
		threshold: normalizeThreshold(threshold),
		bySource:  map[string]uint32{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalizeThreshold(threshold uint32) uint32 {
	if threshold == 0 {
		return 1
	}
	return threshold
}

// OnChange registers f to be called once per committed transition. Listeners run while the
// monitor is locked, in commit order, and must not call Ingest.
func (m *Monitor) OnChange(f func(stable bool, at time.Time)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, f)
}

// SetSourceThreshold overrides the threshold for samples from source.
func (m *Monitor) SetSourceThreshold(source string, threshold uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySource[source] = normalizeThreshold(threshold)
}

// SetThresholds replaces the default threshold and every per-source override. A run in progress
// keeps its count and is judged against the new threshold on its next sample.
func (m *Monitor) SetThresholds(threshold uint32, bySource map[string]uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = normalizeThreshold(threshold)
	m.bySource = make(map[string]uint32, len(bySource))
	for source, t := range bySource {
		m.bySource[source] = normalizeThreshold(t)
	}
}

// Ingest applies one sample and reports whether it committed a transition.
func (m *Monitor) Ingest(s Sample) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Ingested++
	threshold := m.threshold
	if t, ok := m.bySource[s.Source]; ok {
		threshold = t
	}

	st := &m.state
	switch {
	case s.Detected == st.Stable:
		st.ConsecutiveCount = 0
		return false
	case s.Detected == st.PendingCandidate:
		st.ConsecutiveCount++
	default:
		st.PendingCandidate = s.Detected
		st.ConsecutiveCount = 1
	}
	if st.ConsecutiveCount < threshold {
		return false
	}

	st.Stable = st.PendingCandidate
	st.LastChange = m.clock.Now()
	st.ConsecutiveCount = 0
	m.stats.Transitions++
	m.logger.Debugw("presence changed", "detected", st.Stable, "source", s.Source, "threshold", threshold)
	for _, f := range m.listeners {
		f(st.Stable, st.LastChange)
	}
	return true
}

// Stable returns the debounced presence.
func (m *Monitor) Stable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Stable
}

// State returns a snapshot of the debounce state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
