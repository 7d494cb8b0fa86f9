// Package usecase contains the event-driven pipeline stages.
package usecase

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
)

// Publisher is the part of the bus that stages publish through.
type Publisher interface {
	Publish(event domain.Event) error
}

// ActivitySource turns the outside world into MediaActivityChanged events.
type ActivitySource interface {
	// Poll samples the signal once and publishes on a genuine transition.
	Poll() error

	// Active returns the last observed aggregate activity.
	Active() bool
}

// PollingDetector samples a boolean probe and publishes only when the
// value differs from the previous sample. The first sample sets the
// baseline and publishes nothing.
type PollingDetector struct {
	mu     sync.Mutex
	detect func() bool
	bus    Publisher
	logger *zap.Logger
	last   bool
	seen   bool
}

// NewPollingDetector creates a level-polling detector.
func NewPollingDetector(detect func() bool, bus Publisher, logger *zap.Logger) *PollingDetector {
	return &PollingDetector{detect: detect, bus: bus, logger: logger}
}

// Poll samples the probe once.
func (d *PollingDetector) Poll() error {
	current := d.sample()

	d.mu.Lock()
	if !d.seen {
		d.seen = true
		d.last = current
		d.mu.Unlock()
		d.logger.Debug("media activity baseline", zap.Bool("active", current))
		return nil
	}
	if current == d.last {
		d.mu.Unlock()
		return nil
	}
	d.last = current
	d.mu.Unlock()

	return d.bus.Publish(domain.MediaActivityChanged{Active: current})
}

// sample calls the probe, reading a panic as inactive.
func (d *PollingDetector) sample() (active bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("activity probe panicked, treating as inactive", zap.Any("panic", r))
			active = false
		}
	}()
	return d.detect()
}

// Active returns the last sampled value (false before the first Poll).
func (d *PollingDetector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Reset forgets the baseline; the next Poll publishes nothing.
func (d *PollingDetector) Reset() {
	d.mu.Lock()
	d.seen = false
	d.last = false
	d.mu.Unlock()
}

// ProcessActivityTracker aggregates ProcessStarted/ProcessStopped for a
// fixed set of names and publishes only on the 0→1 and 1→0 edges.
type ProcessActivityTracker struct {
	mu      sync.Mutex
	bus     Publisher
	tracked map[string]struct{}
	active  map[string]struct{}
}

// NewProcessActivityTracker subscribes a tracker for names on bus.
func NewProcessActivityTracker(bus *eventbus.Bus, names []string) (*ProcessActivityTracker, error) {
	t := &ProcessActivityTracker{
		bus:     bus,
		tracked: make(map[string]struct{}, len(names)),
		active:  make(map[string]struct{}),
	}
	for _, n := range names {
		t.tracked[n] = struct{}{}
	}

	if err := bus.Subscribe(domain.KindProcessStarted, t.onStarted); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(domain.KindProcessStopped, t.onStopped); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ProcessActivityTracker) onStarted(event domain.Event) error {
	name := event.(domain.ProcessStarted).Name

	t.mu.Lock()
	if _, ok := t.tracked[name]; !ok {
		t.mu.Unlock()
		return nil
	}
	wasEmpty := len(t.active) == 0
	t.active[name] = struct{}{}
	t.mu.Unlock()

	if wasEmpty {
		return t.bus.Publish(domain.MediaActivityChanged{Active: true})
	}
	return nil
}

func (t *ProcessActivityTracker) onStopped(event domain.Event) error {
	name := event.(domain.ProcessStopped).Name

	t.mu.Lock()
	if _, ok := t.active[name]; !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.active, name)
	nowEmpty := len(t.active) == 0
	t.mu.Unlock()

	if nowEmpty {
		return t.bus.Publish(domain.MediaActivityChanged{Active: false})
	}
	return nil
}

// Active reports whether any tracked process is currently running.
func (t *ProcessActivityTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active) > 0
}

// ProcessWatcher diffs successive process snapshots into
// ProcessStarted/ProcessStopped events.
type ProcessWatcher struct {
	mu      sync.Mutex
	pm      domain.ProcessManager
	bus     Publisher
	names   []string
	running map[string]bool
}

// NewProcessWatcher creates a watcher for names.
func NewProcessWatcher(pm domain.ProcessManager, bus Publisher, names []string) *ProcessWatcher {
	return &ProcessWatcher{
		pm:      pm,
		bus:     bus,
		names:   names,
		running: make(map[string]bool, len(names)),
	}
}

// Scan takes one snapshot and publishes the differences from the last one.
func (w *ProcessWatcher) Scan() error {
	now := make(map[string]bool, len(w.names))
	for _, n := range w.pm.Running(w.names) {
		now[n] = true
	}

	var events []domain.Event
	w.mu.Lock()
	for _, n := range w.names {
		switch {
		case now[n] && !w.running[n]:
			events = append(events, domain.ProcessStarted{Name: n})
		case !now[n] && w.running[n]:
			events = append(events, domain.ProcessStopped{Name: n})
		}
	}
	w.running = now
	w.mu.Unlock()

	for _, e := range events {
		if err := w.bus.Publish(e); err != nil {
			return err
		}
	}
	return nil
}

// EdgeActivitySource drives a ProcessActivityTracker from a ProcessWatcher.
type EdgeActivitySource struct {
	Watcher *ProcessWatcher
	Tracker *ProcessActivityTracker
}

// Poll scans processes; the tracker publishes any aggregate edge.
func (s EdgeActivitySource) Poll() error {
	return s.Watcher.Scan()
}

// Active reports the tracker's aggregate state.
func (s EdgeActivitySource) Active() bool {
	return s.Tracker.Active()
}

var (
	_ ActivitySource = (*PollingDetector)(nil)
	_ ActivitySource = EdgeActivitySource{}
)
