// Package monitor runs probe cycles over every registered target and
// commits each cycle as one snapshot.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/registry"
	"github.com/jandubois/healthmon/internal/snapshot"
)

const (
	DefaultInterval     = 30 * time.Second
	DefaultErrorBackoff = 60 * time.Second
)

// Observer is told about every committed snapshot, in commit order.
// prev is nil for the first commit.
type Observer interface {
	Name() string
	Observe(ctx context.Context, prev, next *snapshot.Snapshot) error
}

// Options configures a Monitor.
type Options struct {
	// Interval is the time between the starts of two cycles.
	Interval time.Duration
	// ErrorBackoff is the wait after a failed cycle.
	ErrorBackoff time.Duration
	Observers    []Observer
	// OnCycleError is called for every cycle of the loop that fails.
	OnCycleError func(err error)
}

// Monitor schedules probe cycles and owns the snapshot store.
type Monitor struct {
	registry  *registry.Registry
	prober    probe.Prober
	store     *snapshot.Store
	interval  time.Duration
	backoff   time.Duration
	observers []Observer
	onError   func(err error)

	seq     atomic.Uint64
	refresh singleflight.Group

	// cycle runs one full cycle; replaced in tests to inject faults.
	cycle func(ctx context.Context) (*snapshot.Snapshot, error)

	notifyMu     sync.Mutex
	lastNotified *snapshot.Snapshot
}

// New creates a Monitor.
func New(reg *registry.Registry, prober probe.Prober, store *snapshot.Store, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}

	m := &Monitor{
		registry:  reg,
		prober:    prober,
		store:     store,
		interval:  opts.Interval,
		backoff:   opts.ErrorBackoff,
		observers: opts.Observers,
		onError:   opts.OnCycleError,
	}
	m.cycle = m.runCycle
	return m
}

// Start runs the first cycle synchronously so the store is populated
// before anything is served.
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := m.cycle(ctx); err != nil {
		return fmt.Errorf("initial health check: %w", err)
	}
	return nil
}

// Run is the refresh loop. It assumes a cycle has just completed (see Start)
// and returns when ctx is cancelled.
//
// Cycles start every interval measured start to start. A cycle that overruns
// the interval is followed immediately by the next one. After a failed cycle
// the loop waits ErrorBackoff once and then resumes the normal cadence.
func (m *Monitor) Run(ctx context.Context) {
	next := time.Now().Add(m.interval)

	for {
		timer := time.NewTimer(max(time.Until(next), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		start := time.Now()
		if _, err := m.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("health check cycle failed", "error", err, "backoff", m.backoff)
			if m.onError != nil {
				m.onError(err)
			}
			next = time.Now().Add(m.backoff)
			continue
		}
		next = start.Add(m.interval)
	}
}

// Refresh runs one cycle now, outside the timer, and returns the committed
// snapshot. Concurrent callers share a single in-flight cycle.
func (m *Monitor) Refresh(ctx context.Context) (*snapshot.Snapshot, error) {
	_, err, shared := m.refresh.Do("refresh", func() (any, error) {
		return m.cycle(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("forced refresh shared with concurrent caller")
	}
	// A timer cycle that started later may already have replaced ours.
	return m.store.ReadAll(), nil
}

// All returns the current snapshot.
func (m *Monitor) All() *snapshot.Snapshot {
	return m.store.ReadAll()
}

// Get returns the current result for one target.
func (m *Monitor) Get(id string) (probe.Result, error) {
	if !m.registry.Has(id) {
		return probe.Result{}, fmt.Errorf("%w: %q", ErrUnknownTarget, id)
	}
	r, ok := m.store.ReadOne(id)
	if !ok {
		return probe.Result{}, fmt.Errorf("%w: %q", ErrNotChecked, id)
	}
	return r, nil
}

// Registry returns the monitored targets.
func (m *Monitor) Registry() *registry.Registry {
	return m.registry
}

func (m *Monitor) runCycle(ctx context.Context) (snap *snapshot.Snapshot, err error) {
	seq := m.seq.Add(1)
	cycleID := uuid.NewString()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = &CycleError{Seq: seq, CycleID: cycleID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	// One goroutine per target; each target appears once in the registry,
	// so no target is probed twice in the same cycle.
	targets := m.registry.Targets()
	results := make([]probe.Result, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			results[i] = m.probeOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &CycleError{Seq: seq, CycleID: cycleID, Err: err}
	}

	snap = &snapshot.Snapshot{
		Seq:         seq,
		CycleID:     cycleID,
		StartedAt:   started,
		CompletedAt: time.Now(),
		Results:     make(map[string]probe.Result, len(targets)),
	}
	for i, t := range targets {
		snap.Results[t.ID] = results[i]
	}

	if !m.store.Replace(snap) {
		slog.Debug("discarded stale snapshot", "cycle_id", cycleID, "seq", seq)
		return snap, nil
	}

	counts := snap.Counts()
	slog.Info("health check completed",
		"cycle_id", cycleID,
		"seq", seq,
		"targets", len(targets),
		"online", counts[probe.StatusOnline],
		"degraded", counts[probe.StatusDegraded],
		"offline", counts[probe.StatusOffline],
		"duration_ms", snap.CompletedAt.Sub(started).Milliseconds(),
	)

	m.notify(ctx, snap)
	return snap, nil
}

func (m *Monitor) probeOne(ctx context.Context, t registry.Target) (result probe.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("probe panicked", "target", t.ID, "panic", r)
			result = probe.Offline(t.Name, probe.FaultTransport, fmt.Sprintf("probe panic: %v", r), time.Now())
		}
	}()

	result = m.prober.Probe(ctx, t)
	if result.Name == "" {
		result.Name = t.Name
	}
	slog.Debug("probe executed",
		"target", t.ID,
		"status", result.Status,
		"error", result.ErrorText(),
	)
	return result
}

// notify hands a committed snapshot to the observers. Commits from a forced
// refresh and a timer cycle can race, so delivery is serialized and older
// snapshots are skipped.
func (m *Monitor) notify(ctx context.Context, next *snapshot.Snapshot) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	prev := m.lastNotified
	if prev != nil && next.Seq <= prev.Seq {
		return
	}
	m.lastNotified = next

	for _, o := range m.observers {
		if err := observe(ctx, o, prev, next); err != nil {
			slog.Error("snapshot observer failed", "observer", o.Name(), "seq", next.Seq, "error", err)
		}
	}
}

// observe calls one observer, turning a panic into an error so the commit
// that already happened is still reported as a success.
func observe(ctx context.Context, o Observer, prev, next *snapshot.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.Observe(ctx, prev, next)
}
