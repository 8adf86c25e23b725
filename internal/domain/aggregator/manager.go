package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/policy"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/ranking"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/redirect"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/tracker"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// ErrStopped is returned by queries once Run has returned
var ErrStopped = errors.New("aggregator stopped")

type tick struct {
	tab types.TabID
	gen uint64
}

type pending struct {
	timer Timer
	gen   uint64
}

// State is what the manager reports about itself
type State struct {
	Session       tracker.Stats `json:"session"`
	PendingTimers int           `json:"pending_timers"`
}

// Manager owns the session and makes every aggregation decision.
// All state is touched only by the goroutine executing Run.
type Manager struct {
	browser    Browser
	controller TabController
	policy     *policy.Policy
	redirect   *redirect.Resolver
	options    OptionsSource
	identity   IdentityStore
	session    *tracker.Session
	clock      Clock
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	logger     *logging.Logger

	timers  map[types.TabID]pending // Owned by Run
	nextGen uint64

	// tabs sent back in history; their next navigation is our own
	returning map[types.TabID]struct{}

	ticks    chan tick
	calls    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager. It does nothing until Run is called.
func NewManager(browser Browser, controller TabController, pol *policy.Policy, resolver *redirect.Resolver, opts OptionsSource, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		browser:    browser,
		controller: controller,
		policy:     pol,
		redirect:   resolver,
		options:    opts,
		session:    tracker.NewSession(),
		clock:      systemClock{},
		logger:     logger.Named("aggregator"),
		timers:     make(map[types.TabID]pending),
		returning:  make(map[types.TabID]struct{}),
		ticks:      make(chan tick, 256),
		calls:      make(chan func()),
		stopped:    make(chan struct{}),
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithIdentity lets duplicated tabs inherit identities and drops identity
// records when tabs close
func (m *Manager) WithIdentity(ids IdentityStore) *Manager {
	m.identity = ids
	return m
}

// WithTracer gives every decision a span
func (m *Manager) WithTracer(tracer *tracing.Tracer) *Manager {
	m.tracer = tracer
	return m
}

// WithClock replaces the wall clock, for tests
func (m *Manager) WithClock(clock Clock) *Manager {
	m.clock = clock
	return m
}

// Start seeds the session from the live window set
func (m *Manager) Start(ctx context.Context) error {
	windows, err := m.browser.ListWindows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	m.session.Seed(windows, m.clock.Now())

	if pruned, err := m.redirect.PruneMarks(ctx, windows); err != nil {
		m.logger.Warn("Failed to prune main window marks", zap.Error(err))
	} else if pruned > 0 {
		m.logger.Info("Dropped stale main window marks", zap.Int("count", pruned))
	}

	opts := m.options.Snapshot()
	for _, name := range opts.ActiveComparers {
		if !ranking.Known(name) {
			m.logger.Warn("Ignoring unknown comparer", zap.String("comparer", name))
		}
	}

	stats := m.session.Stats()
	m.setTracked(stats)
	m.logger.Info("Session seeded", zap.Int("windows", stats.Windows), zap.Int("tabs", stats.Tabs))
	return nil
}

// Run seeds the session and then processes events, timer ticks and
// queries one at a time until ctx is done or events is closed.
func (m *Manager) Run(ctx context.Context, events <-chan types.Event) error {
	defer m.stop()

	if err := m.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				m.logger.Info("Event feed closed")
				return nil
			}
			m.handleEvent(ctx, ev)
		case t := <-m.ticks:
			m.handleTick(ctx, t)
		case fn := <-m.calls:
			fn()
		}
	}
}

// Stats returns a copy of the session statistics
func (m *Manager) Stats(ctx context.Context) (State, error) {
	var st State
	if err := m.call(ctx, func() {
		st = State{Session: m.session.Stats(), PendingTimers: len(m.timers)}
	}); err != nil {
		return State{}, err
	}
	return st, nil
}

// MainWindow resolves the current main window among windows of one privacy mode
func (m *Manager) MainWindow(ctx context.Context, incognito bool) (types.Window, error) {
	var (
		w   types.Window
		err error
	)
	callErr := m.call(ctx, func() {
		w, err = m.redirect.MainWindow(ctx, incognito, m.rankOptions(m.options.Snapshot()))
	})
	if callErr != nil {
		return types.Window{}, callErr
	}
	return w, err
}

// call runs fn on the Run goroutine and waits for it
func (m *Manager) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case m.calls <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) stop() {
	m.stopOnce.Do(func() {
		for id := range m.timers {
			m.cancel(id)
		}
		close(m.stopped)
	})
}

// schedule arms the settle timer of a tab, replacing any earlier one
func (m *Manager) schedule(id types.TabID, after options.Options, retry bool) {
	m.cancel(id)

	d := after.SettleInterval()
	if retry {
		d = after.RetryInterval()
	}

	m.nextGen++
	t := tick{tab: id, gen: m.nextGen}
	timer := m.clock.AfterFunc(d, func() { m.post(t) })
	m.timers[id] = pending{timer: timer, gen: t.gen}
}

// post runs on the timer goroutine
func (m *Manager) post(t tick) {
	select {
	case m.ticks <- t:
	case <-m.stopped:
	}
}

func (m *Manager) cancel(id types.TabID) {
	if p, ok := m.timers[id]; ok {
		p.timer.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) rankOptions(opts options.Options) ranking.Options {
	return ranking.FromOptions(opts, m.session.LastFocused)
}

func (m *Manager) setTracked(stats tracker.Stats) {
	if m.metrics != nil {
		m.metrics.SetTracked(stats.Windows, stats.Tabs)
	}
}
