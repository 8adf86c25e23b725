package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/identity"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/pattern"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/policy"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/redirect"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/storage"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

func normalWindow(id types.WindowID, width, height int64, tabIDs ...types.TabID) types.Window {
	w := types.Window{ID: id, Type: types.WindowNormal, Width: width, Height: height}
	for _, tid := range tabIDs {
		w.Tabs = append(w.Tabs, types.Tab{ID: tid, WindowID: id, URL: "https://seed.test/" + string(tid), Status: types.StatusComplete})
	}
	return w
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	m       *Manager
	browser *fakeBrowser
	clock   *fakeClock
	opts    *options.Store
	tabKV   *storage.Memory
	marks   *storage.Memory
	metrics *monitoring.Metrics
}

func defaultWindows() []types.Window {
	return []types.Window{
		normalWindow("big", 1920, 1080, "b1", "b2", "b3"),
		normalWindow("small", 800, 600, "s1", "s2"),
	}
}

func newHarness(t *testing.T, windows []types.Window, controller func(*fakeBrowser) TabController) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		browser: newFakeBrowser(windows...),
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		opts:    options.NewMemoryStore(),
		tabKV:   storage.NewMemory(),
		marks:   storage.NewMemory(),
		metrics: monitoring.NewMetrics(prometheus.NewRegistry()),
	}

	patterns := pattern.NewSet(h.opts, nil, h.metrics)
	t.Cleanup(patterns.Close)
	ids := identity.NewResolver(h.tabKV, nil)
	pol := policy.New(patterns, ids, nil, nil).WithFailures(h.metrics)
	res := redirect.NewResolver(h.browser, h.marks)

	var ctrl TabController = h.browser
	if controller != nil {
		ctrl = controller(h.browser)
	}
	h.m = NewManager(h.browser, ctrl, pol, res, h.opts, nil).
		WithClock(h.clock).
		WithMetrics(h.metrics).
		WithIdentity(ids)
	require.NoError(t, h.m.Start(h.ctx))

	// seeded windows are old news
	h.clock.Advance(time.Minute)
	return h
}

func (h *harness) set(key string, value interface{}) {
	h.t.Helper()
	require.NoError(h.t, h.opts.Set(key, value))
}

func (h *harness) send(ev types.Event) {
	h.m.handleEvent(h.ctx, ev)
}

// create puts a blank tab into the browser and delivers its created event
func (h *harness) create(id types.TabID, window types.WindowID) types.Tab {
	tab := types.Tab{ID: id, WindowID: window, URL: types.BlankURL, Status: types.StatusLoading}
	h.browser.put(tab)
	h.send(types.TabCreated(tab))
	return tab
}

// load navigates a tab and delivers the completed update
func (h *harness) load(tab types.Tab, url string) {
	tab.URL = url
	tab.Status = types.StatusComplete
	h.browser.put(tab)
	h.send(types.TabUpdated(tab, types.TabChange{URL: types.StringPtr(url), Status: types.StatusPtr(types.StatusComplete)}))
}

// advance moves the clock and processes every tick that fired
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	for {
		select {
		case t := <-h.m.ticks:
			h.m.handleTick(h.ctx, t)
		default:
			return
		}
	}
}

func TestNewTabSettledByUpdateIsMoved(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	tab := h.create("n1", "small")
	assert.Len(t, h.m.timers, 1)
	h.load(tab, "https://example.com")

	assert.Equal(t, []move{{Tab: "n1", Window: "big", Index: 3}}, h.browser.Moves())
	assert.Equal(t, []types.TabID{"n1"}, h.browser.activated)
	assert.Empty(t, h.m.timers, "settling by update cancels the timer")
	assert.Equal(t, 0, h.clock.Active())

	s := h.metrics.Snapshot()
	assert.Equal(t, int64(1), s.Moves)
	assert.Equal(t, int64(1), s.Aggregated)
}

func TestNewTabSettledByTimerIsMoved(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	tab := h.create("n1", "small")
	// the URL commits but no complete event arrives
	tab.URL = "https://example.com"
	h.browser.put(tab)

	h.advance(299 * time.Millisecond)
	assert.Empty(t, h.browser.Moves(), "first tick waits for the burst window")

	h.advance(time.Millisecond)
	assert.Equal(t, []move{{Tab: "n1", Window: "big", Index: 3}}, h.browser.Moves())
}

func TestBlankTabGivesUpAfterRetries(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)
	h.set(options.KeyMaxSettleRetries, 2)

	h.create("n1", "small")
	h.advance(300 * time.Millisecond)
	h.advance(150 * time.Millisecond)
	h.advance(150 * time.Millisecond)
	h.advance(time.Second)

	assert.Empty(t, h.browser.Moves())
	s := h.metrics.Snapshot()
	assert.Equal(t, int64(2), s.SettleRetries)
	assert.Equal(t, int64(1), s.SettleGiveUps)
	assert.Equal(t, int64(0), s.Decisions, "no decision once the budget is exhausted")
	assert.Empty(t, h.m.timers)

	// a late load does not revive the tab
	h.load(types.Tab{ID: "n1", WindowID: "small"}, "https://example.com")
	assert.Empty(t, h.browser.Moves())
}

func TestRemovingTabCancelsTimer(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.create("n1", "small")
	h.browser.drop("n1")
	h.send(types.TabRemoved("n1", "small"))

	assert.Empty(t, h.m.timers)
	assert.Equal(t, 0, h.clock.Active())
	h.advance(time.Second)
	assert.Equal(t, int64(0), h.metrics.Snapshot().Decisions)
}

func TestVanishedTabAbandonsDecision(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.create("n1", "small")
	h.browser.drop("n1") // closed, removal event still in flight
	h.advance(300 * time.Millisecond)

	assert.Empty(t, h.browser.Moves())
	assert.False(t, h.m.session.HasTab("n1"))
	h.send(types.TabRemoved("n1", "small"))
}

func TestStaleTickIsIgnored(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.create("n1", "small")
	current := h.m.timers["n1"].gen
	h.m.handleTick(h.ctx, tick{tab: "n1", gen: current - 1})
	assert.Contains(t, h.m.timers, types.TabID("n1"))
}

func TestInitialTabsAreNotMoved(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.send(types.WindowCreated(types.Window{ID: "fresh", Type: types.WindowNormal}))
	tab := h.create("f1", "fresh")
	h.load(tab, "https://restored.test")
	h.advance(300 * time.Millisecond)

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, 1.0, counter(h.metrics.DecisionsTotal.WithLabelValues("keep", ReasonInitial)))
}

func TestRestoreBurstIsSuppressed(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.send(types.WindowCreated(types.Window{ID: "restored", Type: types.WindowNormal}))
	h.clock.Advance(100 * time.Millisecond)
	a := h.create("r1", "small")
	h.clock.Advance(50 * time.Millisecond)
	b := h.create("r2", "small")

	h.load(a, "https://one.test")
	h.load(b, "https://two.test")

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, int64(2), h.metrics.Snapshot().Suppressed)
}

func TestRestoreBurstWaitsWhenFirstTabLoadsEarly(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.send(types.WindowCreated(types.Window{ID: "restored", Type: types.WindowNormal}))
	h.clock.Advance(100 * time.Millisecond)
	a := h.create("r1", "small")
	h.clock.Advance(20 * time.Millisecond)
	h.load(a, "https://one.test")
	assert.Contains(t, h.m.timers, types.TabID("r1"), "decision waits for the burst window")

	h.clock.Advance(30 * time.Millisecond)
	b := h.create("r2", "small")
	h.load(b, "https://two.test")

	h.advance(300 * time.Millisecond)
	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, int64(2), h.metrics.Snapshot().Suppressed)
	assert.Empty(t, h.m.timers)
}

func TestLoneTabNextToNewWindowIsMovedAfterBurstWindow(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.send(types.WindowCreated(types.Window{ID: "restored", Type: types.WindowNormal}))
	h.clock.Advance(100 * time.Millisecond)
	a := h.create("n1", "small")
	h.load(a, "https://one.test")
	assert.Empty(t, h.browser.Moves())

	h.advance(300 * time.Millisecond)
	assert.Equal(t, []move{{Tab: "n1", Window: "big", Index: 3}}, h.browser.Moves())
	assert.Equal(t, int64(0), h.metrics.Snapshot().Suppressed)
}

func TestPolicyKeepLeavesTab(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)
	h.set(options.KeyAggregateTabsAll, false)

	tab := h.create("n1", "small")
	h.load(tab, "https://example.com")

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, 1.0, counter(h.metrics.DecisionsTotal.WithLabelValues("keep", policy.RuleDefault)))
}

func TestExternalAppTabIsMoved(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)
	h.set(options.KeyAggregateTabsAll, false)

	h.send(types.WindowFocusChanged(types.WindowNone))
	tab := h.create("n1", "small")
	h.load(tab, "https://from-mail-client.test")

	assert.Equal(t, []move{{Tab: "n1", Window: "big", Index: 3}}, h.browser.Moves())
}

func TestPinnedOpenerSwitch(t *testing.T) {
	windows := defaultWindows()
	windows[1].Tabs[0].Pinned = true // s1
	h := newHarness(t, windows, nil)
	h.set(options.KeyAggregateTabsFromPinned, false)

	tab := types.Tab{ID: "n1", WindowID: "small", URL: types.BlankURL, OpenerTabID: types.TabIDPtr("s1")}
	h.browser.put(tab)
	h.send(types.TabCreated(tab))
	h.load(tab, "https://child.test")

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, 1.0, counter(h.metrics.DecisionsTotal.WithLabelValues("keep", policy.RuleOpener)))
}

func TestTabInMainWindowStays(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	tab := h.create("n1", "big")
	h.load(tab, "https://example.com")

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, 1.0, counter(h.metrics.DecisionsTotal.WithLabelValues("keep", ReasonNoTarget)))
}

func TestMarkedWindowReceivesTabs(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)
	require.NoError(t, h.m.redirect.MarkMain(h.ctx, "small"))

	tab := h.create("n1", "big")
	h.load(tab, "https://example.com")

	assert.Equal(t, []move{{Tab: "n1", Window: "small", Index: 2}}, h.browser.Moves())
}

func TestWindowRemovalClearsMainMark(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)
	require.NoError(t, h.m.redirect.MarkMain(h.ctx, "small"))

	h.send(types.WindowRemoved("small"))

	marked, err := h.m.redirect.Marked(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, types.WindowNone, marked)
}

func TestMarkFromPreviousBrowserRunIsDropped(t *testing.T) {
	marks := storage.NewMemory()
	browser := newFakeBrowser(defaultWindows()...)
	browser.run = "run-1"
	res := redirect.NewResolver(browser, marks)
	require.NoError(t, res.MarkMain(context.Background(), "small"))

	// the browser restarted; id small now names another window
	restarted := newFakeBrowser(
		normalWindow("small", 640, 480, "x1", "x2"),
		normalWindow("big", 1920, 1080, "y1"),
	)
	restarted.run = "run-2"
	res = redirect.NewResolver(restarted, marks)
	m := NewManager(restarted, restarted, policy.New(nil, nil, nil, nil), res, options.NewMemoryStore(), nil)
	require.NoError(t, m.Start(context.Background()))

	entries, err := marks.List(context.Background(), storage.ScopeWindow, redirect.MainWindowKey)
	require.NoError(t, err)
	assert.Empty(t, entries)
	marked, err := res.Marked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.WindowNone, marked)
}

func TestMarkSurvivesDaemonRestart(t *testing.T) {
	marks := storage.NewMemory()
	browser := newFakeBrowser(defaultWindows()...)
	browser.run = "run-1"
	res := redirect.NewResolver(browser, marks)
	require.NoError(t, res.MarkMain(context.Background(), "small"))

	m := NewManager(browser, browser, policy.New(nil, nil, nil, nil), res, options.NewMemoryStore(), nil)
	require.NoError(t, m.Start(context.Background()))

	marked, err := res.Marked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("small"), marked)
}

func TestDuplicatedTabIsKept(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	// s1 already has an identity; the duplicate inherits its session values
	ids := identity.NewResolver(h.tabKV, nil)
	_, err := ids.Resolve(h.ctx, "s1", func(types.TabID) bool { return true })
	require.NoError(t, err)
	h.tabKV.Copy(storage.ScopeTab, "s1", "dup")

	tab := h.create("dup", "small")
	h.load(tab, "https://seed.test/s1")

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, 1.0, counter(h.metrics.DecisionsTotal.WithLabelValues("keep", policy.RuleDuplicateOrRestored)))

	// closing the duplicate drops its identity record
	h.send(types.TabRemoved("dup", "small"))
	_, found, err := ids.Lookup(h.ctx, "dup")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTabOpenedOnOpenerPageIsDuplicate(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	tab := types.Tab{ID: "dup", WindowID: "small", URL: types.BlankURL, OpenerTabID: types.TabIDPtr("s1")}
	h.browser.put(tab)
	h.send(types.TabCreated(tab))
	h.load(tab, "https://seed.test/s1")

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, 1.0, counter(h.metrics.DecisionsTotal.WithLabelValues("keep", policy.RuleDuplicateOrRestored)))

	ids := identity.NewResolver(h.tabKV, nil)
	original, found, err := ids.Lookup(h.ctx, "s1")
	require.NoError(t, err)
	require.True(t, found, "the opener got an identity to hand over")
	dup, found, err := ids.Lookup(h.ctx, "dup")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEqual(t, original, dup)
}

func TestDuplicatesMoveWhenAllowed(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)
	h.set(options.KeyAggregateDuplicatedTabs, true)
	h.set(options.KeyAggregateRestoredTabs, true)

	tab := types.Tab{ID: "dup", WindowID: "small", URL: types.BlankURL, OpenerTabID: types.TabIDPtr("s1")}
	h.browser.put(tab)
	h.send(types.TabCreated(tab))
	h.load(tab, "https://seed.test/s1")

	assert.Equal(t, []move{{Tab: "dup", Window: "big", Index: 3}}, h.browser.Moves())
}

func TestChildOnOtherPageIsNotDuplicate(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	tab := types.Tab{ID: "child", WindowID: "small", URL: types.BlankURL, OpenerTabID: types.TabIDPtr("s1")}
	h.browser.put(tab)
	h.send(types.TabCreated(tab))
	h.load(tab, "https://elsewhere.test/")

	assert.Equal(t, []move{{Tab: "child", Window: "big", Index: 3}}, h.browser.Moves())
}

func TestListFailureIsReported(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	tab := h.create("n1", "small")
	h.browser.listErr = errors.New("devtools gone")
	h.load(tab, "https://example.com")

	assert.Empty(t, h.browser.Moves())
	assert.Equal(t, 1.0, counter(h.metrics.DecisionsTotal.WithLabelValues("keep", ReasonError)))
}

func TestWindowRemovedCancelsTimers(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)

	h.create("n1", "small")
	h.send(types.WindowRemoved("small"))

	assert.Empty(t, h.m.timers)
	assert.Equal(t, 0, h.clock.Active())
}

func TestNarrowWindowNavigationIsRedirected(t *testing.T) {
	windows := []types.Window{
		normalWindow("big", 1920, 1080, "b1", "b2", "b3"),
		normalWindow("sidebar", 300, 900, "s1"),
	}
	h := newHarness(t, windows, nil)
	h.set(options.KeyRedirectLoadingInCurrentTab, true)

	nav := types.Tab{ID: "s1", WindowID: "sidebar", URL: "https://news.test/story", Status: types.StatusLoading}
	h.send(types.TabUpdated(nav, types.TabChange{URL: types.StringPtr(nav.URL)}))

	require.Len(t, h.browser.opens, 1)
	assert.Equal(t, open{Window: "big", Index: 3, URL: "https://news.test/story"}, h.browser.opens[0])
	assert.Equal(t, []types.TabID{"opened-1"}, h.browser.activated)
	assert.Equal(t, []types.TabID{"s1"}, h.browser.back)

	// the back navigation is ours and is not redirected again
	back := types.Tab{ID: "s1", WindowID: "sidebar", URL: "https://seed.test/s1"}
	h.send(types.TabUpdated(back, types.TabChange{URL: types.StringPtr(back.URL)}))
	assert.Len(t, h.browser.opens, 1)

	// later navigations are
	h.send(types.TabUpdated(nav, types.TabChange{URL: types.StringPtr(nav.URL)}))
	assert.Len(t, h.browser.opens, 2)
	assert.Equal(t, int64(2), h.metrics.Snapshot().Redirects)
}

func TestRedirectWithoutNavigator(t *testing.T) {
	windows := []types.Window{
		normalWindow("big", 1920, 1080, "b1"),
		normalWindow("sidebar", 300, 900, "s1"),
	}
	h := newHarness(t, windows, func(f *fakeBrowser) TabController { return controllerOnly{f: f} })
	h.set(options.KeyRedirectLoadingInCurrentTab, true)

	nav := types.Tab{ID: "s1", WindowID: "sidebar", URL: "https://news.test"}
	h.send(types.TabUpdated(nav, types.TabChange{URL: types.StringPtr(nav.URL)}))

	assert.Len(t, h.browser.opens, 1)
	assert.Empty(t, h.browser.back)
}

func TestWideWindowNavigationStays(t *testing.T) {
	h := newHarness(t, defaultWindows(), nil)
	h.set(options.KeyRedirectLoadingInCurrentTab, true)

	nav := types.Tab{ID: "s1", WindowID: "small", URL: "https://news.test"}
	h.send(types.TabUpdated(nav, types.TabChange{URL: types.StringPtr(nav.URL)}))
	assert.Empty(t, h.browser.opens)

	h.set(options.KeyRedirectLoadingInCurrentTab, false)
	h.set(options.KeyRedirectMinWindowWidth, 1000)
	h.send(types.TabUpdated(nav, types.TabChange{URL: types.StringPtr(nav.URL)}))
	assert.Empty(t, h.browser.opens, "disabled by default")
}

func TestRunServesQueries(t *testing.T) {
	browser := newFakeBrowser(defaultWindows()...)
	opts := options.NewMemoryStore()
	marks := storage.NewMemory()
	res := redirect.NewResolver(browser, marks)
	m := NewManager(browser, browser, policy.New(nil, nil, nil, nil), res, opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan types.Event)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, events) }()

	events <- types.WindowFocusChanged("small")

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Session.Windows)
	assert.Equal(t, 5, st.Session.Tabs)
	assert.Equal(t, types.WindowID("small"), st.Session.FocusedWindow)

	main, err := m.MainWindow(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("big"), main.ID)

	require.NoError(t, res.MarkMain(ctx, "small"))
	main, err = m.MainWindow(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("small"), main.ID)

	close(events)
	require.NoError(t, <-done)

	_, err = m.Stats(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunFailsWhenSeedingFails(t *testing.T) {
	browser := newFakeBrowser()
	browser.listErr = errors.New("not connected")
	m := NewManager(browser, browser, policy.New(nil, nil, nil, nil), redirect.NewResolver(browser, nil), options.NewMemoryStore(), nil)

	err := m.Run(context.Background(), make(chan types.Event))
	assert.Error(t, err)
}
