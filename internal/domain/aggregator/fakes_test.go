package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

type move struct {
	Tab    types.TabID
	Window types.WindowID
	Index  int
}

type open struct {
	Window types.WindowID
	Index  int
	URL    string
}

// fakeBrowser is an in-memory browser implementing Browser, TabController and Navigator
type fakeBrowser struct {
	mu        sync.Mutex
	windows   []types.Window
	moves     []move
	opens     []open
	activated []types.TabID
	back      []types.TabID
	nextID    int
	listErr   error
	run       string
}

func newFakeBrowser(windows ...types.Window) *fakeBrowser {
	return &fakeBrowser{windows: windows}
}

func (f *fakeBrowser) ListWindows(context.Context) ([]types.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.Window, len(f.windows))
	for i, w := range f.windows {
		w.Tabs = append([]types.Tab(nil), w.Tabs...)
		out[i] = w
	}
	return out, nil
}

func (f *fakeBrowser) Instance() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.run
}

func (f *fakeBrowser) GetTab(_ context.Context, id types.TabID) (types.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.windows {
		for _, t := range w.Tabs {
			if t.ID == id {
				return t, nil
			}
		}
	}
	return types.Tab{}, fmt.Errorf("tab %s: %w", id, types.ErrTabNotFound)
}

func (f *fakeBrowser) MoveTab(_ context.Context, id types.TabID, window types.WindowID, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.removeLocked(id)
	if !ok {
		return fmt.Errorf("tab %s: %w", id, types.ErrTabNotFound)
	}
	for i := range f.windows {
		if f.windows[i].ID == window {
			tab.WindowID = window
			f.windows[i].Tabs = append(f.windows[i].Tabs, tab)
			f.moves = append(f.moves, move{Tab: id, Window: window, Index: index})
			return nil
		}
	}
	return fmt.Errorf("window %s: %w", window, types.ErrWindowNotFound)
}

func (f *fakeBrowser) ActivateTab(_ context.Context, id types.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, id)
	return nil
}

func (f *fakeBrowser) OpenTab(_ context.Context, window types.WindowID, index int, url string) (types.TabID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := types.TabID(fmt.Sprintf("opened-%d", f.nextID))
	for i := range f.windows {
		if f.windows[i].ID == window {
			f.windows[i].Tabs = append(f.windows[i].Tabs, types.Tab{ID: id, WindowID: window, URL: url})
			f.opens = append(f.opens, open{Window: window, Index: index, URL: url})
			return id, nil
		}
	}
	return "", fmt.Errorf("window %s: %w", window, types.ErrWindowNotFound)
}

func (f *fakeBrowser) GoBack(_ context.Context, id types.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.back = append(f.back, id)
	return nil
}

// put adds or replaces a tab in its window
func (f *fakeBrowser) put(tab types.Tab) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(tab.ID)
	for i := range f.windows {
		if f.windows[i].ID == tab.WindowID {
			f.windows[i].Tabs = append(f.windows[i].Tabs, tab)
			return
		}
	}
	f.windows = append(f.windows, types.Window{ID: tab.WindowID, Type: types.WindowNormal, Tabs: []types.Tab{tab}})
}

func (f *fakeBrowser) drop(id types.TabID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(id)
}

func (f *fakeBrowser) removeLocked(id types.TabID) (types.Tab, bool) {
	for i := range f.windows {
		for j, t := range f.windows[i].Tabs {
			if t.ID == id {
				f.windows[i].Tabs = append(f.windows[i].Tabs[:j:j], f.windows[i].Tabs[j+1:]...)
				return t, true
			}
		}
	}
	return types.Tab{}, false
}

func (f *fakeBrowser) Moves() []move {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]move(nil), f.moves...)
}

// controllerOnly hides the Navigator capability
type controllerOnly struct {
	f *fakeBrowser
}

func (c controllerOnly) MoveTab(ctx context.Context, id types.TabID, w types.WindowID, i int) error {
	return c.f.MoveTab(ctx, id, w, i)
}

func (c controllerOnly) ActivateTab(ctx context.Context, id types.TabID) error {
	return c.f.ActivateTab(ctx, id)
}

func (c controllerOnly) OpenTab(ctx context.Context, w types.WindowID, i int, url string) (types.TabID, error) {
	return c.f.OpenTab(ctx, w, i, url)
}

type fakeTimer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// fakeClock fires timers only when advanced
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
	seq    int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.seq++
	t := &fakeTimer{at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
	due := make([]*fakeTimer, 0)
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	for _, t := range due {
		t.fired = true
		t.fn()
	}
}

func (c *fakeClock) Active() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func counter(c prometheus.Counter) float64 {
	return testutil.ToFloat64(c)
}
