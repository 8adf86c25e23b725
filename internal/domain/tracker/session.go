package tracker

import (
	"time"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// State is the lifecycle position of a tracked tab
type State int

const (
	Unseen State = iota
	Creating
	SettledNew
	SettledInitial
)

func (s State) String() string {
	switch s {
	case Creating:
		return "creating"
	case SettledNew:
		return "settled_new"
	case SettledInitial:
		return "settled_initial"
	default:
		return "unseen"
	}
}

// Settled reports whether the tab has left the creating state
func (s State) Settled() bool {
	return s == SettledNew || s == SettledInitial
}

type windowState struct {
	createdAt    time.Time // zero for windows found at startup
	lastActiveAt time.Time
	initial      map[types.TabID]struct{}
}

type burst struct {
	start time.Time
	last  time.Time
	count int
}

type tabState struct {
	windowID        types.WindowID
	state           State
	initial         bool
	createdAt       time.Time
	retries         int
	burst           *burst
	fromExternalApp bool
}

// TabInfo is what the session decided about a tab when it was created
type TabInfo struct {
	ID              types.TabID
	WindowID        types.WindowID
	State           State
	Initial         bool
	FromExternalApp bool
	CreatedAt       time.Time
}

// TickResult is the outcome of a settle timer firing
type TickResult int

const (
	// TickIgnored means the tab is unknown or no longer creating
	TickIgnored TickResult = iota
	// TickSettled means the tab left the placeholder page
	TickSettled
	// TickRetry means the tab is still blank and another tick is due
	TickRetry
	// TickGaveUp means the retry budget ran out
	TickGaveUp
)

// Stats is a copy of the session counters
type Stats struct {
	Windows       int            `json:"windows"`
	Tabs          int            `json:"tabs"`
	Creating      int            `json:"creating"`
	Initial       int            `json:"initial"`
	FocusedWindow types.WindowID `json:"focused_window"`
	BurstCount    int            `json:"burst_count"`
	LastWindowAt  *time.Time     `json:"last_window_created_at,omitempty"`
}

// Session owns all per-window and per-tab ephemeral state.
// It is not safe for concurrent use; a single owner drives it.
type Session struct {
	windows      map[types.WindowID]*windowState
	tabs         map[types.TabID]*tabState
	focused      types.WindowID
	focusKnown   bool
	lastWindowAt time.Time
	burst        *burst
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{
		windows: make(map[types.WindowID]*windowState),
		tabs:    make(map[types.TabID]*tabState),
	}
}

// Seed resets the session to the live window set. Every tab that already
// exists counts as initial content.
func (s *Session) Seed(windows []types.Window, now time.Time) {
	s.windows = make(map[types.WindowID]*windowState, len(windows))
	s.tabs = make(map[types.TabID]*tabState)
	s.focused = types.WindowNone
	s.focusKnown = false
	s.lastWindowAt = time.Time{}
	s.burst = nil

	for _, w := range windows {
		ws := &windowState{initial: make(map[types.TabID]struct{}, len(w.Tabs))}
		for _, t := range w.Tabs {
			ws.initial[t.ID] = struct{}{}
			s.tabs[t.ID] = &tabState{
				windowID:  w.ID,
				state:     SettledInitial,
				initial:   true,
				createdAt: now,
			}
		}
		s.windows[w.ID] = ws
	}
}

// WindowCreated starts tracking a new window
func (s *Session) WindowCreated(id types.WindowID, now time.Time) {
	s.lastWindowAt = now
	if ws, ok := s.windows[id]; ok {
		// first tab arrived before the window event
		if ws.createdAt.IsZero() {
			ws.createdAt = now
		}
		return
	}
	s.windows[id] = &windowState{createdAt: now, initial: make(map[types.TabID]struct{})}
}

// WindowRemoved drops the window and every tab still recorded in it.
// The dropped tab ids are returned so pending work can be cancelled.
func (s *Session) WindowRemoved(id types.WindowID) []types.TabID {
	if _, ok := s.windows[id]; !ok {
		return nil
	}
	delete(s.windows, id)

	var dropped []types.TabID
	for tid, ts := range s.tabs {
		if ts.windowID == id {
			dropped = append(dropped, tid)
			delete(s.tabs, tid)
		}
	}
	if s.focused == id {
		s.focused = types.WindowNone
	}
	return dropped
}

// WindowFocused records a focus change; WindowNone means another application has focus
func (s *Session) WindowFocused(id types.WindowID, now time.Time) {
	s.focused = id
	s.focusKnown = true
	if id == types.WindowNone {
		return
	}
	ws, ok := s.windows[id]
	if !ok {
		ws = &windowState{initial: make(map[types.TabID]struct{})}
		s.windows[id] = ws
	}
	ws.lastActiveAt = now
}

// TabCreated moves a tab from unseen to creating and classifies it
func (s *Session) TabCreated(tab types.Tab, now time.Time, opts options.Options) TabInfo {
	if existing, ok := s.tabs[tab.ID]; ok {
		return s.info(tab.ID, existing)
	}

	ws, tracked := s.windows[tab.WindowID]
	initial := false
	switch {
	case !tracked:
		ws = &windowState{createdAt: now, initial: make(map[types.TabID]struct{})}
		s.windows[tab.WindowID] = ws
		initial = true
	case !ws.createdAt.IsZero() && now.Sub(ws.createdAt) <= opts.NewWindowDelay():
		initial = true
	}
	if initial {
		ws.initial[tab.ID] = struct{}{}
	}

	if s.burst == nil || now.Sub(s.burst.last) > opts.MultipleNewTabsDelay() {
		s.burst = &burst{start: now}
	}
	s.burst.last = now
	s.burst.count++

	ts := &tabState{
		windowID:        tab.WindowID,
		state:           Creating,
		initial:         initial,
		createdAt:       now,
		burst:           s.burst,
		fromExternalApp: s.focusKnown && s.focused == types.WindowNone,
	}
	s.tabs[tab.ID] = ts
	return s.info(tab.ID, ts)
}

// TryUpdateSettle settles a creating tab once an update shows a real page
// that has finished loading
func (s *Session) TryUpdateSettle(tab types.Tab) (TabInfo, bool) {
	ts, ok := s.tabs[tab.ID]
	if !ok || ts.state != Creating {
		return TabInfo{}, false
	}
	if types.IsPlaceholderURL(tab.URL) || tab.Status != types.StatusComplete {
		return TabInfo{}, false
	}
	s.settle(ts)
	return s.info(tab.ID, ts), true
}

// SettleTick applies a settle timer to the live state of a tab
func (s *Session) SettleTick(live types.Tab, opts options.Options) (TabInfo, TickResult) {
	ts, ok := s.tabs[live.ID]
	if !ok || ts.state != Creating {
		return TabInfo{}, TickIgnored
	}
	if !types.IsPlaceholderURL(live.URL) {
		s.settle(ts)
		return s.info(live.ID, ts), TickSettled
	}
	if ts.retries >= opts.MaxSettleRetries {
		// leaves creating without an aggregation attempt
		s.settle(ts)
		return s.info(live.ID, ts), TickGaveUp
	}
	ts.retries++
	return s.info(live.ID, ts), TickRetry
}

func (s *Session) settle(ts *tabState) {
	if ts.initial {
		ts.state = SettledInitial
	} else {
		ts.state = SettledNew
	}
}

// Suppressed reports whether the tab belongs to a burst of tabs restored
// into a window that was itself just created
func (s *Session) Suppressed(id types.TabID, opts options.Options) bool {
	ts, ok := s.tabs[id]
	if !ok || ts.burst == nil || ts.burst.count < 2 || s.lastWindowAt.IsZero() {
		return false
	}
	gap := ts.burst.start.Sub(s.lastWindowAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= opts.NewWindowDelay()
}

// BurstOpen reports whether the tab's burst sits next to a new window and
// could still grow. Suppression can only be judged once it is closed.
func (s *Session) BurstOpen(id types.TabID, now time.Time, opts options.Options) bool {
	ts, ok := s.tabs[id]
	if !ok || ts.burst == nil || ts.burst.count >= 2 || s.lastWindowAt.IsZero() {
		return false
	}
	if now.Sub(ts.burst.last) > opts.MultipleNewTabsDelay() {
		return false
	}
	gap := ts.burst.start.Sub(s.lastWindowAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= opts.NewWindowDelay()
}

// TabRemoved forgets a tab. Unknown ids are ignored.
func (s *Session) TabRemoved(id types.TabID) bool {
	ts, ok := s.tabs[id]
	if !ok {
		return false
	}
	if ws, ok := s.windows[ts.windowID]; ok {
		delete(ws.initial, id)
	}
	delete(s.tabs, id)
	return true
}

// TabMoved records that a tab now lives in another window. It stops
// being initial content of the window it left.
func (s *Session) TabMoved(id types.TabID, to types.WindowID) {
	ts, ok := s.tabs[id]
	if !ok || ts.windowID == to {
		return
	}
	if ws, ok := s.windows[ts.windowID]; ok {
		delete(ws.initial, id)
	}
	ts.windowID = to
	if _, ok := s.windows[to]; !ok {
		s.windows[to] = &windowState{initial: make(map[types.TabID]struct{})}
	}
}

// State returns the lifecycle state of a tab
func (s *Session) State(id types.TabID) State {
	if ts, ok := s.tabs[id]; ok {
		return ts.state
	}
	return Unseen
}

// Tab returns what is known about a tab
func (s *Session) Tab(id types.TabID) (TabInfo, bool) {
	ts, ok := s.tabs[id]
	if !ok {
		return TabInfo{}, false
	}
	return s.info(id, ts), true
}

// HasTab reports whether a volatile tab id is currently live
func (s *Session) HasTab(id types.TabID) bool {
	_, ok := s.tabs[id]
	return ok
}

// IsInitial reports whether the tab is initial content of its window
func (s *Session) IsInitial(id types.TabID) bool {
	ts, ok := s.tabs[id]
	if !ok {
		return false
	}
	ws, ok := s.windows[ts.windowID]
	if !ok {
		return false
	}
	_, initial := ws.initial[id]
	return initial
}

// LastFocused returns when the window last gained focus, zero if never
func (s *Session) LastFocused(id types.WindowID) time.Time {
	if ws, ok := s.windows[id]; ok {
		return ws.lastActiveAt
	}
	return time.Time{}
}

// Focused returns the focused window and whether any focus change was seen
func (s *Session) Focused() (types.WindowID, bool) {
	return s.focused, s.focusKnown
}

// Stats returns a copy of the session counters
func (s *Session) Stats() Stats {
	st := Stats{
		Windows:       len(s.windows),
		Tabs:          len(s.tabs),
		FocusedWindow: s.focused,
	}
	for _, ts := range s.tabs {
		if ts.state == Creating {
			st.Creating++
		}
	}
	for _, ws := range s.windows {
		st.Initial += len(ws.initial)
	}
	if s.burst != nil {
		st.BurstCount = s.burst.count
	}
	if !s.lastWindowAt.IsZero() {
		at := s.lastWindowAt
		st.LastWindowAt = &at
	}
	return st
}

func (s *Session) info(id types.TabID, ts *tabState) TabInfo {
	return TabInfo{
		ID:              id,
		WindowID:        ts.windowID,
		State:           ts.state,
		Initial:         ts.initial,
		FromExternalApp: ts.fromExternalApp,
		CreatedAt:       ts.createdAt,
	}
}
