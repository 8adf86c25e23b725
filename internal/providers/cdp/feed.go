package cdp

import (
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// feed turns target discovery notifications into lifecycle events.
// CDP has no window events, so windows appear with their first tab and
// disappear with their last one.
type feed struct {
	tabs    map[types.TabID]types.Tab
	windows map[types.WindowID]int
}

func newFeed() *feed {
	return &feed{
		tabs:    make(map[types.TabID]types.Tab),
		windows: make(map[types.WindowID]int),
	}
}

func (f *feed) seed(windows []types.Window) {
	for _, w := range windows {
		for _, t := range w.Tabs {
			f.tabs[t.ID] = t
			f.windows[w.ID]++
		}
	}
}

func (f *feed) created(tab types.Tab) []types.Event {
	if _, ok := f.tabs[tab.ID]; ok {
		return f.changed(tab)
	}

	var out []types.Event
	if f.windows[tab.WindowID] == 0 {
		out = append(out, types.WindowCreated(types.Window{
			ID:        tab.WindowID,
			Type:      types.WindowNormal,
			Incognito: tab.Incognito,
		}))
	}
	f.tabs[tab.ID] = tab
	f.windows[tab.WindowID]++
	return append(out, types.TabCreated(tab))
}

func (f *feed) changed(tab types.Tab) []types.Event {
	prev, ok := f.tabs[tab.ID]
	if !ok {
		return nil
	}

	var out []types.Event
	if prev.WindowID != tab.WindowID {
		if f.windows[tab.WindowID] == 0 {
			out = append(out, types.WindowCreated(types.Window{ID: tab.WindowID, Type: types.WindowNormal, Incognito: tab.Incognito}))
		}
		f.windows[tab.WindowID]++
		out = append(out, types.TabAttached(tab.ID, tab.WindowID))
		out = append(out, f.leave(prev.WindowID)...)
	}
	f.tabs[tab.ID] = tab

	if prev.URL == tab.URL && prev.Status == tab.Status {
		return out
	}
	change := types.TabChange{}
	if prev.URL != tab.URL {
		change.URL = types.StringPtr(tab.URL)
	}
	if prev.Status != tab.Status {
		change.Status = types.StatusPtr(tab.Status)
	}
	return append(out, types.TabUpdated(tab, change))
}

func (f *feed) destroyed(id types.TabID) []types.Event {
	tab, ok := f.tabs[id]
	if !ok {
		return nil
	}
	delete(f.tabs, id)
	return append([]types.Event{types.TabRemoved(id, tab.WindowID)}, f.leave(tab.WindowID)...)
}

func (f *feed) leave(window types.WindowID) []types.Event {
	f.windows[window]--
	if f.windows[window] > 0 {
		return nil
	}
	delete(f.windows, window)
	return []types.Event{types.WindowRemoved(window)}
}
