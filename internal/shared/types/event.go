package types

// EventType names a lifecycle event delivered by the browser
type EventType string

const (
	EventTabCreated         EventType = "tab_created"
	EventTabUpdated         EventType = "tab_updated"
	EventTabRemoved         EventType = "tab_removed"
	EventTabAttached        EventType = "tab_attached"
	EventWindowCreated      EventType = "window_created"
	EventWindowRemoved      EventType = "window_removed"
	EventWindowFocusChanged EventType = "window_focus_changed"
)

// TabChange carries the fields that changed in a tab-updated event
type TabChange struct {
	URL    *string    `json:"url,omitempty"`
	Status *TabStatus `json:"status,omitempty"`
}

// Event is a single lifecycle notification. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType  `json:"type"`
	Tab      *Tab       `json:"tab,omitempty"`
	TabID    TabID      `json:"tab_id,omitempty"`
	WindowID WindowID   `json:"window_id,omitempty"`
	Window   *Window    `json:"window,omitempty"`
	Change   *TabChange `json:"change,omitempty"`
}

// TabCreated builds a tab-created event
func TabCreated(tab Tab) Event {
	return Event{Type: EventTabCreated, Tab: &tab, TabID: tab.ID, WindowID: tab.WindowID}
}

// TabUpdated builds a tab-updated event. The tab is the state after the change.
func TabUpdated(tab Tab, change TabChange) Event {
	return Event{Type: EventTabUpdated, Tab: &tab, TabID: tab.ID, WindowID: tab.WindowID, Change: &change}
}

// TabRemoved builds a tab-removed event
func TabRemoved(id TabID, windowID WindowID) Event {
	return Event{Type: EventTabRemoved, TabID: id, WindowID: windowID}
}

// TabAttached builds an event for a tab that moved into another window
func TabAttached(id TabID, windowID WindowID) Event {
	return Event{Type: EventTabAttached, TabID: id, WindowID: windowID}
}

// WindowCreated builds a window-created event
func WindowCreated(w Window) Event {
	return Event{Type: EventWindowCreated, Window: &w, WindowID: w.ID}
}

// WindowRemoved builds a window-removed event
func WindowRemoved(id WindowID) Event {
	return Event{Type: EventWindowRemoved, WindowID: id}
}

// WindowFocusChanged builds a focus event; WindowNone means focus left the browser
func WindowFocusChanged(id WindowID) Event {
	return Event{Type: EventWindowFocusChanged, WindowID: id}
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string { return &s }

// StatusPtr returns a pointer to s
func StatusPtr(s TabStatus) *TabStatus { return &s }

// TabIDPtr returns a pointer to id
func TabIDPtr(id TabID) *TabID { return &id }
