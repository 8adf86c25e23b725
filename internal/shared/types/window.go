package types

// TabID identifies a tab. Browser-assigned and only stable while the tab lives.
type TabID string

// WindowID identifies a browser window for its lifetime.
type WindowID string

// WindowNone is reported by focus changes when no browser window holds focus.
const WindowNone WindowID = ""

// WindowType distinguishes regular browser windows from popups and app windows
type WindowType string

const (
	WindowNormal WindowType = "normal"
	WindowPopup  WindowType = "popup"
)

// TabStatus is the load status of a tab
type TabStatus string

const (
	StatusLoading  TabStatus = "loading"
	StatusComplete TabStatus = "complete"
)

// BlankURL is the placeholder a tab shows before its first navigation commits.
const BlankURL = "about:blank"

// Tab is a point-in-time view of a browser tab
type Tab struct {
	ID          TabID     `json:"id"`
	WindowID    WindowID  `json:"window_id"`
	URL         string    `json:"url"`
	Pinned      bool      `json:"pinned"`
	Active      bool      `json:"active"`
	OpenerTabID *TabID    `json:"opener_tab_id,omitempty"` // Weak reference, may point at a closed tab
	Incognito   bool      `json:"incognito"`
	Status      TabStatus `json:"status,omitempty"`
}

// HasOpener reports whether the tab was opened from another tab
func (t Tab) HasOpener() bool {
	return t.OpenerTabID != nil && *t.OpenerTabID != ""
}

// Window is a point-in-time view of a browser window and its tabs.
// Snapshots are never patched; callers re-query the live set instead.
type Window struct {
	ID           WindowID   `json:"id"`
	Type         WindowType `json:"type"`
	Width        int64      `json:"width"`
	Height       int64      `json:"height"`
	Incognito    bool       `json:"incognito"`
	Tabs         []Tab      `json:"tabs"`
	MarkedAsMain bool       `json:"marked_as_main"`
}

// Area returns width times height
func (w Window) Area() int64 {
	return w.Width * w.Height
}

// UnpinnedTabs returns a filtered copy of the tab list without pinned tabs
func (w Window) UnpinnedTabs() []Tab {
	tabs := make([]Tab, 0, len(w.Tabs))
	for _, tab := range w.Tabs {
		if !tab.Pinned {
			tabs = append(tabs, tab)
		}
	}
	return tabs
}

// HasTab reports whether the window currently holds the tab
func (w Window) HasTab(id TabID) bool {
	for _, tab := range w.Tabs {
		if tab.ID == id {
			return true
		}
	}
	return false
}

// FindWindow returns the window with the given id from a listing
func FindWindow(windows []Window, id WindowID) (Window, bool) {
	for _, w := range windows {
		if w.ID == id {
			return w, true
		}
	}
	return Window{}, false
}

// IsPlaceholderURL reports whether a URL is the blank page shown before navigation
func IsPlaceholderURL(url string) bool {
	return url == "" || url == BlankURL
}
