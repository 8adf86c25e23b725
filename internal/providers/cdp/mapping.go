package cdp

import (
	"sort"
	"strconv"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"

	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

const targetTypePage = "page"

// placement is where a target lives
type placement struct {
	window types.WindowID
	width  int64
	height int64
}

func placementOf(id browser.WindowID, bounds *browser.Bounds) placement {
	p := placement{window: windowID(id)}
	if bounds != nil {
		p.width = bounds.Width
		p.height = bounds.Height
	}
	return p
}

func windowID(id browser.WindowID) types.WindowID {
	return types.WindowID(strconv.FormatInt(int64(id), 10))
}

func isPage(info *target.Info) bool {
	return info != nil && info.Type == targetTypePage
}

// toTab maps a page target. CDP reports neither pin state nor load status,
// so a tab counts as complete once it shows a real URL.
func toTab(info *target.Info, window types.WindowID, defaultContext cdp.BrowserContextID) types.Tab {
	tab := types.Tab{
		ID:        types.TabID(info.TargetID),
		WindowID:  window,
		URL:       info.URL,
		Incognito: defaultContext != "" && info.BrowserContextID != "" && info.BrowserContextID != defaultContext,
		Status:    types.StatusLoading,
	}
	if !types.IsPlaceholderURL(info.URL) {
		tab.Status = types.StatusComplete
	}
	if info.OpenerID != "" {
		tab.OpenerTabID = types.TabIDPtr(types.TabID(info.OpenerID))
	}
	return tab
}

// buildWindows groups page targets by browser window. Targets without a
// placement are skipped. Windows are ordered by numeric id.
func buildWindows(infos []*target.Info, placements map[target.ID]placement, defaultContext cdp.BrowserContextID) []types.Window {
	byID := make(map[types.WindowID]*types.Window)
	var order []types.WindowID

	for _, info := range infos {
		if !isPage(info) {
			continue
		}
		p, ok := placements[info.TargetID]
		if !ok {
			continue
		}
		w, ok := byID[p.window]
		if !ok {
			// DevTools reports bounds but no window type
			w = &types.Window{ID: p.window, Type: types.WindowNormal, Width: p.width, Height: p.height}
			byID[p.window] = w
			order = append(order, p.window)
		}
		tab := toTab(info, p.window, defaultContext)
		if len(w.Tabs) == 0 {
			w.Incognito = tab.Incognito
		}
		w.Tabs = append(w.Tabs, tab)
	}

	sort.SliceStable(order, func(i, j int) bool { return numericLess(order[i], order[j]) })
	out := make([]types.Window, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func numericLess(a, b types.WindowID) bool {
	x, errA := strconv.ParseInt(string(a), 10, 64)
	y, errB := strconv.ParseInt(string(b), 10, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return x < y
}
