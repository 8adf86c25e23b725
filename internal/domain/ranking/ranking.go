package ranking

import (
	"errors"
	"sort"
	"time"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// ErrNoWindows is returned when there is nothing to rank
var ErrNoWindows = errors.New("no windows to rank")

// comparer returns a signed difference; negative means a ranks above b
type comparer func(a, b candidate) int64

// Options configures a ranking pass
type Options struct {
	// Comparers are applied in order; unknown names are skipped
	Comparers []string
	// Tolerance is the largest absolute difference per comparer still treated as a tie
	Tolerance map[string]int64
	// IgnorePinned excludes pinned tabs from the tab count
	IgnorePinned bool
	// LastFocused returns when a window last had focus; zero time for never
	LastFocused func(types.WindowID) time.Time
}

// FromOptions builds ranking options from an option snapshot
func FromOptions(o options.Options, lastFocused func(types.WindowID) time.Time) Options {
	return Options{
		Comparers:    o.ActiveComparers,
		Tolerance:    o.FudgeFactors,
		IgnorePinned: o.IgnorePinnedTabs,
		LastFocused:  lastFocused,
	}
}

type candidate struct {
	window    types.Window
	tabCount  int64
	focusedAt int64 // ms since epoch, 0 when never focused
}

var comparers = map[string]comparer{
	options.ComparerWider: func(a, b candidate) int64 {
		return b.window.Width - a.window.Width
	},
	options.ComparerTaller: func(a, b candidate) int64 {
		return b.window.Height - a.window.Height
	},
	options.ComparerLarger: func(a, b candidate) int64 {
		return b.window.Area() - a.window.Area()
	},
	options.ComparerMuchTabs: func(a, b candidate) int64 {
		return b.tabCount - a.tabCount
	},
	options.ComparerRecent: func(a, b candidate) int64 {
		return b.focusedAt - a.focusedAt
	},
}

// Known reports whether name is a comparer this package implements
func Known(name string) bool {
	_, ok := comparers[name]
	return ok
}

// Select returns the main window: the window marked by the user if any,
// otherwise the first window after a stable tolerance-aware sort.
func Select(windows []types.Window, opts Options) (types.Window, error) {
	if len(windows) == 0 {
		return types.Window{}, ErrNoWindows
	}
	for _, w := range windows {
		if w.MarkedAsMain {
			return w, nil
		}
	}
	if len(windows) == 1 {
		return windows[0], nil
	}

	candidates := make([]candidate, len(windows))
	for i, w := range windows {
		candidates[i] = newCandidate(w, opts)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return compare(candidates[i], candidates[j], opts) < 0
	})
	return candidates[0].window, nil
}

// Compare applies the configured comparers to two windows.
// The result is the first difference that exceeds its tolerance, or 0.
func Compare(a, b types.Window, opts Options) int64 {
	return compare(newCandidate(a, opts), newCandidate(b, opts), opts)
}

func compare(a, b candidate, opts Options) int64 {
	for _, name := range opts.Comparers {
		cmp, ok := comparers[name]
		if !ok {
			continue
		}
		diff := cmp(a, b)
		if abs(diff) <= opts.Tolerance[name] {
			continue
		}
		return diff
	}
	return 0
}

func newCandidate(w types.Window, opts Options) candidate {
	c := candidate{window: w, tabCount: int64(len(w.Tabs))}
	if opts.IgnorePinned {
		c.tabCount = int64(len(w.UnpinnedTabs()))
	}
	if opts.LastFocused != nil {
		if at := opts.LastFocused(w.ID); !at.IsZero() {
			c.focusedAt = at.UnixMilli()
		}
	}
	return c
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
