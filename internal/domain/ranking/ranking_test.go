package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

func window(id string, width, height int64, tabs int) types.Window {
	w := types.Window{ID: types.WindowID(id), Type: types.WindowNormal, Width: width, Height: height}
	for i := 0; i < tabs; i++ {
		w.Tabs = append(w.Tabs, types.Tab{ID: types.TabID(fmt.Sprintf("%s-%d", id, i)), WindowID: w.ID})
	}
	return w
}

func focusTimes(ms map[string]int64) func(types.WindowID) time.Time {
	return func(id types.WindowID) time.Time {
		v, ok := ms[string(id)]
		if !ok {
			return time.Time{}
		}
		return time.UnixMilli(v)
	}
}

func defaultOpts(lastFocused map[string]int64) Options {
	return Options{
		Comparers:   []string{"wider", "taller", "muchTabs", "recent"},
		Tolerance:   map[string]int64{},
		LastFocused: focusTimes(lastFocused),
	}
}

func TestSelectEmpty(t *testing.T) {
	_, err := Select(nil, defaultOpts(nil))
	assert.ErrorIs(t, err, ErrNoWindows)
}

func TestSelectSingle(t *testing.T) {
	only := window("a", 10, 10, 1)
	got, err := Select([]types.Window{only}, defaultOpts(nil))
	require.NoError(t, err)
	assert.Equal(t, only.ID, got.ID)
}

func TestMarkedWindowAlwaysWins(t *testing.T) {
	small := window("small", 300, 200, 1)
	small.MarkedAsMain = true
	big := window("big", 2560, 1440, 40)

	for _, windows := range [][]types.Window{{small, big}, {big, small}} {
		got, err := Select(windows, defaultOpts(map[string]int64{"big": 1000}))
		require.NoError(t, err)
		assert.Equal(t, types.WindowID("small"), got.ID)
	}
}

func TestWiderWinsOutright(t *testing.T) {
	a := window("A", 800, 600, 3)
	b := window("B", 1024, 768, 1)

	got, err := Select([]types.Window{a, b}, defaultOpts(map[string]int64{"A": 100, "B": 50}))
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("B"), got.ID)
}

func TestToleranceFallsThroughToNextComparer(t *testing.T) {
	// width differs by 3, within the wider tolerance of 5, so taller decides
	a := window("A", 800, 600, 3)
	b := window("B", 803, 300, 1)
	opts := defaultOpts(map[string]int64{"A": 100, "B": 50})
	opts.Tolerance["wider"] = 5

	got, err := Select([]types.Window{b, a}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("A"), got.ID)

	// without tolerance width decides
	opts.Tolerance["wider"] = 0
	got, err = Select([]types.Window{a, b}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("B"), got.ID)
}

func TestToleranceTieReachesTabCountAndRecency(t *testing.T) {
	a := window("A", 800, 768, 3)
	b := window("B", 803, 768, 1)
	opts := defaultOpts(map[string]int64{"A": 100, "B": 50})
	opts.Tolerance["wider"] = 5

	got, err := Select([]types.Window{b, a}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("A"), got.ID, "muchTabs decides once width and height tie")

	opts.Tolerance["muchTabs"] = 2
	got, err = Select([]types.Window{a, b}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("A"), got.ID, "recent decides when tab counts tie too")
}

func TestComparerOrderMatters(t *testing.T) {
	big := window("big", 1920, 1080, 5)
	recent := window("recent", 800, 600, 2)
	focus := map[string]int64{"big": 10, "recent": 500}

	sizeFirst := defaultOpts(focus)
	got, err := Select([]types.Window{recent, big}, sizeFirst)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("big"), got.ID)

	recentFirst := defaultOpts(focus)
	recentFirst.Comparers = []string{"recent", "wider", "taller", "muchTabs"}
	got, err = Select([]types.Window{big, recent}, recentFirst)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("recent"), got.ID)

	// recency tied: moving it first changes nothing
	tied := map[string]int64{"big": 500, "recent": 500}
	recentFirst.LastFocused = focusTimes(tied)
	got, err = Select([]types.Window{recent, big}, recentFirst)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("big"), got.ID)
}

func TestNeverFocusedRanksLowest(t *testing.T) {
	a := window("A", 800, 600, 1)
	b := window("B", 800, 600, 1)
	opts := Options{Comparers: []string{"recent"}, LastFocused: focusTimes(map[string]int64{"B": 1})}

	got, err := Select([]types.Window{a, b}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("B"), got.ID)
}

func TestLargerUsesArea(t *testing.T) {
	wide := window("wide", 1600, 300, 1)
	square := window("square", 900, 900, 1)
	opts := Options{Comparers: []string{"larger"}}

	got, err := Select([]types.Window{wide, square}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("square"), got.ID)
}

func TestIgnorePinnedIsAView(t *testing.T) {
	a := window("A", 800, 600, 3)
	for i := range a.Tabs {
		a.Tabs[i].Pinned = true
	}
	b := window("B", 800, 600, 1)
	opts := Options{Comparers: []string{"muchTabs"}}

	got, err := Select([]types.Window{b, a}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("A"), got.ID)

	opts.IgnorePinned = true
	got, err = Select([]types.Window{a, b}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("B"), got.ID)
	assert.Len(t, a.Tabs, 3, "the snapshot keeps its pinned tabs")
	assert.True(t, a.Tabs[0].Pinned)
}

func TestFullTieKeepsInputOrderDeterministically(t *testing.T) {
	windows := []types.Window{window("x", 800, 600, 2), window("y", 800, 600, 2), window("z", 800, 600, 2)}
	opts := defaultOpts(nil)

	for i := 0; i < 20; i++ {
		got, err := Select(windows, opts)
		require.NoError(t, err)
		assert.Equal(t, types.WindowID("x"), got.ID)
	}
	reordered := []types.Window{windows[2], windows[0], windows[1]}
	got, err := Select(reordered, opts)
	require.NoError(t, err)
	assert.Equal(t, types.WindowID("z"), got.ID)
}

func TestUnknownComparerSkipped(t *testing.T) {
	a := window("A", 800, 600, 1)
	b := window("B", 1000, 600, 1)
	opts := Options{Comparers: []string{"shinier", "wider"}}

	assert.False(t, Known("shinier"))
	assert.Greater(t, Compare(a, b, opts), int64(0))
	assert.Less(t, Compare(b, a, opts), int64(0))
}
