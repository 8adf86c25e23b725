package redirect

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/ranking"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/storage"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// MainWindowKey is the window-scoped key holding the manual main mark
const MainWindowKey = "main-window"

// ErrMarksUnavailable is returned when marking without a backing store
var ErrMarksUnavailable = errors.New("main window marks are not stored")

// WindowLister lists the open windows with their tabs
type WindowLister interface {
	ListWindows(ctx context.Context) ([]types.Window, error)
}

// InstanceReporter is an optional WindowLister capability naming the
// current browser run. Window ids are only unique within one run.
type InstanceReporter interface {
	Instance() string
}

// mark is the stored main-window mark
type mark struct {
	Main     bool   `json:"main"`
	Instance string `json:"instance,omitempty"`
}

// Options controls a single resolution
type Options struct {
	// ExcludeLastTab refuses to take the only tab of a window
	ExcludeLastTab bool
	Ranking        ranking.Options
}

// Resolver picks the window a tab should be moved to
type Resolver struct {
	windows WindowLister
	marks   storage.Store
}

// NewResolver creates a resolver. marks may be nil, in which case no window is ever marked.
func NewResolver(windows WindowLister, marks storage.Store) *Resolver {
	return &Resolver{windows: windows, marks: marks}
}

// Resolve returns the main window when tab should move there, nil when
// nothing should happen
func (r *Resolver) Resolve(ctx context.Context, tab types.Tab, opts Options) (*types.Window, error) {
	candidates, err := r.Candidates(ctx, tab.Incognito)
	if err != nil {
		return nil, err
	}
	if len(candidates) < 2 {
		return nil, nil
	}

	source, ok := types.FindWindow(candidates, tab.WindowID)
	if !ok {
		return nil, nil
	}
	if opts.ExcludeLastTab && len(source.Tabs) <= 1 {
		return nil, nil
	}

	main, err := ranking.Select(candidates, opts.Ranking)
	if err != nil {
		return nil, err
	}
	if main.ID == tab.WindowID {
		return nil, nil
	}
	return &main, nil
}

// MainWindow returns the current main window among windows of the given privacy mode
func (r *Resolver) MainWindow(ctx context.Context, incognito bool, rank ranking.Options) (types.Window, error) {
	candidates, err := r.Candidates(ctx, incognito)
	if err != nil {
		return types.Window{}, err
	}
	return ranking.Select(candidates, rank)
}

// Candidates lists normal windows of one privacy mode with the main mark applied
func (r *Resolver) Candidates(ctx context.Context, incognito bool) ([]types.Window, error) {
	all, err := r.windows.ListWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	marked, err := r.Marked(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]types.Window, 0, len(all))
	for _, w := range all {
		if w.Type != types.WindowNormal || w.Incognito != incognito {
			continue
		}
		w.MarkedAsMain = w.ID == marked
		candidates = append(candidates, w)
	}
	return candidates, nil
}

// Marked returns the window marked as main, WindowNone if there is none
func (r *Resolver) Marked(ctx context.Context) (types.WindowID, error) {
	if r.marks == nil {
		return types.WindowNone, nil
	}
	entries, err := r.marks.List(ctx, storage.ScopeWindow, MainWindowKey)
	if err != nil {
		return types.WindowNone, fmt.Errorf("failed to read main window mark: %w", err)
	}
	current := r.instance()
	for id, raw := range entries {
		var m mark
		if sonic.Unmarshal(raw, &m) == nil && m.Main && m.Instance == current {
			return types.WindowID(id), nil
		}
	}
	return types.WindowNone, nil
}

// MarkMain marks a window as main and clears any previous mark
func (r *Resolver) MarkMain(ctx context.Context, id types.WindowID) error {
	if r.marks == nil {
		return ErrMarksUnavailable
	}
	entries, err := r.marks.List(ctx, storage.ScopeWindow, MainWindowKey)
	if err != nil {
		return fmt.Errorf("failed to read main window mark: %w", err)
	}
	for other := range entries {
		if types.WindowID(other) == id {
			continue
		}
		if err := r.marks.Delete(ctx, storage.ScopeWindow, other, MainWindowKey); err != nil {
			return fmt.Errorf("failed to clear main window mark: %w", err)
		}
	}
	raw, err := sonic.Marshal(mark{Main: true, Instance: r.instance()})
	if err != nil {
		return fmt.Errorf("failed to encode main window mark: %w", err)
	}
	if err := r.marks.Set(ctx, storage.ScopeWindow, string(id), MainWindowKey, raw); err != nil {
		return fmt.Errorf("failed to mark main window: %w", err)
	}
	return nil
}

// UnmarkMain clears the mark of a window
func (r *Resolver) UnmarkMain(ctx context.Context, id types.WindowID) error {
	if r.marks == nil {
		return nil
	}
	if err := r.marks.Delete(ctx, storage.ScopeWindow, string(id), MainWindowKey); err != nil {
		return fmt.Errorf("failed to clear main window mark: %w", err)
	}
	return nil
}

// PruneMarks drops marks on windows missing from live and marks written
// during another browser run, whose window id may now name a different
// window. It returns how many marks were dropped.
func (r *Resolver) PruneMarks(ctx context.Context, live []types.Window) (int, error) {
	if r.marks == nil {
		return 0, nil
	}
	entries, err := r.marks.List(ctx, storage.ScopeWindow, MainWindowKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read main window mark: %w", err)
	}

	current := r.instance()
	pruned := 0
	for id, raw := range entries {
		var m mark
		_, open := types.FindWindow(live, types.WindowID(id))
		if open && sonic.Unmarshal(raw, &m) == nil && m.Main && m.Instance == current {
			continue
		}
		if err := r.marks.Delete(ctx, storage.ScopeWindow, id, MainWindowKey); err != nil {
			return pruned, fmt.Errorf("failed to clear main window mark: %w", err)
		}
		pruned++
	}
	return pruned, nil
}

func (r *Resolver) instance() string {
	if ir, ok := r.windows.(InstanceReporter); ok {
		return ir.Instance()
	}
	return ""
}
