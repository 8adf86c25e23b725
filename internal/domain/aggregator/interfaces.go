package aggregator

import (
	"context"
	"time"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// Browser queries the live window and tab set
type Browser interface {
	ListWindows(ctx context.Context) ([]types.Window, error)
	GetTab(ctx context.Context, id types.TabID) (types.Tab, error)
}

// TabController mutates tabs
type TabController interface {
	MoveTab(ctx context.Context, tab types.TabID, window types.WindowID, index int) error
	ActivateTab(ctx context.Context, tab types.TabID) error
	OpenTab(ctx context.Context, window types.WindowID, index int, url string) (types.TabID, error)
}

// Navigator is an optional TabController capability used after a
// navigation was reopened elsewhere
type Navigator interface {
	GoBack(ctx context.Context, tab types.TabID) error
}

// IdentityStore carries persistent identities over to duplicated tabs and
// drops them when tabs close
type IdentityStore interface {
	Inherit(ctx context.Context, from, tab types.TabID) (bool, error)
	Forget(ctx context.Context, tab types.TabID) error
}

// OptionsSource hands out option snapshots
type OptionsSource interface {
	Snapshot() options.Options
}

// Clock schedules settle timers
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
