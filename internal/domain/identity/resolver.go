package identity

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/storage"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/id"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// StorageKey is the tab-scoped key holding the persistent identity record
const StorageKey = "persistent-id"

// record is what gets stored per volatile tab id. TabID is the volatile id
// that wrote the record; a reader with a different id inherited it.
type record struct {
	ID    id.DurableTabID `json:"id"`
	TabID types.TabID     `json:"tabId"`
}

// Result describes the identity of a tab at resolution time
type Result struct {
	DurableID     id.DurableTabID
	OriginalTabID types.TabID // volatile id the record was inherited from, empty if none
	Duplicated    bool
	Restored      bool
}

// LiveFunc reports whether a volatile tab id currently exists
type LiveFunc func(types.TabID) bool

// Resolver mints and resolves persistent identities
type Resolver struct {
	store storage.Store
	gen   *id.Generator
}

// NewResolver creates a resolver over a tab-scoped store
func NewResolver(store storage.Store, gen *id.Generator) *Resolver {
	if gen == nil {
		gen = id.Default()
	}
	return &Resolver{store: store, gen: gen}
}

// Resolve returns the identity of tab, minting or re-pointing the record as needed.
//
//   - no record: a new logical tab, a durable id is minted
//   - record written by this tab id: same logical tab, nothing changes
//   - record inherited while its writer is still live: a duplicate, which is a
//     new logical tab and gets its own durable id
//   - record inherited from a tab id that no longer exists: a restored tab,
//     the durable id is kept and only the volatile mapping moves
//
// Repeated calls for the same tab are idempotent.
func (r *Resolver) Resolve(ctx context.Context, tab types.TabID, live LiveFunc) (Result, error) {
	existing, found, err := r.load(ctx, tab)
	if err != nil {
		return Result{}, err
	}

	switch {
	case !found:
		rec := record{ID: r.gen.NewDurableTabID(), TabID: tab}
		if err := r.save(ctx, tab, rec); err != nil {
			return Result{}, err
		}
		return Result{DurableID: rec.ID}, nil

	case existing.TabID == tab:
		return Result{DurableID: existing.ID}, nil

	case live != nil && live(existing.TabID):
		rec := record{ID: r.gen.NewDurableTabID(), TabID: tab}
		if err := r.save(ctx, tab, rec); err != nil {
			return Result{}, err
		}
		return Result{DurableID: rec.ID, OriginalTabID: existing.TabID, Duplicated: true}, nil

	default:
		rec := record{ID: existing.ID, TabID: tab}
		if err := r.save(ctx, tab, rec); err != nil {
			return Result{}, err
		}
		return Result{DurableID: rec.ID, OriginalTabID: existing.TabID, Restored: true}, nil
	}
}

// Inherit gives tab the record of from, the way a browser carries session
// values over to a duplicated tab. A from without a record gets one first.
// Nothing happens when tab already has a record.
func (r *Resolver) Inherit(ctx context.Context, from, tab types.TabID) (bool, error) {
	if from == tab {
		return false, nil
	}
	if _, found, err := r.load(ctx, tab); err != nil || found {
		return false, err
	}

	rec, found, err := r.load(ctx, from)
	if err != nil {
		return false, err
	}
	if !found {
		rec = record{ID: r.gen.NewDurableTabID(), TabID: from}
		if err := r.save(ctx, from, rec); err != nil {
			return false, err
		}
	}
	if err := r.save(ctx, tab, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Lookup returns the stored durable id without creating one
func (r *Resolver) Lookup(ctx context.Context, tab types.TabID) (id.DurableTabID, bool, error) {
	rec, found, err := r.load(ctx, tab)
	if err != nil || !found {
		return "", false, err
	}
	return rec.ID, true, nil
}

// Forget drops the record of a closed tab
func (r *Resolver) Forget(ctx context.Context, tab types.TabID) error {
	return r.store.Delete(ctx, storage.ScopeTab, string(tab), StorageKey)
}

func (r *Resolver) load(ctx context.Context, tab types.TabID) (record, bool, error) {
	raw, found, err := r.store.Get(ctx, storage.ScopeTab, string(tab), StorageKey)
	if err != nil {
		return record{}, false, fmt.Errorf("failed to read identity of tab %s: %w", tab, err)
	}
	if !found {
		return record{}, false, nil
	}
	var rec record
	if err := sonic.Unmarshal(raw, &rec); err != nil || !rec.ID.Valid() {
		// unreadable records are replaced
		return record{}, false, nil
	}
	return rec, true, nil
}

func (r *Resolver) save(ctx context.Context, tab types.TabID, rec record) error {
	raw, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	if err := r.store.Set(ctx, storage.ScopeTab, string(tab), StorageKey, raw); err != nil {
		return fmt.Errorf("failed to write identity of tab %s: %w", tab, err)
	}
	return nil
}
