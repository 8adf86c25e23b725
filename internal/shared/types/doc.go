// Package types provides the shared data model of the aggregation engine.
//
// Core Types:
//   - Window: snapshot of a browser window with its ordered tabs
//   - Tab: snapshot of a single tab (url, pinned, opener, status)
//   - Event: lifecycle notification (tab created/updated/removed, window created/removed/focused)
//
// Snapshots are values. They are never patched incrementally; components
// re-query the browser when they need fresh state.
//
// Errors:
//   - ErrTabNotFound, ErrWindowNotFound: transient misses, recovered by abandoning the decision
//
// Example Usage:
//
//	ev := types.TabCreated(types.Tab{ID: "12", WindowID: "3", URL: types.BlankURL})
package types
