// Package aggregator runs the tab aggregation engine.
//
// A Manager consumes browser lifecycle events and its own settle timer
// ticks on a single goroutine. New tabs are tracked until they settle, then
// the policy decides whether they belong in the main window and the redirect
// resolver picks that window. Navigations inside narrow windows can be
// reopened in the main window as well.
//
// Queries from other goroutines (Stats, MainWindow) are executed on the
// Run goroutine through a call channel.
package aggregator
