// Package cdp connects the aggregation engine to a running Chromium through
// the DevTools protocol.
//
// Windows are discovered per target with Browser.getWindowForTarget and tab
// lifecycle comes from Target.setDiscoverTargets. The protocol cannot move
// a tab between windows, so a move reopens the page in the destination and
// closes the original; callers keep using the original id.
package cdp
