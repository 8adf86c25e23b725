// Package policy decides whether a settled tab should be aggregated.
//
// The decision is an ordered list of rules folded over a tri-state verdict.
// Each rule either leaves the verdict alone or overwrites it, so the last
// rule that applies wins. Bookmarks set the configured value while URL
// patterns force a result.
package policy
