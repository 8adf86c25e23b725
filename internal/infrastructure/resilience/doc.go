/*
Package resilience provides a circuit breaker for best-effort lookups.

# Overview

Lookups such as reading the bookmarks file are allowed to fail; the caller
then proceeds as if the answer were negative. The breaker keeps a broken
dependency from being hit on every decision: after repeated failures it
opens and rejects calls for a cooldown, then lets a probe through.

# Usage

	breaker := resilience.New("bookmarks", resilience.Settings{
		Cooldown: 30 * time.Second,
		Trip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	set, err := resilience.Do(breaker, func() (map[string]struct{}, error) {
		return load(path)
	})

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
