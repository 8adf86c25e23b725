package types

import "errors"

// Transient misses: the referenced object disappeared before it could be queried.
var (
	ErrTabNotFound    = errors.New("tab not found")
	ErrWindowNotFound = errors.New("window not found")
)

// IsTransientMiss reports whether err means the tab or window vanished mid-decision
func IsTransientMiss(err error) bool {
	return errors.Is(err, ErrTabNotFound) || errors.Is(err, ErrWindowNotFound)
}
