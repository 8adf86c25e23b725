package pattern

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
)

// Source is the slice of the option store a Cache needs
type Source interface {
	GetString(key string) string
	Subscribe(key string, fn func(options.Change)) func()
}

// FailureRecorder counts patterns that failed to compile
type FailureRecorder interface {
	IncPatternFailures(key string)
}

// Cache keeps the compiled matcher for one option key and recompiles it
// whenever that key changes.
type Cache struct {
	key         string
	current     atomic.Pointer[Matcher]
	unsubscribe func()
	logger      *logging.Logger
	failures    FailureRecorder
}

// NewCache compiles the current value of key and subscribes to its changes
func NewCache(src Source, key string, logger *logging.Logger, failures FailureRecorder) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Cache{key: key, logger: logger, failures: failures}
	c.recompile(src.GetString(key))
	c.unsubscribe = src.Subscribe(key, func(options.Change) {
		c.recompile(src.GetString(key))
	})
	return c
}

// Matcher returns the compiled pattern, nil when none is configured or it is invalid
func (c *Cache) Matcher() *Matcher {
	return c.current.Load()
}

// Key returns the option key the cache follows
func (c *Cache) Key() string {
	return c.key
}

// Close stops following the option key
func (c *Cache) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Cache) recompile(source string) {
	m := Compile(source)
	if m == nil && source != "" {
		if _, err := TryCompile(source); err != nil {
			c.logger.Warn("Ignoring invalid pattern",
				zap.String("key", c.key),
				zap.String("pattern", source),
				zap.Error(err),
			)
			if c.failures != nil {
				c.failures.IncPatternFailures(c.key)
			}
		}
	}
	c.current.Store(m)
}

// Set bundles the four URL pattern caches used by the policy
type Set struct {
	OpenerAllow *Cache
	OpenerDeny  *Cache
	TabAllow    *Cache
	TabDeny     *Cache
}

// NewSet builds the caches for every pattern option
func NewSet(src Source, logger *logging.Logger, failures FailureRecorder) *Set {
	return &Set{
		OpenerAllow: NewCache(src, options.KeyAggregateTabsFromMatchedPattern, logger, failures),
		OpenerDeny:  NewCache(src, options.KeyDoNotAggregateTabsFromMatchedPat, logger, failures),
		TabAllow:    NewCache(src, options.KeyAggregateTabsMatchedPattern, logger, failures),
		TabDeny:     NewCache(src, options.KeyDoNotAggregateTabsMatchedPattern, logger, failures),
	}
}

// Close unsubscribes every cache
func (s *Set) Close() {
	for _, c := range []*Cache{s.OpenerAllow, s.OpenerDeny, s.TabAllow, s.TabDeny} {
		c.Close()
	}
}
