package options

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
)

// Change describes a single key whose value differs after a reload or Set
type Change struct {
	Key string
	Old interface{}
	New interface{}
}

// Store holds the observable option set. Reads return immutable snapshots;
// subscribers are notified per key after each change.
type Store struct {
	mu      sync.RWMutex
	v       *viper.Viper
	current Options
	values  map[string]interface{} // key -> last seen raw value

	subsMu sync.Mutex
	subs   map[string]map[int]func(Change)
	nextID int

	logger *logging.Logger
}

// NewStore creates a store seeded with defaults. If path is non-empty the
// file is read (yaml, json or toml by extension); a missing file is not an error.
func NewStore(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	v := viper.New()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read options file: %w", err)
			}
			logger.Info("Options file not found, using defaults", zap.String("path", path))
		}
	}

	s := &Store{
		v:      v,
		subs:   make(map[string]map[int]func(Change)),
		logger: logger.Named("options"),
	}
	current, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.current = current
	s.values = s.rawValues()

	return s, nil
}

// NewMemoryStore creates a store with defaults and no backing file
func NewMemoryStore() *Store {
	s, err := NewStore("", nil)
	if err != nil {
		// defaults always decode
		panic(err)
	}
	return s
}

// Snapshot returns a copy of the current options
func (s *Store) Snapshot() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Get returns the raw value of a key
func (s *Store) Get(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.Get(key)
}

// GetString returns the value of a key as a string
func (s *Store) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetString(key)
}

// Set overrides a key and notifies its subscribers if the value changed
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	previous := s.v.Get(key)
	s.v.Set(key, value)
	if _, err := s.decode(); err != nil {
		s.v.Set(key, previous)
		s.mu.Unlock()
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	s.mu.Unlock()

	s.reload()
	return nil
}

// Subscribe registers fn for changes of key. The returned func unsubscribes.
func (s *Store) Subscribe(key string, fn func(Change)) func() {
	key = normalize(key)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextID
	s.nextID++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(Change))
	}
	s.subs[key][id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs[key], id)
	}
}

// Watch reloads the options file whenever it changes on disk
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Info("Options file changed", zap.String("path", e.Name), zap.String("op", e.Op.String()))
		s.mu.Lock()
		err := s.v.ReadInConfig()
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("Failed to re-read options file", zap.Error(err))
			return
		}
		s.reload()
	})
	s.v.WatchConfig()
}

// reload decodes the merged configuration, swaps the snapshot and fires
// subscribers for every key whose value changed
func (s *Store) reload() {
	s.mu.Lock()
	next, err := s.decode()
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("Keeping previous options, new values do not decode", zap.Error(err))
		return
	}
	raw := s.rawValues()
	var changes []Change
	for key, value := range raw {
		if old, ok := s.values[key]; !ok || !reflect.DeepEqual(old, value) {
			changes = append(changes, Change{Key: key, Old: old, New: value})
		}
	}
	s.current = next
	s.values = raw
	s.mu.Unlock()

	for _, change := range changes {
		s.notify(change)
	}
}

func (s *Store) notify(change Change) {
	s.subsMu.Lock()
	subscribers := make([]func(Change), 0, len(s.subs[normalize(change.Key)]))
	for _, fn := range s.subs[normalize(change.Key)] {
		subscribers = append(subscribers, fn)
	}
	s.subsMu.Unlock()

	s.logger.Debug("Option changed", zap.String("key", change.Key), zap.Any("value", change.New))
	for _, fn := range subscribers {
		fn(change)
	}
}

// decode must be called with mu held
func (s *Store) decode() (Options, error) {
	var o Options
	if err := s.v.Unmarshal(&o); err != nil {
		return Options{}, fmt.Errorf("failed to decode options: %w", err)
	}
	return o, nil
}

// rawValues must be called with mu held
func (s *Store) rawValues() map[string]interface{} {
	keys := Keys()
	values := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		values[key] = s.v.Get(key)
	}
	return values
}

// viper keys are case-insensitive
func normalize(key string) string {
	return strings.ToLower(key)
}
