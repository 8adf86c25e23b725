// Package id generates the durable identifiers minted by the engine.
//
// Durable tab ids are prefixed ULIDs ("tab_01H..."): k-sortable, so the mint
// time of a logical tab can be read back from its id, and prefixed so they are
// never confused with browser-assigned tab ids in logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DurableTabID identifies a logical tab across browser restarts
type DurableTabID string

// DurableTabPrefix is prepended to every durable tab id
const DurableTabPrefix = "tab"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
	now       func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader, now: time.Now}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewDurableTabID mints a durable tab id
func (g *Generator) NewDurableTabID() DurableTabID {
	return DurableTabID(g.GenerateWithPrefix(DurableTabPrefix))
}

// String returns the id text
func (id DurableTabID) String() string { return string(id) }

// Valid reports whether the id has the durable tab format
func (id DurableTabID) Valid() bool {
	prefix, raw, ok := strings.Cut(string(id), "_")
	if !ok || prefix != DurableTabPrefix {
		return false
	}
	_, err := ulid.Parse(raw)
	return err == nil
}

// MintedAt extracts the time the id was generated
func (id DurableTabID) MintedAt() (time.Time, error) {
	_, raw, ok := strings.Cut(string(id), "_")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed durable id %q", id)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
