package pattern

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout bounds a single match so a pathological user pattern cannot stall a decision
const matchTimeout = 50 * time.Millisecond

// Matcher is a compiled, case-insensitive URL pattern
type Matcher struct {
	source string
	re     *regexp2.Regexp
}

// Compile compiles a user-supplied pattern.
// Blank sources and invalid syntax yield nil; a nil Matcher never matches.
func Compile(source string) *Matcher {
	if strings.TrimSpace(source) == "" {
		return nil
	}
	m, err := TryCompile(source)
	if err != nil {
		return nil
	}
	return m
}

// TryCompile is Compile that also reports why a non-blank source was rejected
func TryCompile(source string) (*Matcher, error) {
	re, err := regexp2.Compile(source, regexp2.ECMAScript|regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return &Matcher{source: source, re: re}, nil
}

// MatchString reports whether the pattern matches anywhere in url.
// Match timeouts count as no match.
func (m *Matcher) MatchString(url string) bool {
	if m == nil {
		return false
	}
	ok, err := m.re.MatchString(url)
	return err == nil && ok
}

// Source returns the original pattern text
func (m *Matcher) Source() string {
	if m == nil {
		return ""
	}
	return m.source
}
