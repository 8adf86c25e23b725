package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
)

func TestCompileBlankIsNil(t *testing.T) {
	assert.Nil(t, Compile(""))
	assert.Nil(t, Compile("   \t"))
}

func TestCompileInvalidIsNil(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Nil(t, Compile("(unclosed"))
		assert.Nil(t, Compile("[a-"))
	})
}

func TestNilMatcherNeverMatches(t *testing.T) {
	var m *Matcher
	assert.False(t, m.MatchString("https://example.com"))
	assert.Equal(t, "", m.Source())
}

func TestMatchIsCaseInsensitiveSubstring(t *testing.T) {
	m := Compile("example\\.COM/news")
	require.NotNil(t, m)

	assert.True(t, m.MatchString("https://www.Example.com/news/today"))
	assert.False(t, m.MatchString("https://example.org/news"))
}

func TestECMAScriptSyntax(t *testing.T) {
	// lookahead is not available in RE2 but is valid in browser patterns
	m := Compile(`^https://(?!mail\.)[^/]+\.example\.com`)
	require.NotNil(t, m)

	assert.True(t, m.MatchString("https://docs.example.com/"))
	assert.False(t, m.MatchString("https://mail.example.com/"))
}

type countingRecorder struct{ keys []string }

func (r *countingRecorder) IncPatternFailures(key string) { r.keys = append(r.keys, key) }

func TestCacheRecompilesOnChange(t *testing.T) {
	store := options.NewMemoryStore()
	rec := &countingRecorder{}
	cache := NewCache(store, options.KeyAggregateTabsMatchedPattern, nil, rec)
	defer cache.Close()

	require.NotNil(t, cache.Matcher())
	assert.True(t, cache.Matcher().MatchString("about:newtab"))

	require.NoError(t, store.Set(options.KeyAggregateTabsMatchedPattern, "^https://news\\."))
	assert.False(t, cache.Matcher().MatchString("about:newtab"))
	assert.True(t, cache.Matcher().MatchString("https://news.example.com"))

	require.NoError(t, store.Set(options.KeyAggregateTabsMatchedPattern, "(broken"))
	assert.Nil(t, cache.Matcher())
	assert.Equal(t, []string{options.KeyAggregateTabsMatchedPattern}, rec.keys)

	require.NoError(t, store.Set(options.KeyAggregateTabsMatchedPattern, ""))
	assert.Nil(t, cache.Matcher())
	assert.Len(t, rec.keys, 1, "blank patterns are not failures")
}

func TestCacheCloseStopsFollowing(t *testing.T) {
	store := options.NewMemoryStore()
	cache := NewCache(store, options.KeyAggregateTabsMatchedPattern, nil, nil)
	cache.Close()

	require.NoError(t, store.Set(options.KeyAggregateTabsMatchedPattern, "^https://"))
	assert.Equal(t, "^(about:newtab)", cache.Matcher().Source())
}

func TestCacheConvertsNonStringValues(t *testing.T) {
	store := options.NewMemoryStore()
	cache := NewCache(store, options.KeyAggregateTabsMatchedPattern, nil, nil)
	defer cache.Close()

	// a bare number in the options file arrives as an int
	require.NoError(t, store.Set(options.KeyAggregateTabsMatchedPattern, 2024))
	require.NotNil(t, cache.Matcher())
	assert.True(t, cache.Matcher().MatchString("https://archive.test/2024/"))
	assert.False(t, cache.Matcher().MatchString("https://archive.test/2023/"))
}
