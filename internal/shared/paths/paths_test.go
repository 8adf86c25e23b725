package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXDGDirectories(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))

	opts, err := OptionsFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "config", AppName, OptionsFileName), opts)

	store, err := StoreFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", AppName, StoreFileName), store)
	assert.DirExists(t, filepath.Dir(store))
}

func TestProfileCandidates(t *testing.T) {
	noEnv := func(string) string { return "" }

	linux := ProfileCandidates("linux", "/home/me", noEnv)
	assert.Equal(t, "/home/me/.config/google-chrome/Default", linux[0])
	assert.Equal(t, "/home/me/.config/chromium/Default", linux[1])

	xdg := ProfileCandidates("linux", "/home/me", func(k string) string {
		if k == "XDG_CONFIG_HOME" {
			return "/cfg"
		}
		return ""
	})
	assert.Equal(t, "/cfg/google-chrome/Default", xdg[0])

	mac := ProfileCandidates("darwin", "/Users/me", noEnv)
	assert.Equal(t, filepath.Join("/Users/me", "Library", "Application Support", "Google", "Chrome", "Default"), mac[0])

	win := ProfileCandidates("windows", "/Users/me", func(k string) string {
		if k == "LOCALAPPDATA" {
			return "/local"
		}
		return ""
	})
	assert.Equal(t, filepath.Join("/local", "Google", "Chrome", "User Data", "Default"), win[0])
}

func TestFirstDir(t *testing.T) {
	root := t.TempDir()
	chromium := filepath.Join(root, "chromium", "Default")
	require.NoError(t, os.MkdirAll(chromium, 0o755))
	file := filepath.Join(root, "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	dir, ok := firstDir([]string{filepath.Join(root, "missing"), file, chromium})
	assert.True(t, ok)
	assert.Equal(t, chromium, dir)

	_, ok = firstDir([]string{filepath.Join(root, "missing")})
	assert.False(t, ok)
}
