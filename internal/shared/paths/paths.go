package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories of the daemon
const AppName = "aggregate-tabs"

// File names inside the daemon directories
const (
	OptionsFileName = "options.yaml"
	StoreFileName   = "state.db"
)

// ConfigDir returns the directory holding the options file.
// XDG_CONFIG_HOME wins on every platform.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DataDir returns the directory holding the durable store.
// XDG_DATA_HOME wins on every platform.
func DataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	if runtime.GOOS != "linux" {
		// macOS and Windows keep data next to configuration
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", AppName), nil
}

// OptionsFile returns the default options file path
func OptionsFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, OptionsFileName), nil
}

// StoreFile returns the default store path, creating its directory
func StoreFile() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, StoreFileName), nil
}

// ProfileCandidates lists the default profile directories of Chromium
// based browsers for goos, most common first
func ProfileCandidates(goos, home string, getenv func(string) string) []string {
	switch goos {
	case "darwin":
		base := filepath.Join(home, "Library", "Application Support")
		return []string{
			filepath.Join(base, "Google", "Chrome", "Default"),
			filepath.Join(base, "Chromium", "Default"),
			filepath.Join(base, "BraveSoftware", "Brave-Browser", "Default"),
		}
	case "windows":
		base := getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		return []string{
			filepath.Join(base, "Google", "Chrome", "User Data", "Default"),
			filepath.Join(base, "Chromium", "User Data", "Default"),
			filepath.Join(base, "BraveSoftware", "Brave-Browser", "User Data", "Default"),
		}
	default:
		base := getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return []string{
			filepath.Join(base, "google-chrome", "Default"),
			filepath.Join(base, "chromium", "Default"),
			filepath.Join(base, "BraveSoftware", "Brave-Browser", "Default"),
		}
	}
}

// DetectProfile returns the first existing browser profile directory
func DetectProfile() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return firstDir(ProfileCandidates(runtime.GOOS, home, os.Getenv))
}

func firstDir(candidates []string) (string, bool) {
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, true
		}
	}
	return "", false
}
