// Package bookmarks looks URLs up in a Chrome profile's bookmarks file.
package bookmarks
