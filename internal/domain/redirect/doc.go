// Package redirect resolves the destination window for a tab.
package redirect
