// Package http implements the handlers of the inspection API: engine
// health and state, the window listing with the current main window, the
// main window mark, and runtime options.
package http
