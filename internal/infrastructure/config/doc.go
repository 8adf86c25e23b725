// Package config provides 12-factor configuration management for the
// aggregation daemon.
//
// Configuration is loaded from AGGREGATE_* environment variables with
// sensible defaults. A .env file in the working directory is read first;
// variables already present in the environment are never overridden by it.
//
// Configuration Sections:
//   - Server: HTTP inspection server settings (port, host)
//   - Browser: DevTools endpoint and Chrome profile directory
//   - Options: observable options file and whether to watch it
//   - Storage: durable tab/window store
//   - Logging: log level, output format and rotating file
//   - RateLimit: per-IP rate limiting of the HTTP API
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Inspecting on %s, browser at %s\n", cfg.Server.Addr(), cfg.Browser.CDPURL())
package config
