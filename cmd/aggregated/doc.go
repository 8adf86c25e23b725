// Command aggregated watches a Chromium browser over the DevTools protocol
// and gathers newly opened tabs into the main window.
//
// Usage:
//
//	aggregated [-env .env] [-options options.yaml] [-ephemeral] [-debug]
//
// Process settings come from AGGREGATE_* environment variables (see
// package config). Aggregation options live in the options file, which is
// watched for changes.
package main
