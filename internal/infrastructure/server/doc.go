// Package server assembles the gin router of the inspection API and runs
// it until the daemon stops.
package server
