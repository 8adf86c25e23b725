/*
Package monitoring provides Prometheus metrics for the aggregation engine.

# Overview

Metrics are registered on an explicit registry so tests and embedded
engines do not collide on the global one. Counters mirror into a small
snapshot that the HTTP API serves as JSON.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "created")
	// ... decide and move ...
	timer.Stop()
*/
package monitoring
