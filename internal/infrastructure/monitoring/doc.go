/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the backend,
tracking HTTP requests, PTY session lifecycle, output throughput, and
WebSocket connections.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record session metrics
	metrics.IncSessionsTotal("main")
	metrics.AddOutputBytes(n)
*/
package monitoring
