/*
Package metrics provides Prometheus metrics for the position collector.

# Overview

A Collector is injected into the pool, store, archiver and collector loop.
It keeps both Prometheus series (for scraping) and a small in-process
per-operation summary (for tests and debugging).

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴──────────────────────┐
	   │                          │
	┌──▼───────────┐   ┌──────────▼─────┐
	│  Prometheus  │   │ HTTP Endpoints │
	│   Registry   │   │  /metrics      │
	│              │   │  /health       │
	└──────────────┘   └────────────────┘

# Series

	operations_total{operation,status}    fetch, add, write, compress, upload
	operation_duration_seconds{operation}
	operation_size_bytes{operation}
	errors_total{operation,type}          type is the lowercased error code
	buffer_positions                      positions awaiting flush
	queue_depth                           queued background tasks

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9100,
		Namespace: "mpyk",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

A collector built with Enabled=false, or via Disabled, turns every method
into a no-op. Port 0 keeps the HTTP server off while still recording.
*/
package metrics
