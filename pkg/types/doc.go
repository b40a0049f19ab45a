/*
Package types provides the core interfaces and data structures shared by the collector components.

# Architecture Overview

The collector is a single poll loop feeding a buffering store, with all I/O pushed onto a
background task pool:

	┌──────────────────┐     ┌────────────┐     ┌───────────────────┐
	│  PositionSource  │ ──▶ │ Collector  │ ──▶ │       Store        │
	│ (internal/source)│     │ (poll loop)│     │ buffer + rotation  │
	└──────────────────┘     └────────────┘     └───────────────────┘
	                                                 │ write   │ archive
	                                          ┌──────┴─────────┴──────┐
	                                          │   Pool (background)   │
	                                          └──────┬─────────┬──────┘
	                                        <date>.csv      Archiver
	                                                           │
	                                                   ObjectStore (S3/B2)

# Core Types

Position is one vehicle observation. Its Values method defines the fixed CSV column order used
for the daily files:

	timestamp, vehicle id, line, latitude, longitude, vehicle type

Timestamps are written as naive UTC ISO-8601 truncated to whole seconds, for example
2024-01-01T10:00:00. ParsePosition reverses Values.

# Core Interfaces

PositionSource yields the current snapshot of vehicle positions. ObjectStore accepts a local
file and a logical remote name. BucketFactory resolves an authenticated ObjectStore on every
call, so expired credentials are refreshed between archive operations. MetricsCollector is the
instrumentation sink injected into every component.
*/
package types
