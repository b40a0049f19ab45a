/*
Package adapter wires the collector process together and owns its lifecycle.

# Architecture Role

	┌──────────────┐   batches   ┌──────────┐  write tasks   ┌──────────┐
	│  Collector   │────────────▶│  Store   │───────────────▶│   Pool   │
	│  (poll loop) │             │ (buffer) │                │ (workers)│
	└──────┬───────┘             └────┬─────┘                └────▲─────┘
	       │ GetAllPositions          │ day rollover              │
	┌──────┴───────┐             ┌────┴─────┐  archive tasks      │
	│ mpk.Client   │             │ Archiver │─────────────────────┘
	└──────────────┘             └────┬─────┘
	                                  │ Upload
	                             ┌────┴─────┐
	                             │ s3.Bucket│
	                             └──────────┘

New builds every component from a validated config.Configuration. The
position source and bucket factory can be replaced through Options, which
is how tests run the full pipeline without the network.

# Lifecycle

Start health checks the bucket when upload is enabled, starts the metrics
server and launches the poll loop. Stop then runs, in order:

 1. stop the poll loop and wait for the current iteration
 2. flush the store so nothing stays in memory
 3. shut the pool down and wait for every queued write and archive
 4. stop the metrics server

Run combines the two around a context, typically one cancelled by SIGINT or
SIGTERM.
*/
package adapter
