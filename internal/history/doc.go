// Package history implements the speed history engine: ingestion of
// per-interface throughput samples, durable persistence to an embedded
// SQLite store, multi-resolution rollup, and grace-period retention.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Collector  │────▶│   Buffer    │────▶│ Persistence │
//	│  (samples)  │     │ (batch+live)│     │   Worker    │
//	└─────────────┘     └─────────────┘     └──────┬──────┘
//	                                               │ owns
//	                                        ┌──────▼──────┐
//	                                        │   SQLite    │
//	                                        │ raw/min/hour│
//	                                        └─────────────┘
//
// The engine provides:
//   - Non-blocking ingestion: producers only touch the in-memory buffer
//   - A single-writer task queue; only the worker touches the store
//   - Automatic rollup (raw → minute after 24h, minute → hour after 30d)
//   - Two-phase retention pruning with a 48h grace period
//   - A fixed-capacity live window for graphing, independent of persistence
package history
