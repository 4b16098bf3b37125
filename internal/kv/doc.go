// Package kv defines the shared key-value boundary the queue coordinates
// over, plus its backends.
//
// The contract is deliberately weak: Get/Set/Delete with last-writer-wins
// semantics, no transactions, and no native compare-and-swap. Every higher
// layer (record store, lease manager) is written against that weakness; see
// internal/queue for the optimistic retry and re-read-to-confirm machinery
// built on top.
//
// Backends:
//   - Memory: in-process map, used by tests and single-process embedding.
//   - File: one file per key in a shared directory, the cross-process
//     rendezvous backend.
//   - Pebble: durable single-host backend over internal/storage/pebble.
package kv
