// Package queue implements a durable, lease-coordinated event delivery queue
// over a shared key-value area.
//
// Many independent processes (editor windows, in the originating setup) share
// one persistent kv store and enqueue event records into a single collection.
// At most one instance at a time drains the collection, guarded by a
// time-bounded lease kept in the same store. Delivery is at-least-once with
// bounded retries; downstream processing is assumed idempotent.
//
// # Keyspace
//
// Two (optionally three) independent keys per queue name:
//
//	dq/{name}/records - ordered collection of records (JSON array)
//	dq/{name}/lease   - at most one lease record, or absent
//	dq/{name}/dlq     - dead-letter collection, when enabled
//
// # Coordination
//
// The medium offers only last-writer-wins writes, so the lease protocol is an
// optimistic compare-and-swap emulation: read, re-read and compare, write,
// re-read to confirm the write stuck. Two instances can still both pass the
// absent/expired check inside one narrow window; at most one write survives
// the confirm re-read. This is a best-effort guarantee, accepted as a design
// tradeoff of the medium, and the drain loop re-checks lease ownership at
// every record boundary to bound the damage of a lost lease.
//
// # Drain cycle
//
// One pass over the current records in enqueuedAt order: expired records and
// records past the retry budget are discarded (or dead-lettered), records
// inside their backoff window are skipped, everything else is handed to the
// Processor. The first delivery failure halts the cycle so a degraded
// endpoint is not hammered; backoff recorded on the failed record shapes the
// next cycle.
package queue
