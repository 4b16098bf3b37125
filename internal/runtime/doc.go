// Package runtime assembles a working instance from configuration: the kv
// backend, the queue store, instrumentation, and the drain orchestrator.
package runtime
