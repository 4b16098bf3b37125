// Package metrics wires queue and storage instrumentation into the process
// Prometheus registry. Counters and histograms are created lazily on first
// use and exposed via WritePrometheus on the status server.
package metrics
