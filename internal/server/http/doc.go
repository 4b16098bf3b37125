// Package httpserver is the optional status surface for daemon mode: health,
// queue status, enqueue/drain triggers, and the Prometheus scrape endpoint.
package httpserver
