// Package client contains Cobra CLI commands for inspecting and operating a
// queue from the shared store directly. Every invocation opens its own
// runtime against the configured backend, so commands from different
// processes coordinate through the same lease protocol as embedded users.
package client
