// Package processor contains delivery backends for queued records. The
// command backend pipes each record payload to a configured executable and
// maps its exit status onto the delivery contract.
package processor
