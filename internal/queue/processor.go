package queue

import "context"

// Processor attempts delivery of one record. It is supplied by the embedding
// application, which owns translating the payload into an outbound call and
// classifying failures as retryable or terminal.
type Processor interface {
	// Process attempts delivery. True means "remove from queue": delivered,
	// or a terminal failure the processor has decided to discard. False
	// means "retry later". Ordinary delivery failures must be reported as
	// false, not as an error; a non-nil error is reserved for exceptional
	// conditions and propagates out of the drain cycle.
	Process(ctx context.Context, rec Record) (bool, error)

	// Ready is a cheap readiness probe (e.g. "do we have credentials"),
	// consulted before every drain cycle.
	Ready(ctx context.Context) bool
}

// ProcessorFunc adapts a function to the Processor interface with an
// always-ready probe.
type ProcessorFunc func(ctx context.Context, rec Record) (bool, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, rec Record) (bool, error) { return f(ctx, rec) }

// Ready implements Processor.
func (f ProcessorFunc) Ready(context.Context) bool { return true }
