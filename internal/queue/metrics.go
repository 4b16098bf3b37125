package queue

// Metrics is a minimal hook surface for queue observations. The default is
// NoopMetrics; internal/metrics provides a Prometheus-compatible
// implementation.
type Metrics interface {
	RecordEnqueued()
	RecordProcessed()
	RecordDeliveryFailed()
	// RecordEvicted reasons: "capacity", "age", "retries".
	RecordEvicted(reason string)
	LeaseAcquired()
	LeaseLost()
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) RecordEnqueued()       {}
func (NoopMetrics) RecordProcessed()      {}
func (NoopMetrics) RecordDeliveryFailed() {}
func (NoopMetrics) RecordEvicted(string)  {}
func (NoopMetrics) LeaseAcquired()        {}
func (NoopMetrics) LeaseLost()            {}
