package metrics

import (
	"fmt"
	"io"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// Queue implements the queue.Metrics interface over the default registry.
// One instance per queue; the queue name is carried as a label.
type Queue struct {
	name string
}

// NewQueue builds queue instrumentation for the named queue.
func NewQueue(name string) *Queue {
	return &Queue{name: name}
}

func (q *Queue) counter(metric string) *vm.Counter {
	return vm.GetOrCreateCounter(fmt.Sprintf(`%s{queue=%q}`, metric, q.name))
}

func (q *Queue) RecordEnqueued() {
	q.counter("drainq_records_enqueued_total").Inc()
}

func (q *Queue) RecordProcessed() {
	q.counter("drainq_records_processed_total").Inc()
}

func (q *Queue) RecordDeliveryFailed() {
	q.counter("drainq_record_delivery_failures_total").Inc()
}

func (q *Queue) RecordEvicted(reason string) {
	vm.GetOrCreateCounter(fmt.Sprintf(
		`drainq_records_evicted_total{queue=%q,reason=%q}`, q.name, reason)).Inc()
}

func (q *Queue) LeaseAcquired() {
	q.counter("drainq_lease_acquired_total").Inc()
}

func (q *Queue) LeaseLost() {
	q.counter("drainq_lease_lost_total").Inc()
}

// Storage implements the storage-layer observation hook.
type Storage struct {
	writeLatency *vm.Histogram
	readLatency  *vm.Histogram
	writeBytes   *vm.Counter
	readBytes    *vm.Counter
}

// NewStorage builds storage instrumentation.
func NewStorage() *Storage {
	return &Storage{
		writeLatency: vm.GetOrCreateHistogram("drainq_storage_write_duration_seconds"),
		readLatency:  vm.GetOrCreateHistogram("drainq_storage_read_duration_seconds"),
		writeBytes:   vm.GetOrCreateCounter("drainq_storage_written_bytes_total"),
		readBytes:    vm.GetOrCreateCounter("drainq_storage_read_bytes_total"),
	}
}

func (s *Storage) ObserveWrite(elapsed time.Duration, bytes int) {
	s.writeLatency.Update(elapsed.Seconds())
	s.writeBytes.Add(bytes)
}

func (s *Storage) ObserveRead(elapsed time.Duration, bytes int) {
	s.readLatency.Update(elapsed.Seconds())
	s.readBytes.Add(bytes)
}

// WritePrometheus dumps the registry in Prometheus text format, including
// process-level metrics.
func WritePrometheus(w io.Writer) {
	vm.WritePrometheus(w, true)
}
