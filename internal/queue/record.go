package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// nowMs is the queue clock in milliseconds since epoch. Overridable in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Record is one queued event. The payload is opaque to the queue.
type Record struct {
	ID         string          `json:"id"`
	EnqueuedAt int64           `json:"enqueuedAt"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retryCount"`
	// LastAttemptAt is zero until the first delivery attempt.
	LastAttemptAt int64 `json:"lastAttemptAt,omitempty"`
}

// Age returns how long the record has been queued as of now (ms).
func (r Record) Age(now int64) time.Duration {
	return time.Duration(now-r.EnqueuedAt) * time.Millisecond
}

func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("queue: encode records: %w", err)
	}
	return b, nil
}

func decodeRecords(b []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("queue: decode records: %w", err)
	}
	return records, nil
}

// sortRecords orders by enqueuedAt ascending. The medium guarantees no
// ordering, so every read re-sorts. ID breaks ties for stability.
func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].EnqueuedAt != records[j].EnqueuedAt {
			return records[i].EnqueuedAt < records[j].EnqueuedAt
		}
		return records[i].ID < records[j].ID
	})
}

// encodedSize returns the serialized size of the collection in bytes.
func encodedSize(records []Record) (int, error) {
	b, err := encodeRecords(records)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
