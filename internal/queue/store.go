package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/drainq/drainq/internal/kv"
	"github.com/drainq/drainq/pkg/id"
	logpkg "github.com/drainq/drainq/pkg/log"
)

// ErrRecordTooLarge means a single record exceeds the storage ceiling on its
// own. It is never retried; the caller is told immediately.
var ErrRecordTooLarge = errors.New("queue: record too large to persist")

// StoreOptions configures a Store.
type StoreOptions struct {
	KV        kv.Store
	QueueName string
	// MaxBytes is the ceiling on the serialized record collection.
	MaxBytes int

	// HolderID identifies this instance for lease ownership. Defaults to a
	// fresh instance ID.
	HolderID string
	// Hostname is diagnostic only. Defaults to os.Hostname.
	Hostname            string
	LeaseDuration       time.Duration
	LeaseCheckInterval  time.Duration
	LeaseAcquireTimeout time.Duration

	Retry   RetryPolicy
	Logger  logpkg.Logger
	Metrics Metrics
}

// Store persists the record collection and embeds the lease manager, both
// over the same shared kv area.
type Store struct {
	kv       kv.Store
	keys     Keys
	maxBytes int
	retry    RetryPolicy
	log      logpkg.Logger
	metrics  Metrics

	*LeaseManager
}

// NewStore builds a Store over the given kv backend.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.KV == nil {
		return nil, errors.New("queue: StoreOptions.KV is required")
	}
	if opts.QueueName == "" {
		return nil, errors.New("queue: StoreOptions.QueueName is required")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 1 << 20
	}
	if opts.HolderID == "" {
		opts.HolderID = id.NewInstanceID()
	}
	if opts.Hostname == "" {
		opts.Hostname, _ = os.Hostname()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	keys := KeysFor(opts.QueueName)
	s := &Store{
		kv:       opts.KV,
		keys:     keys,
		maxBytes: opts.MaxBytes,
		retry:    opts.Retry.withDefaults(),
		log:      opts.Logger.With(logpkg.Component("store"), logpkg.Str("queue", opts.QueueName)),
		metrics:  opts.Metrics,
	}
	s.LeaseManager = newLeaseManager(leaseManagerOptions{
		kv:             opts.KV,
		key:            keys.Lease,
		holderID:       opts.HolderID,
		hostname:       opts.Hostname,
		duration:       opts.LeaseDuration,
		checkInterval:  opts.LeaseCheckInterval,
		acquireTimeout: opts.LeaseAcquireTimeout,
		log:            opts.Logger.With(logpkg.Component("lease"), logpkg.Str("queue", opts.QueueName)),
		metrics:        opts.Metrics,
	})
	return s, nil
}

// HolderID returns this instance's lease identity.
func (s *Store) HolderID() string { return s.LeaseManager.holderID }

func (s *Store) loadKey(key string) ([]Record, error) {
	b, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	records, err := decodeRecords(b)
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

func (s *Store) saveKey(key string, records []Record) error {
	b, err := encodeRecords(records)
	if err != nil {
		return err
	}
	return s.kv.Set(key, b)
}

// Add appends a record, evicting oldest records first if the collection
// would exceed the byte ceiling. A record that cannot fit alone fails with
// ErrRecordTooLarge without persisting anything.
func (s *Store) Add(ctx context.Context, rec Record) error {
	alone, err := encodedSize([]Record{rec})
	if err != nil {
		return err
	}
	if alone > s.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds ceiling %d", ErrRecordTooLarge, alone, s.maxBytes)
	}
	return s.retry.Do(ctx, func() error {
		records, err := s.loadKey(s.keys.Records)
		if err != nil {
			return err
		}
		records = append(records, rec)
		sortRecords(records)
		for {
			size, err := encodedSize(records)
			if err != nil {
				return err
			}
			if size <= s.maxBytes || len(records) <= 1 {
				break
			}
			evicted := records[0]
			records = records[1:]
			s.metrics.RecordEvicted("capacity")
			s.log.Warn("evicting oldest record to fit new one",
				logpkg.Str("id", evicted.ID),
				logpkg.Int64("enqueuedAt", evicted.EnqueuedAt))
		}
		return s.saveKey(s.keys.Records, records)
	})
}

// Remove deletes a record by id and reports whether one was removed.
func (s *Store) Remove(ctx context.Context, recordID string) (bool, error) {
	removed := false
	err := s.retry.Do(ctx, func() error {
		records, err := s.loadKey(s.keys.Records)
		if err != nil {
			return err
		}
		kept := records[:0]
		removed = false
		for _, r := range records {
			if r.ID == recordID {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		if !removed {
			return nil
		}
		return s.saveKey(s.keys.Records, kept)
	})
	return removed, err
}

// Update replaces the record with the same id. It reports false without
// error when the id is absent or when the replacement would push the
// collection over the ceiling.
func (s *Store) Update(ctx context.Context, rec Record) (bool, error) {
	updated := false
	err := s.retry.Do(ctx, func() error {
		records, err := s.loadKey(s.keys.Records)
		if err != nil {
			return err
		}
		updated = false
		next := make([]Record, len(records))
		copy(next, records)
		for i := range next {
			if next[i].ID == rec.ID {
				next[i] = rec
				updated = true
				break
			}
		}
		if !updated {
			return nil
		}
		size, err := encodedSize(next)
		if err != nil {
			return err
		}
		if size > s.maxBytes {
			s.log.Warn("rejecting update that would exceed storage ceiling",
				logpkg.Str("id", rec.ID), logpkg.Int("size", size))
			updated = false
			return nil
		}
		sortRecords(next)
		return s.saveKey(s.keys.Records, next)
	})
	return updated, err
}

// GetAll returns all records sorted ascending by enqueuedAt.
func (s *Store) GetAll() ([]Record, error) {
	return s.loadKey(s.keys.Records)
}

// Size returns the serialized size of the collection in bytes.
func (s *Store) Size() (int, error) {
	records, err := s.loadKey(s.keys.Records)
	if err != nil {
		return 0, err
	}
	return encodedSize(records)
}

// Count returns the number of queued records.
func (s *Store) Count() (int, error) {
	records, err := s.loadKey(s.keys.Records)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Clear removes all queued records.
func (s *Store) Clear(ctx context.Context) error {
	return s.retry.Do(ctx, func() error {
		return s.kv.Delete(s.keys.Records)
	})
}

// AddDeadLetter appends a record to the dead-letter collection. The same
// byte ceiling applies, oldest-first eviction included, so the dead-letter
// key cannot grow without bound either.
func (s *Store) AddDeadLetter(ctx context.Context, rec Record) error {
	return s.retry.Do(ctx, func() error {
		records, err := s.loadKey(s.keys.DeadLetter)
		if err != nil {
			return err
		}
		records = append(records, rec)
		sortRecords(records)
		for {
			size, err := encodedSize(records)
			if err != nil {
				return err
			}
			if size <= s.maxBytes || len(records) <= 1 {
				break
			}
			records = records[1:]
		}
		return s.saveKey(s.keys.DeadLetter, records)
	})
}

// DeadLetters returns the dead-letter collection sorted by enqueuedAt.
func (s *Store) DeadLetters() ([]Record, error) {
	return s.loadKey(s.keys.DeadLetter)
}

// RequeueDeadLetters moves dead-lettered records back onto the queue with a
// reset retry budget. Returns how many were moved.
func (s *Store) RequeueDeadLetters(ctx context.Context) (int, error) {
	records, err := s.loadKey(s.keys.DeadLetter)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, rec := range records {
		rec.RetryCount = 0
		rec.LastAttemptAt = 0
		if err := s.Add(ctx, rec); err != nil {
			return moved, err
		}
		moved++
	}
	if err := s.retry.Do(ctx, func() error { return s.kv.Delete(s.keys.DeadLetter) }); err != nil {
		return moved, err
	}
	return moved, nil
}

// ClearDeadLetters drops the dead-letter collection.
func (s *Store) ClearDeadLetters(ctx context.Context) error {
	return s.retry.Do(ctx, func() error {
		return s.kv.Delete(s.keys.DeadLetter)
	})
}
