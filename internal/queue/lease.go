package queue

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/drainq/drainq/internal/kv"
	logpkg "github.com/drainq/drainq/pkg/log"
)

// Lease is a time-bounded claim of exclusive draining rights, stored in the
// same shared medium as the records it protects.
type Lease struct {
	HolderID   string `json:"holderId"`
	AcquiredAt int64  `json:"acquiredAt"`
	ExpiresAt  int64  `json:"expiresAt"`
	// Hostname is diagnostic only; ownership checks use HolderID.
	Hostname string `json:"hostname"`
}

// Expired reports whether the lease has lapsed at the given time.
func (l *Lease) Expired(now int64) bool { return l.ExpiresAt <= now }

type leaseManagerOptions struct {
	kv             kv.Store
	key            string
	holderID       string
	hostname       string
	duration       time.Duration
	checkInterval  time.Duration
	acquireTimeout time.Duration
	log            logpkg.Logger
	metrics        Metrics
}

// LeaseManager implements acquire/renew/release over the plain kv medium.
//
// There is no native compare-and-swap, so acquisition is an optimistic
// emulation: observe, re-read and compare, write, re-read to confirm the
// write stuck. Two instances can both pass the absent/expired check in the
// same narrow window; the confirm re-read catches the loser in practice but
// this remains best-effort, not linearizable. Callers bound the damage by
// re-checking Holds at every record boundary while draining.
type LeaseManager struct {
	kv             kv.Store
	key            string
	holderID       string
	hostname       string
	duration       time.Duration
	checkInterval  time.Duration
	acquireTimeout time.Duration
	log            logpkg.Logger
	metrics        Metrics

	rngMu sync.Mutex
	rng   *rand.Rand
}

func newLeaseManager(opts leaseManagerOptions) *LeaseManager {
	if opts.duration <= 0 {
		opts.duration = 30 * time.Second
	}
	if opts.acquireTimeout <= 0 {
		opts.acquireTimeout = 10 * time.Second
	}
	return &LeaseManager{
		kv:             opts.kv,
		key:            opts.key,
		holderID:       opts.holderID,
		hostname:       opts.hostname,
		duration:       opts.duration,
		checkInterval:  opts.checkInterval,
		acquireTimeout: opts.acquireTimeout,
		log:            opts.log,
		metrics:        opts.metrics,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Current returns the lease on record, or nil when absent. A value that
// fails to parse is treated as absent; the medium is last-writer-wins and a
// torn write must not wedge every instance forever.
func (lm *LeaseManager) Current() (*Lease, error) {
	b, err := lm.kv.Get(lm.key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var lease Lease
	if err := json.Unmarshal(b, &lease); err != nil {
		lm.log.Warn("discarding unparseable lease record", logpkg.Err(err))
		return nil, nil
	}
	return &lease, nil
}

// Acquire attempts to take the lease, looping with jittered sleeps until the
// acquire timeout elapses. Returns false on timeout or context cancellation;
// acquisition failure is not an error, it means someone else is draining.
func (lm *LeaseManager) Acquire(ctx context.Context) bool {
	deadline := time.Now().Add(lm.acquireTimeout)
	for {
		if lm.tryAcquire() {
			lm.metrics.LeaseAcquired()
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(lm.acquireBackoff()):
		}
	}
}

// tryAcquire performs one optimistic CAS round.
func (lm *LeaseManager) tryAcquire() bool {
	observed, err := lm.Current()
	if err != nil {
		return false
	}
	now := nowMs()
	if observed != nil && !observed.Expired(now) && observed.HolderID != lm.holderID {
		return false
	}
	candidate := &Lease{
		HolderID:   lm.holderID,
		AcquiredAt: now,
		ExpiresAt:  now + lm.duration.Milliseconds(),
		Hostname:   lm.hostname,
	}
	// Re-read immediately before writing: if the lease changed since the
	// first observation, another instance won this round.
	check, err := lm.Current()
	if err != nil || !sameLease(observed, check) {
		return false
	}
	data, err := json.Marshal(candidate)
	if err != nil {
		return false
	}
	if err := lm.kv.Set(lm.key, data); err != nil {
		lm.log.Warn("lease write failed", logpkg.Err(err))
		return false
	}
	// Confirm the write stuck. A concurrent writer may have clobbered it.
	confirm, err := lm.Current()
	if err != nil || confirm == nil {
		return false
	}
	return confirm.HolderID == candidate.HolderID && confirm.AcquiredAt == candidate.AcquiredAt
}

// sameLease compares by holder and acquisition time; both absent counts as
// equal.
func sameLease(a, b *Lease) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.HolderID == b.HolderID && a.AcquiredAt == b.AcquiredAt
}

func (lm *LeaseManager) acquireBackoff() time.Duration {
	lm.rngMu.Lock()
	defer lm.rngMu.Unlock()
	return 100*time.Millisecond + time.Duration(lm.rng.Int63n(int64(100*time.Millisecond)))
}

// Holds reports whether this instance currently owns an unexpired lease.
func (lm *LeaseManager) Holds() bool {
	lease, err := lm.Current()
	if err != nil || lease == nil {
		return false
	}
	return lease.HolderID == lm.holderID && !lease.Expired(nowMs())
}

// Release clears the lease if held by this instance. It never clears another
// instance's lease.
func (lm *LeaseManager) Release() {
	lease, err := lm.Current()
	if err != nil || lease == nil || lease.HolderID != lm.holderID {
		return
	}
	if err := lm.kv.Delete(lm.key); err != nil {
		lm.log.Warn("lease release failed", logpkg.Err(err))
	}
}

// renew rewrites the lease with a fresh expiry, preserving acquiredAt.
// Returns false when the lease is no longer self-held.
func (lm *LeaseManager) renew() bool {
	lease, err := lm.Current()
	if err != nil || lease == nil || lease.HolderID != lm.holderID {
		return false
	}
	lease.ExpiresAt = nowMs() + lm.duration.Milliseconds()
	data, err := json.Marshal(lease)
	if err != nil {
		return false
	}
	if err := lm.kv.Set(lm.key, data); err != nil {
		lm.log.Warn("lease renewal write failed", logpkg.Err(err))
		return false
	}
	return true
}

// renewInterval is the configured check interval, defaulting to a third of
// the lease duration with a 5s floor.
func (lm *LeaseManager) renewInterval() time.Duration {
	if lm.checkInterval > 0 {
		return lm.checkInterval
	}
	interval := lm.duration / 3
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return interval
}

// StartRenewal runs a background renewal loop and returns its stop function.
// The loop ends on its own if the lease is found stolen, invoking onLost
// once. Stop is idempotent and must be called on every drain exit path.
func (lm *LeaseManager) StartRenewal(onLost func()) (stop func()) {
	stopCh := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(lm.renewInterval())
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if !lm.renew() {
					lm.log.Warn("lease no longer self-held, stopping renewal")
					if onLost != nil {
						onLost()
					}
					return
				}
			}
		}
	}()
	return func() { once.Do(func() { close(stopCh) }) }
}
