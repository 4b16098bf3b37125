package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	logpkg "github.com/drainq/drainq/pkg/log"
)

// Mode selects multi-instance coordination behavior.
type Mode int

const (
	// ModeDisabled skips all locking; the instance assumes it is alone.
	ModeDisabled Mode = iota
	// ModeCompete has every instance attempt to become the drainer
	// opportunistically, one lease per drain cycle.
	ModeCompete
	// ModeLeader additionally runs a standing periodic drain timer while
	// holding the lease.
	ModeLeader
)

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "disabled":
		return ModeDisabled, nil
	case "compete", "":
		return ModeCompete, nil
	case "leader":
		return ModeLeader, nil
	default:
		return ModeDisabled, fmt.Errorf("queue: unknown multi-instance mode %q", s)
	}
}

const maxRetryBackoff = 5 * time.Minute

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Store     *Store
	Processor Processor

	// MaxRetries is the per-record delivery attempt budget. Default 3.
	MaxRetries int
	// MaxRecordAge is the retention ceiling. Default 7 days.
	MaxRecordAge time.Duration
	// AutoDrain triggers an async drain after each enqueue.
	AutoDrain bool
	Mode      Mode
	// DrainInterval is the leader-mode standing drain period. Default 30s.
	DrainInterval time.Duration
	// DeadLetter moves exhausted records to the dead-letter key instead of
	// dropping them.
	DeadLetter bool
	// RetryBackoffBase scales the per-record exponential backoff. Default 1s.
	RetryBackoffBase time.Duration

	Logger  logpkg.Logger
	Metrics Metrics
}

// Orchestrator sequences enqueue and single-flight drain cycles over a
// Store. Construct one per instance and call Shutdown when done; there is no
// process-wide singleton.
type Orchestrator struct {
	store         *Store
	proc          Processor
	maxRetries    int
	maxAge        time.Duration
	autoDrain     bool
	mode          Mode
	drainInterval time.Duration
	deadLetter    bool
	backoffBase   time.Duration
	log           logpkg.Logger
	metrics       Metrics

	sf singleflight.Group
	wg sync.WaitGroup

	mu           sync.Mutex
	leaderCancel context.CancelFunc

	closed       atomic.Bool
	shutdownOnce sync.Once
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("queue: OrchestratorOptions.Store is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("queue: OrchestratorOptions.Processor is required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxRecordAge <= 0 {
		opts.MaxRecordAge = 7 * 24 * time.Hour
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = 30 * time.Second
	}
	if opts.RetryBackoffBase <= 0 {
		opts.RetryBackoffBase = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	return &Orchestrator{
		store:         opts.Store,
		proc:          opts.Processor,
		maxRetries:    opts.MaxRetries,
		maxAge:        opts.MaxRecordAge,
		autoDrain:     opts.AutoDrain,
		mode:          opts.Mode,
		drainInterval: opts.DrainInterval,
		deadLetter:    opts.DeadLetter,
		backoffBase:   opts.RetryBackoffBase,
		log:           opts.Logger.With(logpkg.Component("orchestrator")),
		metrics:       opts.Metrics,
	}, nil
}

// Enqueue persists a new record and, when auto-drain is on, kicks off a
// drain without blocking the caller. Drain errors from that kick are logged
// and swallowed; enqueue itself only fails on persistence errors.
func (o *Orchestrator) Enqueue(ctx context.Context, payload json.RawMessage) (Record, error) {
	rec := Record{
		ID:         uuid.NewString(),
		EnqueuedAt: nowMs(),
		Payload:    payload,
	}
	if err := o.store.Add(ctx, rec); err != nil {
		return Record{}, err
	}
	o.metrics.RecordEnqueued()
	if o.autoDrain && !o.closed.Load() {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if _, err := o.Drain(context.Background()); err != nil {
				o.log.Warn("enqueue-triggered drain failed", logpkg.Err(err))
			}
		}()
	}
	return rec, nil
}

// Drain runs one cycle over the queue and returns how many records were
// delivered. Concurrent callers collapse into one in-flight cycle and share
// its outcome. Failing to win the lease is not an error; the cycle just
// reports zero.
func (o *Orchestrator) Drain(ctx context.Context) (int, error) {
	v, err, _ := o.sf.Do("drain", func() (interface{}, error) {
		return o.drainCycle(ctx)
	})
	n, _ := v.(int)
	return n, err
}

func (o *Orchestrator) drainCycle(ctx context.Context) (int, error) {
	if o.mode == ModeDisabled {
		return o.processAll(ctx, nil)
	}
	if o.store.Holds() {
		// Leader session already owns the lease; drain under it without
		// releasing at cycle end.
		return o.processAll(ctx, o.store.Holds)
	}
	if !o.store.Acquire(ctx) {
		o.log.Debug("lease unavailable, skipping drain cycle")
		return 0, nil
	}
	var lost atomic.Bool
	stopRenewal := o.store.StartRenewal(func() {
		lost.Store(true)
		o.metrics.LeaseLost()
	})
	defer func() {
		stopRenewal()
		o.store.Release()
	}()
	return o.processAll(ctx, func() bool {
		return !lost.Load() && o.store.Holds()
	})
}

// processAll is one ordered pass over the current records. stillHeld, when
// non-nil, is consulted at every record boundary; losing the lease halts the
// remainder of the cycle without error.
func (o *Orchestrator) processAll(ctx context.Context, stillHeld func() bool) (int, error) {
	if !o.proc.Ready(ctx) {
		o.log.Debug("processor not ready, skipping drain cycle")
		return 0, nil
	}
	records, err := o.store.GetAll()
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, rec := range records {
		if stillHeld != nil && !stillHeld() {
			o.log.Warn("lease lost mid-cycle, stopping", logpkg.Int("processed", processed))
			break
		}
		now := nowMs()
		if rec.Age(now) > o.maxAge {
			if err := o.discard(ctx, rec, "age"); err != nil {
				return processed, err
			}
			continue
		}
		if rec.RetryCount >= o.maxRetries {
			if err := o.discard(ctx, rec, "retries"); err != nil {
				return processed, err
			}
			continue
		}
		if rec.LastAttemptAt > 0 && now-rec.LastAttemptAt < o.retryBackoff(rec.RetryCount).Milliseconds() {
			// Inside the backoff window: leave it for a later cycle.
			continue
		}
		ok, err := o.proc.Process(ctx, rec)
		if err != nil {
			// Exceptional processor failure; propagate after cleanup.
			return processed, err
		}
		if ok {
			if _, err := o.store.Remove(ctx, rec.ID); err != nil {
				return processed, err
			}
			processed++
			o.metrics.RecordProcessed()
			continue
		}
		rec.RetryCount++
		rec.LastAttemptAt = nowMs()
		if _, err := o.store.Update(ctx, rec); err != nil {
			return processed, err
		}
		o.metrics.RecordDeliveryFailed()
		o.log.Info("delivery failed, stopping cycle",
			logpkg.Str("id", rec.ID),
			logpkg.Int("retryCount", rec.RetryCount),
			logpkg.Int("processed", processed))
		break
	}
	return processed, nil
}

func (o *Orchestrator) discard(ctx context.Context, rec Record, reason string) error {
	if o.deadLetter {
		if err := o.store.AddDeadLetter(ctx, rec); err != nil {
			return err
		}
	}
	if _, err := o.store.Remove(ctx, rec.ID); err != nil {
		return err
	}
	o.metrics.RecordEvicted(reason)
	o.log.Info("record discarded",
		logpkg.Str("id", rec.ID),
		logpkg.Str("reason", reason),
		logpkg.Int("retryCount", rec.RetryCount))
	return nil
}

// retryBackoff is exponential in the retry count: base * 2^retryCount,
// capped at maxRetryBackoff.
func (o *Orchestrator) retryBackoff(retryCount int) time.Duration {
	if retryCount > 16 {
		retryCount = 16
	}
	d := o.backoffBase << uint(retryCount)
	if d > maxRetryBackoff || d <= 0 {
		d = maxRetryBackoff
	}
	return d
}

// Start launches the leader loop when the orchestrator runs in ModeLeader;
// it is a no-op otherwise. The loop competes for the lease, and while
// holding it drains on a standing timer with renewal running. Cancel via
// Shutdown or the supplied context.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.mode != ModeLeader || o.closed.Load() {
		return
	}
	lctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.leaderCancel != nil {
		o.mu.Unlock()
		cancel()
		return
	}
	o.leaderCancel = cancel
	o.mu.Unlock()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.leaderLoop(lctx)
	}()
}

func (o *Orchestrator) leaderLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if !o.store.Acquire(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.drainInterval):
			}
			continue
		}
		o.log.Info("assumed drain leadership", logpkg.Str("holder", o.store.HolderID()))
		o.leaderSession(ctx)
	}
}

// leaderSession holds the lease for repeated drain ticks until the context
// ends or the lease is lost.
func (o *Orchestrator) leaderSession(ctx context.Context) {
	lost := make(chan struct{})
	var lostOnce sync.Once
	stopRenewal := o.store.StartRenewal(func() {
		o.metrics.LeaseLost()
		lostOnce.Do(func() { close(lost) })
	})
	defer func() {
		stopRenewal()
		o.store.Release()
	}()
	ticker := time.NewTicker(o.drainInterval)
	defer ticker.Stop()
	for {
		if n, err := o.Drain(ctx); err != nil {
			o.log.Error("leader drain failed", logpkg.Err(err))
		} else if n > 0 {
			o.log.Info("leader drain complete", logpkg.Int("processed", n))
		}
		if !o.store.Holds() {
			o.log.Warn("leadership lost")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-lost:
			o.log.Warn("leadership lost")
			return
		case <-ticker.C:
		}
	}
}

// Shutdown stops the leader loop and renewal, waits for in-flight
// enqueue-triggered drains, attempts one best-effort final drain with errors
// swallowed, and releases a held lease. Safe to call more than once.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.shutdownOnce.Do(func() {
		o.closed.Store(true)
		o.mu.Lock()
		cancel := o.leaderCancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		o.wg.Wait()
		if _, err := o.Drain(ctx); err != nil {
			o.log.Warn("final drain failed", logpkg.Err(err))
		}
		o.store.Release()
	})
}
