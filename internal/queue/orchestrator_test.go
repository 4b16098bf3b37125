package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drainq/drainq/internal/kv"
)

type fakeProcessor struct {
	mu        sync.Mutex
	calls     []string
	failIDs   map[string]bool
	procErr   error
	notReady  bool
	started   chan struct{}
	startOnce sync.Once
	block     chan struct{}
}

func (p *fakeProcessor) Process(ctx context.Context, rec Record) (bool, error) {
	if p.started != nil {
		p.startOnce.Do(func() { close(p.started) })
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.procErr != nil {
		return false, p.procErr
	}
	p.calls = append(p.calls, rec.ID)
	if p.failIDs[rec.ID] {
		return false, nil
	}
	return true, nil
}

func (p *fakeProcessor) Ready(context.Context) bool { return !p.notReady }

func (p *fakeProcessor) callIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func newTestOrch(t *testing.T, s *Store, proc Processor, mutate ...func(*OrchestratorOptions)) *Orchestrator {
	t.Helper()
	opts := OrchestratorOptions{
		Store:     s,
		Processor: proc,
		Mode:      ModeDisabled,
	}
	for _, m := range mutate {
		m(&opts)
	}
	o, err := NewOrchestrator(opts)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestDrainProcessesInFIFOOrder(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	proc := &fakeProcessor{}
	o := newTestOrch(t, s, proc)
	ctx := context.Background()
	base := time.Now().UnixMilli()

	_ = s.Add(ctx, rec("c", base+2, `3`))
	_ = s.Add(ctx, rec("a", base, `1`))
	_ = s.Add(ctx, rec("b", base+1, `2`))

	n, err := o.Drain(ctx)
	if err != nil || n != 3 {
		t.Fatalf("drain: %d %v", n, err)
	}
	got := proc.callIDs()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("out of order: %v", got)
	}
	if count, _ := s.Count(); count != 0 {
		t.Fatalf("queue should be empty, count=%d", count)
	}
}

// Enqueue A, B, C; delivery fails only for B. One drain delivers A, records
// the failed attempt on B, and stops before C.
func TestDrainFailFastScenario(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	_ = s.Add(ctx, rec("a", base, `1`))
	_ = s.Add(ctx, rec("b", base+1, `2`))
	_ = s.Add(ctx, rec("c", base+2, `3`))

	proc := &fakeProcessor{failIDs: map[string]bool{"b": true}}
	o := newTestOrch(t, s, proc)

	n, err := o.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed count: %d", n)
	}
	got := proc.callIDs()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("c must not be attempted after b fails: %v", got)
	}
	left, _ := s.GetAll()
	if len(left) != 2 || left[0].ID != "b" || left[1].ID != "c" {
		t.Fatalf("unexpected leftovers: %+v", left)
	}
	if left[0].RetryCount != 1 || left[0].LastAttemptAt == 0 {
		t.Fatalf("b should carry the failed attempt: %+v", left[0])
	}
	if left[1].RetryCount != 0 || left[1].LastAttemptAt != 0 {
		t.Fatalf("c must be untouched: %+v", left[1])
	}
}

func TestRetryBudgetExhaustedRecordDropped(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	spent := rec("spent", base, `1`)
	spent.RetryCount = 3
	spent.LastAttemptAt = base - 10_000 // outside any backoff window
	_ = s.Add(ctx, spent)
	_ = s.Add(ctx, rec("fresh", base+1, `2`))

	proc := &fakeProcessor{}
	o := newTestOrch(t, s, proc, func(o *OrchestratorOptions) { o.MaxRetries = 3 })

	n, err := o.Drain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("drain: %d %v", n, err)
	}
	for _, id := range proc.callIDs() {
		if id == "spent" {
			t.Fatalf("exhausted record must not reach the processor")
		}
	}
	if count, _ := s.Count(); count != 0 {
		t.Fatalf("spent record should be dropped, count=%d", count)
	}
}

func TestBackoffWindowSkipsRecord(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	recent := rec("recent", base, `1`)
	recent.RetryCount = 1
	recent.LastAttemptAt = nowMs() - 500 // backoff for retryCount=1 is 2s
	_ = s.Add(ctx, recent)
	_ = s.Add(ctx, rec("fresh", base+1, `2`))

	proc := &fakeProcessor{}
	o := newTestOrch(t, s, proc)

	n, err := o.Drain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("drain: %d %v", n, err)
	}
	got := proc.callIDs()
	if len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("only fresh should be attempted: %v", got)
	}
	left, _ := s.GetAll()
	if len(left) != 1 || left[0].ID != "recent" || left[0].RetryCount != 1 {
		t.Fatalf("skipped record must be untouched: %+v", left)
	}
}

func TestAgeEviction(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	ctx := context.Background()
	now := time.Now().UnixMilli()
	old := rec("old", now-8*24*int64(time.Hour/time.Millisecond), `1`)
	_ = s.Add(ctx, old)
	_ = s.Add(ctx, rec("fresh", now, `2`))

	proc := &fakeProcessor{}
	o := newTestOrch(t, s, proc)

	n, err := o.Drain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("drain: %d %v", n, err)
	}
	got := proc.callIDs()
	if len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("old record must not be delivered: %v", got)
	}
	if count, _ := s.Count(); count != 0 {
		t.Fatalf("old record should be deleted, count=%d", count)
	}
}

func TestDiscardedRecordsGoToDeadLetter(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	spent := rec("spent", base, `1`)
	spent.RetryCount = 5
	_ = s.Add(ctx, spent)

	o := newTestOrch(t, s, &fakeProcessor{}, func(o *OrchestratorOptions) { o.DeadLetter = true })
	if _, err := o.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	dead, _ := s.DeadLetters()
	if len(dead) != 1 || dead[0].ID != "spent" {
		t.Fatalf("expected spent in dead letters: %+v", dead)
	}
}

func TestDrainSingleFlight(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	_ = s.Add(ctx, rec("a", base, `1`))
	_ = s.Add(ctx, rec("b", base+1, `2`))

	proc := &fakeProcessor{started: make(chan struct{}), block: make(chan struct{})}
	o := newTestOrch(t, s, proc)

	results := make(chan int, 2)
	drain := func() {
		n, err := o.Drain(ctx)
		if err != nil {
			t.Errorf("drain: %v", err)
		}
		results <- n
	}
	go drain()
	<-proc.started
	// the first cycle is parked inside the processor; a second caller now
	// joins it instead of starting another
	go drain()
	time.Sleep(50 * time.Millisecond)
	close(proc.block)

	n1, n2 := <-results, <-results
	if n1 != 2 || n2 != 2 {
		t.Fatalf("both callers must share the one cycle's outcome: %d %d", n1, n2)
	}
	if got := proc.callIDs(); len(got) != 2 {
		t.Fatalf("records must be processed exactly once: %v", got)
	}
}

func TestDrainSkipsWhenProcessorNotReady(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	ctx := context.Background()
	_ = s.Add(ctx, rec("a", time.Now().UnixMilli(), `1`))

	proc := &fakeProcessor{notReady: true}
	o := newTestOrch(t, s, proc)
	n, err := o.Drain(ctx)
	if err != nil || n != 0 {
		t.Fatalf("drain: %d %v", n, err)
	}
	if count, _ := s.Count(); count != 1 {
		t.Fatalf("queue must be untouched when not ready, count=%d", count)
	}
}

func TestCompetingInstanceSkipsHeldLease(t *testing.T) {
	shared := kv.NewMemory()
	sA := newTestStore(t, shared, "inst-a", 1<<20)
	sB := newTestStore(t, shared, "inst-b", 1<<20)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	_ = sA.Add(ctx, rec("a", base, `1`))
	_ = sA.Add(ctx, rec("b", base+1, `2`))

	procA := &fakeProcessor{started: make(chan struct{}), block: make(chan struct{})}
	oA := newTestOrch(t, sA, procA, func(o *OrchestratorOptions) { o.Mode = ModeCompete })
	oB := newTestOrch(t, sB, &fakeProcessor{}, func(o *OrchestratorOptions) { o.Mode = ModeCompete })

	done := make(chan int, 1)
	go func() {
		n, _ := oA.Drain(ctx)
		done <- n
	}()
	<-procA.started

	// b cannot win the lease while a's cycle is in flight: zero, no error
	n, err := oB.Drain(ctx)
	if err != nil || n != 0 {
		t.Fatalf("competing drain should skip: %d %v", n, err)
	}

	close(procA.block)
	if n := <-done; n != 2 {
		t.Fatalf("holder's drain: %d", n)
	}
	// after release, b can drain (nothing left)
	if n, err := oB.Drain(ctx); err != nil || n != 0 {
		t.Fatalf("post-release drain: %d %v", n, err)
	}
}

func TestLockLossHaltsCycle(t *testing.T) {
	shared := kv.NewMemory()
	s := newTestStore(t, shared, "inst-a", 1<<20)
	ctx := context.Background()
	base := time.Now().UnixMilli()
	_ = s.Add(ctx, rec("a", base, `1`))
	_ = s.Add(ctx, rec("b", base+1, `2`))
	_ = s.Add(ctx, rec("c", base+2, `3`))

	proc := &fakeProcessor{started: make(chan struct{}), block: make(chan struct{}, 3)}
	o := newTestOrch(t, s, proc, func(o *OrchestratorOptions) { o.Mode = ModeCompete })

	done := make(chan int, 1)
	go func() {
		n, err := o.Drain(ctx)
		if err != nil {
			t.Errorf("drain: %v", err)
		}
		done <- n
	}()
	proc.block <- struct{}{} // let the first record through
	<-proc.started

	// steal the lease mid-cycle; the next record boundary must observe it
	thief, _ := json.Marshal(Lease{HolderID: "inst-b", AcquiredAt: nowMs(), ExpiresAt: nowMs() + 60_000})
	_ = shared.Set(s.keys.Lease, thief)
	proc.block <- struct{}{}
	proc.block <- struct{}{}

	n := <-done
	if n != 1 {
		t.Fatalf("cycle should stop after losing the lock: processed=%d", n)
	}
	left, _ := s.GetAll()
	if len(left) != 2 {
		t.Fatalf("remaining records: %+v", left)
	}
}

func TestProcessorErrorPropagatesAndReleasesLease(t *testing.T) {
	shared := kv.NewMemory()
	s := newTestStore(t, shared, "inst-a", 1<<20)
	ctx := context.Background()
	_ = s.Add(ctx, rec("a", time.Now().UnixMilli(), `1`))

	boom := errors.New("boom")
	proc := &fakeProcessor{procErr: boom}
	o := newTestOrch(t, s, proc, func(o *OrchestratorOptions) { o.Mode = ModeCompete })

	if _, err := o.Drain(ctx); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if lease, _ := s.Current(); lease != nil {
		t.Fatalf("lease must be released on the error path: %+v", lease)
	}
}

func TestEnqueueAutoDrain(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	proc := &fakeProcessor{}
	o := newTestOrch(t, s, proc, func(o *OrchestratorOptions) { o.AutoDrain = true })
	ctx := context.Background()

	if _, err := o.Enqueue(ctx, json.RawMessage(`{"event":"saved"}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if count, _ := s.Count(); count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("auto drain did not deliver the record")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueAssignsIdentityAndTimestamp(t *testing.T) {
	s := newTestStore(t, nil, "", 1<<20)
	o := newTestOrch(t, s, &fakeProcessor{})
	before := time.Now().UnixMilli()
	r, err := o.Enqueue(context.Background(), json.RawMessage(`1`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if r.ID == "" || r.RetryCount != 0 || r.LastAttemptAt != 0 {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.EnqueuedAt < before || r.EnqueuedAt > time.Now().UnixMilli() {
		t.Fatalf("enqueuedAt out of range: %d", r.EnqueuedAt)
	}
	r2, _ := o.Enqueue(context.Background(), json.RawMessage(`2`))
	if r2.ID == r.ID {
		t.Fatalf("ids must be unique")
	}
}

func TestShutdownIdempotentAndFlushes(t *testing.T) {
	shared := kv.NewMemory()
	s := newTestStore(t, shared, "inst-a", 1<<20)
	ctx := context.Background()
	_ = s.Add(ctx, rec("a", time.Now().UnixMilli(), `1`))

	proc := &fakeProcessor{}
	o := newTestOrch(t, s, proc, func(o *OrchestratorOptions) { o.Mode = ModeCompete })

	o.Shutdown(ctx)
	o.Shutdown(ctx) // second call is a no-op

	if count, _ := s.Count(); count != 0 {
		t.Fatalf("shutdown should attempt a final drain, count=%d", count)
	}
	if lease, _ := s.Current(); lease != nil {
		t.Fatalf("lease must not survive shutdown: %+v", lease)
	}
}

func TestLeaderModeDrainsOnTimer(t *testing.T) {
	shared := kv.NewMemory()
	s := newTestStore(t, shared, "inst-a", 1<<20)
	proc := &fakeProcessor{}
	o := newTestOrch(t, s, proc, func(o *OrchestratorOptions) {
		o.Mode = ModeLeader
		o.DrainInterval = 20 * time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	_ = s.Add(ctx, rec("a", time.Now().UnixMilli(), `1`))
	deadline := time.Now().Add(2 * time.Second)
	for {
		if count, _ := s.Count(); count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("leader loop did not drain the record")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseMode(t *testing.T) {
	for s, want := range map[string]Mode{"disabled": ModeDisabled, "compete": ModeCompete, "leader": ModeLeader} {
		got, err := ParseMode(s)
		if err != nil || got != want {
			t.Fatalf("parse %q: %v %v", s, got, err)
		}
	}
	if _, err := ParseMode("quorum"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
