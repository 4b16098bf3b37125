package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	cfgpkg "github.com/drainq/drainq/internal/config"
	"github.com/drainq/drainq/internal/kv"
	"github.com/drainq/drainq/internal/metrics"
	"github.com/drainq/drainq/internal/processor"
	"github.com/drainq/drainq/internal/queue"
	pebblestore "github.com/drainq/drainq/internal/storage/pebble"
	logpkg "github.com/drainq/drainq/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Processor overrides the delivery backend. When nil, the configured
	// command is used; with neither, drains are paused (not-ready) while
	// enqueue and inspection still work.
	Processor queue.Processor
	Logger    logpkg.Logger
	// Instrument registers Prometheus counters for queue and storage
	// activity. Off by default so short-lived CLI invocations stay quiet.
	Instrument bool
}

// Runtime wires the kv backend, queue store, and orchestrator for one
// instance.
type Runtime struct {
	cfg  cfgpkg.Config
	log  logpkg.Logger
	db   *pebblestore.DB
	kv   kv.Store
	st   *queue.Store
	orch *queue.Orchestrator
}

// paused is the delivery backend of last resort: it reports not-ready so
// drain cycles skip instead of consuming records with nowhere to go.
type paused struct{}

func (paused) Process(context.Context, queue.Record) (bool, error) { return false, nil }
func (paused) Ready(context.Context) bool                          { return false }

// Open validates the configuration and assembles a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logpkg.NewNop()
	}

	var qm queue.Metrics = queue.NoopMetrics{}
	var sm pebblestore.MetricsHook
	if opts.Instrument {
		qm = metrics.NewQueue(cfg.QueueName)
		sm = metrics.NewStorage()
	}

	rt := &Runtime{cfg: cfg, log: log}
	store, err := rt.openBackend(sm)
	if err != nil {
		return nil, err
	}
	rt.kv = store

	rt.st, err = queue.NewStore(queue.StoreOptions{
		KV:                  store,
		QueueName:           cfg.QueueName,
		MaxBytes:            cfg.MaxStorageBytes,
		LeaseDuration:       cfg.LeaseDuration(),
		LeaseCheckInterval:  cfg.LeaseCheckInterval(),
		LeaseAcquireTimeout: cfg.LeaseAcquireTimeout(),
		Logger:              log,
		Metrics:             qm,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	proc := opts.Processor
	if proc == nil && cfg.Command != "" {
		proc, err = processor.NewCommand(processor.CommandOptions{
			Path:    cfg.Command,
			Args:    cfg.CommandArgs,
			Timeout: cfg.CommandTimeout(),
			Logger:  log,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	if proc == nil {
		proc = paused{}
	}

	mode, err := queue.ParseMode(cfg.MultiInstanceMode)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.orch, err = queue.NewOrchestrator(queue.OrchestratorOptions{
		Store:         rt.st,
		Processor:     proc,
		MaxRetries:    cfg.MaxRetries,
		MaxRecordAge:  cfg.MaxRecordAge(),
		AutoDrain:     cfg.AutoDrain(),
		Mode:          mode,
		DrainInterval: cfg.DrainInterval(),
		DeadLetter:    cfg.DeadLetter,
		Logger:        log,
		Metrics:       qm,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) openBackend(sm pebblestore.MetricsHook) (kv.Store, error) {
	dataDir := r.cfg.DataDir
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	switch r.cfg.Backend {
	case "memory":
		return kv.NewMemory(), nil
	case "file":
		return kv.NewFile(filepath.Join(dataDir, "kv"))
	case "pebble":
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir: filepath.Join(dataDir, "db"),
			Metrics: sm,
		})
		if err != nil {
			return nil, err
		}
		r.db = db
		return kv.NewPebble(db), nil
	default:
		return nil, fmt.Errorf("runtime: unknown backend %q", r.cfg.Backend)
	}
}

// Close releases backend resources. Call Shutdown on the orchestrator first
// when a drain loop may be running.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// CheckHealth verifies the backend answers a probe read.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if _, err := r.kv.Get("dq/health/probe"); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	return nil
}

// Store exposes the queue store for inspection commands.
func (r *Runtime) Store() *queue.Store { return r.st }

// Orchestrator exposes enqueue and drain sequencing.
func (r *Runtime) Orchestrator() *queue.Orchestrator { return r.orch }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.cfg }

// Status is a point-in-time summary for the status endpoint and CLI.
type Status struct {
	QueueName   string       `json:"queueName"`
	Backend     string       `json:"backend"`
	Count       int          `json:"count"`
	SizeBytes   int          `json:"sizeBytes"`
	MaxBytes    int          `json:"maxBytes"`
	DeadLetters int          `json:"deadLetters"`
	Lease       *queue.Lease `json:"lease,omitempty"`
	HolderID    string       `json:"holderId"`
}

// Status gathers the current queue summary.
func (r *Runtime) Status(ctx context.Context) (Status, error) {
	count, err := r.st.Count()
	if err != nil {
		return Status{}, err
	}
	size, err := r.st.Size()
	if err != nil {
		return Status{}, err
	}
	dead, err := r.st.DeadLetters()
	if err != nil {
		return Status{}, err
	}
	lease, err := r.st.Current()
	if err != nil {
		return Status{}, err
	}
	return Status{
		QueueName:   r.cfg.QueueName,
		Backend:     r.cfg.Backend,
		Count:       count,
		SizeBytes:   size,
		MaxBytes:    r.cfg.MaxStorageBytes,
		DeadLetters: len(dead),
		Lease:       lease,
		HolderID:    r.st.HolderID(),
	}, nil
}
