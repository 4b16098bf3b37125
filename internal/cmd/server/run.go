package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/drainq/drainq/internal/config"
	"github.com/drainq/drainq/internal/runtime"
	httpserver "github.com/drainq/drainq/internal/server/http"
	logpkg "github.com/drainq/drainq/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
}

// Run starts the drain daemon and blocks until ctx is cancelled. In leader
// mode the orchestrator's standing loop competes for the lease; in compete
// mode a local ticker drains on the configured interval, winning the lease
// per cycle.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers without
	// signal handling still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logpkg.ApplyConfig(&opts.Config.Log)
		if err != nil {
			logger = logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{}))
		}
	}
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{
		Config:     opts.Config,
		Logger:     logger,
		Instrument: true,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config()
	logger.Info("starting drainq daemon",
		logpkg.Str("queue", cfg.QueueName),
		logpkg.Str("backend", cfg.Backend),
		logpkg.Str("mode", cfg.MultiInstanceMode),
		logpkg.Str("http", cfg.HTTPAddr),
	)

	orch := rt.Orchestrator()
	orch.Start(sctx)

	var wg sync.WaitGroup
	if cfg.MultiInstanceMode != cfgpkg.ModeLeader {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainLoop(sctx, rt, logger)
		}()
	}

	var hsrv *httpserver.Server
	if cfg.HTTPAddr != "" {
		hsrv = httpserver.New(rt)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
				logger.Error("http server failed", logpkg.Err(err))
			}
		}()
	}

	<-sctx.Done()
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()

	shctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	orch.Shutdown(shctx)
	return nil
}

func drainLoop(ctx context.Context, rt *runtime.Runtime, logger logpkg.Logger) {
	interval := rt.Config().DrainInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := rt.Orchestrator().Drain(ctx); err != nil {
			logger.Error("drain failed", logpkg.Err(err))
		} else if n > 0 {
			logger.Info("drain complete", logpkg.Int("processed", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
