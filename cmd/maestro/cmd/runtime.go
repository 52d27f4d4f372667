package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poucet/maestro/pkg/config"
	"github.com/poucet/maestro/pkg/history"
	"github.com/poucet/maestro/pkg/instancelock"
	"github.com/poucet/maestro/pkg/portprobe"
	"github.com/poucet/maestro/pkg/procmgr"
)

const shutdownTimeout = 15 * time.Second

// runtime is the supervisor and the resources that live as long as it
type runtime struct {
	lock          *instancelock.Lock
	store         *history.Store
	supervisor    *procmgr.Supervisor
	metricsServer *http.Server
	logger        *slog.Logger
}

// openRuntime takes the instance lock, opens run history and the metrics
// endpoint and builds the supervisor. Without a target command the
// supervisor is nil, or an error when requireTarget is set.
func openRuntime(ctx context.Context, cfg *config.Config, requireTarget bool, opts ...procmgr.Option) (*runtime, error) {
	rt := &runtime{logger: logger.With("component", "runtime")}

	lock, err := instancelock.Acquire(cfg.WorkingDir)
	if err != nil {
		return nil, err
	}
	rt.lock = lock

	if path := cfg.HistoryPath(); path != "" {
		store, err := history.Open(ctx, path)
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
		rt.store = store
		opts = append(opts, procmgr.WithRecorder(store))
	}

	if cfg.TargetCmd == "" && !requireTarget {
		rt.logger.Warn("no target command configured, lifecycle tools are disabled",
			"env", config.EnvKey(config.KeyTargetCmd))
		return rt, nil
	}
	pc, err := cfg.ProcessConfig()
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	if cfg.MetricsPort > 0 {
		collector := procmgr.NewPrometheusMetricsCollector("maestro")
		rt.metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := rt.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("metrics server error", "error", err)
			}
		}()
		rt.logger.Info("prometheus metrics endpoint", "addr", fmt.Sprintf("http://0.0.0.0:%d/metrics", cfg.MetricsPort))
		opts = append(opts, procmgr.WithMetricsCollector(collector))
	}

	base := []procmgr.Option{
		procmgr.WithLogger(logger),
		procmgr.WithProbe(portprobe.New(portprobe.WithLogger(logger))),
		procmgr.WithEventPublisher(&procmgr.LogEventPublisher{Logger: logger.With("component", "events")}),
	}
	sup, err := procmgr.NewSupervisor(pc, append(base, opts...)...)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.supervisor = sup
	return rt, nil
}

// close stops the supervisor and releases everything openRuntime acquired
func (rt *runtime) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if rt.supervisor != nil {
		if err := rt.supervisor.Close(ctx); err != nil {
			rt.logger.Error("failed to stop supervisor", "error", err)
		}
	}
	if rt.metricsServer != nil {
		if err := rt.metricsServer.Shutdown(ctx); err != nil {
			rt.logger.Error("failed to stop metrics server", "error", err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Error("failed to close run history", "error", err)
		}
	}
	if rt.lock != nil {
		if err := rt.lock.Release(); err != nil {
			rt.logger.Error("failed to release instance lock", "error", err)
		}
	}
}
