package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-rfq/internal/metrics"
	"github.com/ahrav/go-rfq/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the negotiation worker",
	Long: `Registers the negotiation workflow and its activities on the configured
Temporal task queue and serves Prometheus metrics until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		deps, err := worker.Build(ctx, cfg, logger, reg, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := deps.Close(); err != nil {
				logger.Warn("Failed to release worker dependencies", "error", err)
			}
		}()

		c, err := worker.NewTemporalClient(cfg.Temporal, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		if cfg.Metrics.Enabled {
			srv := &http.Server{
				Addr:              cfg.Metrics.Addr,
				Handler:           metricsMux(reg),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("Serving metrics", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		w := sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{})
		worker.RegisterAll(w, deps.Activities)

		logger.Info("Negotiation worker starting",
			"task_queue", cfg.Temporal.TaskQueue,
			"namespace", cfg.Temporal.Namespace,
			"store", cfg.Store.Backend,
			"event_sink", cfg.Events.Sink)
		return w.Run(sdkworker.InterruptCh())
	},
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
