package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskflow/pkg/config"
	"github.com/vnykmshr/taskflow/pkg/metrics"
	"github.com/vnykmshr/taskflow/pkg/report"
	"github.com/vnykmshr/taskflow/pkg/scheduling/supervisor"
	"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
)

// configFlags maps config keys to the flags that override them.
var configFlags = map[string]string{
	"pool_size":       "pool-size",
	"queue_capacity":  "queue-capacity",
	"consumers":       "consumers",
	"default_timeout": "timeout",
	"drain_timeout":   "drain-timeout",
	"rate":            "rate",
	"burst":           "burst",
	"log.level":       "log-level",
	"log.format":      "log-format",
	"metrics.enabled": "metrics",
	"metrics.addr":    "metrics-addr",
}

func newRunCommand() *cobra.Command {
	var w workload

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic workload through the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")

			v := viper.New()
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, path)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := run(ctx, cfg, w)
			fmt.Fprintf(cmd.OutOrStdout(),
				"produced=%d dispatched=%d completed=%d failed=%d timed_out=%d cancelled=%d\n",
				summary.Produced, summary.Dispatched, summary.Completed,
				summary.Failed, summary.TimedOut, summary.Cancelled)
			return err
		},
	}

	flags := cmd.Flags()
	flags.Int("pool-size", 0, "number of pool workers")
	flags.Int("queue-capacity", 0, "capacity of the pool intake and job channel")
	flags.Int("consumers", 0, "number of supervisor consumers")
	flags.Duration("timeout", 0, "per-job wait timeout")
	flags.Duration("drain-timeout", 0, "wait for in-flight jobs at shutdown")
	flags.Float64("rate", 0, "maximum jobs per second across producers (0 = unlimited)")
	flags.Int("burst", 0, "jobs that may be emitted back to back under --rate")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "console or json")
	flags.Bool("metrics", false, "serve Prometheus metrics")
	flags.String("metrics-addr", "", "listen address of the metrics endpoint")

	flags.IntVar(&w.Jobs, "jobs", 20, "number of jobs to produce")
	flags.IntVar(&w.Producers, "producers", 2, "number of producers")
	flags.DurationVar(&w.Duration, "job-duration", 50*time.Millisecond, "time each job spends working")
	flags.IntVar(&w.FailEvery, "fail-every", 0, "make every nth job fail (0 = never)")
	flags.UintVar(&w.Retries, "retries", 0, "retry failing jobs up to n extra times")
	flags.StringVar(&w.Cron, "cron", "", "emit jobs on a cron schedule instead of all at once")

	return cmd
}

// bindFlags binds every flag in configFlags so that, when set, it overrides
// the file and the environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range configFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("cannot bind flag %s: %w", name, err)
		}
	}
	return nil
}

// run wires the pipeline from cfg and drives w through it.
func run(ctx context.Context, cfg *config.Config, w workload) (supervisor.Summary, error) {
	logger, err := cfg.Log.Logger()
	if err != nil {
		return supervisor.Summary{}, err
	}
	defer func() { _ = logger.Sync() }()

	sink := report.NewZap(logger)
	poolConfig := cfg.WorkerPool()
	poolConfig.Sink = sink
	supConfig := cfg.Supervisor()
	supConfig.Sink = sink

	metricsConfig := metrics.Config{Enabled: cfg.Metrics.Enabled}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsConfig.Registry = reg
		registry := metrics.New(metricsConfig)
		poolConfig.Metrics = registry
		supConfig.Metrics = registry

		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pool, err := workerpool.NewWithConfigAndMetrics(poolConfig, poolConfig.Name, metricsConfig)
	if err != nil {
		return supervisor.Summary{}, err
	}

	sup, err := supervisor.New(pool, supConfig)
	if err != nil {
		_, _ = pool.Shutdown(true, 0)
		return supervisor.Summary{}, err
	}

	producers, err := w.producers()
	if err != nil {
		_ = sup.Close()
		return supervisor.Summary{}, err
	}

	limiter, err := cfg.Limiter()
	if err != nil {
		_ = sup.Close()
		return supervisor.Summary{}, err
	}
	if limiter != nil {
		for i, p := range producers {
			producers[i] = supervisor.Throttle(limiter, p)
		}
	}

	logger.Info("pipeline starting",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("consumers", cfg.Consumers),
		zap.Int("queue_capacity", cfg.QueueCapacity),
		zap.Int("jobs", w.Jobs),
	)

	start := time.Now()
	summary, runErr := sup.Run(ctx, producers...)
	closeErr := sup.Close()

	logger.Info("pipeline finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("completed", summary.Completed),
		zap.Int64("failed", summary.Failed),
		zap.Int64("timed_out", summary.TimedOut),
		zap.Int64("cancelled", summary.Cancelled),
		zap.Int64("terminations", summary.Terminations),
	)

	return summary, errors.Join(runErr, closeErr)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
