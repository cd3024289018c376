package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jbweber/vmwatch/internal/metrics"
	"github.com/jbweber/vmwatch/internal/monitor"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

const metricsShutdownTimeout = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll continuously",
	Long: `Poll once immediately and then on every interval until interrupted.

A failed poll is logged and the loop continues; the persisted state is left
as it was. With --metrics-addr, Prometheus metrics are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		interval := cfg.Watch.Interval
		if cmd.Flags().Changed("interval") {
			interval = watchInterval
		}
		addr := cfg.Watch.MetricsAddr
		if cmd.Flags().Changed("metrics-addr") {
			addr = watchMetricsAddr
		}

		m := metrics.New()
		svc, st, err := newService(cfg, logger, m)
		if err != nil {
			return err
		}
		defer closeStore(st, logger)

		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(cmd.Context())

		if addr != "" {
			srv := &http.Server{
				Addr:              addr,
				Handler:           metricsMux(m),
				ReadHeaderTimeout: 10 * time.Second,
			}
			g.Go(func() error { return serveMetrics(ctx, srv, logger) })
		}

		g.Go(func() error {
			logger.Info("watching inventory", "interval", interval, "source", cfg.Source.Type, "store", cfg.Store.Path)
			return svc.Watch(ctx, interval, func(r *monitor.Report) {
				if len(r.Changes) == 0 {
					return
				}
				out, err := formatter.FormatChanges(r.Changes)
				if err != nil {
					logger.Warn("failed to format changes", "error", err)
					return
				}
				fmt.Print(out)
			})
		})

		return g.Wait()
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (overrides config, default 1m)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9310")
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// serveMetrics runs srv until ctx ends, then shuts it down.
func serveMetrics(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	return nil
}
