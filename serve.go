package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/handler"
	"github.com/stevemurr/dataset-server/query"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := a.service(query.WithMetrics(query.NewMetrics(reg)))
	h := handler.New(svc,
		handler.WithLogger(a.log),
		handler.WithGatherer(reg),
		handler.WithAllowedOrigins(a.cfg.AllowedOrigins),
		handler.WithRateLimit(a.cfg.RateLimit, a.cfg.RateBurst),
		handler.WithMaxBodyBytes(a.cfg.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("dataset server starting",
			zap.String("addr", srv.Addr),
			zap.String("backend", a.cfg.Backend),
			zap.String("dataDir", a.cfg.DataDir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	a.log.Info("server stopped")
	return nil
}
