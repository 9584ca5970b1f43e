package component

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsListener serves the daemon's Prometheus metrics.
type MetricsListener struct {
	Logger   zerolog.Logger
	Listen   string
	Registry *prometheus.Registry
}

func (self *MetricsListener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(self.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         self.Listen,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			self.Logger.Warn().Err(err).Msg("Could not shut down cleanly")
		}
	}()

	self.Logger.Info().Str("listen", self.Listen).Msg("Starting")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
