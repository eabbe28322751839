// Package server wires the chi router, core middleware, and health/metrics
// endpoints into one HTTP listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baroni200/overpass-landmarks/internal/core/config"
	"github.com/baroni200/overpass-landmarks/internal/core/health"
	"github.com/baroni200/overpass-landmarks/internal/core/middleware"
	"github.com/baroni200/overpass-landmarks/internal/core/router"
)

// Run sets up the chi router and serves until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h *router.Handler, rr health.ReadinessReporter) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(rr))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.WebhookSecret, router.Unauthorized))
		r.Post("/webhook", h.PostWebhook)
	})
	r.Get("/webhook/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.GetWebhookByID(w, r, chi.URLParam(r, "id"))
	})
	r.Get("/landmarks", h.GetLandmarks)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
