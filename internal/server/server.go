// Package server exposes the ingestion job's control surface over HTTP:
// start/stop commands, on-demand stats with host health, and a websocket
// stream of live progress.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spacefeed/spacefeed/internal/health"
	"github.com/spacefeed/spacefeed/internal/job"
	"github.com/spacefeed/spacefeed/internal/models"
)

// Server wires the job controller to the control API.
type Server struct {
	controller *job.Controller
	hub        *Hub
	logger     *slog.Logger
	http       *http.Server
}

// New creates a server listening on addr. It registers itself as the
// controller's progress sink, so construct it before starting any run.
func New(addr string, controller *job.Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		controller: controller,
		hub:        NewHub(logger),
		logger:     logger,
	}
	controller.SetProgressFunc(s.hub.Notify)

	mux := http.NewServeMux()
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/ws/stats", s.hub.Handle)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down control API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// handleStart kicks off a run unless one is already active. Always 200; the
// body says which case applied.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The run outlives this request, so it gets its own context.
	if s.controller.Start(context.Background()) {
		writeJSON(w, s.logger, map[string]string{"status": "started"})
		return
	}
	writeJSON(w, s.logger, map[string]string{"status": "already running"})
}

// handleStop is fire-and-forget: the signal is recorded and the current file
// finishes before the run halts.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.controller.Stop()
	writeJSON(w, s.logger, map[string]string{"status": "stop signal sent"})
}

// handleStats samples host utilization and snapshots the counters. Always
// best-effort: a failed host reading still returns the counter state.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.controller.Snapshot()

	sample, err := health.Read(r.Context())
	if err != nil {
		s.logger.Warn("host metrics sampling failed", "error", err)
	}

	writeJSON(w, s.logger, buildStats(snap, sample))
}

// handleMetrics serves the current run's operation timings (listing,
// download, insert) for debugging slow runs.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, s.controller.Metrics())
}

// buildStats renders a snapshot plus host sample into the stats document.
func buildStats(snap job.Snapshot, sample health.Sample) models.Stats {
	var uptime int64
	if !snap.StartedAt.IsZero() {
		uptime = int64(time.Since(snap.StartedAt).Seconds())
	}

	return models.Stats{
		Inserted:      snap.Inserted,
		Total:         snap.Total,
		Progress:      models.FormatProgress(snap.Inserted, snap.Total),
		CPUUsage:      fmt.Sprintf("%.1f%%", sample.CPUPercent),
		MemoryUsage:   fmt.Sprintf("%.1f%%", sample.MemPercent),
		UptimeSeconds: uptime,
		JobRunning:    snap.State != job.StateIdle,
		Healthy:       sample.Healthy(),
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response failed", "error", err)
	}
}
