// Command supervisor is the per-node process that owns the slot
// registry tick loop (spec.md §4.2) and hosts the verified-event HTTP
// sink (spec.md §4.6) plus a Prometheus /metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/engyne/nodecore/internal/config"
	"github.com/engyne/nodecore/internal/eventsink"
	"github.com/engyne/nodecore/internal/metrics"
	"github.com/engyne/nodecore/internal/middleware"
	"github.com/engyne/nodecore/internal/supervisor"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.LoadSupervisorConfig()
	if err != nil {
		log.Fatalf("load supervisor config: %v", err)
	}
	logger.Info("supervisor starting",
		slog.String("node_id", cfg.NodeID),
		slog.String("slots_root", cfg.SlotsRoot),
		slog.String("listen_addr", cfg.ListenAddr),
	)

	workerBin, err := workerBinaryPath()
	if err != nil {
		log.Fatalf("locate worker binary: %v", err)
	}

	heartbeatSeconds := fmt.Sprintf("%d", cfg.WorkerHeartbeatIntervalSeconds)
	mgr := supervisor.NewManager(*cfg, logger, func(slotID, runID string) *exec.Cmd {
		cmd := exec.Command(workerBin, cfg.SlotsRoot, slotID, runID, "http://"+cfg.ListenAddr, cfg.WorkerSecret, "", heartbeatSeconds)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd
	})

	sink := eventsink.New(cfg.RuntimeRoot, cfg.WorkerSecret, "", "", logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	r.Use(middleware.Logging(logger))
	r.Mount("/events", sink.Routes())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("event sink listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("event sink server error: %v", err)
		}
	}()

	go mgr.Run(ctx)

	<-ctx.Done()
	logger.Info("supervisor shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("event sink shutdown error", slog.String("error", err.Error()))
	}

	_ = mgr.StopAll(context.Background())
	logger.Info("supervisor stopped")
}

// workerBinaryPath resolves the worker binary next to this executable,
// falling back to $PATH lookup (both are built as separate cmd/
// binaries, spec.md §6 worker process contract).
func workerBinaryPath() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "worker")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	return exec.LookPath("worker")
}
