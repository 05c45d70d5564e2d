// Command worker runs a single slot's scrape/filter/contact/verify
// loop. It is invoked by the supervisor with the positional argument
// contract from spec.md §6: (slots_root, slot_id, run_id, api_base,
// worker_secret, profile_path, heartbeat_interval_seconds).
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/engyne/nodecore/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 8 {
		log.Fatalf("usage: worker <slots_root> <slot_id> <run_id> <api_base> <worker_secret> <profile_path> <heartbeat_interval_seconds>")
	}

	heartbeatSeconds, err := strconv.Atoi(os.Args[7])
	if err != nil {
		log.Fatalf("invalid heartbeat_interval_seconds %q: %v", os.Args[7], err)
	}

	cfg := worker.Config{
		SlotsRoot:         os.Args[1],
		SlotID:            os.Args[2],
		RunID:             os.Args[3],
		APIBase:           os.Args[4],
		WorkerSecret:      os.Args[5],
		ProfilePath:       os.Args[6],
		HeartbeatInterval: time.Duration(heartbeatSeconds) * time.Second,
	}

	logger.Info("worker starting", slog.String("slot_id", cfg.SlotID), slog.String("run_id", cfg.RunID))

	w, err := worker.New(cfg, &worker.StubScraper{SlotID: cfg.SlotID, RunID: cfg.RunID}, logger)
	if err != nil {
		log.Fatalf("build worker: %v", err)
	}

	if err := w.Run(context.Background()); err != nil {
		logger.Error("worker exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("worker stopped cleanly", slog.String("slot_id", cfg.SlotID))
}
