package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/engyne/nodecore/internal/alerts"
	"github.com/engyne/nodecore/internal/config"
	"github.com/engyne/nodecore/internal/metrics"
	"github.com/engyne/nodecore/internal/slotfs"
)

// killGrace is how long stop_slot waits for a graceful SIGTERM exit
// before escalating to SIGKILL (spec.md §5: 5s).
const killGrace = 5 * time.Second

// WorkerCommand builds the argv for a worker process given its slot id
// and run id (spec.md §6 worker process contract: positional args
// slots_root, slot_id, run_id, api_base, worker_secret, profile_path,
// heartbeat_interval_seconds).
type WorkerCommand func(slotID, runID string) *exec.Cmd

// Manager is the per-node slot registry (original_source/core/
// slot_manager.py SlotManager, generalized to Go process handling).
type Manager struct {
	cfg      config.SupervisorConfig
	logger   *slog.Logger
	alerts   *alerts.Client
	workerCmd WorkerCommand

	mu    sync.Mutex
	slots map[string]*ManagedSlot
}

// NewManager builds a Manager. workerCmd is called fresh for every
// (re)start so each attempt gets an unexercised *exec.Cmd.
func NewManager(cfg config.SupervisorConfig, logger *slog.Logger, workerCmd WorkerCommand) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		alerts:    alerts.NewClient(cfg.AlertWebhookURL, cfg.NodeID),
		workerCmd: workerCmd,
		slots:     make(map[string]*ManagedSlot),
	}
}

// Tick runs one supervision cycle: scan, refresh snapshots, enforce
// heartbeat liveness (spec.md §4.1 tick).
func (m *Manager) Tick(ctx context.Context) {
	m.scanSlots()
	m.refreshSnapshots(ctx)
	m.enforceHeartbeat(ctx)
}

// Run loops Tick on cfg.ScanInterval until ctx is cancelled, then stops
// all managed slots.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ScanInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.StopAll(context.Background())
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// scanSlots discovers slot directories under SlotsRoot and registers
// any not already tracked.
func (m *Manager) scanSlots() {
	paths, err := slotfs.List(m.cfg.SlotsRoot)
	if err != nil {
		m.logger.Warn("scan slots", slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		if _, ok := m.slots[p.SlotID]; !ok {
			m.slots[p.SlotID] = &ManagedSlot{SlotID: p.SlotID}
		}
	}
	metrics.SlotsManaged.Set(float64(len(m.slots)))
}

// refreshSnapshots reads each slot's on-disk snapshot concurrently,
// bounded by an errgroup so a slow filesystem can't serialize the tick.
func (m *Manager) refreshSnapshots(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			m.updateSnapshot(id)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) updateSnapshot(slotID string) {
	paths, err := slotfs.Resolve(m.cfg.SlotsRoot, slotID)
	if err != nil {
		return
	}
	snap := slotfs.ReadSnapshot(paths)

	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.slots[slotID]
	if !ok {
		return
	}
	if ms.HasSnapshot && ms.LastSnapshot.Phase != snap.Phase {
		metrics.SlotPhase.WithLabelValues(slotID, string(ms.LastSnapshot.Phase)).Set(0)
	}
	ms.LastSnapshot = snap
	ms.HasSnapshot = true
	ms.PidAlive = snap.PidAlive

	if snap.HeartbeatKnown {
		metrics.HeartbeatAgeSeconds.WithLabelValues(slotID).Set(snap.HeartbeatAgeSeconds)
	}
	metrics.SlotPhase.WithLabelValues(slotID, string(snap.Phase)).Set(1)
}

// enforceHeartbeat restarts any slot whose heartbeat is stale, whose
// process has exited, or whose pid is no longer alive, alerting on the
// first occurrence of a reason and on repeats past AlertsMinSeconds
// (original_source/core/slot_manager.py enforce_heartbeat).
func (m *Manager) enforceHeartbeat(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	candidates := make([]*ManagedSlot, 0, len(m.slots))
	for _, ms := range m.slots {
		candidates = append(candidates, ms)
	}
	m.mu.Unlock()

	for _, ms := range candidates {
		m.mu.Lock()
		if ms.Disabled || !ms.HasSnapshot {
			m.mu.Unlock()
			continue
		}
		snap := ms.LastSnapshot
		staleHB := !snap.HeartbeatKnown || snap.HeartbeatAgeSeconds > m.cfg.HeartbeatTTL().Seconds()
		procDead := !ms.Running()
		pidDead := ms.PidAlive != nil && !*ms.PidAlive
		lastStart := ms.LastStartTS
		m.mu.Unlock()

		if !staleHB && !procDead && !pidDead {
			continue
		}

		reason := restartReason(staleHB, snap, procDead, pidDead)

		m.mu.Lock()
		shouldAlert := ms.LastAlertTS.IsZero() ||
			ms.LastAlertReason != reason ||
			now.Sub(ms.LastAlertTS) >= m.cfg.AlertsMinInterval()
		if shouldAlert {
			ms.LastAlertTS = now
			ms.LastAlertReason = reason
		}
		m.mu.Unlock()

		if shouldAlert {
			m.alerts.Send("nodecore slot restart", ms.SlotID, reason)
			metrics.SlotAlertsTotal.WithLabelValues(ms.SlotID, reason).Inc()
		}
		metrics.SlotRestartsTotal.WithLabelValues(ms.SlotID, reason).Inc()
		// A live worker that stopped heartbeating is terminated first so
		// StartSlot can spawn its replacement; a freshly started worker
		// gets one full TTL to write its first heartbeat.
		if staleHB && !procDead && now.Sub(lastStart) >= m.cfg.HeartbeatTTL() {
			_ = m.StopSlot(ctx, ms.SlotID, true)
		}
		m.StartSlot(ctx, ms.SlotID)
	}
}

func restartReason(staleHB bool, snap slotfs.Snapshot, procDead, pidDead bool) string {
	reason := ""
	add := func(s string) {
		if reason != "" {
			reason += ", "
		}
		reason += s
	}
	if staleHB {
		if !snap.HeartbeatKnown {
			add("heartbeat missing")
		} else {
			add(fmt.Sprintf("heartbeat stale (%ds)", int(snap.HeartbeatAgeSeconds)))
		}
	}
	if procDead {
		add("process exited")
	}
	if pidDead {
		add("pid not alive")
	}
	if reason == "" {
		reason = "unknown"
	}
	return reason
}

// StartSlot (re)starts a slot's worker process, subject to the
// min-restart-interval anti-churn guard and skipping if already
// running (original_source/core/slot_manager.py start_slot).
func (m *Manager) StartSlot(ctx context.Context, slotID string) error {
	paths, err := slotfs.Resolve(m.cfg.SlotsRoot, slotID)
	if err != nil {
		return fmt.Errorf("resolve slot %s: %w", slotID, err)
	}
	if err := paths.EnsureSlotDir(); err != nil {
		return fmt.Errorf("ensure slot dir %s: %w", slotID, err)
	}

	m.mu.Lock()
	ms, ok := m.slots[slotID]
	if !ok {
		ms = &ManagedSlot{SlotID: slotID}
		m.slots[slotID] = ms
	}
	ms.Disabled = false

	now := time.Now()
	if !ms.LastStartTS.IsZero() && now.Sub(ms.LastStartTS) < m.cfg.MinRestartInterval() {
		m.mu.Unlock()
		return nil
	}
	if ms.Running() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	runID := uuid.New().String()
	if err := slotfs.WriteRunMeta(paths, slotfs.RunMeta{
		SlotID:    slotID,
		RunID:     runID,
		StartedAt: now.UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("write run meta %s: %w", slotID, err)
	}

	cmd := m.workerCmd(slotID, runID)
	if err := cmd.Start(); err != nil {
		m.logger.Error("start worker", slog.String("slot_id", slotID), slog.String("error", err.Error()))
		return fmt.Errorf("start worker %s: %w", slotID, err)
	}

	m.mu.Lock()
	ms.attach(cmd)
	ms.RunID = runID
	ms.LastStartTS = now
	ms.LastRestartTS = now
	m.mu.Unlock()

	m.logger.Info("slot started", slog.String("slot_id", slotID), slog.String("run_id", runID), slog.Int("pid", cmd.Process.Pid))
	return nil
}

// StopSlot sends SIGTERM to the slot's worker and waits up to
// killGrace; when force is set and the worker is still alive it then
// sends SIGKILL and waits up to 3s more (original_source/core/
// slot_manager.py stop_slot, generalized from Popen.terminate/kill to
// exec.Cmd.Process.Signal/Kill).
func (m *Manager) StopSlot(ctx context.Context, slotID string, force bool) error {
	m.mu.Lock()
	ms, ok := m.slots[slotID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	ms.Disabled = true
	ms.LastRestartTS = time.Now()
	cmd := ms.Cmd
	done := ms.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	select {
	case <-done:
		// already exited
	default:
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			m.logger.Warn("signal worker", slog.String("slot_id", slotID), slog.String("error", err.Error()))
		}
		select {
		case <-done:
		case <-time.After(killGrace):
			if force {
				_ = cmd.Process.Kill()
				select {
				case <-done:
				case <-time.After(3 * time.Second):
				}
			}
		}
	}

	m.mu.Lock()
	ms.LastStopTS = time.Now()
	ms.Cmd = nil
	m.mu.Unlock()
	return nil
}

// StopAll force-stops every managed slot, aggregating any errors.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var result error
	for _, id := range ids {
		if err := m.StopSlot(ctx, id, true); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Snapshot returns a copy of the current slot registry for status reporting.
func (m *Manager) Snapshot() map[string]slotfs.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]slotfs.Snapshot, len(m.slots))
	for id, ms := range m.slots {
		out[id] = ms.LastSnapshot
	}
	return out
}
