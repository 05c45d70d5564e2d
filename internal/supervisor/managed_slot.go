// Package supervisor runs the per-node slot registry: it discovers
// slot directories, starts and restarts their worker processes, and
// enforces heartbeat liveness, grounded on original_source/core/
// slot_manager.py's ManagedSlot/SlotManager.
package supervisor

import (
	"os/exec"
	"time"

	"github.com/engyne/nodecore/internal/slotfs"
)

// ManagedSlot tracks one slot's worker process and the supervisor's
// view of its health across ticks (spec.md §4.1 ManagedSlot).
type ManagedSlot struct {
	SlotID          string
	Cmd             *exec.Cmd
	RunID           string
	LastSnapshot    slotfs.Snapshot
	HasSnapshot     bool
	PidAlive        *bool
	Disabled        bool
	LastStartTS     time.Time
	LastStopTS      time.Time
	LastRestartTS   time.Time
	LastAlertTS     time.Time
	LastAlertReason string

	// done is fed by the goroutine that calls Cmd.Wait(); it is closed
	// once the process has exited so Running() never blocks.
	done chan struct{}
}

// Running reports whether the managed process is believed to still be alive.
func (m *ManagedSlot) Running() bool {
	if m.Cmd == nil || m.Cmd.Process == nil || m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// attach registers cmd as the slot's process and starts the goroutine
// that reaps it, marking done closed on exit.
func (m *ManagedSlot) attach(cmd *exec.Cmd) {
	m.Cmd = cmd
	m.done = make(chan struct{})
	go func() {
		cmd.Wait()
		close(m.done)
	}()
}
