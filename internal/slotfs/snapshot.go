package slotfs

import (
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/engyne/nodecore/internal/slotconfig"
)

// Snapshot is the supervisor's derived view of one slot, combining
// config, state, status, leads count, and pid liveness (spec.md §3
// SlotSnapshot).
type Snapshot struct {
	SlotID              string
	Paths               Paths
	Config              slotconfig.Config
	ConfigPresent       bool
	State               State
	StatePresent        bool
	Status              State
	StatusPresent       bool
	LeadsCount          int
	LeadsCountKnown     bool
	Pid                 int
	PidAlive            *bool
	Phase               Phase
	HeartbeatTS         time.Time
	HeartbeatKnown      bool
	HeartbeatAgeSeconds float64
}

// ReadSnapshot assembles a Snapshot for paths. It is lenient: missing
// or malformed documents simply leave the corresponding *Present /
// *Known flag false, never an error.
func ReadSnapshot(paths Paths) Snapshot {
	snap := Snapshot{SlotID: paths.SlotID, Paths: paths}

	snap.Config = slotconfig.Load(paths.ConfigPath)
	snap.ConfigPresent = true // Load always returns a usable (possibly default) config

	state, stateOK := ReadState(paths)
	snap.State, snap.StatePresent = state, stateOK

	status, statusOK := ReadStatus(paths)
	snap.Status, snap.StatusPresent = status, statusOK

	if count, ok := CountLines(paths.LeadsPath); ok {
		snap.LeadsCount, snap.LeadsCountKnown = count, true
	}

	snap.Phase, snap.HeartbeatTS, snap.HeartbeatKnown, snap.Pid = extractLiveness(state, stateOK, status, statusOK)

	if snap.HeartbeatKnown {
		age := time.Since(snap.HeartbeatTS).Seconds()
		if age < 0 {
			age = 0
		}
		snap.HeartbeatAgeSeconds = age
	}

	if snap.Pid > 0 {
		alive, err := process.PidExists(int32(snap.Pid))
		if err == nil {
			snap.PidAlive = &alive
		}
	}

	return snap
}

// extractLiveness scans state then status (in that order) for the
// first usable phase, heartbeat, and pid: status only fills in fields
// that state lacks, regardless of which document was written last.
func extractLiveness(state State, stateOK bool, status State, statusOK bool) (Phase, time.Time, bool, int) {
	var phase Phase
	var hb time.Time
	var hbOK bool
	var pid int

	docs := []struct {
		doc State
		ok  bool
	}{{state, stateOK}, {status, statusOK}}

	for _, d := range docs {
		if !d.ok {
			continue
		}
		if phase == "" && d.doc.Phase != "" {
			phase = d.doc.Phase
		}
		if !hbOK {
			if t, ok := parseHeartbeat(d.doc.HeartbeatTS); ok {
				hb, hbOK = t, true
			}
		}
		if pid == 0 && d.doc.Pid > 0 {
			pid = d.doc.Pid
		}
	}
	return phase, hb, hbOK, pid
}
