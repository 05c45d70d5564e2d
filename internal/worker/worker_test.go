package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engyne/nodecore/internal/slotfs"
)

func writeSlotConfig(t *testing.T, path, yaml string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunCycleAppendsLeadsAndWritesHeartbeat(t *testing.T) {
	root := t.TempDir()
	cfg := Config{SlotsRoot: root, SlotID: "slot-x", RunID: "run-1", HeartbeatInterval: 50 * time.Millisecond}

	w, err := New(cfg, &StubScraper{SlotID: "slot-x", RunID: "run-1"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	writeSlotConfig(t, w.paths.ConfigPath, "quality_level: 50\nmax_leads_per_cycle: 3\nversion: 2\n")

	state := w.runCycle(context.Background())
	if state.LeadsFound != 3 {
		t.Fatalf("LeadsFound = %d, want 3", state.LeadsFound)
	}

	count, ok := slotfs.CountLines(w.paths.LeadsPath)
	if !ok || count != 3 {
		t.Fatalf("leads.jsonl lines = %d, %v, want 3, true", count, ok)
	}

	st, ok := slotfs.ReadState(w.paths)
	if !ok || st.Phase != slotfs.PhaseParseLeads {
		t.Fatalf("expected PARSE_LEADS heartbeat, got %+v ok=%v", st, ok)
	}
}

func TestRunDoesNotDuplicateAcrossDedup(t *testing.T) {
	root := t.TempDir()
	cfg := Config{SlotsRoot: root, SlotID: "slot-y", RunID: "run-1"}
	w, err := New(cfg, &StubScraper{SlotID: "slot-y", RunID: "run-1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	writeSlotConfig(t, w.paths.ConfigPath, "max_leads_per_cycle: 2\n")

	w.runCycle(context.Background())
	w.scraper.(*StubScraper).seq = 0 // force the same lead ids to be scraped again
	w.runCycle(context.Background())

	count, ok := slotfs.CountLines(w.paths.LeadsPath)
	if !ok || count != 2 {
		t.Fatalf("expected dedup to skip the repeated ids, got %d lines", count)
	}
}

func TestWriteHeartbeatIncludesPidAndSlot(t *testing.T) {
	root := t.TempDir()
	cfg := Config{SlotsRoot: root, SlotID: "slot-z", RunID: "run-9"}
	w, err := New(cfg, &StubScraper{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	w.writeHeartbeat(slotfs.PhaseBoot, slotfs.State{})

	st, ok := slotfs.ReadState(w.paths)
	if !ok {
		t.Fatal("expected state to be written")
	}
	if st.SlotID != "slot-z" || st.Pid == 0 || st.HeartbeatTS == "" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if filepath.Base(w.paths.StatePath) != "slot_state.json" {
		t.Fatalf("unexpected state path: %s", w.paths.StatePath)
	}
}
