package slotfs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadJSONRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slot_state.json")

	want := State{SlotID: "s1", Phase: PhaseBoot, RunID: "r1", Pid: 123, HeartbeatTS: time.Now().UTC().Format(time.RFC3339)}
	if err := WriteJSON(path, want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got State
	if !ReadJSON(path, &got) {
		t.Fatal("expected ReadJSON to succeed")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadJSONAbsentOrMalformed(t *testing.T) {
	dir := t.TempDir()
	var s State
	if ReadJSON(filepath.Join(dir, "missing.json"), &s) {
		t.Fatal("expected absent file to report ok=false")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ReadJSON(bad, &s) {
		t.Fatal("expected malformed file to report ok=false")
	}
}

func TestAppendJSONLAndLineReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leads.jsonl")

	for i := 0; i < 3; i++ {
		if err := AppendJSONL(path, map[string]int{"i": i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	count, ok := CountLines(path)
	if !ok || count != 3 {
		t.Fatalf("CountLines = %d, %v, want 3, true", count, ok)
	}

	lr, err := OpenLineReader(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer lr.Close()

	var seen []int
	for {
		line, _, ok := lr.Next()
		if !ok {
			break
		}
		var rec map[string]int
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatal(err)
		}
		seen = append(seen, rec["i"])
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("seen = %v, want [1 2]", seen)
	}
}

func TestOffsetRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "email_queue.offset")

	if got := ReadOffset(path); got != 0 {
		t.Fatalf("ReadOffset on missing file = %d, want 0", got)
	}
	if err := WriteOffset(path, 7); err != nil {
		t.Fatal(err)
	}
	if got := ReadOffset(path); got != 7 {
		t.Fatalf("ReadOffset = %d, want 7", got)
	}
}
