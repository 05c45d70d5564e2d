package eventsink

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/engyne/nodecore/internal/slotfs"
)

func doPost(t *testing.T, s *Sink, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/verified", bytes.NewReader(data))
	if secret != "" {
		req.Header.Set("X-Engyne-Worker-Secret", secret)
	}
	rec := httptest.NewRecorder()
	s.PostVerified(rec, req)
	return rec
}

func TestPostVerifiedRejectsBadSecret(t *testing.T) {
	root := t.TempDir()
	s := New(root, "correct-secret", "", "", nil)

	rec := doPost(t, s, "wrong-secret", VerifiedEvent{SlotID: "slot-a", LeadID: "lead-1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPostVerifiedFansOutToAllChannels(t *testing.T) {
	root := t.TempDir()
	s := New(root, "secret", "", "", nil)

	rec := doPost(t, s, "secret", VerifiedEvent{
		SlotID:     "slot-a",
		LeadID:     "lead-1",
		ObservedAt: "2026-01-01T00:00:00Z",
		Payload:    map[string]any{"phone": "+10000000"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}

	count, ok := slotfs.CountLines(filepath.Join(root, "verified_queue.jsonl"))
	if !ok || count != 1 {
		t.Fatalf("verified_queue.jsonl lines = %d, %v, want 1, true", count, ok)
	}

	for _, channel := range Channels {
		path := filepath.Join(root, channel+"_queue.jsonl")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		var rec QueueRecord
		if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
			t.Fatalf("%s: unmarshal: %v", path, err)
		}
		if rec.Channel != channel {
			t.Fatalf("%s: channel = %q, want %q", path, rec.Channel, channel)
		}
		if rec.LeadID != "lead-1" || rec.Type != "verified" {
			t.Fatalf("%s: unexpected record %+v", path, rec)
		}
	}
}

func TestPostVerifiedRequiresSlotAndLeadID(t *testing.T) {
	root := t.TempDir()
	s := New(root, "secret", "", "", nil)

	rec := doPost(t, s, "secret", VerifiedEvent{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestPostVerifiedRejectsWhenNoSecretConfigured(t *testing.T) {
	root := t.TempDir()
	s := New(root, "", "", "", nil)

	rec := doPost(t, s, "", VerifiedEvent{SlotID: "slot-a", LeadID: "lead-1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
