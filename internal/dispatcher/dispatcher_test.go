package dispatcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engyne/nodecore/internal/eventsink"
	"github.com/engyne/nodecore/internal/slotfs"
)

type fakeTransport struct {
	results []bool
	calls   int
}

func (f *fakeTransport) Deliver(ctx context.Context, record eventsink.QueueRecord, contact string) (bool, string, error) {
	ok := true
	if f.calls < len(f.results) {
		ok = f.results[f.calls]
	}
	f.calls++
	if !ok {
		return false, "webhook_error", nil
	}
	return true, "", nil
}

func seedQueue(t *testing.T, root string, channel Channel, records []eventsink.QueueRecord) {
	t.Helper()
	path := filepath.Join(root, string(channel)+"_queue.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			t.Fatal(err)
		}
	}
}

func TestProcessQueueDeliversAndAdvancesOffset(t *testing.T) {
	root := t.TempDir()
	seedQueue(t, root, ChannelEmail, []eventsink.QueueRecord{
		{LeadID: "lead-1", SlotID: "slot-a", Payload: map[string]any{"email": "a@example.com"}},
		{LeadID: "lead-2", SlotID: "slot-a", Payload: map[string]any{"email": "b@example.com"}},
	})

	d := New(Config{Channel: ChannelEmail, RuntimeRoot: root, PollInterval: time.Millisecond, RatePerMinute: 10, DeliveryTimeout: time.Second}, &fakeTransport{}, nil)
	processed, err := processAll(t, d)
	if err != nil {
		t.Fatal(err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}

	for _, leadID := range []string{"lead-1", "lead-2"} {
		rec, ok := d.contactState[leadID]
		if !ok || rec.Status != StatusSent {
			t.Fatalf("lead %s: contact state = %+v ok=%v, want sent", leadID, rec, ok)
		}
	}

	count, ok := slotfs.CountLines(d.sentPath())
	if !ok || count != 2 {
		t.Fatalf("sent journal lines = %d, %v, want 2", count, ok)
	}
}

func processAll(t *testing.T, d *Dispatcher) (int, error) {
	t.Helper()
	if err := d.ensureFiles(); err != nil {
		return 0, err
	}
	d.load()
	total := 0
	for {
		n, err := d.processQueue(context.Background())
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}
	return total, nil
}

func TestProcessRecordBlocksMissingContact(t *testing.T) {
	root := t.TempDir()
	seedQueue(t, root, ChannelWhatsApp, []eventsink.QueueRecord{
		{LeadID: "lead-1", SlotID: "slot-a", Payload: map[string]any{}},
	})

	d := New(Config{Channel: ChannelWhatsApp, RuntimeRoot: root, RatePerMinute: 10, DeliveryTimeout: time.Second}, &fakeTransport{}, nil)
	if _, err := processAll(t, d); err != nil {
		t.Fatal(err)
	}

	rec, ok := d.contactState["lead-1"]
	if !ok || rec.Status != StatusBlocked || rec.Detail != "missing_contact" {
		t.Fatalf("contact state = %+v ok=%v, want blocked/missing_contact", rec, ok)
	}
}

func TestProcessRecordBlocksMissingWebhook(t *testing.T) {
	root := t.TempDir()
	seedQueue(t, root, ChannelEmail, []eventsink.QueueRecord{
		{LeadID: "lead-1", SlotID: "slot-a", Payload: map[string]any{"email": "a@example.com"}},
	})

	d := New(Config{Channel: ChannelEmail, RuntimeRoot: root, RatePerMinute: 10, DeliveryTimeout: time.Second}, nil, nil)
	if _, err := processAll(t, d); err != nil {
		t.Fatal(err)
	}

	rec, ok := d.contactState["lead-1"]
	if !ok || rec.Status != StatusBlocked || rec.Detail != "missing_webhook" {
		t.Fatalf("contact state = %+v ok=%v, want blocked/missing_webhook", rec, ok)
	}
}

func TestProcessRecordDryRunHoldsWithoutAdvancing(t *testing.T) {
	root := t.TempDir()
	seedQueue(t, root, ChannelEmail, []eventsink.QueueRecord{
		{LeadID: "lead-1", SlotID: "slot-a", Payload: map[string]any{"email": "a@example.com"}},
		{LeadID: "lead-2", SlotID: "slot-a", Payload: map[string]any{"email": "b@example.com"}},
	})

	d := New(Config{Channel: ChannelEmail, RuntimeRoot: root, RatePerMinute: 10, DryRun: true, DryRunAdvance: false, DeliveryTimeout: time.Second}, &fakeTransport{}, nil)
	processed, err := processAll(t, d)
	if err != nil {
		t.Fatal(err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, want 0 (first record held)", processed)
	}
	if d.offset != 0 {
		t.Fatalf("offset = %d, want 0 (paused on held lead)", d.offset)
	}
	rec, ok := d.contactState["lead-1"]
	if !ok || rec.Status != StatusHeld {
		t.Fatalf("contact state = %+v ok=%v, want held", rec, ok)
	}
}

func TestProcessRecordTerminalSentSkipsDuplicateSilently(t *testing.T) {
	root := t.TempDir()
	seedQueue(t, root, ChannelEmail, []eventsink.QueueRecord{
		{LeadID: "lead-1", SlotID: "slot-a", Payload: map[string]any{"email": "a@example.com"}},
	})

	transport := &fakeTransport{}
	d := New(Config{Channel: ChannelEmail, RuntimeRoot: root, RatePerMinute: 10, DeliveryTimeout: time.Second}, transport, nil)
	if _, err := processAll(t, d); err != nil {
		t.Fatal(err)
	}

	// Resubmit the same lead id as a second queue line.
	seedQueue(t, root, ChannelEmail, []eventsink.QueueRecord{
		{LeadID: "lead-1", SlotID: "slot-a", Payload: map[string]any{"email": "a@example.com"}},
	})
	processed, err := processAll(t, d)
	if err != nil {
		t.Fatal(err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1 (advances silently)", processed)
	}
	if transport.calls != 1 {
		t.Fatalf("transport.calls = %d, want 1 (no re-delivery of a terminal lead)", transport.calls)
	}

	count, ok := slotfs.CountLines(d.sentPath())
	if !ok || count != 1 {
		t.Fatalf("sent journal lines = %d, %v, want exactly 1 sent per channel", count, ok)
	}
}

func TestRateGateStopsPassAtLimit(t *testing.T) {
	root := t.TempDir()
	records := make([]eventsink.QueueRecord, 0, 5)
	for i := 0; i < 5; i++ {
		records = append(records, eventsink.QueueRecord{
			LeadID: "lead-" + string(rune('a'+i)), SlotID: "slot-a",
			Payload: map[string]any{"email": "a@example.com"},
		})
	}
	seedQueue(t, root, ChannelEmail, records)

	d := New(Config{Channel: ChannelEmail, RuntimeRoot: root, RatePerMinute: 2, DeliveryTimeout: time.Second}, &fakeTransport{}, nil)
	processed, err := processAll(t, d)
	if err != nil {
		t.Fatal(err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2 (rate limited to 2/min)", processed)
	}
}
