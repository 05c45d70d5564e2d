// Package eventsink implements the verified-event HTTP endpoint: a
// worker-secret-authenticated POST that journals the event and fans it
// out to the per-channel queues consumed by internal/dispatcher
// (spec.md §4.6, grounded on original_source/api/engyne_api/routes/
// events.py and original_source/core/queues.py).
package eventsink

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/engyne/nodecore/internal/pkg/errors"
	"github.com/engyne/nodecore/internal/pkg/response"
	"github.com/engyne/nodecore/internal/slotfs"
)

// Channels lists every channel a verified event fans out to
// (spec.md §4.6 step 3).
var Channels = []string{"whatsapp", "telegram", "email", "sheets", "push"}

// VerifiedEvent is the worker -> sink wire type (spec.md §4, VerifiedEvent).
type VerifiedEvent struct {
	SlotID     string         `json:"slot_id"`
	LeadID     string         `json:"lead_id"`
	ObservedAt string         `json:"observed_at"`
	Payload    map[string]any `json:"payload"`
}

// QueueRecord is one line of verified_queue.jsonl and each
// {channel}_queue.jsonl (spec.md §4.6 step 1). Channel is empty in
// verified_queue.jsonl and stamped per-copy in the channel queues.
type QueueRecord struct {
	Type       string         `json:"type"`
	SlotID     string         `json:"slot_id"`
	LeadID     string         `json:"lead_id"`
	ObservedAt string         `json:"observed_at"`
	ReceivedAt string         `json:"received_at"`
	Payload    map[string]any `json:"payload"`
	Channel    string         `json:"channel,omitempty"`
}

// Sink handles POST /events/verified.
type Sink struct {
	RuntimeRoot   string
	WorkerSecret  string
	WebhookURL    string
	WebhookSecret string
	Logger        *slog.Logger
	client        *http.Client
}

// New builds a Sink rooted at runtimeRoot, authenticating callers
// against workerSecret.
func New(runtimeRoot, workerSecret, webhookURL, webhookSecret string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		RuntimeRoot:   runtimeRoot,
		WorkerSecret:  workerSecret,
		WebhookURL:    webhookURL,
		WebhookSecret: webhookSecret,
		Logger:        logger,
		client:        &http.Client{Timeout: 5 * time.Second},
	}
}

// Routes returns a chi router mounting the verified-event endpoint.
func (s *Sink) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/verified", s.PostVerified)
	return r
}

// PostVerified authenticates the caller, journals the event, fans it
// out to every channel queue, and best-effort posts it to an outbound
// webhook (spec.md §4.6).
func (s *Sink) PostVerified(w http.ResponseWriter, r *http.Request) {
	if !secretMatches(r.Header.Get("X-Engyne-Worker-Secret"), s.WorkerSecret) {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	var evt VerifiedEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("invalid request body"))
		return
	}
	if evt.SlotID == "" || evt.LeadID == "" {
		response.Error(w, apierrors.NewValidationErrors(map[string]string{
			"slot_id": "slot_id is required",
			"lead_id": "lead_id is required",
		}))
		return
	}

	record := QueueRecord{
		Type:       "verified",
		SlotID:     evt.SlotID,
		LeadID:     evt.LeadID,
		ObservedAt: evt.ObservedAt,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Payload:    evt.Payload,
	}

	if err := s.fanOut(record); err != nil {
		s.Logger.Error("fan out verified event", slog.String("slot_id", evt.SlotID), slog.String("lead_id", evt.LeadID), slog.String("error", err.Error()))
		response.Error(w, apierrors.ErrInternal)
		return
	}

	response.Accepted(w, map[string]string{
		"status":  "accepted",
		"slot_id": evt.SlotID,
		"lead_id": evt.LeadID,
	})

	go s.postWebhook(record)
}

// fanOut ensures every queue file exists and appends record to
// verified_queue.jsonl and each {channel}_queue.jsonl with channel
// stamped into the copy. Not transactional across files (spec.md
// §4.6: "a crash between appends can produce duplicates on recovery,
// which dispatchers must tolerate").
func (s *Sink) fanOut(record QueueRecord) error {
	if err := s.ensureQueueFiles(); err != nil {
		return err
	}
	for _, channel := range Channels {
		copy := record
		copy.Channel = channel
		if err := slotfs.AppendJSONL(s.queuePath(channel), copy); err != nil {
			return err
		}
	}
	return slotfs.AppendJSONL(s.verifiedPath(), record)
}

func (s *Sink) ensureQueueFiles() error {
	if err := slotfs.Touch(s.verifiedPath()); err != nil {
		return err
	}
	for _, channel := range Channels {
		if err := slotfs.Touch(s.queuePath(channel)); err != nil {
			return err
		}
		if err := slotfs.Touch(s.offsetPath(channel)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) queuePath(channel string) string {
	return filepath.Join(s.RuntimeRoot, channel+"_queue.jsonl")
}

func (s *Sink) offsetPath(channel string) string {
	return filepath.Join(s.RuntimeRoot, channel+"_queue.offset")
}

func (s *Sink) verifiedPath() string {
	return filepath.Join(s.RuntimeRoot, "verified_queue.jsonl")
}

// postWebhook fire-and-forgets record to the configured outbound
// webhook (spec.md §4.6 step 4, §5 outbound timeout <= 5s).
func (s *Sink) postWebhook(record QueueRecord) {
	if s.WebhookURL == "" {
		return
	}
	body, err := json.Marshal(record)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.WebhookSecret != "" {
		req.Header.Set("X-Engyne-Webhook-Secret", s.WebhookSecret)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func secretMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
