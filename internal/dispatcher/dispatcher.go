// Package dispatcher implements the per-channel poll -> rate-gate ->
// deliver loop (spec.md §4.7), grounded near line-for-line on
// original_source/core/dispatcher_worker.py's process_record decision
// tree, with the Channel dynamic-dispatch design note (spec.md §9)
// realized as a closed tagged variant plus a Transport interface.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/engyne/nodecore/internal/eventsink"
	"github.com/engyne/nodecore/internal/metrics"
	"github.com/engyne/nodecore/internal/slotfs"
)

// Channel is the closed set of delivery mediums (spec.md §4.7, §9).
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelSheets   Channel = "sheets"
	ChannelPush     Channel = "push"
)

// contactKeys lists the payload keys checked (in order) to extract a
// contact address for a channel (spec.md §4.7 step, CONTACT_KEYS in
// the original). Sheets has no contact requirement.
var contactKeys = map[Channel][]string{
	ChannelWhatsApp: {"whatsapp", "phone", "mobile", "phone_number"},
	ChannelTelegram: {"telegram", "telegram_chat_id", "chat_id"},
	ChannelEmail:    {"email", "email_address"},
	ChannelPush:     {"subscription", "push_subscription"},
}

// Transport is the delivery capability a Channel is bound to (spec.md
// §9 design note). The dispatcher loop below is Transport-agnostic.
type Transport interface {
	Deliver(ctx context.Context, record eventsink.QueueRecord, contact string) (ok bool, detail string, err error)
}

// ContactStatus is a lead's per-channel delivery state (spec.md §4.7
// state machine).
type ContactStatus string

const (
	StatusSent    ContactStatus = "sent"
	StatusSkipped ContactStatus = "skipped"
	StatusBlocked ContactStatus = "blocked"
	StatusHeld    ContactStatus = "held"
	StatusFailed  ContactStatus = "failed"
)

// ContactRecord is one entry of {channel}_queue.contact_state.json.
type ContactRecord struct {
	Status    ContactStatus `json:"status"`
	UpdatedAt string        `json:"updated_at"`
	Detail    string        `json:"detail,omitempty"`
}

// rateWindow is one entry of {channel}_queue.rate.json, keyed by slot_id.
type rateWindow struct {
	WindowStart float64 `json:"window_start"`
	Sent        int     `json:"sent"`
}

// Config is one dispatcher process's tunables (spec.md §6 dispatcher
// process contract; values are sourced from config.DispatcherConfig
// plus the channel-specific webhook lookup).
type Config struct {
	Channel         Channel
	RuntimeRoot     string
	PollInterval    time.Duration
	RatePerMinute   int
	DryRun          bool
	DryRunAdvance   bool
	DeliveryTimeout time.Duration
}

// Dispatcher runs one channel's poll loop.
type Dispatcher struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	contactState map[string]ContactRecord
	rateState    map[string]*rateWindow
	limiters     map[string]*rate.Limiter
	offset       int
}

// New builds a Dispatcher. transport may be nil, in which case every
// record blocks with "missing_webhook" (spec.md §4.7).
func New(cfg Config, transport Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:          cfg,
		transport:    transport,
		logger:       logger,
		contactState: map[string]ContactRecord{},
		rateState:    map[string]*rateWindow{},
		limiters:     map[string]*rate.Limiter{},
	}
}

// Run loads persisted state and loops processQueue on cfg.PollInterval
// until ctx is cancelled (spec.md §4.7 step 3, §5 dispatcher
// cancellation: "SIGINT returns 0; no in-flight delivery cancellation").
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.ensureFiles(); err != nil {
		return err
	}
	d.load()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		processed, err := d.processQueue(ctx)
		if err != nil {
			d.logger.Error("process queue", slog.String("channel", string(d.cfg.Channel)), slog.String("error", err.Error()))
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

func (d *Dispatcher) ensureFiles() error {
	for _, path := range []string{d.queuePath(), d.offsetPath(), d.sentPath(), d.proofsPath(), d.ratePath(), d.contactStatePath()} {
		if err := slotfs.Touch(path); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) load() {
	d.offset = slotfs.ReadOffset(d.offsetPath())
	slotfs.ReadJSON(d.contactStatePath(), &d.contactState)
	if d.contactState == nil {
		d.contactState = map[string]ContactRecord{}
	}
	slotfs.ReadJSON(d.ratePath(), &d.rateState)
	if d.rateState == nil {
		d.rateState = map[string]*rateWindow{}
	}
}

// processQueue streams the channel queue from the persisted offset,
// applying processRecord to each line, and returns the number of parsed
// records advanced past (spec.md §4.7 steps 1-2). Blank and unparsable
// lines also advance the offset but are not counted.
func (d *Dispatcher) processQueue(ctx context.Context) (int, error) {
	lr, err := slotfs.OpenLineReader(d.queuePath(), d.offset)
	if err != nil {
		return 0, err
	}
	defer lr.Close()

	processed := 0
	for {
		line, idx, ok := lr.Next()
		if !ok {
			break
		}
		if line == "" {
			d.advance(idx)
			continue
		}

		var record eventsink.QueueRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			d.logDelivery(rawRecord(line), StatusBlocked, "json_parse_error", true)
			d.advance(idx)
			continue
		}

		advance, mutated := d.processRecord(ctx, record)
		if mutated {
			d.persist()
		}
		if !advance {
			break
		}
		d.advance(idx)
		processed++
	}
	d.reportQueueDepth()
	return processed, nil
}

// reportQueueDepth sets the queue-depth gauge from the channel queue's
// total line count minus the persisted offset.
func (d *Dispatcher) reportQueueDepth() {
	total, ok := slotfs.CountLines(d.queuePath())
	if !ok {
		return
	}
	depth := total - d.offset
	if depth < 0 {
		depth = 0
	}
	metrics.QueueDepth.WithLabelValues(string(d.cfg.Channel)).Set(float64(depth))
}

func (d *Dispatcher) advance(idx int) {
	d.offset = idx + 1
	slotfs.WriteOffset(d.offsetPath(), d.offset)
}

// processRecord implements the full per-record decision tree (spec.md
// §4.7 step 2), mirroring dispatcher_worker.py's process_record.
// Returns whether the offset should advance past this record, and
// whether contact/rate state was (possibly) mutated and needs saving.
func (d *Dispatcher) processRecord(ctx context.Context, record eventsink.QueueRecord) (advance, mutated bool) {
	if record.LeadID == "" {
		d.logDelivery(record, "invalid", "missing lead_id", true)
		metrics.DispatchOutcomesTotal.WithLabelValues(string(d.cfg.Channel), "invalid").Inc()
		return true, true
	}

	if existing, ok := d.contactState[record.LeadID]; ok {
		switch existing.Status {
		case StatusSent, StatusSkipped:
			return true, false
		case StatusBlocked, StatusHeld:
			return false, false
		}
	}

	contact := extractContact(record.Payload, d.cfg.Channel)

	if d.cfg.DryRun {
		if d.cfg.DryRunAdvance {
			d.setContact(record.LeadID, StatusSkipped, "dry_run")
			d.logDelivery(record, StatusSkipped, "dry_run", false)
			metrics.DispatchOutcomesTotal.WithLabelValues(string(d.cfg.Channel), string(StatusSkipped)).Inc()
			return true, true
		}
		d.setContact(record.LeadID, StatusHeld, "dry_run_hold")
		return false, true
	}

	if keys, requiresContact := contactKeys[d.cfg.Channel]; requiresContact && len(keys) > 0 && contact == "" {
		d.setContact(record.LeadID, StatusBlocked, "missing_contact")
		d.logDelivery(record, StatusBlocked, "missing_contact", false)
		metrics.DispatchOutcomesTotal.WithLabelValues(string(d.cfg.Channel), string(StatusBlocked)).Inc()
		return true, true
	}

	if d.transport == nil {
		d.setContact(record.LeadID, StatusBlocked, "missing_webhook")
		d.logDelivery(record, StatusBlocked, "missing_webhook", false)
		metrics.DispatchOutcomesTotal.WithLabelValues(string(d.cfg.Channel), string(StatusBlocked)).Inc()
		return true, true
	}

	if !d.canSend(record.SlotID, time.Now()) {
		metrics.RateLimitedTotal.WithLabelValues(string(d.cfg.Channel), record.SlotID).Inc()
		return false, false
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	deliverStart := time.Now()
	ok, detail, err := d.transport.Deliver(deliverCtx, record, contact)
	metrics.DispatchLatencySeconds.WithLabelValues(string(d.cfg.Channel)).Observe(time.Since(deliverStart).Seconds())
	if err == nil && ok {
		d.markSent(record.SlotID, time.Now())
		d.setContact(record.LeadID, StatusSent, "")
		d.logDelivery(record, StatusSent, detail, false)
		metrics.DispatchOutcomesTotal.WithLabelValues(string(d.cfg.Channel), string(StatusSent)).Inc()
		return true, true
	}

	reason := "webhook_error"
	if detail != "" {
		reason = detail
	}
	d.setContact(record.LeadID, StatusFailed, reason)
	d.logDelivery(record, StatusFailed, reason, false)
	metrics.DispatchOutcomesTotal.WithLabelValues(string(d.cfg.Channel), string(StatusFailed)).Inc()
	return true, true
}

func (d *Dispatcher) setContact(leadID string, status ContactStatus, detail string) {
	d.contactState[leadID] = ContactRecord{Status: status, UpdatedAt: time.Now().UTC().Format(time.RFC3339), Detail: detail}
}

// canSend checks the persisted 60s sliding window (spec.md §4.7 step:
// "Apply rate gate... if the current window has reached
// rate_per_minute, stop the pass. Expired windows reset."), then layers
// an in-process token-bucket limiter for smoothing within a pass.
func (d *Dispatcher) canSend(slotID string, now time.Time) bool {
	if d.cfg.RatePerMinute <= 0 {
		return true
	}
	w, ok := d.rateState[slotID]
	if !ok {
		w = &rateWindow{WindowStart: float64(now.Unix()), Sent: 0}
		d.rateState[slotID] = w
	}
	if now.Sub(time.Unix(int64(w.WindowStart), 0)) >= 60*time.Second {
		w.WindowStart = float64(now.Unix())
		w.Sent = 0
	}
	if w.Sent >= d.cfg.RatePerMinute {
		return false
	}
	return d.limiterFor(slotID).Allow()
}

func (d *Dispatcher) markSent(slotID string, now time.Time) {
	w, ok := d.rateState[slotID]
	if !ok {
		w = &rateWindow{WindowStart: float64(now.Unix()), Sent: 0}
		d.rateState[slotID] = w
	}
	if now.Sub(time.Unix(int64(w.WindowStart), 0)) >= 60*time.Second {
		w.WindowStart = float64(now.Unix())
		w.Sent = 0
	}
	w.Sent++
}

// limiterFor lazily builds the in-memory token-bucket backing canSend,
// reconciled from the persisted window's remaining budget so a
// restarted dispatcher doesn't get a fresh full burst mid-window.
func (d *Dispatcher) limiterFor(slotID string) *rate.Limiter {
	lim, ok := d.limiters[slotID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(d.cfg.RatePerMinute)/60.0), d.cfg.RatePerMinute)
		if w, ok := d.rateState[slotID]; ok {
			lim.ReserveN(time.Unix(int64(w.WindowStart), 0), w.Sent)
		}
		d.limiters[slotID] = lim
	}
	return lim
}

func (d *Dispatcher) persist() {
	if err := slotfs.WriteJSON(d.contactStatePath(), d.contactState); err != nil {
		d.logger.Warn("persist contact state", slog.String("channel", string(d.cfg.Channel)), slog.String("error", err.Error()))
	}
	if err := slotfs.WriteJSON(d.ratePath(), d.rateState); err != nil {
		d.logger.Warn("persist rate state", slog.String("channel", string(d.cfg.Channel)), slog.String("error", err.Error()))
	}
}

// deliveryProof is one line of {channel}_queue.sent.jsonl and
// {channel}_queue.proofs.jsonl (spec.md §4.7: "both contain the full
// original record plus status, optional detail string, and sent_at").
type deliveryProof struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	SentAt string `json:"sent_at"`
	Record any    `json:"record"`
}

func (d *Dispatcher) logDelivery(record any, status ContactStatus, detail string, invalid bool) {
	s := string(status)
	if invalid {
		s = "invalid"
	}
	proof := deliveryProof{Status: s, Detail: detail, SentAt: time.Now().UTC().Format(time.RFC3339), Record: record}
	if err := slotfs.AppendJSONL(d.sentPath(), proof); err != nil {
		d.logger.Warn("append sent journal", slog.String("channel", string(d.cfg.Channel)), slog.String("error", err.Error()))
	}
	if err := slotfs.AppendJSONL(d.proofsPath(), proof); err != nil {
		d.logger.Warn("append proofs journal", slog.String("channel", string(d.cfg.Channel)), slog.String("error", err.Error()))
	}
}

func rawRecord(line string) map[string]string {
	return map[string]string{"raw": line}
}

// extractContact returns the first populated contact-address field for
// channel from payload, per spec.md §4.7's per-channel key preference
// order.
func extractContact(payload map[string]any, channel Channel) string {
	for _, key := range contactKeys[channel] {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (d *Dispatcher) queuePath() string {
	return filepath.Join(d.cfg.RuntimeRoot, string(d.cfg.Channel)+"_queue.jsonl")
}
func (d *Dispatcher) offsetPath() string {
	return filepath.Join(d.cfg.RuntimeRoot, string(d.cfg.Channel)+"_queue.offset")
}
func (d *Dispatcher) sentPath() string {
	return filepath.Join(d.cfg.RuntimeRoot, string(d.cfg.Channel)+"_queue.sent.jsonl")
}
func (d *Dispatcher) proofsPath() string {
	return filepath.Join(d.cfg.RuntimeRoot, string(d.cfg.Channel)+"_queue.proofs.jsonl")
}
func (d *Dispatcher) ratePath() string {
	return filepath.Join(d.cfg.RuntimeRoot, string(d.cfg.Channel)+"_queue.rate.json")
}
func (d *Dispatcher) contactStatePath() string {
	return filepath.Join(d.cfg.RuntimeRoot, string(d.cfg.Channel)+"_queue.contact_state.json")
}
