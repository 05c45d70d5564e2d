// Package worker implements the per-slot scraping cycle: BOOT -> INIT
// -> repeated cycles of scrape/filter/contact/verify, grounded on
// original_source/core/worker_indiamart_stub.py and worker_indiamart.py.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engyne/nodecore/internal/leadfilter"
	"github.com/engyne/nodecore/internal/leadrecord"
	"github.com/engyne/nodecore/internal/quality"
	"github.com/engyne/nodecore/internal/slotconfig"
	"github.com/engyne/nodecore/internal/slotfs"
)

// Config is the worker process contract (spec.md §6 positional args).
// CooldownSeconds has no spec.md-named default; it mirrors the
// original's WorkerConfig.cooldown_seconds (2s).
type Config struct {
	SlotsRoot         string
	SlotID            string
	RunID             string
	APIBase           string
	WorkerSecret      string
	ProfilePath       string
	HeartbeatInterval time.Duration
	CooldownSeconds   time.Duration
}

// Worker runs one slot's BOOT->INIT->cycle loop.
type Worker struct {
	cfg     Config
	paths   slotfs.Paths
	scraper Scraper
	logger  *slog.Logger
	client  *http.Client
	seen    *leadrecord.SeenSet
}

// New builds a Worker for cfg, using scraper as the browser-automation
// boundary (a *StubScraper if no real backend is configured).
func New(cfg Config, scraper Scraper, logger *slog.Logger) (*Worker, error) {
	paths, err := slotfs.Resolve(cfg.SlotsRoot, cfg.SlotID)
	if err != nil {
		return nil, fmt.Errorf("resolve slot %s: %w", cfg.SlotID, err)
	}
	if err := paths.EnsureSlotDir(); err != nil {
		return nil, fmt.Errorf("ensure slot dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:     cfg,
		paths:   paths,
		scraper: scraper,
		logger:  logger,
		client:  &http.Client{Timeout: 5 * time.Second},
		seen:    leadrecord.NewSeenSet(),
	}, nil
}

// Run executes the worker loop until a termination signal arrives or
// ctx is cancelled, returning nil on clean shutdown (spec.md §4.5,
// §5 Cancellation and timeouts).
func (w *Worker) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	w.writeHeartbeat(slotfs.PhaseBoot, slotfs.State{})
	time.Sleep(500 * time.Millisecond)
	w.writeHeartbeat(slotfs.PhaseInit, slotfs.State{})

	for {
		select {
		case <-ctx.Done():
			w.writeHeartbeat(slotfs.PhaseStopping, slotfs.State{})
			w.scraper.Close()
			return nil
		default:
		}

		cycleState := w.runCycle(ctx)

		select {
		case <-ctx.Done():
			w.writeHeartbeat(slotfs.PhaseStopping, slotfs.State{})
			w.scraper.Close()
			return nil
		case <-time.After(w.sleepDuration(cycleState)):
		}
	}
}

// runCycle executes one scrape/filter/contact/verify pass and returns
// the counters to report in this cycle's heartbeat.
func (w *Worker) runCycle(ctx context.Context) slotfs.State {
	cfg := slotconfig.Load(w.paths.ConfigPath)

	loggedIn, err := w.scraper.Navigate(ctx)
	if err != nil || !loggedIn {
		w.writeHeartbeat(slotfs.PhaseLoginRequired, slotfs.State{})
		time.Sleep(w.cfg.HeartbeatInterval)
		return slotfs.State{}
	}

	candidates, err := w.scraper.ScrapeCandidates(ctx, max(cfg.MaxLeadsPerCycle, 0))
	state := slotfs.State{}
	if err != nil {
		state.LastError = err.Error()
		w.writeHeartbeat(slotfs.PhaseError, state)
		return state
	}

	clicksRemaining := cfg.MaxClicksPerCycle
	for _, raw := range candidates {
		state.LeadsFound++

		sig := leadrecord.Signature(raw.Title, raw.Country, leadfilter.ExtractTimeText(raw.Text))
		if w.seen.SeenAndMark(raw.LeadID, sig) {
			continue
		}

		decision, normalized := leadfilter.Decide(cfg, raw)
		rec := w.buildRecord(cfg, raw, decision, normalized)

		if decision.Keep {
			state.LeadsKept++
			if cfg.AutoBuy && !cfg.DryRun && clicksRemaining > 0 {
				ok, cerr := w.scraper.Contact(ctx, raw.LeadID)
				if cerr == nil && ok {
					clicksRemaining--
					state.ClicksSent++
					rec.Clicked = true
					verified, source := w.verify(ctx, raw.LeadID)
					rec.Verified = verified
					rec.VerificationSource = source
					if verified {
						state.Verified++
						w.emitVerified(raw.LeadID, map[string]any{
							"quality_level": cfg.QualityLevel,
						})
					}
				}
			}
		}

		if err := slotfs.AppendJSONL(w.paths.LeadsPath, rec); err != nil {
			w.logger.Warn("append lead", slog.String("slot_id", w.cfg.SlotID), slog.String("error", err.Error()))
		}
	}

	version := cfg.Version
	state.ConfigVersion = &version
	w.writeHeartbeat(slotfs.PhaseParseLeads, state)
	return state
}

// verify attempts inline verification first, falling back to the
// consumed-leads cross-check (spec.md §4.5 step 4).
func (w *Worker) verify(ctx context.Context, leadID string) (bool, string) {
	if ok, err := w.scraper.VerifyInline(ctx, leadID); err == nil && ok {
		return true, "inline"
	}
	if ok, err := w.scraper.VerifyConsumed(ctx, leadID); err == nil && ok {
		return true, "consumed"
	}
	return false, ""
}

func (w *Worker) buildRecord(cfg slotconfig.Config, raw leadfilter.RawLead, decision leadfilter.Decision, normalized leadfilter.Normalized) leadrecord.Record {
	policy := quality.Mapping(cfg.QualityLevel)
	return leadrecord.Record{
		SlotID:          w.cfg.SlotID,
		RunID:           w.cfg.RunID,
		LeadID:          raw.LeadID,
		ObservedAt:      time.Now().UTC().Format(time.RFC3339),
		Title:           raw.Title,
		Country:         raw.Country,
		TimeText:        normalized.TimeText,
		AgeHours:        normalized.AgeHours,
		MemberMonths:    normalized.MemberMonths,
		MemberSinceText: normalized.MemberSinceText,
		CategoryText:    raw.CategoryText,
		Availability:    raw.Availability,
		Email:           raw.Email,
		Phone:           raw.Phone,
		Contact:         raw.Contact,
		QualityLevel:    cfg.QualityLevel,
		Policy:          leadrecord.Policy{MinMemberMonths: policy.MinMemberMonths, MaxAgeHours: policy.MaxAgeHours},
		AutoBuy:         cfg.AutoBuy,
		DryRun:          cfg.DryRun,
		RejectReason:    decision.RejectReason,
		Text:            leadrecord.TruncateText(raw.Text),
	}
}

func (w *Worker) emitVerified(leadID string, payload map[string]any) {
	if w.cfg.APIBase == "" {
		return
	}
	body, err := json.Marshal(map[string]any{
		"slot_id":     w.cfg.SlotID,
		"lead_id":     leadID,
		"observed_at": time.Now().UTC().Format(time.RFC3339),
		"payload":     payload,
	})
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, w.cfg.APIBase+"/events/verified", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Engyne-Worker-Secret", w.cfg.WorkerSecret)
	resp, err := w.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (w *Worker) writeHeartbeat(phase slotfs.Phase, extra slotfs.State) {
	extra.SlotID = w.cfg.SlotID
	extra.Phase = phase
	extra.RunID = w.cfg.RunID
	extra.Pid = os.Getpid()
	extra.HeartbeatTS = time.Now().UTC().Format(time.RFC3339)
	if err := slotfs.WriteState(w.paths, extra); err != nil {
		w.logger.Warn("write state", slog.String("slot_id", w.cfg.SlotID), slog.String("error", err.Error()))
	}
	if err := slotfs.WriteStatus(w.paths, extra); err != nil {
		w.logger.Warn("write status", slog.String("slot_id", w.cfg.SlotID), slog.String("error", err.Error()))
	}
}

// sleepDuration implements spec.md §4.5 step 6: sleep
// max(cooldown_seconds, heartbeat_interval) between cycles.
func (w *Worker) sleepDuration(state slotfs.State) time.Duration {
	cooldown := w.cfg.CooldownSeconds
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	heartbeat := w.cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 2 * time.Second
	}
	return max(cooldown, heartbeat)
}
