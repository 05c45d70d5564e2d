package worker

import (
	"context"
	"fmt"

	"github.com/engyne/nodecore/internal/leadfilter"
)

// Scraper is the browser-automation boundary (spec.md §1 Non-goals:
// the marketplace UI automation itself is out of scope). Navigate
// reports whether the landing page is on the expected authenticated
// host; false triggers the LOGIN_REQUIRED phase. Contact/VerifyInline/
// VerifyConsumed model the "contact" click and its two verification
// paths from spec.md §4.5 step 4, generalized from the Python
// original's split between worker_indiamart.py (Playwright) and
// worker_indiamart_stub.py (fake) behind one interface.
type Scraper interface {
	Navigate(ctx context.Context) (loggedIn bool, err error)
	ScrapeCandidates(ctx context.Context, max int) ([]leadfilter.RawLead, error)
	Contact(ctx context.Context, leadID string) (bool, error)
	VerifyInline(ctx context.Context, leadID string) (bool, error)
	VerifyConsumed(ctx context.Context, leadID string) (bool, error)
	Close() error
}

// StubScraper is a deterministic, no-browser Scraper used when no real
// automation backend is wired, matching original_source/core/
// worker_indiamart_stub.py's synthetic-lead generation.
type StubScraper struct {
	SlotID string
	RunID  string
	seq    int
}

func (s *StubScraper) Navigate(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *StubScraper) ScrapeCandidates(ctx context.Context, max int) ([]leadfilter.RawLead, error) {
	candidates := make([]leadfilter.RawLead, 0, max)
	for i := 0; i < max; i++ {
		s.seq++
		leadID := fmt.Sprintf("%s-%s-%d", s.SlotID, s.RunID, s.seq)
		candidates = append(candidates, leadfilter.RawLead{
			LeadID:       leadID,
			Title:        "Industrial valve enquiry",
			Country:      "India",
			CategoryText: "Valves",
			Text:         fmt.Sprintf("Posted %d min ago. Member since 8 months.", s.seq),
			Contact:      "",
			Availability: "",
		})
	}
	return candidates, nil
}

func (s *StubScraper) Contact(ctx context.Context, leadID string) (bool, error) {
	return true, nil
}

func (s *StubScraper) VerifyInline(ctx context.Context, leadID string) (bool, error) {
	return true, nil
}

func (s *StubScraper) VerifyConsumed(ctx context.Context, leadID string) (bool, error) {
	return true, nil
}

func (s *StubScraper) Close() error { return nil }
