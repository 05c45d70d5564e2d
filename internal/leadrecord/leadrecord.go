// Package leadrecord defines the append-only leads.jsonl line format and
// the signature-based dedup used alongside raw lead_id dedup.
package leadrecord

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const maxTextBytes = 2 * 1024

// Record is one line of a slot's leads.jsonl (spec.md §3 LeadRecord).
type Record struct {
	SlotID              string   `json:"slot_id"`
	RunID               string   `json:"run_id"`
	LeadID              string   `json:"lead_id"`
	ObservedAt          string   `json:"observed_at"`
	Title               string   `json:"title"`
	Country             string   `json:"country"`
	TimeText            string   `json:"time_text"`
	AgeHours            *float64 `json:"age_hours,omitempty"`
	MemberMonths        *int     `json:"member_months,omitempty"`
	MemberSinceText     string   `json:"member_since_text"`
	CategoryText        string   `json:"category_text"`
	Availability        string   `json:"availability"`
	Email               string   `json:"email,omitempty"`
	Phone               string   `json:"phone,omitempty"`
	Contact             string   `json:"contact,omitempty"`
	QualityLevel        int      `json:"quality_level"`
	Policy              Policy   `json:"policy"`
	AutoBuy             bool     `json:"auto_buy"`
	DryRun              bool     `json:"dry_run"`
	Clicked             bool     `json:"clicked"`
	Verified            bool     `json:"verified"`
	VerificationSource  string   `json:"verification_source,omitempty"`
	RejectReason        string   `json:"reject_reason,omitempty"`
	Text                string   `json:"text"`
}

// Policy mirrors quality.Policy for embedding in a Record (keeps
// leadrecord free of a dependency on the quality package's Go type
// identity, matching the wire shape in spec.md §3).
type Policy struct {
	MinMemberMonths int     `json:"min_member_months"`
	MaxAgeHours     float64 `json:"max_age_hours"`
}

// TruncateText clamps text to the 2 KiB cap spec.md places on
// LeadRecord.Text, cutting on a byte boundary.
func TruncateText(text string) string {
	if len(text) <= maxTextBytes {
		return text
	}
	return text[:maxTextBytes]
}

// Signature computes the content-based dedup key from title, country,
// and time_text, independent of the raw lead_id.
func Signature(title, country, timeText string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(country))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(timeText))))
	return hex.EncodeToString(h.Sum(nil))
}

// SeenSet tracks lead_ids and content signatures observed during a
// single worker run so a candidate matching either is skipped
// (spec.md §3 invariant: at most one LeadRecord per (slot_id, lead_id)
// per run, enforced via both keys).
type SeenSet struct {
	ids        map[string]struct{}
	signatures map[string]struct{}
}

// NewSeenSet returns an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{}), signatures: make(map[string]struct{})}
}

// SeenAndMark reports whether leadID or signature has already been
// observed this run, recording both as seen if not.
func (s *SeenSet) SeenAndMark(leadID, signature string) bool {
	_, idSeen := s.ids[leadID]
	_, sigSeen := s.signatures[signature]
	if idSeen || sigSeen {
		return true
	}
	s.ids[leadID] = struct{}{}
	s.signatures[signature] = struct{}{}
	return false
}
