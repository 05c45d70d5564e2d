// Package leadfilter implements the keep/reject decision for a scraped
// lead against a slot's configuration (spec.md §4.4).
package leadfilter

import (
	"strings"

	"github.com/engyne/nodecore/internal/quality"
	"github.com/engyne/nodecore/internal/slotconfig"
)

// RawLead is the scraper's output contract: the raw fields a listing
// page yields before policy, dedup, and normalization are applied.
type RawLead struct {
	LeadID            string
	Title             string
	Country           string
	CategoryText      string
	Text              string // free-text body the time/member-since/structured fields are extracted from
	Email             string
	Phone             string
	Contact           string
	AvailableChannels []string
	Availability      string
}

// Decision is the keep/reject outcome for a lead.
type Decision struct {
	Keep         bool
	RejectReason string
}

// Normalized carries the fields derived from RawLead during filtering,
// regardless of the final decision, for LeadRecord construction.
type Normalized struct {
	TimeText        string
	AgeHours        *float64
	MemberSinceText string
	MemberMonths    *int
	Structured      StructuredFields
}

// Reject reason codes, in the order the corresponding gate runs.
const (
	ReasonMaxAgeHours          = "max_age_hours"
	ReasonMinMemberMonths      = "min_member_months"
	ReasonBlockedCountry       = "blocked_country"
	ReasonAllowedCountry       = "allowed_country"
	ReasonKeywords             = "keywords"
	ReasonKeywordsExclude      = "keywords_exclude"
	ReasonRequiredContactMethods = "required_contact_methods"
)

// Decide runs the full gate sequence from spec.md §4.4 against raw and
// returns the first failing gate's reason, or Keep=true if none fail.
// The result is deterministic for a given (cfg, raw) pair.
func Decide(cfg slotconfig.Config, raw RawLead) (Decision, Normalized) {
	norm := Normalized{
		TimeText:        ExtractTimeText(raw.Text),
		MemberSinceText: ExtractMemberSinceText(raw.Text),
		Structured:      ExtractStructuredFields(raw.Text),
	}
	if ageHours, ok := ParseAgeHours(norm.TimeText); ok {
		norm.AgeHours = &ageHours
	}
	if months, ok := ParseMemberMonths(norm.MemberSinceText); ok {
		norm.MemberMonths = &months
	}

	policy := quality.Mapping(cfg.QualityLevel)

	if norm.AgeHours != nil && *norm.AgeHours > policy.MaxAgeHours {
		return Decision{Keep: false, RejectReason: ReasonMaxAgeHours}, norm
	}
	if norm.MemberMonths != nil && *norm.MemberMonths < policy.MinMemberMonths {
		return Decision{Keep: false, RejectReason: ReasonMinMemberMonths}, norm
	}

	blocked := cfg.NormalizedBlockedCountries()
	if len(blocked) > 0 && CountryMatches(raw.Country, blocked) {
		return Decision{Keep: false, RejectReason: ReasonBlockedCountry}, norm
	}
	allowed := cfg.NormalizedAllowedCountries()
	if len(allowed) > 0 && !CountryMatches(raw.Country, allowed) {
		return Decision{Keep: false, RejectReason: ReasonAllowedCountry}, norm
	}

	combined := strings.Join([]string{raw.Title, raw.CategoryText, raw.Text}, " ")
	keywords := cfg.NormalizedKeywords()
	if len(keywords) > 0 && !KeywordsMatch(combined, keywords, cfg.KeywordFuzzy, cfg.KeywordFuzzyThreshold) {
		return Decision{Keep: false, RejectReason: ReasonKeywords}, norm
	}
	exclude := cfg.NormalizedKeywordsExclude()
	if len(exclude) > 0 && KeywordsMatch(combined, exclude, cfg.KeywordFuzzy, cfg.KeywordFuzzyThreshold) {
		return Decision{Keep: false, RejectReason: ReasonKeywordsExclude}, norm
	}

	for _, method := range cfg.NormalizedRequiredContactMethods() {
		if !ContactMethodSatisfied(method, raw) {
			return Decision{Keep: false, RejectReason: ReasonRequiredContactMethods}, norm
		}
	}

	return Decision{Keep: true}, norm
}
