package leadfilter

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	timeRx           = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(min|mins|minute|minutes|hour|hours|hr|hrs|day|days)\s*ago\b`)
	memberSinceRx    = regexp.MustCompile(`(?i)member since[^\n]*`)
	memberMonthsRx   = regexp.MustCompile(`(?i)member since\s+(\d+)\s*\+?\s*(month|months|year|years)`)
	quantityRx       = regexp.MustCompile(`(?i)\bQuantity\b\s*:\s*([^\n]+)`)
	strengthRx       = regexp.MustCompile(`(?i)\bStrength\b\s*:\s*([^\n]+)`)
	packagingRx      = regexp.MustCompile(`(?i)\bPackaging(?:\s*(?:Size|Type))?\b\s*:\s*([^\n]+)`)
	intentRx         = regexp.MustCompile(`(?i)\bI\s+want\s+this\s+for\b\s*:\s*([^\n]+)`)
	buysRx           = regexp.MustCompile(`(?i)\bBuys\b\s*:\s*([^\n]+)`)
	requirementsRx   = regexp.MustCompile(`(?i)\bRequirements\b\s*:\s*(\d+)`)
	callsRx          = regexp.MustCompile(`(?i)\bCalls\b\s*:\s*(\d+)`)
	repliesRx        = regexp.MustCompile(`(?i)\bReplies\b\s*:\s*(\d+)`)
	retailRx         = regexp.MustCompile(`(?i)\bretail\s+lead\b`)
	nonAlphaNumRx    = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// ExtractTimeText returns the first "N <unit> ago" fragment found in text.
func ExtractTimeText(text string) string {
	if text == "" {
		return ""
	}
	m := timeRx.FindString(text)
	return strings.TrimSpace(m)
}

// ParseAgeHours converts a "N min(s)/hour(s)/day(s) ago" fragment into hours.
// Returns (0, false) when raw carries no recognizable duration.
func ParseAgeHours(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	lower := strings.ToLower(raw)
	numRx := regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	m := numRx.FindString(lower)
	if m == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case strings.Contains(lower, "min"):
		return value / 60.0, true
	case strings.Contains(lower, "hour"), strings.Contains(lower, "hr"):
		return value, true
	case strings.Contains(lower, "day"):
		return value * 24.0, true
	default:
		return 0, false
	}
}

// ExtractMemberSinceText returns the "member since ..." fragment.
func ExtractMemberSinceText(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(memberSinceRx.FindString(text))
}

// ParseMemberMonths converts "member since N month(s)|year(s)" into months.
func ParseMemberMonths(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	m := memberMonthsRx.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if strings.Contains(strings.ToLower(m[2]), "year") {
		return value * 12, true
	}
	return value, true
}

// StructuredFields holds the key/value rows extracted from a lead body.
type StructuredFields struct {
	QuantityText          string
	StrengthText          string
	PackagingText         string
	IntentText            string
	BuysText              string
	EngagementRequirements *int
	EngagementCalls        *int
	EngagementReplies      *int
	RetailHint             bool
}

func extractMatch(rx *regexp.Regexp, text string) string {
	m := rx.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func extractInt(rx *regexp.Regexp, text string) *int {
	m := rx.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &v
}

// ExtractStructuredFields pulls the known key/value rows out of a lead's
// free-text body. An empty body yields a zero-value result.
func ExtractStructuredFields(text string) StructuredFields {
	if text == "" {
		return StructuredFields{}
	}
	return StructuredFields{
		QuantityText:           extractMatch(quantityRx, text),
		StrengthText:           extractMatch(strengthRx, text),
		PackagingText:          extractMatch(packagingRx, text),
		IntentText:             extractMatch(intentRx, text),
		BuysText:               extractMatch(buysRx, text),
		EngagementRequirements: extractInt(requirementsRx, text),
		EngagementCalls:        extractInt(callsRx, text),
		EngagementReplies:      extractInt(repliesRx, text),
		RetailHint:             retailRx.MatchString(text),
	}
}

func normalizeText(value string) string {
	lower := strings.ToLower(value)
	collapsed := nonAlphaNumRx.ReplaceAllString(lower, " ")
	return strings.Join(strings.Fields(collapsed), " ")
}
