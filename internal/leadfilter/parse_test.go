package leadfilter

import "testing"

func TestParseAgeHours(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"1 hour ago", 1, true},
		{"72 hours ago", 72, true},
		{"30 min ago", 0.5, true},
		{"2 days ago", 48, true},
		{"", 0, false},
		{"just now", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseAgeHours(tc.raw)
		if ok != tc.ok {
			t.Errorf("ParseAgeHours(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseAgeHours(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseMemberMonths(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"member since 36 months", 36, true},
		{"member since 3 years", 36, true},
		{"member since 1 year", 12, true},
		{"", 0, false},
		{"no info", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseMemberMonths(tc.raw)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseMemberMonths(%q) = (%v, %v), want (%v, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExtractStructuredFields(t *testing.T) {
	text := "Quantity: 500 units\nStrength: 50mg\nRequirements: 3\nCalls: 2\nReplies: 1\nretail lead"
	fields := ExtractStructuredFields(text)
	if fields.QuantityText != "500 units" {
		t.Errorf("QuantityText = %q", fields.QuantityText)
	}
	if fields.StrengthText != "50mg" {
		t.Errorf("StrengthText = %q", fields.StrengthText)
	}
	if fields.EngagementRequirements == nil || *fields.EngagementRequirements != 3 {
		t.Errorf("EngagementRequirements = %v", fields.EngagementRequirements)
	}
	if !fields.RetailHint {
		t.Error("expected RetailHint true")
	}
}

func TestCountryMatchesAliases(t *testing.T) {
	if !CountryMatches("United States", []string{"us"}) {
		t.Error("expected alias match for us -> united states")
	}
	if !CountryMatches("UK", []string{"uk"}) {
		t.Error("expected exact short-token match for uk")
	}
	if CountryMatches("Canada", []string{"us", "uk"}) {
		t.Error("expected no match for canada")
	}
}

func TestKeywordsMatchFuzzy(t *testing.T) {
	if !KeywordsMatch("industrial valvs supplier", []string{"valve"}, true, 0.8) {
		t.Error("expected fuzzy match for valvs ~ valve")
	}
	if KeywordsMatch("industrial valvs supplier", []string{"valve"}, false, 0.8) {
		t.Error("expected no match without fuzzy enabled")
	}
	if KeywordsMatch("a b c", []string{"abc"}, true, 0.5) {
		// keyword under 4 chars never fuzzy matches
		t.Error("expected short keyword to not fuzzy match")
	}
}
