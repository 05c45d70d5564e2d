package leadfilter

import (
	"testing"

	"github.com/engyne/nodecore/internal/slotconfig"
)

func baseConfig() slotconfig.Config {
	cfg := slotconfig.Default()
	cfg.QualityLevel = 90
	cfg.AllowedCountries = []string{"india"}
	cfg.Keywords = []string{"valve"}
	return cfg
}

func TestDecideKeepsMatchingLead(t *testing.T) {
	raw := RawLead{
		Country: "India",
		Title:   "Industrial valve",
		Text:    "1 hour ago\nmember since 36 months",
	}
	decision, _ := Decide(baseConfig(), raw)
	if !decision.Keep {
		t.Fatalf("expected keep, got reject reason %q", decision.RejectReason)
	}
}

func TestDecideRejectsStaleAge(t *testing.T) {
	raw := RawLead{
		Country: "India",
		Title:   "Industrial valve",
		Text:    "72 hours ago\nmember since 36 months",
	}
	decision, _ := Decide(baseConfig(), raw)
	if decision.Keep || decision.RejectReason != ReasonMaxAgeHours {
		t.Fatalf("expected max_age_hours reject, got %+v", decision)
	}
}

func TestDecideRejectsDisallowedCountry(t *testing.T) {
	raw := RawLead{
		Country: "USA",
		Title:   "Industrial valve",
		Text:    "1 hour ago\nmember since 36 months",
	}
	decision, _ := Decide(baseConfig(), raw)
	if decision.Keep || decision.RejectReason != ReasonAllowedCountry {
		t.Fatalf("expected allowed_country reject, got %+v", decision)
	}
}

func TestDecideRejectsMissingKeyword(t *testing.T) {
	raw := RawLead{
		Country: "India",
		Title:   "pump",
		Text:    "1 hour ago\nmember since 36 months",
	}
	decision, _ := Decide(baseConfig(), raw)
	if decision.Keep || decision.RejectReason != ReasonKeywords {
		t.Fatalf("expected keywords reject, got %+v", decision)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	cfg := baseConfig()
	raw := RawLead{Country: "India", Title: "Industrial valve", Text: "1 hour ago"}
	d1, n1 := Decide(cfg, raw)
	d2, n2 := Decide(cfg, raw)
	if d1 != d2 {
		t.Fatalf("decision not deterministic: %+v vs %+v", d1, d2)
	}
	if (n1.AgeHours == nil) != (n2.AgeHours == nil) {
		t.Fatalf("normalized output not deterministic")
	}
}

func TestRequiredContactMethodsGate(t *testing.T) {
	cfg := slotconfig.Default()
	cfg.RequiredContactMethods = []string{"email", "whatsapp"}
	raw := RawLead{Email: "a@b.com"}
	decision, _ := Decide(cfg, raw)
	if decision.Keep || decision.RejectReason != ReasonRequiredContactMethods {
		t.Fatalf("expected required_contact_methods reject, got %+v", decision)
	}
	raw.Contact = "+1234567890"
	decision, _ = Decide(cfg, raw)
	if !decision.Keep {
		t.Fatalf("expected keep once whatsapp contact present, got %+v", decision)
	}
}

func TestEmptyGatesAllowEverything(t *testing.T) {
	cfg := slotconfig.Default()
	raw := RawLead{Country: "Freedonia", Title: "anything"}
	decision, _ := Decide(cfg, raw)
	if !decision.Keep {
		t.Fatalf("expected keep with no configured gates, got %+v", decision)
	}
}
