// Package slotconfig decodes and validates the externally authored
// slot_config.yml and exposes normalized accessors for the lead filter.
package slotconfig

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config mirrors the fields recognized from slot_config.yml (spec.md §3).
// A missing or unparsable file is treated as an empty Config by the
// caller, never as an error.
type Config struct {
	QualityLevel         int             `yaml:"quality_level" validate:"gte=0,lte=100"`
	DryRun               bool            `yaml:"dry_run"`
	AutoBuy              bool            `yaml:"auto_buy"`
	MaxLeadsPerCycle     int             `yaml:"max_leads_per_cycle"`
	MaxClicksPerCycle    int             `yaml:"max_clicks_per_cycle"`
	MaxRunMinutes        int             `yaml:"max_run_minutes"`
	AllowedCountries     []string        `yaml:"allowed_countries"`
	BlockedCountries     []string        `yaml:"blocked_countries"`
	Keywords             []string        `yaml:"keywords"`
	KeywordsExclude      []string        `yaml:"keywords_exclude"`
	KeywordFuzzy         bool            `yaml:"keyword_fuzzy"`
	KeywordFuzzyThreshold float64        `yaml:"keyword_fuzzy_threshold" validate:"omitempty,gte=0.5,lte=0.99"`
	RequiredContactMethods []string      `yaml:"required_contact_methods"`
	Channels             map[string]bool `yaml:"channels"`
	Version              int             `yaml:"version"`
}

// Default returns the config used when a slot directory has no config
// file yet or the file fails to parse: every gate empty and the fuzzy
// keyword threshold at 0.8.
func Default() Config {
	return Config{KeywordFuzzyThreshold: 0.8}
}

// Load reads and parses the YAML file at path. Any error (missing file,
// bad YAML, failed validation) is swallowed and the default/empty
// config is returned instead, matching the spec's
// config_parse_error -> "treat as empty config" handling.
func Load(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Default()
	}
	if cfg.KeywordFuzzyThreshold == 0 {
		cfg.KeywordFuzzyThreshold = 0.8
	}
	if err := validate.Struct(&cfg); err != nil {
		return Default()
	}
	return cfg
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// NormalizedAllowedCountries returns allowed_countries lowercased and trimmed.
func (c Config) NormalizedAllowedCountries() []string {
	return normalizeList(c.AllowedCountries)
}

// NormalizedBlockedCountries returns blocked_countries lowercased and trimmed.
func (c Config) NormalizedBlockedCountries() []string {
	return normalizeList(c.BlockedCountries)
}

// NormalizedKeywords returns keywords lowercased and trimmed.
func (c Config) NormalizedKeywords() []string {
	return normalizeList(c.Keywords)
}

// NormalizedKeywordsExclude returns keywords_exclude lowercased and trimmed.
func (c Config) NormalizedKeywordsExclude() []string {
	return normalizeList(c.KeywordsExclude)
}

// NormalizedRequiredContactMethods returns required_contact_methods
// lowercased, trimmed, and mapped to the canonical method names.
func (c Config) NormalizedRequiredContactMethods() []string {
	out := make([]string, 0, len(c.RequiredContactMethods))
	for _, m := range normalizeList(c.RequiredContactMethods) {
		switch m {
		case "mobile", "phone", "call":
			out = append(out, "phone")
		case "email", "mail":
			out = append(out, "email")
		case "whatsapp", "wa":
			out = append(out, "whatsapp")
		default:
			out = append(out, m)
		}
	}
	return out
}

// ChannelEnabled reports whether the named channel is enabled. Absent
// from the Channels map defaults to enabled, matching the original's
// "dispatch unless explicitly disabled" behavior.
func (c Config) ChannelEnabled(channel string) bool {
	if c.Channels == nil {
		return true
	}
	enabled, ok := c.Channels[channel]
	if !ok {
		return true
	}
	return enabled
}
