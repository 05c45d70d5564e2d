package leadfilter

import (
	"strings"

	"github.com/xrash/smetrics"
)

// jaroWinklerBoostThreshold and jaroWinklerPrefixSize are the standard
// tuning constants for smetrics.JaroWinkler; they only affect the
// prefix-boost portion of the score, not the threshold the caller
// applies to its result.
const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

func fuzzyRatio(a, b string) float64 {
	return smetrics.JaroWinkler(a, b, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)
}

// KeywordsMatch reports whether text contains any of keywords as a
// substring (after normalization) or, when fuzzyEnabled, whether a
// sliding token window is within fuzzyThreshold similarity of a
// keyword. Keywords under 4 characters never fuzzy-match.
func KeywordsMatch(text string, keywords []string, fuzzyEnabled bool, fuzzyThreshold float64) bool {
	normalized := normalizeText(text)
	if normalized == "" {
		return false
	}
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return false
	}
	for _, raw := range keywords {
		keyword := normalizeText(raw)
		if keyword == "" {
			continue
		}
		if strings.Contains(normalized, keyword) {
			return true
		}
		if !fuzzyEnabled || len(keyword) < 4 {
			continue
		}
		keywordTokens := strings.Fields(keyword)
		if len(keywordTokens) == 1 {
			for _, token := range tokens {
				if len(token) < 4 {
					continue
				}
				if fuzzyRatio(token, keyword) >= fuzzyThreshold {
					return true
				}
			}
			continue
		}
		window := len(keywordTokens)
		if window > len(tokens) {
			if fuzzyRatio(normalized, keyword) >= fuzzyThreshold {
				return true
			}
			continue
		}
		for idx := 0; idx+window <= len(tokens); idx++ {
			windowText := strings.Join(tokens[idx:idx+window], " ")
			if fuzzyRatio(windowText, keyword) >= fuzzyThreshold {
				return true
			}
		}
	}
	return false
}
