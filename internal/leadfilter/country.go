package leadfilter

import "strings"

var countryAliases = map[string][]string{
	"us":  {"usa", "united states", "united states of america"},
	"usa": {"united states", "united states of america"},
	"uk":  {"united kingdom"},
	"aus": {"australia"},
}

// CountryMatches reports whether value (a free-text country field)
// matches any of terms, normalization-insensitively and with the
// us/usa/uk/aus alias table.
func CountryMatches(value string, terms []string) bool {
	normalized := normalizeText(value)
	if normalized == "" {
		return false
	}
	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(normalized) {
		tokens[t] = struct{}{}
	}
	for _, raw := range terms {
		term := normalizeText(raw)
		if term == "" {
			continue
		}
		if len(term) <= 3 {
			if _, ok := tokens[term]; ok {
				return true
			}
		} else if strings.Contains(normalized, term) {
			return true
		}
		if aliases, ok := countryAliases[term]; ok {
			for _, alias := range aliases {
				aliasNorm := normalizeText(alias)
				if aliasNorm != "" && strings.Contains(normalized, aliasNorm) {
					return true
				}
			}
		}
	}
	return false
}
