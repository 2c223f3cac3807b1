package services

import (
	"strings"

	"dashguard/internal/domain/models"
)

// Matches reports whether a threat passes every active constraint of the criteria.
// Constraint groups are ANDed; values inside a group are ORed.
func Matches(t *models.Threat, c *models.FilterCriteria) bool {
	if len(c.Severity) > 0 && !containsSeverity(c.Severity, t.Severity) {
		return false
	}

	if len(c.Type) > 0 && !containsType(c.Type, t.Type) {
		return false
	}

	if len(c.Source) > 0 && !containsString(c.Source, t.Source) {
		return false
	}

	// Date range applies to DateAdded only
	if c.DateRange.From != nil && t.DateAdded.Before(*c.DateRange.From) {
		return false
	}
	if c.DateRange.To != nil && t.DateAdded.After(*c.DateRange.To) {
		return false
	}

	if c.SearchQuery != "" && !matchesSearch(t, strings.ToLower(c.SearchQuery)) {
		return false
	}

	return true
}

// matchesSearch expects an already lowercased query
func matchesSearch(t *models.Threat, query string) bool {
	fields := [...]string{t.Indicator, t.Description, t.IP, t.Domain, t.URL, t.Hash, t.Country()}
	for _, f := range fields {
		if f == "" {
			continue
		}
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// FilterThreats returns the threats matching c in their original order
func FilterThreats(threats []models.Threat, c models.FilterCriteria) []models.Threat {
	out := make([]models.Threat, 0, len(threats))
	for i := range threats {
		if Matches(&threats[i], &c) {
			out = append(out, threats[i].Clone())
		}
	}
	return out
}

func containsSeverity(set []models.Severity, v models.Severity) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(set []models.ThreatType, v models.ThreatType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
