package geomap

import (
	"dashguard/internal/domain/models"
)

// MapFilter narrows the markers drawn on top of the workspace's visible set.
// The zero value passes everything.
type MapFilter struct {
	Severities    []models.Severity `json:"severities"`
	MinConfidence int               `json:"minConfidence" validate:"gte=0,lte=100"`
	Country       string            `json:"country"`
}

// Matches reports whether a threat passes the map filter
func (f MapFilter) Matches(t *models.Threat) bool {
	if len(f.Severities) > 0 {
		found := false
		for _, s := range f.Severities {
			if s == t.Severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if t.Confidence < f.MinConfidence {
		return false
	}
	if f.Country != "" && t.Country() != f.Country {
		return false
	}
	return true
}

func (f MapFilter) clone() MapFilter {
	f.Severities = append([]models.Severity{}, f.Severities...)
	return f
}
