package services

import (
	"sort"
	"strings"

	"dashguard/internal/domain/models"
)

// SortKey names the record field a sort is keyed by
type SortKey string

const (
	SortByID         SortKey = "id"
	SortByIndicator  SortKey = "indicator"
	SortByType       SortKey = "type"
	SortBySeverity   SortKey = "severity"
	SortBySource     SortKey = "source"
	SortByDateAdded  SortKey = "dateAdded"
	SortByLastSeen   SortKey = "lastSeen"
	SortByConfidence SortKey = "confidence"
	SortByActive     SortKey = "isActive"
	SortByCountry    SortKey = "country"
)

// SortDirection is ascending or descending
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortKey maps a query value onto a SortKey; ok is false for unknown keys
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(s) {
	case SortByID, SortByIndicator, SortByType, SortBySeverity, SortBySource,
		SortByDateAdded, SortByLastSeen, SortByConfidence, SortByActive, SortByCountry:
		return SortKey(s), true
	}
	return "", false
}

// ParseSortDirection defaults to ascending for anything but "desc"
func ParseSortDirection(s string) SortDirection {
	if strings.EqualFold(s, string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// SortBy returns a stably sorted copy of threats. The input is not modified.
// Severity sorts by rank (info < low < medium < high), dates by timestamp,
// confidence numerically and strings by code point.
func SortBy(threats []models.Threat, key SortKey, dir SortDirection) []models.Threat {
	out := models.CloneThreats(threats)
	cmp := comparator(key)
	if cmp == nil {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(&out[i], &out[j])
		if dir == SortDesc {
			return c > 0
		}
		return c < 0
	})
	return out
}

type compareFunc func(a, b *models.Threat) int

func comparator(key SortKey) compareFunc {
	switch key {
	case SortByID:
		return func(a, b *models.Threat) int { return strings.Compare(a.ID, b.ID) }
	case SortByIndicator:
		return func(a, b *models.Threat) int { return strings.Compare(a.Indicator, b.Indicator) }
	case SortByType:
		return func(a, b *models.Threat) int { return strings.Compare(string(a.Type), string(b.Type)) }
	case SortBySeverity:
		return func(a, b *models.Threat) int { return compareInt(a.Severity.Rank(), b.Severity.Rank()) }
	case SortBySource:
		return func(a, b *models.Threat) int { return strings.Compare(a.Source, b.Source) }
	case SortByDateAdded:
		return func(a, b *models.Threat) int { return a.DateAdded.Compare(b.DateAdded) }
	case SortByLastSeen:
		return func(a, b *models.Threat) int { return a.LastSeen.Compare(b.LastSeen) }
	case SortByConfidence:
		return func(a, b *models.Threat) int { return compareInt(a.Confidence, b.Confidence) }
	case SortByActive:
		return func(a, b *models.Threat) int { return compareInt(boolInt(a.IsActive), boolInt(b.IsActive)) }
	case SortByCountry:
		return func(a, b *models.Threat) int { return strings.Compare(a.Country(), b.Country()) }
	default:
		return nil
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
