package services

import (
	"math"
	"sort"
	"time"

	"dashguard/internal/domain/models"
)

const (
	// SummaryTopCountries is the country list length on dashboard summaries
	SummaryTopCountries = 5
	// DetailTopCountries is the country list length on geographic breakdowns
	DetailTopCountries = 10
	// DefaultDailyWindow is the number of days in the daily series
	DefaultDailyWindow = 7
	// MaxDailyWindow bounds the daily series to the longest time range
	MaxDailyWindow = 90

	dateLayout = "2006-01-02"
)

// AggregateOptions controls the ranked and time-based parts of a snapshot
type AggregateOptions struct {
	TopCountries int // <= 0 means SummaryTopCountries
	TopSources   int // <= 0 means all sources
	DailyWindow  int // <= 0 means DefaultDailyWindow, capped at MaxDailyWindow
	Now          time.Time
	Location     *time.Location // calendar used for daily counts, defaults to Now's
}

func (o AggregateOptions) withDefaults() AggregateOptions {
	if o.TopCountries <= 0 {
		o.TopCountries = SummaryTopCountries
	}
	if o.DailyWindow <= 0 {
		o.DailyWindow = DefaultDailyWindow
	}
	if o.DailyWindow > MaxDailyWindow {
		o.DailyWindow = MaxDailyWindow
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Location == nil {
		o.Location = o.Now.Location()
	}
	return o
}

// Aggregate computes a StatsSnapshot over threats. It is pure: the same input
// and options always produce the same snapshot.
func Aggregate(threats []models.Threat, opts AggregateOptions) models.StatsSnapshot {
	opts = opts.withDefaults()

	snap := models.StatsSnapshot{
		Total:           len(threats),
		CountBySeverity: make(map[models.Severity]int, 4),
		CountByType:     make(map[models.ThreatType]int, 7),
	}
	for _, s := range models.AllSeverities() {
		snap.CountBySeverity[s] = 0
	}
	for _, t := range models.AllThreatTypes() {
		snap.CountByType[t] = 0
	}

	confidenceSum := 0
	countries := make(map[string]struct{})
	for i := range threats {
		t := &threats[i]

		// Unknown enum values still get counted so partitions sum to Total
		snap.CountBySeverity[t.Severity]++
		snap.CountByType[t.Type]++

		if t.IsActive {
			snap.ActiveCount++
		} else {
			snap.InactiveCount++
		}

		if c := t.Country(); c != "" {
			countries[c] = struct{}{}
		}
		confidenceSum += t.Confidence
	}

	snap.UniqueCountries = len(countries)
	if len(threats) > 0 {
		snap.AverageConfidence = int(math.Round(float64(confidenceSum) / float64(len(threats))))
	}

	snap.TopCountries = TopCountries(threats, opts.TopCountries)
	snap.BySource = RankedSources(threats, opts.TopSources)
	snap.DailyCounts = DailyCounts(threats, opts.DailyWindow, opts.Now.In(opts.Location))

	return snap
}

// TopCountries groups threats by location country, ranks them by count
// (ties keep first-encountered order) and keeps the first n.
// Threats without a location are ignored.
func TopCountries(threats []models.Threat, n int) []models.CategoryCount {
	ranked := rankBy(threats, func(t *models.Threat) string { return t.Country() }, true)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// BySource counts threats per source in first-encountered order
func BySource(threats []models.Threat) []models.CategoryCount {
	return countBy(threats, func(t *models.Threat) string { return t.Source }, false)
}

// RankedSources is BySource sorted by descending count, truncated to n when n > 0
func RankedSources(threats []models.Threat, n int) []models.CategoryCount {
	ranked := rankBy(threats, func(t *models.Threat) string { return t.Source }, false)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// DailyCounts returns one entry per calendar day for the last window days,
// today included, oldest first. Days are compared in now's location and the
// time of day is ignored. Windows longer than MaxDailyWindow are capped.
func DailyCounts(threats []models.Threat, window int, now time.Time) []models.DailyCount {
	if window <= 0 {
		return []models.DailyCount{}
	}
	if window > MaxDailyWindow {
		window = MaxDailyWindow
	}
	loc := now.Location()
	y, m, d := now.Date()

	out := make([]models.DailyCount, window)
	index := make(map[string]int, window)
	for i := 0; i < window; i++ {
		day := time.Date(y, m, d-(window-1-i), 0, 0, 0, 0, loc)
		key := day.Format(dateLayout)
		out[i] = models.DailyCount{Date: key}
		index[key] = i
	}

	for i := range threats {
		key := threats[i].DateAdded.In(loc).Format(dateLayout)
		if pos, ok := index[key]; ok {
			out[pos].Count++
		}
	}
	return out
}

// WithinRange keeps threats added at or after now minus the range's days
func WithinRange(threats []models.Threat, r models.TimeRange, now time.Time) []models.Threat {
	start := now.AddDate(0, 0, -r.Days())
	out := make([]models.Threat, 0, len(threats))
	for i := range threats {
		if !threats[i].DateAdded.Before(start) {
			out = append(out, threats[i].Clone())
		}
	}
	return out
}

// countBy groups by key in first-encountered order
func countBy(threats []models.Threat, key func(*models.Threat) string, skipEmpty bool) []models.CategoryCount {
	out := []models.CategoryCount{}
	pos := make(map[string]int)
	for i := range threats {
		k := key(&threats[i])
		if k == "" && skipEmpty {
			continue
		}
		if p, ok := pos[k]; ok {
			out[p].Count++
			continue
		}
		pos[k] = len(out)
		out = append(out, models.CategoryCount{Category: k, Count: 1})
	}
	return out
}

func rankBy(threats []models.Threat, key func(*models.Threat) string, skipEmpty bool) []models.CategoryCount {
	out := countBy(threats, key, skipEmpty)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
