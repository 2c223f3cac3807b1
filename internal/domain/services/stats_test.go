package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashguard/internal/domain/models"
)

func located(id, country string, sev models.Severity) models.Threat {
	th := sampleThreat(id, sev)
	if country != "" {
		th.Location = &models.Location{Country: country}
	}
	return th
}

func TestAggregate_Empty(t *testing.T) {
	snap := Aggregate(nil, AggregateOptions{Now: day(10)})

	assert.Equal(t, 0, snap.Total)
	assert.Empty(t, snap.TopCountries)
	assert.Empty(t, snap.BySource)
	assert.Len(t, snap.CountBySeverity, 4)
	assert.Len(t, snap.CountByType, 7)
	assert.Equal(t, 0, snap.SeverityTotal())
	assert.Equal(t, 0, snap.AverageConfidence)
	require.Len(t, snap.DailyCounts, DefaultDailyWindow)
	for _, d := range snap.DailyCounts {
		assert.Zero(t, d.Count)
	}
}

func TestAggregate_PartitionsSumToTotal(t *testing.T) {
	threats := []models.Threat{
		located("1", "France", models.SeverityHigh),
		located("2", "", models.SeverityLow),
		located("3", "Germany", "critical"),
		located("4", "France", models.SeverityInfo),
	}
	threats[1].IsActive = false
	threats[2].Type = "worm"
	threats[3].Source = ""

	snap := Aggregate(threats, AggregateOptions{Now: day(10)})

	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, snap.Total, snap.SeverityTotal())
	assert.Equal(t, snap.Total, snap.TypeTotal())
	assert.Equal(t, snap.Total, snap.ActiveCount+snap.InactiveCount)

	sourceSum := 0
	for _, s := range snap.BySource {
		sourceSum += s.Count
	}
	assert.Equal(t, snap.Total, sourceSum)
	assert.Equal(t, 2, snap.UniqueCountries)
}

func TestAggregate_IsDeterministic(t *testing.T) {
	threats := []models.Threat{
		located("1", "France", models.SeverityHigh),
		located("2", "Germany", models.SeverityLow),
		located("3", "Japan", models.SeverityMedium),
	}
	opts := AggregateOptions{Now: day(3)}
	assert.Equal(t, Aggregate(threats, opts), Aggregate(threats, opts))
}

func TestTopCountries_TiesKeepFirstEncounter(t *testing.T) {
	threats := []models.Threat{
		located("1", "Brazil", models.SeverityHigh),
		located("2", "China", models.SeverityHigh),
		located("3", "China", models.SeverityHigh),
		located("4", "Aruba", models.SeverityHigh),
		located("5", "", models.SeverityHigh),
		located("6", "Brazil", models.SeverityHigh),
		located("7", "Denmark", models.SeverityHigh),
	}

	top := TopCountries(threats, 3)
	assert.Equal(t, []models.CategoryCount{
		{Category: "Brazil", Count: 2},
		{Category: "China", Count: 2},
		{Category: "Aruba", Count: 1},
	}, top)

	assert.Len(t, TopCountries(threats, 0), 4)
}

func TestDailyCounts_CalendarDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	threats := []models.Threat{
		{ID: "a", DateAdded: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)},
		{ID: "b", DateAdded: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "c", DateAdded: time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)},
		{ID: "d", DateAdded: time.Date(2026, 3, 3, 23, 0, 0, 0, time.UTC)},
		{ID: "e", DateAdded: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
	}

	daily := DailyCounts(threats, 7, now)
	require.Len(t, daily, 7)
	assert.Equal(t, "2026-03-04", daily[0].Date)
	assert.Equal(t, 1, daily[0].Count)
	assert.Equal(t, "2026-03-08", daily[4].Date)
	assert.Equal(t, 1, daily[4].Count)
	assert.Equal(t, "2026-03-10", daily[6].Date)
	assert.Equal(t, 2, daily[6].Count)
	assert.Zero(t, daily[5].Count)
}

func TestDailyCounts_CrossesMonthBoundary(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	daily := DailyCounts(nil, 3, now)
	require.Len(t, daily, 3)
	assert.Equal(t, "2026-02-28", daily[0].Date)
	assert.Equal(t, "2026-03-01", daily[1].Date)
	assert.Equal(t, "2026-03-02", daily[2].Date)
}

func TestRankedSources(t *testing.T) {
	threats := []models.Threat{
		{Source: "MISP"},
		{Source: "VirusTotal"},
		{Source: "VirusTotal"},
		{Source: "SANS ISC"},
	}
	assert.Equal(t, []models.CategoryCount{
		{Category: "MISP", Count: 1},
		{Category: "VirusTotal", Count: 2},
		{Category: "SANS ISC", Count: 1},
	}, BySource(threats))

	ranked := RankedSources(threats, 2)
	assert.Equal(t, []models.CategoryCount{
		{Category: "VirusTotal", Count: 2},
		{Category: "MISP", Count: 1},
	}, ranked)
}

func TestWithinRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	threats := []models.Threat{
		{ID: "fresh", DateAdded: now.Add(-2 * time.Hour)},
		{ID: "week", DateAdded: now.AddDate(0, 0, -6)},
		{ID: "old", DateAdded: now.AddDate(0, 0, -40)},
	}

	assert.Len(t, WithinRange(threats, models.TimeRange24Hours, now), 1)
	assert.Len(t, WithinRange(threats, models.TimeRange7Days, now), 2)
	assert.Len(t, WithinRange(threats, models.TimeRange90Days, now), 3)
	assert.Len(t, WithinRange(threats, "forever", now), 2)
}

func TestAggregate_AverageConfidenceRounds(t *testing.T) {
	threats := []models.Threat{{Confidence: 50}, {Confidence: 51}}
	snap := Aggregate(threats, AggregateOptions{Now: day(1)})
	assert.Equal(t, 51, snap.AverageConfidence)
}

func TestDailyCounts_WindowIsCapped(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Len(t, DailyCounts(nil, 3_000_000, now), MaxDailyWindow)

	snap := Aggregate(nil, AggregateOptions{DailyWindow: 10_000, Now: now})
	assert.Len(t, snap.DailyCounts, MaxDailyWindow)
}
