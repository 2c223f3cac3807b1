package models

// CategoryCount represents a count by category
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DailyCount is the number of threats added on one calendar date
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// StatsSnapshot is a derived, read-only summary of a threat collection
type StatsSnapshot struct {
	Total int `json:"total"`

	CountBySeverity map[Severity]int   `json:"countBySeverity"`
	CountByType     map[ThreatType]int `json:"countByType"`

	TopCountries []CategoryCount `json:"topCountries"`
	BySource     []CategoryCount `json:"bySource"`
	DailyCounts  []DailyCount    `json:"dailyCounts"`

	ActiveCount   int `json:"activeCount"`
	InactiveCount int `json:"inactiveCount"`

	UniqueCountries   int `json:"uniqueCountries"`
	AverageConfidence int `json:"averageConfidence"`
}

// SeverityTotal sums the per-severity counts
func (s StatsSnapshot) SeverityTotal() int {
	n := 0
	for _, c := range s.CountBySeverity {
		n += c
	}
	return n
}

// TypeTotal sums the per-type counts
func (s StatsSnapshot) TypeTotal() int {
	n := 0
	for _, c := range s.CountByType {
		n += c
	}
	return n
}

// TimeRange is a relative analytics window
type TimeRange string

const (
	TimeRange24Hours TimeRange = "24hours"
	TimeRange7Days   TimeRange = "7days"
	TimeRange30Days  TimeRange = "30days"
	TimeRange90Days  TimeRange = "90days"
)

// Days returns the number of days covered by the range; unknown ranges mean 7 days
func (r TimeRange) Days() int {
	switch r {
	case TimeRange24Hours:
		return 1
	case TimeRange7Days:
		return 7
	case TimeRange30Days:
		return 30
	case TimeRange90Days:
		return 90
	default:
		return 7
	}
}
