package models

import (
	"sort"
	"strings"
	"time"
)

// ThreatType represents the category of a threat
type ThreatType string

const (
	ThreatTypeMalware    ThreatType = "malware"
	ThreatTypePhishing   ThreatType = "phishing"
	ThreatTypeRansomware ThreatType = "ransomware"
	ThreatTypeDDoS       ThreatType = "ddos"
	ThreatTypeExploit    ThreatType = "exploit"
	ThreatTypeAPT        ThreatType = "apt"
	ThreatTypeOther      ThreatType = "other"
)

// Severity represents the threat severity level
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

// AllSeverities lists every severity from most to least urgent
func AllSeverities() []Severity {
	return []Severity{SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// AllThreatTypes lists every threat type in display order
func AllThreatTypes() []ThreatType {
	return []ThreatType{
		ThreatTypeMalware,
		ThreatTypePhishing,
		ThreatTypeRansomware,
		ThreatTypeDDoS,
		ThreatTypeExploit,
		ThreatTypeAPT,
		ThreatTypeOther,
	}
}

// Location is the geographic attribution of a threat
type Location struct {
	Country   string   `json:"country" validate:"required"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
}

// Threat is a single ingested indicator record.
// Optional string fields use "" for absent.
type Threat struct {
	ID          string     `json:"id" validate:"required"`
	Indicator   string     `json:"indicator" validate:"required"`
	Type        ThreatType `json:"type" validate:"required,oneof=malware phishing ransomware ddos exploit apt other"`
	Severity    Severity   `json:"severity" validate:"required,oneof=high medium low info"`
	Source      string     `json:"source"`
	DateAdded   time.Time  `json:"dateAdded" validate:"required"`
	LastSeen    time.Time  `json:"lastSeen"`
	Description string     `json:"description"`

	IP     string `json:"ip,omitempty"`
	Domain string `json:"domain,omitempty"`
	URL    string `json:"url,omitempty"`
	Hash   string `json:"hash,omitempty"`

	Location *Location `json:"location,omitempty" validate:"omitempty"`

	Tags       []string `json:"tags"`
	Confidence int      `json:"confidence" validate:"gte=0,lte=100"`
	IsActive   bool     `json:"isActive"`
}

// HasCoordinates reports whether the threat can be placed on a map
func (t *Threat) HasCoordinates() bool {
	return t.Location != nil && t.Location.Latitude != nil && t.Location.Longitude != nil
}

// Country returns the location country or "" when the threat has no location
func (t *Threat) Country() string {
	if t.Location == nil {
		return ""
	}
	return t.Location.Country
}

// Clone returns a deep copy so callers cannot reach the engine's records
func (t Threat) Clone() Threat {
	c := t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Location != nil {
		loc := *t.Location
		if t.Location.Latitude != nil {
			lat := *t.Location.Latitude
			loc.Latitude = &lat
		}
		if t.Location.Longitude != nil {
			lng := *t.Location.Longitude
			loc.Longitude = &lng
		}
		c.Location = &loc
	}
	return c
}

// CloneThreats deep-copies a slice of threats into a fresh slice
func CloneThreats(threats []Threat) []Threat {
	out := make([]Threat, len(threats))
	for i := range threats {
		out[i] = threats[i].Clone()
	}
	return out
}

// NormalizeTags collapses duplicates and empty entries and sorts the result.
// Tags are a set, so order carries no meaning.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Rank returns a numeric weight for ordering severities, high is largest.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether s is one of the known severities
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// String returns the string representation of Severity
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity parses a string into Severity
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info":
		return SeverityInfo
	default:
		return Severity(s)
	}
}

// IsValid reports whether t is one of the known threat types
func (t ThreatType) IsValid() bool {
	for _, known := range AllThreatTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation of ThreatType
func (t ThreatType) String() string {
	return string(t)
}

// ParseThreatType parses a string into ThreatType
func ParseThreatType(s string) ThreatType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "malware":
		return ThreatTypeMalware
	case "phishing":
		return ThreatTypePhishing
	case "ransomware":
		return ThreatTypeRansomware
	case "ddos":
		return ThreatTypeDDoS
	case "exploit":
		return ThreatTypeExploit
	case "apt":
		return ThreatTypeAPT
	case "other":
		return ThreatTypeOther
	default:
		return ThreatType(s)
	}
}

// Coord returns a pointer to v, for building locations inline
func Coord(v float64) *float64 {
	return &v
}
