package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// DateRange bounds DateAdded. Nil bounds are unconstrained; both bounds are inclusive.
type DateRange struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// FilterCriteria is the active filter of a workspace.
// Empty sets and an empty query impose no constraint.
type FilterCriteria struct {
	Severity    []Severity   `json:"severity"`
	Type        []ThreatType `json:"type"`
	Source      []string     `json:"source"`
	DateRange   DateRange    `json:"dateRange"`
	SearchQuery string       `json:"searchQuery"`
}

// DefaultCriteria returns the unconstrained criteria
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{
		Severity: []Severity{},
		Type:     []ThreatType{},
		Source:   []string{},
	}
}

// IsDefault reports whether c imposes no constraint at all
func (c FilterCriteria) IsDefault() bool {
	return len(c.Severity) == 0 &&
		len(c.Type) == 0 &&
		len(c.Source) == 0 &&
		c.DateRange.From == nil &&
		c.DateRange.To == nil &&
		c.SearchQuery == ""
}

// Clone returns a copy that shares no slices or time pointers with c
func (c FilterCriteria) Clone() FilterCriteria {
	out := FilterCriteria{
		Severity:    append([]Severity{}, c.Severity...),
		Type:        append([]ThreatType{}, c.Type...),
		Source:      append([]string{}, c.Source...),
		SearchQuery: c.SearchQuery,
	}
	if c.DateRange.From != nil {
		from := *c.DateRange.From
		out.DateRange.From = &from
	}
	if c.DateRange.To != nil {
		to := *c.DateRange.To
		out.DateRange.To = &to
	}
	return out
}

// Bound is one side of a date range inside a patch. Set distinguishes
// "leave unchanged" (Set=false) from "clear" (Set=true, Time=nil).
type Bound struct {
	Set  bool
	Time *time.Time
}

// SetBound returns a bound that sets the value t
func SetBound(t time.Time) Bound {
	return Bound{Set: true, Time: &t}
}

// ClearBound returns a bound that removes the constraint
func ClearBound() Bound {
	return Bound{Set: true}
}

// UnmarshalJSON marks the bound as present, null clears it
func (b *Bound) UnmarshalJSON(data []byte) error {
	b.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		b.Time = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	b.Time = &t
	return nil
}

// MarshalJSON writes the bound value or null
func (b Bound) MarshalJSON() ([]byte, error) {
	if b.Time == nil {
		return []byte("null"), nil
	}
	return json.Marshal(b.Time)
}

// DateRangePatch updates the two bounds independently
type DateRangePatch struct {
	From Bound `json:"from"`
	To   Bound `json:"to"`
}

// CriteriaPatch is a partial criteria update. Nil slices and nil pointers
// leave the current value in place; an empty non-nil slice clears a set.
type CriteriaPatch struct {
	Severity    []Severity      `json:"severity,omitempty"`
	Type        []ThreatType    `json:"type,omitempty"`
	Source      []string        `json:"source,omitempty"`
	DateRange   *DateRangePatch `json:"dateRange,omitempty"`
	SearchQuery *string         `json:"searchQuery,omitempty"`
}

// Apply merges p into c and returns the result; c is not modified
func (p CriteriaPatch) Apply(c FilterCriteria) FilterCriteria {
	out := c.Clone()
	if p.Severity != nil {
		out.Severity = append([]Severity{}, p.Severity...)
	}
	if p.Type != nil {
		out.Type = append([]ThreatType{}, p.Type...)
	}
	if p.Source != nil {
		out.Source = append([]string{}, p.Source...)
	}
	if p.DateRange != nil {
		if p.DateRange.From.Set {
			out.DateRange.From = copyTime(p.DateRange.From.Time)
		}
		if p.DateRange.To.Set {
			out.DateRange.To = copyTime(p.DateRange.To.Time)
		}
	}
	if p.SearchQuery != nil {
		out.SearchQuery = *p.SearchQuery
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
