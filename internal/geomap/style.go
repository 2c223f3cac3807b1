package geomap

import (
	"github.com/biter777/countries"

	"dashguard/internal/domain/models"
)

// MarkerSize is the icon edge length in pixels
const MarkerSize = 24

var severityStyles = map[models.Severity]models.MarkerStyle{
	models.SeverityHigh:   {Color: "#EF4444", Glyph: "!", Size: MarkerSize},
	models.SeverityMedium: {Color: "#F59E0B", Glyph: "!", Size: MarkerSize},
	models.SeverityLow:    {Color: "#10B981", Glyph: "i", Size: MarkerSize},
	models.SeverityInfo:   {Color: "#3B82F6", Glyph: "i", Size: MarkerSize},
}

// StyleFor returns the marker style of a severity. Unknown severities are drawn as info.
func StyleFor(s models.Severity) models.MarkerStyle {
	if style, ok := severityStyles[s]; ok {
		return style
	}
	return severityStyles[models.SeverityInfo]
}

// PopupFor derives the popup payload from the record alone
func PopupFor(t *models.Threat) models.MarkerPopup {
	p := models.MarkerPopup{
		Indicator:   t.Indicator,
		Description: t.Description,
		Type:        t.Type,
		Severity:    t.Severity,
		Source:      t.Source,
	}
	if t.Location != nil {
		p.Country = t.Location.Country
		p.City = t.Location.City
		p.CountryCode = CountryCode(t.Location.Country)
	}
	return p
}

// CountryCode resolves a country name to its ISO 3166-1 alpha-2 code, "" if unknown
func CountryCode(name string) string {
	if name == "" {
		return ""
	}
	code := countries.ByName(name)
	if !code.IsValid() {
		return ""
	}
	return code.Alpha2()
}

// MarkerFor builds the marker of a threat; ok is false when it has no coordinates
func MarkerFor(t *models.Threat) (models.Marker, bool) {
	if !t.HasCoordinates() {
		return models.Marker{}, false
	}
	return models.Marker{
		ThreatID:  t.ID,
		Latitude:  *t.Location.Latitude,
		Longitude: *t.Location.Longitude,
		Style:     StyleFor(t.Severity),
		Popup:     PopupFor(t),
	}, true
}
