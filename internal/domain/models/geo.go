package models

// Basemap selects the tile layer drawn under the markers
type Basemap string

const (
	BasemapStandard  Basemap = "standard"
	BasemapSatellite Basemap = "satellite"
)

// IsValid reports whether b is a known basemap
func (b Basemap) IsValid() bool {
	return b == BasemapStandard || b == BasemapSatellite
}

// TileLayer describes a tile source for a basemap
type TileLayer struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
}

// Viewport is the visible area of the map
type Viewport struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      int     `json:"zoom"`
	MinZoom   int     `json:"minZoom"`
	MaxZoom   int     `json:"maxZoom"`
}

// DefaultViewport is the world view the dashboard opens with
func DefaultViewport() Viewport {
	return Viewport{Latitude: 20, Longitude: 0, Zoom: 2, MinZoom: 2, MaxZoom: 18}
}

// MarkerStyle is the visual encoding of a marker
type MarkerStyle struct {
	Color string `json:"color"`
	Glyph string `json:"glyph"`
	Size  int    `json:"size"`
}

// MarkerPopup is the detail payload shown when a marker is opened
type MarkerPopup struct {
	Indicator   string     `json:"indicator"`
	Description string     `json:"description"`
	Type        ThreatType `json:"type"`
	Severity    Severity   `json:"severity"`
	Source      string     `json:"source"`
	Country     string     `json:"country"`
	CountryCode string     `json:"countryCode,omitempty"`
	City        string     `json:"city,omitempty"`
}

// Marker is one rendered threat on the map
type Marker struct {
	ThreatID  string      `json:"threatId"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Style     MarkerStyle `json:"style"`
	Popup     MarkerPopup `json:"popup"`
}
