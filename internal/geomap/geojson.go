package geomap

import (
	geojson "github.com/paulmach/go.geojson"

	"dashguard/internal/domain/models"
)

// FeatureCollection renders markers as GeoJSON points.
// Coordinates follow the GeoJSON [longitude, latitude] order.
func FeatureCollection(markers []models.Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		f := geojson.NewPointFeature([]float64{m.Longitude, m.Latitude})
		f.ID = m.ThreatID
		f.SetProperty("indicator", m.Popup.Indicator)
		f.SetProperty("description", m.Popup.Description)
		f.SetProperty("type", string(m.Popup.Type))
		f.SetProperty("severity", string(m.Popup.Severity))
		f.SetProperty("source", m.Popup.Source)
		f.SetProperty("country", m.Popup.Country)
		if m.Popup.CountryCode != "" {
			f.SetProperty("countryCode", m.Popup.CountryCode)
		}
		if m.Popup.City != "" {
			f.SetProperty("city", m.Popup.City)
		}
		f.SetProperty("color", m.Style.Color)
		f.SetProperty("glyph", m.Style.Glyph)
		fc.AddFeature(f)
	}
	return fc
}
