package geoip

import (
	"fmt"
	"net"

	"github.com/biter777/countries"
	"github.com/oschwald/maxminddb-golang"

	"dashguard/internal/domain/models"
	"dashguard/pkg/logger"
)

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  *float64 `maxminddb:"latitude"`
		Longitude *float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// Enricher fills missing threat locations from a MaxMind city database.
// A nil *Enricher is valid and enriches nothing.
type Enricher struct {
	reader *maxminddb.Reader
	logger *logger.Logger
}

// Open opens the database at path. An empty path yields a nil enricher.
func Open(path string, log *logger.Logger) (*Enricher, error) {
	if path == "" {
		return nil, nil
	}

	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}

	log = log.WithComponent("geoip")
	log.Info().
		Str("path", path).
		Str("type", reader.Metadata.DatabaseType).
		Msg("geoip database loaded")

	return &Enricher{reader: reader, logger: log}, nil
}

// Enrich fills the location of a threat that has an IP but no coordinates.
// A country already supplied by the feed is kept. It reports whether the
// threat was changed.
func (e *Enricher) Enrich(t *models.Threat) bool {
	if e == nil || t.IP == "" {
		return false
	}
	if t.Location != nil && t.Location.Latitude != nil && t.Location.Longitude != nil {
		return false
	}

	ip := net.ParseIP(t.IP)
	if ip == nil {
		return false
	}

	var rec cityRecord
	if err := e.reader.Lookup(ip, &rec); err != nil {
		e.logger.Debug().Err(err).Str("ip", t.IP).Msg("geoip lookup failed")
		return false
	}

	country := rec.Country.Names["en"]
	if country == "" && rec.Country.ISOCode != "" {
		country = countries.ByName(rec.Country.ISOCode).String()
	}

	if t.Location != nil {
		if rec.Location.Latitude == nil || rec.Location.Longitude == nil {
			return false
		}
		t.Location.Latitude = rec.Location.Latitude
		t.Location.Longitude = rec.Location.Longitude
		if t.Location.Country == "" {
			t.Location.Country = country
		}
		if t.Location.City == "" {
			t.Location.City = rec.City.Names["en"]
		}
		return true
	}

	if country == "" {
		return false
	}

	t.Location = &models.Location{
		Country:   country,
		City:      rec.City.Names["en"],
		Latitude:  rec.Location.Latitude,
		Longitude: rec.Location.Longitude,
	}
	if t.Location.Latitude == nil || t.Location.Longitude == nil {
		t.Location.Latitude, t.Location.Longitude = nil, nil
	}
	return true
}

// EnrichAll enriches threats in place and returns how many changed
func (e *Enricher) EnrichAll(threats []models.Threat) int {
	if e == nil {
		return 0
	}
	n := 0
	for i := range threats {
		if e.Enrich(&threats[i]) {
			n++
		}
	}
	return n
}

// Close releases the database
func (e *Enricher) Close() error {
	if e == nil {
		return nil
	}
	return e.reader.Close()
}
