package services

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"dashguard/internal/domain/models"
	"dashguard/pkg/logger"
)

var validDomain = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// Normalizer cleans and validates raw feed records before they reach the engine
type Normalizer struct {
	validate *validator.Validate
	logger   *logger.Logger
}

// NewNormalizer creates a new Normalizer
func NewNormalizer(log *logger.Logger) *Normalizer {
	return &Normalizer{
		validate: validator.New(),
		logger:   log.WithComponent("normalizer"),
	}
}

// Normalize returns a cleaned copy of raw, or an error if a required field
// is missing or invalid.
func (n *Normalizer) Normalize(raw models.Threat) (models.Threat, error) {
	t := raw.Clone()

	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	t.Indicator = strings.TrimSpace(t.Indicator)
	if t.Indicator == "" {
		return models.Threat{}, ErrInvalidThreat
	}

	t.Type = models.ParseThreatType(string(t.Type))
	t.Severity = models.ParseSeverity(string(t.Severity))
	t.Source = strings.TrimSpace(t.Source)
	t.Tags = models.NormalizeTags(t.Tags)

	t.IP = n.normalizeIP(t.IP)
	t.Domain = n.normalizeDomain(t.Domain)
	t.URL = strings.TrimSpace(t.URL)
	t.Hash = n.normalizeHash(t.Hash)
	if t.IP == "" && t.Domain == "" && t.URL == "" && t.Hash == "" {
		n.classify(&t)
	}

	if t.Confidence < 0 {
		t.Confidence = 0
	} else if t.Confidence > 100 {
		t.Confidence = 100
	}

	if t.LastSeen.IsZero() || t.LastSeen.Before(t.DateAdded) {
		t.LastSeen = t.DateAdded
	}

	n.normalizeLocation(&t)

	if err := n.validate.Struct(t); err != nil {
		return models.Threat{}, fmt.Errorf("threat %s: %w: %v", t.ID, ErrInvalidThreat, err)
	}

	return t, nil
}

// NormalizeBatch normalizes multiple records, skipping the invalid ones
func (n *Normalizer) NormalizeBatch(raws []models.Threat) ([]models.Threat, []error) {
	threats := make([]models.Threat, 0, len(raws))
	errs := make([]error, 0)
	seen := make(map[string]struct{}, len(raws))

	for _, raw := range raws {
		t, err := n.Normalize(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[t.ID]; dup {
			errs = append(errs, fmt.Errorf("threat %s: %w", t.ID, ErrDuplicateThreat))
			continue
		}
		seen[t.ID] = struct{}{}
		threats = append(threats, t)
	}

	if len(errs) > 0 {
		n.logger.Warn().
			Int("accepted", len(threats)).
			Int("rejected", len(errs)).
			Msg("feed records rejected during normalization")
	}

	return threats, errs
}

// classify fills the indicator field matching the raw indicator value
func (n *Normalizer) classify(t *models.Threat) {
	v := t.Indicator
	switch {
	case strings.Contains(v, "://"):
		if parsed, err := url.Parse(v); err == nil && parsed.Host != "" {
			t.URL = v
			if t.Domain == "" {
				t.Domain = n.normalizeDomain(parsed.Hostname())
			}
		}
	case n.normalizeIP(v) != "":
		t.IP = n.normalizeIP(v)
	case n.normalizeHash(v) != "":
		t.Hash = n.normalizeHash(v)
	case n.normalizeDomain(v) != "":
		t.Domain = n.normalizeDomain(v)
	}
}

// normalizeLocation drops out-of-range coordinates and empty locations.
// Such records stay filterable but never reach the map.
func (n *Normalizer) normalizeLocation(t *models.Threat) {
	loc := t.Location
	if loc == nil {
		return
	}
	loc.Country = strings.TrimSpace(loc.Country)
	loc.City = strings.TrimSpace(loc.City)

	if loc.Latitude != nil && (*loc.Latitude < -90 || *loc.Latitude > 90) {
		n.logger.Debug().Str("threat_id", t.ID).Float64("latitude", *loc.Latitude).Msg("dropping out-of-range coordinates")
		loc.Latitude, loc.Longitude = nil, nil
	}
	if loc.Longitude != nil && (*loc.Longitude < -180 || *loc.Longitude > 180) {
		n.logger.Debug().Str("threat_id", t.ID).Float64("longitude", *loc.Longitude).Msg("dropping out-of-range coordinates")
		loc.Latitude, loc.Longitude = nil, nil
	}

	if loc.Country == "" {
		if loc.Latitude == nil && loc.Longitude == nil {
			t.Location = nil
			return
		}
		loc.Country = "Unknown"
	}
}

func (n *Normalizer) normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ""
}

func (n *Normalizer) normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimSuffix(domain, ".")
	if len(domain) < 3 || len(domain) > 253 || !validDomain.MatchString(domain) {
		return ""
	}
	return domain
}

// normalizeHash accepts MD5, SHA1 and SHA256 hex digests
func (n *Normalizer) normalizeHash(hash string) string {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if len(hash) != 32 && len(hash) != 40 && len(hash) != 64 {
		return ""
	}
	if !isHexString(hash) {
		return ""
	}
	return hash
}

func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// Common errors
var (
	ErrInvalidThreat   = &NormalizerError{Message: "invalid threat record"}
	ErrDuplicateThreat = &NormalizerError{Message: "duplicate threat id"}
)

// NormalizerError represents a normalization error
type NormalizerError struct {
	Message string
}

func (e *NormalizerError) Error() string {
	return e.Message
}
