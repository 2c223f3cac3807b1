package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/biter777/countries"

	"dashguard/internal/domain/models"
	"dashguard/pkg/logger"
)

// DefaultFeodoURL is the Abuse.ch Feodo Tracker botnet C2 blocklist
const DefaultFeodoURL = "https://feodotracker.abuse.ch/downloads/ipblocklist.json"

const feodoSource = "Feodo Tracker"

// FeodoLoader fetches botnet C2 IPs from Abuse.ch Feodo Tracker
type FeodoLoader struct {
	url    string
	client *http.Client
	logger *logger.Logger
}

// NewFeodoLoader creates a Feodo Tracker loader. An empty url uses DefaultFeodoURL.
func NewFeodoLoader(url string, log *logger.Logger) *FeodoLoader {
	if url == "" {
		url = DefaultFeodoURL
	}
	return &FeodoLoader{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: log.WithComponent("feodotracker"),
	}
}

// Slug returns the unique identifier for this loader
func (l *FeodoLoader) Slug() string { return "feodotracker" }

// Name returns the human-readable name of this loader
func (l *FeodoLoader) Name() string { return feodoSource }

// feodoEntry is a single entry of the Feodo Tracker JSON feed
type feodoEntry struct {
	IPAddress  string `json:"ip_address"`
	Port       int    `json:"port"`
	Status     string `json:"status"`
	Hostname   string `json:"hostname"`
	ASNumber   int    `json:"as_number"`
	ASName     string `json:"as_name"`
	Country    string `json:"country"`
	FirstSeen  string `json:"first_seen"`
	LastOnline string `json:"last_online"`
	Malware    string `json:"malware"`
}

// Load downloads the blocklist and maps each C2 to a malware threat.
// Entries carry a country but no coordinates.
func (l *FeodoLoader) Load(ctx context.Context) ([]models.Threat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}

	l.logger.Info().Str("url", l.url).Msg("fetching Feodo Tracker JSON feed")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feodo tracker feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var entries []feodoEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse feodo tracker feed: %w", err)
	}

	fetched := time.Now().UTC()
	threats := make([]models.Threat, 0, len(entries))
	for _, e := range entries {
		if e.IPAddress == "" {
			continue
		}
		threats = append(threats, e.threat(fetched))
	}

	l.logger.Info().
		Int("entries", len(entries)).
		Int("threats", len(threats)).
		Msg("Feodo Tracker fetch completed")

	return threats, nil
}

func (e feodoEntry) threat(fetched time.Time) models.Threat {
	online := e.Status == "online"

	added := fetched
	if t, err := time.Parse("2006-01-02 15:04:05", e.FirstSeen); err == nil {
		added = t
	}
	var lastSeen time.Time
	if t, err := time.Parse("2006-01-02", e.LastOnline); err == nil {
		lastSeen = t
	}

	// Botnet C2s are high while online
	severity := models.SeverityMedium
	confidence := 80
	if online {
		severity = models.SeverityHigh
		confidence = 95
	}

	desc := fmt.Sprintf("%s botnet C2 on port %d", e.Malware, e.Port)
	if e.ASName != "" {
		desc += " (" + e.ASName + ")"
	}

	tags := []string{"feodotracker", "botnet", "c2"}
	if e.Malware != "" {
		tags = append(tags, strings.ToLower(e.Malware))
	}

	t := models.Threat{
		ID:          "feodo-" + e.IPAddress,
		Indicator:   e.IPAddress,
		IP:          e.IPAddress,
		Type:        models.ThreatTypeMalware,
		Severity:    severity,
		Source:      feodoSource,
		DateAdded:   added,
		LastSeen:    lastSeen,
		Description: desc,
		Tags:        tags,
		Confidence:  confidence,
		IsActive:    online,
	}
	if name := countryName(e.Country); name != "" {
		t.Location = &models.Location{Country: name}
	}
	return t
}

// countryName resolves an ISO alpha-2 code to the country name, "" if unknown
func countryName(code string) string {
	if code == "" {
		return ""
	}
	c := countries.ByName(code)
	if !c.IsValid() {
		return ""
	}
	return c.String()
}
