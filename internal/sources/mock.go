package sources

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"dashguard/internal/domain/models"
)

var (
	mockSources = []string{
		"AlienVault", "VirusTotal", "IBM X-Force", "Talos Intelligence",
		"DashGuard Labs", "MISP", "SANS ISC",
	}

	mockCountries = []string{
		"United States", "Russia", "China", "Brazil", "India", "Germany",
		"France", "United Kingdom", "Canada", "Australia", "Japan", "North Korea",
	}

	mockCities = map[string][]string{
		"United States":  {"New York", "Los Angeles", "Chicago", "Houston", "Miami"},
		"Russia":         {"Moscow", "Saint Petersburg", "Novosibirsk", "Yekaterinburg", "Kazan"},
		"China":          {"Beijing", "Shanghai", "Guangzhou", "Shenzhen", "Chengdu"},
		"Brazil":         {"São Paulo", "Rio de Janeiro", "Brasília", "Salvador", "Fortaleza"},
		"India":          {"Mumbai", "Delhi", "Bangalore", "Hyderabad", "Chennai"},
		"Germany":        {"Berlin", "Hamburg", "Munich", "Cologne", "Frankfurt"},
		"France":         {"Paris", "Marseille", "Lyon", "Toulouse", "Nice"},
		"United Kingdom": {"London", "Birmingham", "Manchester", "Glasgow", "Liverpool"},
		"Canada":         {"Toronto", "Montreal", "Vancouver", "Calgary", "Ottawa"},
		"Australia":      {"Sydney", "Melbourne", "Brisbane", "Perth", "Adelaide"},
		"Japan":          {"Tokyo", "Osaka", "Kyoto", "Yokohama", "Sapporo"},
		"North Korea":    {"Pyongyang", "Hamhung", "Chongjin", "Nampo", "Wonsan"},
	}

	// %s is replaced by the indicator
	mockDescriptions = map[models.ThreatType][]string{
		models.ThreatTypeMalware:    {"Trojan malware communicating with C2 server at %s", "Malware distribution via %s", "Botnet command node detected at %s"},
		models.ThreatTypePhishing:   {"Phishing campaign originating from %s", "Credential harvesting at %s", "Fake login page hosted at %s"},
		models.ThreatTypeRansomware: {"Ransomware distribution node at %s", "Ransomware payment portal at %s", "Ransomware C2 server at %s"},
		models.ThreatTypeDDoS:       {"DDoS amplification server at %s", "Botnet coordination via %s", "NTP amplification reflector at %s"},
		models.ThreatTypeExploit:    {"Vulnerability scanning from %s", "Exploit kit hosting detected at %s", "Zero-day exploit distribution from %s"},
		models.ThreatTypeAPT:        {"APT group infrastructure detected at %s", "Nation-state actor command center at %s", "Long-term persistence infrastructure at %s"},
		models.ThreatTypeOther:      {"Suspicious activity from %s", "Anomalous network behavior from %s", "Unknown but suspicious traffic from %s"},
	}

	domainPrefixes = []string{"secure", "login", "account", "mail", "update", "download", "service", "support", "user", "admin"}
	domainMiddles  = []string{"bank", "pay", "wallet", "cloud", "web", "app", "site", "online", "center", "portal"}
	domainSuffixes = []string{".com", ".net", ".org", ".ru", ".cn", ".io", ".xyz", ".info", ".cc", ".biz"}
	urlPaths       = []string{"/login", "/account", "/update", "/security", "/verify", "/download", "/payment", "/checkout", "/admin", "/api"}
)

// MockLoader synthesizes a demo feed. The same seed and clock produce the same feed.
type MockLoader struct {
	cfg Config
	now func() time.Time
}

// NewMockLoader creates a seeded mock loader
func NewMockLoader(cfg Config) *MockLoader {
	return &MockLoader{cfg: cfg, now: time.Now}
}

// WithClock overrides the reference time records are dated against
func (l *MockLoader) WithClock(now func() time.Time) *MockLoader {
	l.now = now
	return l
}

// Slug returns the unique identifier for this loader
func (l *MockLoader) Slug() string { return "mock" }

// Name returns the human-readable name of this loader
func (l *MockLoader) Name() string { return "Mock Feed" }

// Load generates IP, domain, URL and hash threats
func (l *MockLoader) Load(ctx context.Context) ([]models.Threat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := &generator{
		rng: rand.New(rand.NewPCG(l.cfg.Seed, l.cfg.Seed^0x9e3779b97f4a7c15)),
		now: l.now(),
	}
	total := l.cfg.IPCount + l.cfg.DomainCount + l.cfg.URLCount + l.cfg.HashCount
	threats := make([]models.Threat, 0, total)

	for i := 0; i < l.cfg.IPCount; i++ {
		ip := fmt.Sprintf("%d.%d.%d.%d", g.rng.IntN(255), g.rng.IntN(255), g.rng.IntN(255), g.rng.IntN(255))
		t := g.threat(fmt.Sprintf("IP-%d", i+1), ip, []string{"tor-exit-node", "vpn"})
		t.IP = ip
		threats = append(threats, t)
	}

	domains := make([]models.Threat, 0, l.cfg.DomainCount)
	for i := 0; i < l.cfg.DomainCount; i++ {
		domain := pick(g.rng, domainPrefixes) + "-" + pick(g.rng, domainMiddles) + pick(g.rng, domainSuffixes)
		t := g.threat(fmt.Sprintf("DOMAIN-%d", i+1), domain, []string{"newly-registered", "dga"})
		t.Domain = domain
		domains = append(domains, t)
	}
	threats = append(threats, domains...)

	// URLs reuse a generated domain and its location
	for i := 0; i < l.cfg.URLCount && len(domains) > 0; i++ {
		parent := domains[g.rng.IntN(len(domains))]
		u := "https://" + parent.Domain + pick(g.rng, urlPaths)
		t := g.threat(fmt.Sprintf("URL-%d", i+1), u, []string{"redirector"})
		t.URL = u
		t.Domain = parent.Domain
		t.Location = cloneLocation(parent.Location)
		threats = append(threats, t)
	}

	for i := 0; i < l.cfg.HashCount; i++ {
		raw := make([]byte, 32)
		for j := range raw {
			raw[j] = byte(g.rng.IntN(256))
		}
		hash := hex.EncodeToString(raw)
		t := g.threat(fmt.Sprintf("HASH-%d", i+1), hash, []string{"sample"})
		t.Hash = hash
		// file samples have no network location
		t.Location = nil
		threats = append(threats, t)
	}

	return threats, nil
}

type generator struct {
	rng *rand.Rand
	now time.Time
}

func (g *generator) threat(id, indicator string, extraTags []string) models.Threat {
	types := models.AllThreatTypes()
	severities := models.AllSeverities()

	severity := severities[g.rng.IntN(len(severities))]
	threatType := types[g.rng.IntN(len(types))]

	daysAgo := g.rng.IntN(30)
	added := g.now.AddDate(0, 0, -daysAgo)
	lastSeen := added
	if daysAgo > 0 {
		lastSeen = added.AddDate(0, 0, g.rng.IntN(daysAgo))
	}

	country := pick(g.rng, mockCountries)
	location := &models.Location{
		Country:   country,
		City:      pick(g.rng, mockCities[country]),
		Latitude:  models.Coord(g.rng.Float64()*180 - 90),
		Longitude: models.Coord(g.rng.Float64()*360 - 180),
	}

	options := append([]string{"suspicious", "verified", "active", "blocked", "investigating", strings.ToLower(country), string(threatType)}, extraTags...)
	numTags := g.rng.IntN(4) + 1
	tags := make([]string, 0, numTags+1)
	for i := 0; i < numTags; i++ {
		tags = append(tags, pick(g.rng, options))
	}
	tags = append(tags, string(severity))

	return models.Threat{
		ID:          id,
		Indicator:   indicator,
		Type:        threatType,
		Severity:    severity,
		Source:      pick(g.rng, mockSources),
		DateAdded:   added,
		LastSeen:    lastSeen,
		Description: fmt.Sprintf(pick(g.rng, mockDescriptions[threatType]), indicator),
		Location:    location,
		Tags:        tags,
		Confidence:  g.rng.IntN(101),
		IsActive:    g.rng.Float64() > 0.3,
	}
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.IntN(len(values))]
}

func cloneLocation(loc *models.Location) *models.Location {
	if loc == nil {
		return nil
	}
	t := models.Threat{Location: loc}.Clone()
	return t.Location
}
