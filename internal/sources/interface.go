package sources

import (
	"context"
	"errors"

	"dashguard/internal/domain/models"
)

// ErrUnknownLoader is returned when no loader is registered under a slug
var ErrUnknownLoader = errors.New("unknown feed loader")

// Loader supplies the raw threat collection. Records are not yet normalized.
type Loader interface {
	// Slug returns the unique identifier for this loader
	Slug() string

	// Name returns the human-readable name of this loader
	Name() string

	// Load returns the full threat collection
	Load(ctx context.Context) ([]models.Threat, error)
}

// Config holds the settings shared by the built-in loaders
type Config struct {
	Path        string `mapstructure:"path"`
	Seed        uint64 `mapstructure:"seed"`
	IPCount     int    `mapstructure:"ip_count"`
	DomainCount int    `mapstructure:"domain_count"`
	URLCount    int    `mapstructure:"url_count"`
	HashCount   int    `mapstructure:"hash_count"`
	FeodoURL    string `mapstructure:"feodo_url"`
}

// DefaultConfig returns the feed shape of the demo dashboard
func DefaultConfig() Config {
	return Config{
		Seed:        42,
		IPCount:     25,
		DomainCount: 15,
		URLCount:    10,
		HashCount:   5,
		FeodoURL:    DefaultFeodoURL,
	}
}
