package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dashguard/internal/sources"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Map       MapConfig       `mapstructure:"map"`
	Session   SessionConfig   `mapstructure:"session"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream_name"`
	Subject    string `mapstructure:"subject"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// FeedConfig selects and parameterizes the threat feed loader
type FeedConfig struct {
	Loader          string        `mapstructure:"loader"`
	GeoIPDatabase   string        `mapstructure:"geoip_database"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	sources.Config `mapstructure:",squash"`
}

type DashboardConfig struct {
	SummaryTopCountries int           `mapstructure:"summary_top_countries"`
	DetailTopCountries  int           `mapstructure:"detail_top_countries"`
	DailyWindow         int           `mapstructure:"daily_window"`
	StatsCacheTTL       time.Duration `mapstructure:"stats_cache_ttl"`
	MaxWorkspaces       int           `mapstructure:"max_workspaces"`
	SortCacheSize       int           `mapstructure:"sort_cache_size"`
}

type MapConfig struct {
	DefaultBasemap   string        `mapstructure:"default_basemap"`
	CenterLatitude   float64       `mapstructure:"center_latitude"`
	CenterLongitude  float64       `mapstructure:"center_longitude"`
	Zoom             int           `mapstructure:"zoom"`
	MinZoom          int           `mapstructure:"min_zoom"`
	MaxZoom          int           `mapstructure:"max_zoom"`
	StandardTiles    string        `mapstructure:"standard_tiles"`
	StandardAttrib   string        `mapstructure:"standard_attribution"`
	SatelliteTiles   string        `mapstructure:"satellite_tiles"`
	SatelliteAttrib  string        `mapstructure:"satellite_attribution"`
	AttachTimeout    time.Duration `mapstructure:"attach_timeout"`
	WebSocketBuffer  int           `mapstructure:"websocket_buffer"`
	WebSocketOrigins []string      `mapstructure:"websocket_origins"`
}

type SessionConfig struct {
	Header string `mapstructure:"header"`
	Cookie string `mapstructure:"cookie"`
}

// defaults mirrors every key so the service runs without a config file
var defaults = map[string]any{
	"app.name":        "dashguard",
	"app.environment": "development",
	"app.version":     "0.1.0",
	"app.debug":       false,

	"server.host":             "0.0.0.0",
	"server.http_port":        8090,
	"server.grpc_port":        9090,
	"server.read_timeout":     "15s",
	"server.write_timeout":    "30s",
	"server.idle_timeout":     "60s",
	"server.shutdown_timeout": "30s",

	"redis.enabled":    false,
	"redis.host":       "localhost",
	"redis.port":       6379,
	"redis.password":   "",
	"redis.db":         0,
	"redis.key_prefix": "dashguard:",

	"nats.enabled":     false,
	"nats.url":         "nats://localhost:4222",
	"nats.stream_name": "DASHGUARD",
	"nats.subject":     "dashguard.events",

	"cors.allowed_origins":   []string{"http://localhost:5173"},
	"cors.allowed_methods":   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	"cors.allowed_headers":   []string{"Accept", "Content-Type", "X-Request-ID", "X-Dashguard-Session"},
	"cors.allow_credentials": true,
	"cors.max_age":           300,

	"ratelimit.enabled":             true,
	"ratelimit.requests_per_minute": 300,

	"logger.level":       "info",
	"logger.format":      "json",
	"logger.time_format": time.RFC3339,

	"feed.loader":           "mock",
	"feed.geoip_database":   "",
	"feed.refresh_interval": "0s",
	"feed.path":             "",
	"feed.seed":             42,
	"feed.ip_count":         25,
	"feed.domain_count":     15,
	"feed.url_count":        10,
	"feed.hash_count":       5,
	"feed.feodo_url":        "https://feodotracker.abuse.ch/downloads/ipblocklist.json",

	"dashboard.summary_top_countries": 5,
	"dashboard.detail_top_countries":  10,
	"dashboard.daily_window":          7,
	"dashboard.stats_cache_ttl":       "5m",
	"dashboard.max_workspaces":        256,
	"dashboard.sort_cache_size":       32,

	"map.default_basemap":       "standard",
	"map.center_latitude":       20.0,
	"map.center_longitude":      0.0,
	"map.zoom":                  2,
	"map.min_zoom":              2,
	"map.max_zoom":              18,
	"map.standard_tiles":        "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
	"map.standard_attribution":  "&copy; OpenStreetMap contributors",
	"map.satellite_tiles":       "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
	"map.satellite_attribution": "Tiles &copy; Esri",
	"map.attach_timeout":        "10s",
	"map.websocket_buffer":      64,
	"map.websocket_origins":     []string{},

	"session.header": "X-Dashguard-Session",
	"session.cookie": "dashguard_auth",
}

// Load reads configuration from file and environment variables.
// A missing config file is not an error when no explicit path is given.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dashguard")
	}

	// Environment variables
	v.SetEnvPrefix("DASHGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	v.BindEnv("redis.enabled", "DASHGUARD_REDIS_ENABLED")
	v.BindEnv("redis.host", "DASHGUARD_REDIS_HOST")
	v.BindEnv("redis.port", "DASHGUARD_REDIS_PORT")
	v.BindEnv("redis.password", "DASHGUARD_REDIS_PASSWORD")
	v.BindEnv("nats.enabled", "DASHGUARD_NATS_ENABLED")
	v.BindEnv("nats.url", "DASHGUARD_NATS_URL")
	v.BindEnv("feed.loader", "DASHGUARD_FEED_LOADER")
	v.BindEnv("feed.path", "DASHGUARD_FEED_PATH")
	v.BindEnv("feed.geoip_database", "DASHGUARD_FEED_GEOIP_DATABASE")
	v.BindEnv("logger.level", "DASHGUARD_LOGGER_LEVEL")
	v.BindEnv("app.environment", "DASHGUARD_APP_ENVIRONMENT")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Defaults returns the configuration used when no file or env overrides exist
func Defaults() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	var cfg Config
	// defaults are well-formed, decoding cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}
