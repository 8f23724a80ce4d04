package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the odds engine.
type Config struct {
	Server    ServerConfig
	Providers ProvidersConfig
	Priority  PriorityConfig
	Cache     CacheConfig
	Fetch     FetchConfig
	Kafka     KafkaConfig
	Postgres  PostgresConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProvidersConfig holds per-upstream settings. Keys and base URLs are always
// externally supplied, never hardcoded.
type ProvidersConfig struct {
	TheOddsAPI TheOddsAPIProvider
	ESPN       ESPNProvider
	Sportsline SportslineProvider
}

// TheOddsAPIProvider configures The Odds API adapter pair.
type TheOddsAPIProvider struct {
	Enabled   bool
	BaseURL   string
	APIKey    string
	Regions   []string
	Markets   []string
	RateLimit float64 // requests per second, 0 disables
}

// ESPNProvider configures the ESPN scoreboard adapter.
type ESPNProvider struct {
	Enabled    bool
	BaseURL    string
	SportPaths map[string]string
	RateLimit  float64
}

// SportslineProvider configures the flat lines feed adapter.
type SportslineProvider struct {
	Enabled   bool
	BaseURL   string
	APIKey    string
	RateLimit float64
}

// PriorityConfig holds the provider fallback order, overridable per sport.
type PriorityConfig struct {
	Default []string
	BySport map[string][]string
}

// For returns the provider priority order for a sport.
func (p PriorityConfig) For(sportCode string) []string {
	if order, ok := p.BySport[sportCode]; ok && len(order) > 0 {
		return order
	}
	return p.Default
}

// CacheConfig holds aggregation cache configuration.
type CacheConfig struct {
	TTL           time.Duration
	Backend       string // memory, redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// FetchConfig holds upstream request configuration.
type FetchConfig struct {
	Timeout time.Duration
}

// KafkaConfig holds the quote stream producer configuration.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
}

// PostgresConfig holds the snapshot store configuration.
type PostgresConfig struct {
	Enabled bool
	DSN     string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("providers.theoddsapi.enabled", true)
	v.SetDefault("providers.theoddsapi.base_url", "https://api.the-odds-api.com")
	v.SetDefault("providers.theoddsapi.api_key", "")
	v.SetDefault("providers.theoddsapi.regions", []string{"us"})
	v.SetDefault("providers.theoddsapi.markets", []string{"h2h", "spreads", "totals"})
	v.SetDefault("providers.theoddsapi.rate_limit", 0.0)

	v.SetDefault("providers.espn.enabled", true)
	v.SetDefault("providers.espn.base_url", "https://site.api.espn.com")
	v.SetDefault("providers.espn.rate_limit", 0.0)

	v.SetDefault("providers.sportsline.enabled", false)
	v.SetDefault("providers.sportsline.base_url", "")
	v.SetDefault("providers.sportsline.api_key", "")
	v.SetDefault("providers.sportsline.rate_limit", 0.0)

	v.SetDefault("priority.default", []string{"theoddsapi", "sportsline", "espn"})

	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("fetch.timeout", 8*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "normalized_quotes")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", 5*time.Second)

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables: nested keys map onto
	// ODDS_ENGINE_SECTION_KEY, so cache.backend reads ODDS_ENGINE_CACHE_BACKEND.
	v.SetEnvPrefix("ODDS_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal to struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
