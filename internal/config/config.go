package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Cache    CacheConfig
	Scryfall ScryfallConfig
	Index    IndexConfig
	Live     LiveConfig
	Deck     DeckConfig
	Store    StoreConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"cardbored-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	AdminKey    string `envconfig:"ADMIN_KEY" default:""` // Empty disables the admin key check
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type      string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	KeyPrefix string `envconfig:"CACHE_KEY_PREFIX" default:"cardbored"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ScryfallConfig holds card database client settings.
type ScryfallConfig struct {
	BaseURL     string        `envconfig:"SCRYFALL_BASE_URL" default:"https://api.scryfall.com"`
	BulkType    string        `envconfig:"SCRYFALL_BULK_TYPE" default:"default_cards"`
	UserAgent   string        `envconfig:"SCRYFALL_USER_AGENT" default:"cardbored-api/1.0"`
	Timeout     time.Duration `envconfig:"SCRYFALL_TIMEOUT" default:"10s"`
	BulkTimeout time.Duration `envconfig:"SCRYFALL_BULK_TIMEOUT" default:"5m"`
}

// IndexConfig holds bulk price index settings.
type IndexConfig struct {
	StaleAfter      time.Duration `envconfig:"INDEX_STALE_AFTER" default:"24h"`
	RetryBackoff    time.Duration `envconfig:"INDEX_RETRY_BACKOFF" default:"5m"`
	RefreshInterval time.Duration `envconfig:"INDEX_REFRESH_INTERVAL" default:"1h"` // 0 disables the scheduler
	RefreshTimeout  time.Duration `envconfig:"INDEX_REFRESH_TIMEOUT" default:"5m"`
	DropNonPositive bool          `envconfig:"INDEX_DROP_NON_POSITIVE" default:"false"`
	WarmOnStart     bool          `envconfig:"INDEX_WARM_ON_START" default:"true"`
}

// LiveConfig holds per-card live lookup settings.
type LiveConfig struct {
	Enabled  bool          `envconfig:"LIVE_ENABLED" default:"true"`
	Delay    time.Duration `envconfig:"LIVE_DELAY" default:"100ms"`
	MaxCards int           `envconfig:"LIVE_MAX_CARDS" default:"15"`
	CacheTTL time.Duration `envconfig:"LIVE_CACHE_TTL" default:"5m"`
}

// DeckConfig holds decklist processing settings.
type DeckConfig struct {
	DefaultThreshold decimal.Decimal `envconfig:"DECK_DEFAULT_THRESHOLD" default:"3.00"`
	MaxBodyBytes     int64           `envconfig:"DECK_MAX_BODY_BYTES" default:"1048576"`
}

// StoreConfig holds snapshot persistence settings.
type StoreConfig struct {
	Type string `envconfig:"SNAPSHOT_STORE_TYPE" default:"sqlite"` // none, kv, file, sqlite, postgres, mysql or mongodb
	// sqlite / file
	Path     string `envconfig:"SNAPSHOT_DB_PATH" default:"./data/prices.db"`
	FilePath string `envconfig:"SNAPSHOT_FILE_PATH" default:"./data/cards.json"`
	// kv
	KVTTL time.Duration `envconfig:"SNAPSHOT_KV_TTL" default:"0"`
	// postgres / mysql
	Host     string `envconfig:"SNAPSHOT_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"SNAPSHOT_DB_PORT" default:"5432"`
	Name     string `envconfig:"SNAPSHOT_DB_NAME" default:"cardbored"`
	User     string `envconfig:"SNAPSHOT_DB_USER" default:"postgres"`
	Password string `envconfig:"SNAPSHOT_DB_PASS" default:""`
	SSLMode  string `envconfig:"SNAPSHOT_DB_SSLMODE" default:"disable"`
	// mongodb
	MongoURI      string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"cardbored"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, s.Port, s.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate checks values envconfig cannot constrain on its own.
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_TYPE %q", c.Cache.Type)
	}
	switch strings.ToLower(c.Store.Type) {
	case "none", "kv", "file", "sqlite", "postgres", "mysql", "mongodb":
	default:
		return fmt.Errorf("unknown SNAPSHOT_STORE_TYPE %q", c.Store.Type)
	}
	if c.Store.Type == "mongodb" && c.Store.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI is required when SNAPSHOT_STORE_TYPE=mongodb")
	}
	if c.Deck.DefaultThreshold.IsNegative() {
		return fmt.Errorf("DECK_DEFAULT_THRESHOLD must not be negative")
	}
	if c.Live.MaxCards < 1 {
		return fmt.Errorf("LIVE_MAX_CARDS must be at least 1")
	}
	if c.Index.StaleAfter <= 0 {
		return fmt.Errorf("INDEX_STALE_AFTER must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Store.Type = strings.ToLower(cfg.Store.Type)
	cfg.Cache.Type = strings.ToLower(cfg.Cache.Type)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
