package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/riot"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config represents the application configuration
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Riot     RiotConfig     `yaml:"riot"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog level
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RiotConfig holds upstream API and request pacing configuration
type RiotConfig struct {
	APIKey             string        `yaml:"api_key"`
	Routing            string        `yaml:"routing"`
	Platform           string        `yaml:"platform"`
	BaseURL            string        `yaml:"base_url"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	PacingDelay        time.Duration `yaml:"pacing_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	BackoffBase        time.Duration `yaml:"backoff_base"`
	RetryAfterFallback time.Duration `yaml:"retry_after_fallback"`
}

// ClientOptions converts the section into riot client options
func (c RiotConfig) ClientOptions() riot.Options {
	return riot.Options{
		APIKey:             c.APIKey,
		BaseURL:            c.BaseURL,
		RequestTimeout:     c.RequestTimeout,
		PacingDelay:        c.PacingDelay,
		MaxAttempts:        c.MaxAttempts,
		BackoffBase:        c.BackoffBase,
		RetryAfterFallback: c.RetryAfterFallback,
	}
}

// IngestConfig holds the per-run traversal configuration. A negative
// QueueID lists matches of every queue.
type IngestConfig struct {
	MatchesPerRun int                    `yaml:"matches_per_run"`
	QueueID       int                    `yaml:"queue_id"`
	Players       []domain.TrackedPlayer `yaml:"players"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ScheduleConfig holds the cron cadence of scheduled runs
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// LoadDotEnv loads the first .env file found in paths. It reports the path
// that was loaded, or "" if none was found.
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = []string{".env", "../.env", "../../.env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadOrDefault reads the configuration file, falling back to DefaultConfig
// only when the file does not exist. defaulted reports the fallback. Any
// other failure, a malformed environment override included, is returned.
func LoadOrDefault(path string) (cfg *Config, defaulted bool, err error) {
	cfg, err = Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = DefaultConfig()
		defaulted = true
	}
	if err != nil {
		return nil, defaulted, err
	}
	return cfg, defaulted, nil
}

// applyEnv lets the process environment override the file
func (c *Config) applyEnv() error {
	if v := os.Getenv("RIOT_API_KEY"); v != "" {
		c.Riot.APIKey = v
	}
	if v := os.Getenv("RIOT_ROUTING"); v != "" {
		c.Riot.Routing = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("TRACKED_PLAYERS"); v != "" {
		players, err := domain.ParseTrackedPlayers(v)
		if err != nil {
			return fmt.Errorf("parsing TRACKED_PLAYERS: %w", err)
		}
		c.Ingest.Players = players
	}
	if v := os.Getenv("MATCHES_PER_RUN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MATCHES_PER_RUN: %w", err)
		}
		c.Ingest.MatchesPerRun = n
	}
	if v := os.Getenv("QUEUE_ID"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing QUEUE_ID: %w", err)
		}
		c.Ingest.QueueID = n
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// Riot defaults
	if c.Riot.Platform == "" {
		c.Riot.Platform = riot.DefaultPlatform
	}
	if c.Riot.Routing == "" {
		if routing, ok := riot.RoutingForPlatform(c.Riot.Platform); ok {
			c.Riot.Routing = routing
		} else {
			c.Riot.Routing = riot.DefaultRouting
		}
	}
	if c.Riot.RequestTimeout == 0 {
		c.Riot.RequestTimeout = 10 * time.Second
	}
	if c.Riot.PacingDelay == 0 {
		c.Riot.PacingDelay = 100 * time.Millisecond
	}
	if c.Riot.MaxAttempts == 0 {
		c.Riot.MaxAttempts = 3
	}
	if c.Riot.BackoffBase == 0 {
		c.Riot.BackoffBase = time.Second
	}
	if c.Riot.RetryAfterFallback == 0 {
		c.Riot.RetryAfterFallback = 60 * time.Second
	}

	// Ingest defaults
	if c.Ingest.MatchesPerRun == 0 {
		c.Ingest.MatchesPerRun = 20
	}
	if c.Ingest.QueueID == 0 {
		c.Ingest.QueueID = riot.QueueRankedSolo
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "matches.db"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 4
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "ingestor"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 2 * time.Hour
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "lol-match-ingested"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "match-events-tail"
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Schedule defaults: daily at 02:00
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 2 * * *"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}
}

// Validate checks the settings a run cannot do without
func (c *Config) Validate() error {
	if c.Riot.APIKey == "" {
		return fmt.Errorf("%w: riot api key is not set (RIOT_API_KEY)", domain.ErrInvalidConfig)
	}
	if !riot.IsValidRouting(c.Riot.Routing) {
		return fmt.Errorf("%w: unknown routing %q", domain.ErrInvalidConfig, c.Riot.Routing)
	}
	if len(c.Ingest.Players) == 0 {
		return fmt.Errorf("%w: no tracked players configured", domain.ErrInvalidConfig)
	}
	for i, p := range c.Ingest.Players {
		if p.Name == "" || p.Tag == "" {
			return fmt.Errorf("%w: tracked player %d needs both name and tag", domain.ErrInvalidConfig, i)
		}
	}
	if c.Ingest.MatchesPerRun < 1 || c.Ingest.MatchesPerRun > riot.MaxMatchCount {
		return fmt.Errorf("%w: matches_per_run must be between 1 and %d", domain.ErrInvalidConfig, riot.MaxMatchCount)
	}
	if c.Riot.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1", domain.ErrInvalidConfig)
	}
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("%w: unknown store driver %q", domain.ErrInvalidConfig, c.Store.Driver)
	}
	return nil
}

// DefaultConfig returns a configuration with all defaults and the process
// environment applied. It fails when an environment override is malformed.
func DefaultConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}
