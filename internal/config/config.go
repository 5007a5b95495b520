package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config represents the entire application configuration
type Config struct {
	Env        string           `json:"env"`
	Port       int              `json:"port"`
	AppName    string           `json:"app_name"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	RabbitMQ   RabbitMQConfig   `json:"rabbitmq"`
	MongoDB    MongoDBConfig    `json:"mongodb"`
	S3         S3Config         `json:"s3"`
	Logging    LoggingConfig    `json:"logging"`
	CORS       CORSConfig       `json:"cors"`
	Statistics StatisticsConfig `json:"statistics"`
	Snapshot   SnapshotConfig   `json:"snapshot"`
}

// DatabaseConfig contains the relational store connection details
type DatabaseConfig struct {
	DSN             string `json:"dsn"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	AutoMigrate     bool   `json:"auto_migrate"`
	LogSlowQueryMs  int    `json:"log_slow_query_ms"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_sec"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	// Enabled switches the shared counter tier on; counters stay process-local otherwise.
	Enabled bool `json:"enabled"`
}

// RabbitMQConfig contains the broker used by game servers to publish round reports
type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	QueueName     string `json:"queue_name"`
	RoutingKey    string `json:"routing_key"`
	PrefetchCount int    `json:"prefetch_count"`
}

// MongoDBConfig contains MongoDB connection details for the report archive
type MongoDBConfig struct {
	URI        string `json:"uri"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	DB         string `json:"db"`
	Collection string `json:"collection"`
	Enabled    bool   `json:"enabled"`
}

// S3Config contains the bucket leaderboard snapshots are exported to
type S3Config struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Enabled   bool   `json:"enabled"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// StatisticsConfig tunes the statistics subsystem
type StatisticsConfig struct {
	CounterTTLSec        int     `json:"counter_ttl_sec"`
	CounterPrefetch      float64 `json:"counter_prefetch"`
	RetryAttempts        int     `json:"retry_attempts"`
	RetryMinBackoffMs    int     `json:"retry_min_backoff_ms"`
	RetryMaxBackoffMs    int     `json:"retry_max_backoff_ms"`
	IngestChunkSize      int     `json:"ingest_chunk_size"`
	IngestMaxConcurrency int     `json:"ingest_max_concurrency"`
}

// SnapshotConfig controls the periodic leaderboard export
type SnapshotConfig struct {
	IntervalMin int  `json:"interval_min"`
	TopN        int  `json:"top_n"`
	Enabled     bool `json:"enabled"`
}

func (s StatisticsConfig) CounterTTL() time.Duration {
	return time.Duration(s.CounterTTLSec) * time.Second
}

func (s StatisticsConfig) RetryMinBackoff() time.Duration {
	return time.Duration(s.RetryMinBackoffMs) * time.Millisecond
}

func (s StatisticsConfig) RetryMaxBackoff() time.Duration {
	return time.Duration(s.RetryMaxBackoffMs) * time.Millisecond
}

// Default returns a configuration usable for local development
func Default() Config {
	return Config{
		Env:     "development",
		Port:    8080,
		AppName: "matchstats",
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Redis:   RedisConfig{Address: "localhost:6379", Prefix: "matchstats"},
		RabbitMQ: RabbitMQConfig{
			Host:          "localhost",
			Port:          5672,
			VHost:         "",
			ExchangeName:  "round-reports",
			QueueName:     "round-reports",
			RoutingKey:    "round.finished",
			PrefetchCount: 10,
		},
		MongoDB: MongoDBConfig{DB: "matchstats", Collection: "round_reports"},
		Statistics: StatisticsConfig{
			CounterTTLSec:        300,
			CounterPrefetch:      0.75,
			RetryAttempts:        5,
			RetryMinBackoffMs:    10,
			RetryMaxBackoffMs:    100,
			IngestChunkSize:      160,
			IngestMaxConcurrency: 4,
		},
		Snapshot: SnapshotConfig{IntervalMin: 15, TopN: 100},
	}
}

// LoadConfig reads configuration from the specified file path, then applies
// environment overrides (a .env file next to the binary is honoured).
func LoadConfig(filePath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, reading environment variables directly")
	}

	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		config.RabbitMQ.Password = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		config.MongoDB.URI = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.S3.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.S3.SecretKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		} else {
			log.Warn().Str("PORT", v).Msg("Ignoring non-numeric PORT override")
		}
	}
}

// Validate checks the settings the statistics core cannot run without
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required (config database.dsn or DATABASE_URL)")
	}
	s := c.Statistics
	if s.CounterTTLSec <= 0 {
		return fmt.Errorf("statistics.counter_ttl_sec must be positive")
	}
	if s.CounterPrefetch <= 0 || s.CounterPrefetch > 1 {
		return fmt.Errorf("statistics.counter_prefetch must be in (0, 1]")
	}
	if s.RetryAttempts <= 0 {
		return fmt.Errorf("statistics.retry_attempts must be positive")
	}
	if s.RetryMaxBackoffMs < s.RetryMinBackoffMs {
		return fmt.Errorf("statistics.retry_max_backoff_ms must not be below retry_min_backoff_ms")
	}
	if s.IngestChunkSize <= 0 {
		return fmt.Errorf("statistics.ingest_chunk_size must be positive")
	}
	return nil
}
