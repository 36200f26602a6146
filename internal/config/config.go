// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/walletrisk/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        string
	Env         string // "development", "staging", "production"
	LogLevel    string
	LogFormat   string // "text" or "json"
	CORSOrigins []string
	AdminSecret string // guards staking administration; admin routes are off when empty

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL            string // optional; enables the chain feed and watcher
	ChainID           int64
	WatchTokens       []string
	WatchPollInterval time.Duration

	// Oracle
	OracleURL      string
	OracleAsset    string
	OracleCacheTTL time.Duration

	// Upstream calls
	UpstreamTimeout time.Duration
	UpstreamRetries int

	// Scoring
	ScoreCacheTTL  time.Duration
	ScoringWorkers int
	TablesFile     string // YAML overrides for feature tables, policy and boosts

	// Kafka invalidation (optional)
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroup   string

	// Neo4j export of flagged wallets (optional)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPS int
}

// Ethereum mainnet defaults
const (
	DefaultChainID           = 1
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultOracleURL         = "https://api.coingecko.com/api/v3"
	DefaultOracleAsset       = "ethereum"
	DefaultOracleCacheTTL    = 5 * time.Minute
	DefaultUpstreamTimeout   = 5 * time.Second
	DefaultUpstreamRetries   = 3
	DefaultScoreCacheTTL     = 15 * time.Minute
	DefaultScoringWorkers    = 8
	DefaultKafkaTopic        = "wallet-transactions"
	DefaultKafkaGroup        = "walletrisk"
	DefaultWatchPollInterval = 15 * time.Second
	DefaultRateLimit         = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
		CORSOrigins:       getEnvList("CORS_ORIGINS"),
		AdminSecret:       os.Getenv("ADMIN_SECRET"),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:            os.Getenv("RPC_URL"),
		ChainID:           getEnvInt64("CHAIN_ID", DefaultChainID),
		WatchTokens:       getEnvList("WATCH_TOKENS"),
		WatchPollInterval: getEnvDuration("WATCH_POLL_INTERVAL", DefaultWatchPollInterval),
		OracleURL:         getEnv("ORACLE_URL", DefaultOracleURL),
		OracleAsset:       getEnv("ORACLE_ASSET", DefaultOracleAsset),
		OracleCacheTTL:    getEnvDuration("ORACLE_CACHE_TTL", DefaultOracleCacheTTL),
		UpstreamTimeout:   getEnvDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
		UpstreamRetries:   int(getEnvInt64("UPSTREAM_RETRIES", DefaultUpstreamRetries)),
		ScoreCacheTTL:     getEnvDuration("SCORE_CACHE_TTL", DefaultScoreCacheTTL),
		ScoringWorkers:    int(getEnvInt64("SCORING_WORKERS", DefaultScoringWorkers)),
		TablesFile:        os.Getenv("TABLES_FILE"),
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:        getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		KafkaGroup:        getEnv("KAFKA_GROUP", DefaultKafkaGroup),
		Neo4jURI:          os.Getenv("NEO4J_URI"),
		Neo4jUser:         os.Getenv("NEO4J_USER"),
		Neo4jPassword:     os.Getenv("NEO4J_PASSWORD"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:      int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}

	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production, got %q", c.Env)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if c.OracleURL == "" {
		return fmt.Errorf("ORACLE_URL is required")
	}
	// Outside development the oracle must be a public endpoint.
	if !c.IsDevelopment() {
		if err := security.ValidateEndpointURL(c.OracleURL); err != nil {
			return fmt.Errorf("ORACLE_URL: %w", err)
		}
	}

	if c.RPCURL != "" {
		if _, err := security.ParseUpstreamURL(c.RPCURL, security.RPCSchemes...); err != nil {
			return fmt.Errorf("RPC_URL: %w", err)
		}
	}

	for name, d := range map[string]time.Duration{
		"ORACLE_CACHE_TTL":    c.OracleCacheTTL,
		"UPSTREAM_TIMEOUT":    c.UpstreamTimeout,
		"SCORE_CACHE_TTL":     c.ScoreCacheTTL,
		"WATCH_POLL_INTERVAL": c.WatchPollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.UpstreamRetries < 1 {
		return fmt.Errorf("UPSTREAM_RETRIES must be at least 1")
	}
	if c.ScoringWorkers < 1 {
		return fmt.Errorf("SCORING_WORKERS must be at least 1")
	}

	if c.KafkaBrokers != "" && (c.KafkaTopic == "" || c.KafkaGroup == "") {
		return fmt.Errorf("KAFKA_TOPIC and KAFKA_GROUP are required when KAFKA_BROKERS is set")
	}
	if c.Neo4jURI != "" && c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required when NEO4J_URI is set")
	}
	if len(c.WatchTokens) > 0 && c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required when WATCH_TOKENS is set")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
