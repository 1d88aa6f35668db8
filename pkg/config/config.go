// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Redis, Kafka, Postgres, Documents, Tokenizer, Search,
// Auth, and so on).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Documents DocumentsConfig `yaml:"documents"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Search    SearchConfig    `yaml:"search"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
	// RPCPort serves the internal RPC transport when non-zero.
	RPCPort int `yaml:"rpcPort"`
}

// GatewayConfig holds the gateway's listen port and the backends it proxies
// to.
type GatewayConfig struct {
	Port         int    `yaml:"port"`
	SearcherURL  string `yaml:"searcherURL"`
	IngestionURL string `yaml:"ingestionURL"`
	AnalyticsURL string `yaml:"analyticsURL"`
}

// RedisConfig holds Redis connection and report-caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters for analytics
// snapshots.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// DocumentsConfig controls where documents are loaded from at startup and
// whether the directory is watched for changes.
type DocumentsConfig struct {
	Dir        string        `yaml:"dir"`
	Watch      bool          `yaml:"watch"`
	Extensions []string      `yaml:"extensions"`
	Debounce   time.Duration `yaml:"debounce"`
}

// TokenizerConfig selects the line splitter and word normaliser.
type TokenizerConfig struct {
	Splitter   string `yaml:"splitter"`
	Normalizer string `yaml:"normalizer"`
	StopWords  bool   `yaml:"stopWords"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	DefaultStrategy    string        `yaml:"defaultStrategy"`
	Workers            int           `yaml:"workers"`
	Timeout            time.Duration `yaml:"timeout"`
	DefaultLimit       int           `yaml:"defaultLimit"`
	MaxWindowsPerGroup int           `yaml:"maxWindowsPerGroup"`
	MaxQueryTokens     int           `yaml:"maxQueryTokens"`
}

// AnalyticsConfig controls the search analytics pipeline.
type AnalyticsConfig struct {
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	SnapshotRetain   int           `yaml:"snapshotRetain"`
	TopN             int           `yaml:"topN"`
	// MaxConsumerLag marks the analytics service degraded when its consumer
	// falls further behind. 0 disables the check.
	MaxConsumerLag   int64         `yaml:"maxConsumerLag"`
}

// AuthConfig controls API-key protection of the document and cache
// administration endpoints. Keys live in PostgreSQL.
type AuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RateLimitConfig sets per-client request budgets. Clients with an API key
// use the key's own limit; everyone else is keyed by address.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`
}

type CORSConfig struct {
	Enabled      bool          `yaml:"enabled"`
	AllowOrigins []string      `yaml:"allowOrigins"`
	MaxAge       time.Duration `yaml:"maxAge"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Search.Workers < 0 {
		return fmt.Errorf("search workers must not be negative, got %d", c.Search.Workers)
	}
	if c.Server.RPCPort < 0 || c.Server.RPCPort > 65535 {
		return fmt.Errorf("invalid rpc port %d", c.Server.RPCPort)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit needs a positive requestsPerWindow and window")
	}
	if c.Auth.Enabled && !c.Postgres.Enabled {
		return fmt.Errorf("auth requires postgres to be enabled")
	}
	if c.Search.MaxQueryTokens < 0 {
		return fmt.Errorf("search maxQueryTokens must not be negative, got %d", c.Search.MaxQueryTokens)
	}
	switch c.Tokenizer.Splitter {
	case "whitespace", "words":
	default:
		return fmt.Errorf("unknown tokenizer splitter %q", c.Tokenizer.Splitter)
	}
	switch c.Tokenizer.Normalizer {
	case "identity", "casefold", "stem":
	default:
		return fmt.Errorf("unknown tokenizer normalizer %q", c.Tokenizer.Normalizer)
	}
	return nil
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  16 << 20,
		},
		Gateway: GatewayConfig{
			Port:         8000,
			SearcherURL:  "http://localhost:8080",
			IngestionURL: "http://localhost:8081",
			AnalyticsURL: "http://localhost:8082",
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "sequence-search-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				AnalyticsEvents: "analytics-events",
			},
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "sequencesearch",
			User:            "sequencesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Documents: DocumentsConfig{
			Dir:        "",
			Watch:      false,
			Extensions: []string{".txt", ".md"},
			Debounce:   100 * time.Millisecond,
		},
		Tokenizer: TokenizerConfig{
			Splitter:   "whitespace",
			Normalizer: "identity",
		},
		Search: SearchConfig{
			DefaultStrategy:    "subsequence",
			Workers:            4,
			Timeout:            5 * time.Second,
			DefaultLimit:       20,
			MaxWindowsPerGroup: 1000,
			MaxQueryTokens:     256,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    2 * time.Second,
			SnapshotInterval: time.Minute,
			SnapshotRetain:   1440,
			TopN:             10,
			MaxConsumerLag:   10000,
		},
		Auth: AuthConfig{
			Enabled:  false,
			CacheTTL: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerWindow: 600,
			Window:            time.Minute,
		},
		CORS: CORSConfig{
			Enabled:      false,
			AllowOrigins: []string{"*"},
			MaxAge:       24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SS_SERVER_RPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.RPCPort = port
		}
	}
	if v := os.Getenv("SS_GATEWAY_SEARCHER_URL"); v != "" {
		cfg.Gateway.SearcherURL = v
	}
	if v := os.Getenv("SS_GATEWAY_INGESTION_URL"); v != "" {
		cfg.Gateway.IngestionURL = v
	}
	if v := os.Getenv("SS_GATEWAY_ANALYTICS_URL"); v != "" {
		cfg.Gateway.AnalyticsURL = v
	}
	if v := os.Getenv("SS_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v, cfg.Auth.Enabled)
	}
	if v := os.Getenv("SS_RATELIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v, cfg.RateLimit.Enabled)
	}
	if v := os.Getenv("SS_CORS_ORIGINS"); v != "" {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("SS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SS_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("SS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("SS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SS_DOCUMENTS_DIR"); v != "" {
		cfg.Documents.Dir = v
	}
	if v := os.Getenv("SS_DOCUMENTS_WATCH"); v != "" {
		cfg.Documents.Watch = parseBool(v, cfg.Documents.Watch)
	}
	if v := os.Getenv("SS_TOKENIZER_SPLITTER"); v != "" {
		cfg.Tokenizer.Splitter = v
	}
	if v := os.Getenv("SS_TOKENIZER_NORMALIZER"); v != "" {
		cfg.Tokenizer.Normalizer = v
	}
	if v := os.Getenv("SS_SEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = n
		}
	}
	if v := os.Getenv("SS_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.Timeout = d
		}
	}
	if v := os.Getenv("SS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
