// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, LinkRank, Kafka, Redis, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Index backends.
const (
	BackendMemory     = "memory"
	BackendPersistent = "persistent"
	BackendScalable   = "scalable"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	LinkRank LinkRankConfig `yaml:"linkRank"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexConfig controls the index backend, dictionary geometry, and the
// flush/merge policy of the scalable backend.
type IndexConfig struct {
	Dir     string `yaml:"dir"`
	Backend string `yaml:"backend"`
	// TableSize is the number of dictionary slots per segment. It must exceed
	// the number of distinct terms a segment can hold.
	TableSize int `yaml:"tableSize"`
	// TokenBudget is the number of inserted tokens after which the scalable
	// backend flushes a generation. Zero disables intermediate flushes.
	TokenBudget        int     `yaml:"tokenBudget"`
	MergeQueue         int     `yaml:"mergeQueue"`
	MergeIOBytesPerSec float64 `yaml:"mergeIOBytesPerSec"`
	// Patterns restricts which files of a corpus directory are indexed.
	Patterns []string `yaml:"patterns"`
	// StopWords and Stem select tokenizer filters. The searcher must use
	// the values the index was built with.
	StopWords bool `yaml:"stopWords"`
	Stem      bool `yaml:"stem"`
}

// SearchConfig controls query execution limits, timeouts, and the blend
// weights of the combination ranking.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	Timeout      time.Duration `yaml:"timeout"`
	TFIDFWeight  float64       `yaml:"tfidfWeight"`
	LinkWeight   float64       `yaml:"linkWeight"`
	// LinkSignal selects the link score used by pagerank and combination
	// rankings: "power" or "montecarlo".
	LinkSignal string `yaml:"linkSignal"`
	// FeedbackAlpha and FeedbackBeta weight the original query and the
	// relevant-document centroid during relevance feedback.
	FeedbackAlpha float64 `yaml:"feedbackAlpha"`
	FeedbackBeta  float64 `yaml:"feedbackBeta"`
}

// LinkRankConfig controls link-graph loading, PageRank and HITS.
type LinkRankConfig struct {
	LinksFile     string  `yaml:"linksFile"`
	TitlesFile    string  `yaml:"titlesFile"`
	ScoresFile    string  `yaml:"scoresFile"`
	MaxNodes      int     `yaml:"maxNodes"`
	Bored         float64 `yaml:"bored"`
	Epsilon       float64 `yaml:"epsilon"`
	MaxIterations int     `yaml:"maxIterations"`
	HITSEpsilon   float64 `yaml:"hitsEpsilon"`
	HITSMaxSteps  int     `yaml:"hitsMaxSteps"`
	MonteCarlo    string  `yaml:"monteCarlo"`
	WalksPerNode  int     `yaml:"walksPerNode"`
	Seed          uint64  `yaml:"seed"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexComplete  string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ArchiveConfig controls upload of the canonical segment to an
// S3-compatible object store.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"useSSL"`
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

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the index and rankers cannot run with.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendMemory, BackendPersistent, BackendScalable:
	default:
		return fmt.Errorf("invalid index backend %q", c.Index.Backend)
	}
	if c.Index.TableSize <= 0 {
		return fmt.Errorf("index tableSize must be positive, got %d", c.Index.TableSize)
	}
	if c.Index.TokenBudget < 0 {
		return fmt.Errorf("index tokenBudget must not be negative, got %d", c.Index.TokenBudget)
	}
	if c.LinkRank.Bored <= 0 || c.LinkRank.Bored >= 1 {
		return fmt.Errorf("linkRank bored must be in (0,1), got %g", c.LinkRank.Bored)
	}
	if c.LinkRank.MaxNodes <= 0 {
		return fmt.Errorf("linkRank maxNodes must be positive, got %d", c.LinkRank.MaxNodes)
	}
	switch c.Search.LinkSignal {
	case "power", "montecarlo":
	default:
		return fmt.Errorf("invalid search linkSignal %q", c.Search.LinkSignal)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			Dir:         "./index",
			Backend:     BackendScalable,
			TableSize:   611953,
			TokenBudget: 1_000_000,
			MergeQueue:  16,
			Patterns:    []string{"*.txt", "*.f", "*.html"},
		},
		Search: SearchConfig{
			MaxResults:    1000,
			DefaultLimit:  10,
			Timeout:       5 * time.Second,
			TFIDFWeight:   0.4,
			LinkWeight:    0.6,
			LinkSignal:    "power",
			FeedbackAlpha: 0.2,
			FeedbackBeta:  0.8,
		},
		LinkRank: LinkRankConfig{
			MaxNodes:      2_000_000,
			Bored:         0.15,
			Epsilon:       1e-4,
			MaxIterations: 1000,
			HITSEpsilon:   1e-3,
			HITSMaxSteps:  1000,
			MonteCarlo:    "complete-path-cyclic",
			WalksPerNode:  10,
			Seed:          1,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "hashseg",
			User:            "hashseg",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "hashseg-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexComplete:  "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Archive: ArchiveConfig{
			Endpoint: "localhost:9000",
			Bucket:   "hashseg",
			Prefix:   "segments",
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

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("SP_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("SP_INDEX_TABLE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.TableSize = n
		}
	}
	if v := os.Getenv("SP_INDEX_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.TokenBudget = n
		}
	}
	if v := os.Getenv("SP_LINKRANK_LINKS_FILE"); v != "" {
		cfg.LinkRank.LinksFile = v
	}
	if v := os.Getenv("SP_LINKRANK_TITLES_FILE"); v != "" {
		cfg.LinkRank.TitlesFile = v
	}
	if v := os.Getenv("SP_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = v == "true"
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true"
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true"
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true"
	}
	if v := os.Getenv("SP_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("SP_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("SP_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
