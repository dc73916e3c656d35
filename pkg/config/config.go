// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Redis, Kafka, Indexer, Search, Semantic, Documents, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Documents DocumentsConfig `yaml:"documents"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowIndexing   bool          `yaml:"allowIndexing"`
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

// IndexerConfig controls where the barrels live and how bulk indexing is
// parallelised and flushed.
type IndexerConfig struct {
	DataDir           string `yaml:"dataDir"`
	LexiconDir        string `yaml:"lexiconDir"`
	InvertedIndexDir  string `yaml:"invertedIndexDir"`
	Workers           int    `yaml:"workers"`
	FlushDocuments    int    `yaml:"flushDocuments"`
	LexiconCacheSize  int    `yaml:"lexiconCacheSize"`
	StoreEmbeddedTerm bool   `yaml:"storeEmbeddedTerms"`
}

// StatsPath is the document statistics file inside the data directory.
func (c IndexerConfig) StatsPath() string {
	return filepath.Join(c.DataDir, "doc_stats.txt")
}

// SearchConfig controls query execution limits and the BM25 fallbacks used
// when no corpus statistics are available.
type SearchConfig struct {
	DefaultLimit         int     `yaml:"defaultLimit"`
	MaxResults           int     `yaml:"maxResults"`
	FallbackTotalDocs    int64   `yaml:"fallbackTotalDocs"`
	FallbackAvgDocLength float64 `yaml:"fallbackAvgDocLength"`
	UseSemantic          bool    `yaml:"useSemantic"`
	SemanticWeight       float64 `yaml:"semanticWeight"`
	Rerank               bool    `yaml:"rerank"`
}

// SemanticConfig controls the embedding table and similarity search.
type SemanticConfig struct {
	EmbeddingsPath string  `yaml:"embeddingsPath"`
	Dimension      int     `yaml:"dimension"`
	SampleSize     int     `yaml:"sampleSize"`
	Seed           int64   `yaml:"seed"`
	CacheSize      int     `yaml:"cacheSize"`
	TopK           int     `yaml:"topK"`
	Threshold      float64 `yaml:"threshold"`
}

// DocumentsConfig points at the JSON document store.
type DocumentsConfig struct {
	Dir string `yaml:"dir"`
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
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
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
	cfg.ResolveDirs()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with local development defaults. Barrel
// directories are derived from DataDir by Load.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "papersearch-group",
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
		Indexer: IndexerConfig{
			DataDir:           "data",
			Workers:           4,
			FlushDocuments:    500,
			LexiconCacheSize:  4,
			StoreEmbeddedTerm: true,
		},
		Search: SearchConfig{
			DefaultLimit:         50,
			MaxResults:           500,
			FallbackTotalDocs:    100_000,
			FallbackAvgDocLength: 1500,
			UseSemantic:          true,
			SemanticWeight:       0.3,
			Rerank:               true,
		},
		Semantic: SemanticConfig{
			EmbeddingsPath: "embeddings/glove.100d.txt",
			Dimension:      100,
			SampleSize:     20_000,
			CacheSize:      10_000,
			TopK:           2,
			Threshold:      0.7,
		},
		Documents: DocumentsConfig{
			Dir: "jsons",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// ResolveDirs derives barrel directories from DataDir when they were not set
// explicitly.
func (c *Config) ResolveDirs() {
	if c.Indexer.LexiconDir == "" {
		c.Indexer.LexiconDir = filepath.Join(c.Indexer.DataDir, "lexicon")
	}
	if c.Indexer.InvertedIndexDir == "" {
		c.Indexer.InvertedIndexDir = filepath.Join(c.Indexer.DataDir, "inverted_index")
	}
}

// Validate rejects configurations that would make the core misbehave rather
// than degrade.
func (c *Config) Validate() error {
	switch {
	case c.Indexer.DataDir == "":
		return apperrors.Invalidf("indexer.dataDir is required")
	case c.Indexer.Workers < 1:
		return apperrors.Invalidf("indexer.workers must be at least 1, got %d", c.Indexer.Workers)
	case c.Indexer.FlushDocuments < 1:
		return apperrors.Invalidf("indexer.flushDocuments must be at least 1, got %d", c.Indexer.FlushDocuments)
	case c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1:
		return apperrors.Invalidf("search.semanticWeight must be in [0,1], got %v", c.Search.SemanticWeight)
	case c.Search.FallbackTotalDocs < 1:
		return apperrors.Invalidf("search.fallbackTotalDocs must be positive, got %d", c.Search.FallbackTotalDocs)
	case c.Search.FallbackAvgDocLength <= 0:
		return apperrors.Invalidf("search.fallbackAvgDocLength must be positive, got %v", c.Search.FallbackAvgDocLength)
	case c.Semantic.Dimension < 1:
		return apperrors.Invalidf("semantic.dimension must be positive, got %d", c.Semantic.Dimension)
	case c.Semantic.TopK < 0:
		return apperrors.Invalidf("semantic.topK must be non-negative, got %d", c.Semantic.TopK)
	case c.Semantic.Threshold < -1 || c.Semantic.Threshold > 1:
		return apperrors.Invalidf("semantic.threshold must be in [-1,1], got %v", c.Semantic.Threshold)
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_SERVER_ALLOW_INDEXING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.AllowIndexing = b
		}
	}
	if v := os.Getenv("SP_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
		cfg.Indexer.LexiconDir = ""
		cfg.Indexer.InvertedIndexDir = ""
	}
	if v := os.Getenv("SP_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("SP_EMBEDDINGS_PATH"); v != "" {
		cfg.Semantic.EmbeddingsPath = v
	}
	if v := os.Getenv("SP_SEMANTIC_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Semantic.Seed = seed
		}
	}
	if v := os.Getenv("SP_DOCUMENTS_DIR"); v != "" {
		cfg.Documents.Dir = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
