package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Scrape     ScrapeConfig
	Pipeline   PipelineConfig
	Sources    SourcesConfig
	Cache      CacheConfig
	Index      IndexConfig
	Embedding  EmbeddingConfig
	LLM        LLMConfig
	Aggregator AggregatorConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// ScrapeConfig controls the multi-source fan-out
type ScrapeConfig struct {
	PerSourceTimeout     time.Duration `mapstructure:"per_source_timeout"`
	CeilingTimeout       time.Duration `mapstructure:"ceiling_timeout"`
	MaxConcurrency       int           `mapstructure:"max_concurrency"`
	MaxListingsPerSource int           `mapstructure:"max_listings_per_source"`
	PriceMin             float64       `mapstructure:"price_min"`
	PriceMax             float64       `mapstructure:"price_max"`
	ReaderURL            string        `mapstructure:"reader_url"`
	ReaderAPIKey         string        `mapstructure:"reader_api_key"`
	RequestsPerSecond    float64       `mapstructure:"requests_per_second"`
	RequestBurst         int           `mapstructure:"request_burst"`
}

// PipelineConfig controls the discovery pipeline tiers
type PipelineConfig struct {
	MinViableCount      int      `mapstructure:"min_viable_count"`
	CacheSkipThreshold  int      `mapstructure:"cache_skip_threshold"`
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`
	CacheLookupLimit    int      `mapstructure:"cache_lookup_limit"`
	DefaultMaxResults   int      `mapstructure:"default_max_results"`
	DemoSamples         bool     `mapstructure:"demo_samples"`
	RefreshQueries      []string `mapstructure:"refresh_queries"`
}

// SourcesConfig points at an optional external source catalog
type SourcesConfig struct {
	File string `mapstructure:"file"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// IndexConfig selects the similarity index backend
type IndexConfig struct {
	Type        string `mapstructure:"type"` // "memory" or "pgvector"
	DatabaseURL string `mapstructure:"database_url"`
	Collection  string `mapstructure:"collection"`
	QueueSize   int    `mapstructure:"queue_size"`
}

// EmbeddingConfig holds the embedding capability settings
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // "http" or "hash"
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// LLMConfig holds query refinement settings; empty APIKey disables refinement
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AggregatorConfig holds shopping aggregator API configuration
type AggregatorConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	RequestsPerHour int    `mapstructure:"requests_per_hour"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shoplens/")

	v.SetEnvPrefix("SHOPLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if config.Scrape.CeilingTimeout == 0 {
		config.Scrape.CeilingTimeout = 3 * config.Scrape.PerSourceTimeout
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads a .env file from the working directory if present
func loadEnvFile() error {
	err := godotenv.Load()
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("scrape.per_source_timeout", "15s")
	v.SetDefault("scrape.ceiling_timeout", "0s") // 0 means 3x per-source timeout
	v.SetDefault("scrape.max_concurrency", 0)    // 0 means registry size + 4
	v.SetDefault("scrape.max_listings_per_source", 12)
	v.SetDefault("scrape.price_min", 10.0)
	v.SetDefault("scrape.price_max", 3000.0)
	v.SetDefault("scrape.reader_url", "https://r.jina.ai")
	v.SetDefault("scrape.reader_api_key", "")
	v.SetDefault("scrape.requests_per_second", 0.0) // 0 means unlimited
	v.SetDefault("scrape.request_burst", 10)

	v.SetDefault("pipeline.min_viable_count", 2)
	v.SetDefault("pipeline.cache_skip_threshold", 3)
	v.SetDefault("pipeline.confidence_threshold", 0.7)
	v.SetDefault("pipeline.cache_lookup_limit", 20)
	v.SetDefault("pipeline.default_max_results", 5)
	v.SetDefault("pipeline.demo_samples", true)
	v.SetDefault("pipeline.refresh_queries", []string{"trending fashion", "popular clothing", "best sellers", "new arrivals"})

	v.SetDefault("sources.file", "")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("index.type", "memory")
	v.SetDefault("index.database_url", "")
	v.SetDefault("index.collection", "listings")
	v.SetDefault("index.queue_size", 64)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 384)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "10s")

	v.SetDefault("aggregator.api_key", "")
	v.SetDefault("aggregator.base_url", "https://serpapi.com")
	v.SetDefault("aggregator.requests_per_hour", 100)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Scrape.PerSourceTimeout <= 0 {
		return fmt.Errorf("scrape per-source timeout must be positive, got: %s", config.Scrape.PerSourceTimeout)
	}

	if config.Scrape.CeilingTimeout < config.Scrape.PerSourceTimeout {
		return fmt.Errorf("scrape ceiling timeout (%s) must not be shorter than per-source timeout (%s)",
			config.Scrape.CeilingTimeout, config.Scrape.PerSourceTimeout)
	}

	if config.Scrape.PriceMin < 0 || config.Scrape.PriceMax <= config.Scrape.PriceMin {
		return fmt.Errorf("scrape price range is invalid: [%.2f, %.2f]", config.Scrape.PriceMin, config.Scrape.PriceMax)
	}

	if config.Scrape.RequestsPerSecond < 0 {
		return fmt.Errorf("scrape requests per second must not be negative, got: %v", config.Scrape.RequestsPerSecond)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Index.Type != "memory" && config.Index.Type != "pgvector" {
		return fmt.Errorf("index type must be 'memory' or 'pgvector', got: %s", config.Index.Type)
	}

	if config.Index.Type == "pgvector" && config.Index.DatabaseURL == "" {
		return fmt.Errorf("database URL is required when index type is 'pgvector'")
	}

	if config.Embedding.Provider != "hash" && config.Embedding.Provider != "http" {
		return fmt.Errorf("embedding provider must be 'hash' or 'http', got: %s", config.Embedding.Provider)
	}

	if config.Embedding.Provider == "http" && config.Embedding.APIKey == "" {
		return fmt.Errorf("embedding API key is required when provider is 'http' (set SHOPLENS_EMBEDDING_API_KEY)")
	}

	if config.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got: %d", config.Embedding.Dimension)
	}

	if config.Pipeline.ConfidenceThreshold < 0 || config.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0, 1], got: %.2f", config.Pipeline.ConfidenceThreshold)
	}

	return nil
}
