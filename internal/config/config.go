package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-triage/internal/constants"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Quality     QualityConfig     `yaml:"quality"`
	Processing  ProcessingConfig  `yaml:"processing"`
	Search      SearchConfig      `yaml:"search"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Translation TranslationConfig `yaml:"translation"`
	OpenAI      OpenAIConfig      `yaml:"-"`
	Gemini      GeminiConfig      `yaml:"-"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Prices      PricesConfig      `yaml:"-"`
}

type QualityConfig struct {
	BlurThreshold          float64 `yaml:"blur_threshold"`          // Laplacian variance below this is blur (default 25)
	OverexposureThreshold  float64 `yaml:"overexposure_threshold"`  // fraction of near-white pixels (default 0.95)
	UnderexposureThreshold float64 `yaml:"underexposure_threshold"` // fraction of near-black pixels (default 0.05)
	MaxPixels              int     `yaml:"max_pixels"`              // downscale images larger than this (default 500000)
	ResizeScale            float64 `yaml:"resize_scale"`            // downscale factor (default 0.25)
}

type ProcessingConfig struct {
	MaxWorkers int    `yaml:"max_workers"` // parallel per-photo workers (default 2)
	BatchSize  int    `yaml:"batch_size"`  // photos written to the index per batch (default 10)
	UploadDir  string `yaml:"upload_dir"`  // where uploaded photos are stored
}

type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"` // results returned when the caller does not set k (default 10)
}

type EmbeddingConfig struct {
	URL       string  `yaml:"url"`        // defaults to http://localhost:8000
	Model     string  `yaml:"model"`      // model name recorded with stored vectors (default clip)
	RateLimit float64 `yaml:"rate_limit"` // max requests per second, 0 disables limiting
}

type TranslationConfig struct {
	Provider string `yaml:"provider"` // openai, gemini or empty to disable
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type DatabaseConfig struct {
	URL                    string `yaml:"url"`                       // PostgreSQL connection URL
	MaxOpenConns           int    `yaml:"max_open_conns"`            // Maximum open connections (default 25)
	MaxIdleConns           int    `yaml:"max_idle_conns"`            // Maximum idle connections (default 5)
	HNSWEmbeddingIndexPath string `yaml:"hnsw_embedding_index_path"` // Path to persist the in-memory index (optional)
	CatalogPath            string `yaml:"catalog_path"`              // SQLite file for the catalog when no PostgreSQL is configured (optional)
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default info)
	Format string `yaml:"format"` // text or json (default text)
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the current value if the env var is unset, empty, or invalid.
func envInt(key string, current int) int {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return current
}

// envFloat reads an environment variable and parses it as a non-negative float.
func envFloat(key string, current float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return current
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return current
}

// envString returns the env var value, or current when unset.
func envString(key, current string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return current
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Quality: QualityConfig{
			BlurThreshold:          constants.DefaultBlurThreshold,
			OverexposureThreshold:  constants.DefaultOverexposureThreshold,
			UnderexposureThreshold: constants.DefaultUnderexposureThreshold,
			MaxPixels:              constants.DefaultMaxPixels,
			ResizeScale:            constants.DefaultResizeScale,
		},
		Processing: ProcessingConfig{
			MaxWorkers: constants.DefaultMaxWorkers,
			BatchSize:  constants.DefaultBatchSize,
			UploadDir:  filepath.Join(os.TempDir(), "photo-triage-uploads"),
		},
		Search: SearchConfig{
			DefaultLimit: constants.DefaultSearchLimit,
		},
		Embedding: EmbeddingConfig{
			URL:   "http://localhost:8000",
			Model: "clip",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// PHOTO_TRIAGE_CONFIG and finally the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("PHOTO_TRIAGE_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := yaml.Unmarshal(pricesYAML, &cfg.Prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Quality.BlurThreshold = envFloat("BLUR_THRESHOLD", c.Quality.BlurThreshold)
	c.Quality.OverexposureThreshold = envFloat("OVEREXPOSURE_THRESHOLD", c.Quality.OverexposureThreshold)
	c.Quality.UnderexposureThreshold = envFloat("UNDEREXPOSURE_THRESHOLD", c.Quality.UnderexposureThreshold)
	c.Quality.MaxPixels = envInt("QUALITY_MAX_PIXELS", c.Quality.MaxPixels)
	c.Quality.ResizeScale = envFloat("QUALITY_RESIZE_SCALE", c.Quality.ResizeScale)

	c.Processing.MaxWorkers = envInt("MAX_WORKERS", c.Processing.MaxWorkers)
	c.Processing.BatchSize = envInt("BATCH_SIZE", c.Processing.BatchSize)
	c.Processing.UploadDir = envString("UPLOAD_DIR", c.Processing.UploadDir)

	c.Search.DefaultLimit = envInt("SEARCH_LIMIT", c.Search.DefaultLimit)

	c.Embedding.URL = envString("EMBEDDING_URL", c.Embedding.URL)
	c.Embedding.Model = envString("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.RateLimit = envFloat("EMBEDDING_RATE_LIMIT", c.Embedding.RateLimit)

	c.Translation.Provider = envString("TRANSLATE_PROVIDER", c.Translation.Provider)
	c.OpenAI.Token = os.Getenv("OPENAI_TOKEN")
	c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.HNSWEmbeddingIndexPath = envString("HNSW_EMBEDDING_INDEX_PATH", c.Database.HNSWEmbeddingIndexPath)
	c.Database.CatalogPath = envString("CATALOG_PATH", c.Database.CatalogPath)

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)
}

// Validate checks that thresholds and pool sizes are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Quality.BlurThreshold < 0 {
		errs = append(errs, fmt.Errorf("blur threshold must be >= 0, got %v", c.Quality.BlurThreshold))
	}
	if c.Quality.OverexposureThreshold < 0 || c.Quality.OverexposureThreshold > 1 {
		errs = append(errs, fmt.Errorf("overexposure threshold must be in [0,1], got %v", c.Quality.OverexposureThreshold))
	}
	if c.Quality.UnderexposureThreshold < 0 || c.Quality.UnderexposureThreshold > 1 {
		errs = append(errs, fmt.Errorf("underexposure threshold must be in [0,1], got %v", c.Quality.UnderexposureThreshold))
	}
	if c.Quality.ResizeScale <= 0 || c.Quality.ResizeScale > 1 {
		errs = append(errs, fmt.Errorf("resize scale must be in (0,1], got %v", c.Quality.ResizeScale))
	}
	if c.Processing.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("max workers must be positive, got %d", c.Processing.MaxWorkers))
	}
	if c.Processing.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.Processing.BatchSize))
	}
	switch strings.ToLower(c.Translation.Provider) {
	case "", "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown translation provider %q", c.Translation.Provider))
	}
	return errors.Join(errs...)
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
