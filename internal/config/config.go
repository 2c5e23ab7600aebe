package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docpipe/docpipe/pkg/models"
)

// Config holds all configuration for docpipe processes.
type Config struct {
	Env       string
	Worker    WorkerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Artifact  ArtifactConfig
	OCR       OCRConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Ingest    IngestConfig
}

type WorkerConfig struct {
	Queue             string
	Concurrency       int
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	VisibilityTimeout time.Duration
	HealthPort        int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type ArtifactConfig struct {
	Backend string // "postgres" or "filesystem"
	Dir     string
}

type OCRConfig struct {
	BaseURL string
	Timeout time.Duration
}

type EmbeddingConfig struct {
	Provider  string // "openai" or "mock"
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
}

type ChunkingConfig struct {
	ChunkTokens  int
	ChunkOverlap int
}

type IngestConfig struct {
	MaxFileSizeMB int
}

var validArtifactBackends = map[string]bool{
	"postgres":   true,
	"filesystem": true,
}

var validEmbeddingProviders = map[string]bool{
	"openai": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env: envString("DOCPIPE_ENV", "development"),
		Worker: WorkerConfig{
			Queue:             os.Getenv("DOCPIPE_QUEUE"),
			Concurrency:       envInt("DOCPIPE_CONCURRENCY", 4),
			MaxAttempts:       envInt("DOCPIPE_MAX_ATTEMPTS", 5),
			BackoffBase:       envDuration("DOCPIPE_BACKOFF_BASE", time.Second),
			BackoffCap:        envDuration("DOCPIPE_BACKOFF_CAP", time.Minute),
			VisibilityTimeout: envDuration("DOCPIPE_VISIBILITY_TIMEOUT", 30*time.Second),
			HealthPort:        envInt("DOCPIPE_HEALTH_PORT", 0),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MinIdleConns:    envInt("DATABASE_MIN_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Artifact: ArtifactConfig{
			Backend: envString("ARTIFACT_BACKEND", "postgres"),
			Dir:     envString("ARTIFACT_DIR", "artifacts"),
		},
		OCR: OCRConfig{
			BaseURL: os.Getenv("OCR_BASE_URL"),
			Timeout: envDuration("OCR_TIMEOUT", 60*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:  envString("EMBEDDING_PROVIDER", "openai"),
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     envString("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: envInt("EMBEDDING_DIMENSION", 1536),
			BatchSize: envInt("EMBEDDING_BATCH_SIZE", 64),
		},
		Chunking: ChunkingConfig{
			ChunkTokens:  envInt("CHUNK_TOKENS", 400),
			ChunkOverlap: envInt("CHUNK_OVERLAP", 80),
		},
		Ingest: IngestConfig{
			MaxFileSizeMB: envInt("MAX_FILE_SIZE_MB", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validArtifactBackends[c.Artifact.Backend] {
		return fmt.Errorf("ARTIFACT_BACKEND must be one of postgres, filesystem; got %q", c.Artifact.Backend)
	}
	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of openai, mock; got %q", c.Embedding.Provider)
	}

	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("DOCPIPE_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("DOCPIPE_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkTokens {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_TOKENS (%d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkTokens)
	}

	return nil
}

// ValidateWorker checks the settings only worker processes need: the bound
// queue and the collaborators of the stage served by that queue.
func (c *Config) ValidateWorker() error {
	if c.Worker.Queue == "" {
		return fmt.Errorf("DOCPIPE_QUEUE is required")
	}
	stage, ok := models.StageForQueue(c.Worker.Queue)
	if !ok {
		return fmt.Errorf("DOCPIPE_QUEUE must be one of ingest, ocr, chunk, embeddings, vectors; got %q", c.Worker.Queue)
	}

	switch stage {
	case models.StageOCR:
		if c.OCR.BaseURL == "" {
			return fmt.Errorf("OCR_BASE_URL is required for the ocr queue")
		}
	case models.StageEmbed:
		if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER is openai")
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
