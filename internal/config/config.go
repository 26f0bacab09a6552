package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"filing-rag/internal/models"
)

type Config struct {
	RAG          RAGConfig      `yaml:"rag"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	Database     DatabaseConfig `yaml:"database"`
	Retry        RetryConfig    `yaml:"retry"`
	Log          LogConfig      `yaml:"log"`
}

type RAGConfig struct {
	ChunkSize        int           `yaml:"chunk_size"`
	ChunkOverlap     int           `yaml:"chunk_overlap"`
	TopK             int           `yaml:"top_k"`
	NewsWeight       float64       `yaml:"news_weight"`
	IndexDir         string        `yaml:"index_dir"`
	EncryptionKey    string        `yaml:"encryption_key"`
	Compress         bool          `yaml:"compress"`
	Dimension        int           `yaml:"dimension"`
	BuildParallelism int           `yaml:"build_parallelism"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// LLMConfig configures one langchaingo backend. Provider is "openai",
// "ollama" or "hash" (offline deterministic embeddings).
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	KeyEnv      string  `yaml:"key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Dimension   int     `yaml:"dimension"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type RetryConfig struct {
	MaxAttempts        int           `yaml:"max_attempts"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
	Burst              int           `yaml:"burst"`
	BatchSize          int           `yaml:"batch_size"`
	GenerationAttempts int           `yaml:"generation_attempts"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

const (
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultTopK           = 5
	defaultIndexDir       = "./indexes"
	defaultRequestTimeout = 60 * time.Second
)

// LoadConfig reads the YAML file at path, applies defaults and resolves API
// keys from the environment. A .env file next to the working directory is
// loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		data = nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	cfg.EmbedLLM.resolveKey()
	cfg.InferenceLLM.resolveKey()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.NewsWeight == 0 {
		c.RAG.NewsWeight = 1.0
	}
	if c.RAG.IndexDir == "" {
		c.RAG.IndexDir = defaultIndexDir
	}
	if c.RAG.BuildParallelism <= 0 {
		c.RAG.BuildParallelism = 4
	}
	if c.RAG.RequestTimeout <= 0 {
		c.RAG.RequestTimeout = defaultRequestTimeout
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "ollama"
	}
	if c.InferenceLLM.Provider == "" {
		c.InferenceLLM.Provider = "openai"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 200 * time.Millisecond
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 5 * time.Second
	}
	if c.Retry.BatchSize <= 0 {
		c.Retry.BatchSize = 32
	}
	if c.Retry.GenerationAttempts <= 0 {
		c.Retry.GenerationAttempts = 2
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.RAG.ChunkOverlap <= 0 || c.RAG.ChunkSize <= c.RAG.ChunkOverlap {
		return models.ConfigError("chunk_size (%d) must be greater than chunk_overlap (%d) and overlap must be positive",
			c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.NewsWeight < 0 {
		return models.ConfigError("news_weight must not be negative, got %v", c.RAG.NewsWeight)
	}
	if n := len(c.RAG.EncryptionKey); n != 0 && n != 32 {
		return models.ConfigError("encryption_key must be 32 bytes, got %d", n)
	}
	if c.RAG.Dimension < 0 {
		return models.ConfigError("dimension must not be negative")
	}
	return nil
}

func (l *LLMConfig) resolveKey() {
	if l.Key == "" && l.KeyEnv != "" {
		l.Key = os.Getenv(l.KeyEnv)
	}
}
