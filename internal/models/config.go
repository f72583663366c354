package models

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr       string `yaml:"server_addr"`
	DatabaseURL      string `yaml:"database_url"`
	UploadDir        string `yaml:"upload_dir"`
	ThumbnailDir     string `yaml:"thumbnail_dir"`
	LogFile          string `yaml:"log_file"`
	LogLevel         string `yaml:"log_level"`
	MaxMetadataBytes int64  `yaml:"max_metadata_bytes"`

	Defaults   Options          `yaml:"defaults"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
}

type EnrichmentConfig struct {
	Transport     string  `yaml:"transport"` // local, kafka
	Workers       int     `yaml:"workers"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	MaxRetries    int     `yaml:"max_retries"`
	Fallback      *bool   `yaml:"fallback"`
}

type KafkaConfig struct {
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`
	GroupID string `yaml:"group_id"`
}

type AnalysisConfig struct {
	Provider         string        `yaml:"provider"` // gemini, ollama
	Model            string        `yaml:"model"`
	FallbackProvider string        `yaml:"fallback_provider"`
	FallbackModel    string        `yaml:"fallback_model"`
	OllamaURL        string        `yaml:"ollama_url"`
	GeminiAPIKey     string        `yaml:"-"`
	Timeout          time.Duration `yaml:"timeout"`
}

const (
	TransportLocal = "local"
	TransportKafka = "kafka"

	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultConfig returns a configuration usable without a config file.
func DefaultConfig() Config {
	fallback := true
	return Config{
		ServerAddr:       ":8080",
		DatabaseURL:      "sqlite://data/photoingest.db",
		UploadDir:        "data/uploads",
		ThumbnailDir:     "data/thumbnails",
		LogFile:          "data/photoingest.log",
		LogLevel:         "info",
		MaxMetadataBytes: 50 << 20,
		Defaults:         DefaultOptions(),
		Enrichment: EnrichmentConfig{
			Transport:     TransportLocal,
			Workers:       4,
			RatePerSecond: 2,
			MaxRetries:    2,
			Fallback:      &fallback,
		},
		Kafka: KafkaConfig{
			Broker:  "localhost:9092",
			Topic:   "image-enrichment",
			GroupID: "image-enrichment-group",
		},
		Analysis: AnalysisConfig{
			Provider:      ProviderOllama,
			Model:         "llava:13b",
			FallbackModel: "llava:7b",
			OllamaURL:     "http://localhost:11434",
			Timeout:       2 * time.Minute,
		},
	}
}

// LoadConfig reads path on top of DefaultConfig and applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.applyEnv()
	cfg.Defaults = cfg.Defaults.Normalize(DefaultOptions())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Analysis.GeminiAPIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Analysis.OllamaURL = v
	}
	if v := os.Getenv("KAFKA_BROKER"); v != "" {
		c.Kafka.Broker = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) Validate() error {
	switch c.Enrichment.Transport {
	case TransportLocal, TransportKafka:
	default:
		return fmt.Errorf("unknown enrichment transport %q", c.Enrichment.Transport)
	}
	for _, p := range []string{c.Analysis.Provider, c.Analysis.FallbackProvider} {
		switch p {
		case "", ProviderGemini, ProviderOllama:
		default:
			return fmt.Errorf("unknown analysis provider %q", p)
		}
	}
	if c.Analysis.Provider == "" {
		return errors.New("analysis provider is required")
	}
	if c.Enrichment.Workers <= 0 {
		return errors.New("enrichment workers must be positive")
	}
	if strings.TrimSpace(c.UploadDir) == "" || strings.TrimSpace(c.ThumbnailDir) == "" {
		return errors.New("upload_dir and thumbnail_dir are required")
	}
	return nil
}

// FallbackEnabled reports whether enrichment should retry in fallback mode.
func (e EnrichmentConfig) FallbackEnabled() bool {
	return e.Fallback == nil || *e.Fallback
}
