package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	entityextractor "github.com/menta2k/entity-extractor"
	"github.com/menta2k/entity-extractor/pkg/client"
	"github.com/menta2k/entity-extractor/pkg/ollama"
	"github.com/menta2k/entity-extractor/pkg/openai"
)

// Supported completion backends.
const (
	BackendOpenAI = entityextractor.BackendOpenAI
	BackendOllama = entityextractor.BackendOllama
)

// Config holds the application configuration. Keys match the environment
// variable names.
type Config struct {
	// Model backend
	OpenAIAPIKey   string  `mapstructure:"OPENAI_API_KEY"`
	Backend        string  `mapstructure:"LLM_BACKEND"`
	BaseURL        string  `mapstructure:"LLM_BASE_URL"`
	Model          string  `mapstructure:"LLM_MODEL"`
	MaxTokens      int     `mapstructure:"LLM_MAX_TOKENS"`
	Temperature    float64 `mapstructure:"LLM_TEMPERATURE"`
	ImageDetail    string  `mapstructure:"LLM_IMAGE_DETAIL"`
	TimeoutSeconds int     `mapstructure:"LLM_TIMEOUT_SECONDS"`

	// HTTP API
	APIHost          string `mapstructure:"API_HOST"`
	APIPort          int    `mapstructure:"API_PORT"`
	BatchConcurrency int    `mapstructure:"BATCH_CONCURRENCY"`
	MaxBatchSize     int    `mapstructure:"MAX_BATCH_SIZE"`
	MaxUploadMB      int    `mapstructure:"MAX_UPLOAD_MB"`

	// Image packaging
	SendMaxDim int `mapstructure:"SEND_MAX_DIM"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backend:          BackendOpenAI,
		Model:            "gpt-4.1",
		MaxTokens:        client.DefaultMaxTokens,
		Temperature:      client.DefaultTemperature,
		ImageDetail:      client.DefaultDetail,
		TimeoutSeconds:   300,
		APIHost:          "0.0.0.0",
		APIPort:          8000,
		BatchConcurrency: 1,
		MaxBatchSize:     50,
		MaxUploadMB:      20,
		SendMaxDim:       0,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// defaults flattens Default() into viper keys so AutomaticEnv can see every key.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"OPENAI_API_KEY":      d.OpenAIAPIKey,
		"LLM_BACKEND":         d.Backend,
		"LLM_BASE_URL":        d.BaseURL,
		"LLM_MODEL":           d.Model,
		"LLM_MAX_TOKENS":      d.MaxTokens,
		"LLM_TEMPERATURE":     d.Temperature,
		"LLM_IMAGE_DETAIL":    d.ImageDetail,
		"LLM_TIMEOUT_SECONDS": d.TimeoutSeconds,
		"API_HOST":            d.APIHost,
		"API_PORT":            d.APIPort,
		"BATCH_CONCURRENCY":   d.BatchConcurrency,
		"MAX_BATCH_SIZE":      d.MaxBatchSize,
		"MAX_UPLOAD_MB":       d.MaxUploadMB,
		"SEND_MAX_DIM":        d.SendMaxDim,
		"LOG_LEVEL":           d.LogLevel,
		"LOG_FORMAT":          d.LogFormat,
	}
}

// Load reads configuration from an optional file and the environment.
// Environment variables win over file values. An empty path falls back to a
// .env file in the working directory, which may be absent; an explicit path
// must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend != BackendOpenAI && c.Backend != BackendOllama {
		return fmt.Errorf("LLM_BACKEND must be %q or %q, got %q", BackendOpenAI, BackendOllama, c.Backend)
	}

	if strings.TrimSpace(c.Model) == "" {
		return errors.New("LLM_MODEL cannot be empty")
	}

	if c.MaxTokens < 1 {
		return errors.New("LLM_MAX_TOKENS must be positive")
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("LLM_TEMPERATURE must be between 0 and 2")
	}

	switch c.ImageDetail {
	case "low", "high", "auto":
	default:
		return fmt.Errorf("LLM_IMAGE_DETAIL must be low, high or auto, got %q", c.ImageDetail)
	}

	if c.TimeoutSeconds < 0 {
		return errors.New("LLM_TIMEOUT_SECONDS cannot be negative")
	}

	if c.APIPort < 1 || c.APIPort > 65535 {
		return errors.New("API_PORT must be between 1 and 65535")
	}

	if c.BatchConcurrency < 1 {
		return errors.New("BATCH_CONCURRENCY must be at least 1")
	}

	if c.MaxBatchSize < 1 {
		return errors.New("MAX_BATCH_SIZE must be at least 1")
	}

	if c.MaxUploadMB < 1 {
		return errors.New("MAX_UPLOAD_MB must be at least 1")
	}

	if c.SendMaxDim < 0 {
		return errors.New("SEND_MAX_DIM cannot be negative")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}

	return nil
}

// ResolvedBaseURL returns the backend root, falling back to the backend's
// default when LLM_BASE_URL is unset.
func (c *Config) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Backend == BackendOllama {
		return ollama.DefaultURL
	}
	return openai.DefaultBaseURL
}

// Timeout returns the upstream request timeout. Zero disables it.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExtractorConfig returns the library configuration for one credential.
// An empty apiKey falls back to OPENAI_API_KEY.
func (c *Config) ExtractorConfig(apiKey string) entityextractor.Config {
	if apiKey == "" {
		apiKey = c.OpenAIAPIKey
	}
	return entityextractor.Config{
		APIKey:           apiKey,
		Backend:          c.Backend,
		BaseURL:          c.BaseURL,
		Model:            c.Model,
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		Detail:           c.ImageDetail,
		Timeout:          c.Timeout(),
		BatchConcurrency: c.BatchConcurrency,
		SendMaxDim:       c.SendMaxDim,
	}
}

// Addr returns the listen address for the HTTP API.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.APIHost, strconv.Itoa(c.APIPort))
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.env"
	}
	return filepath.Join(home, ".config", "entity-extractor", "config.env")
}
