// Package entityextractor catalogues the entities visible in an image by
// asking a multimodal language model to describe it.
//
// An image is given as a local path or a remote URL. The model is prompted
// for a fixed JSON structure (entities grouped into categories plus a scene
// summary), and the reply is parsed tolerantly: models often wrap JSON in
// prose or code fences.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		entityextractor "github.com/menta2k/entity-extractor"
//	)
//
//	func main() {
//		cfg := entityextractor.DefaultConfig()
//		cfg.APIKey = "sk-..."
//
//		ex, err := entityextractor.New(cfg, nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result := ex.ExtractFromPath(context.Background(), "photo.jpg")
//		if !result.Success {
//			log.Fatal(result.Error)
//		}
//		fmt.Printf("found %d entities\n", result.EntityCount())
//	}
//
// The package consists of these components:
//
//  1. Processing (pkg/processing): image metadata and data-URI packaging
//  2. Clients (pkg/openai, pkg/ollama): the model round trip
//  3. Parser (pkg/parser): JSON recovery from free-form replies
//  4. Schema (pkg/schema): advisory checks on the recovered payload
//  5. Extraction (pkg/extraction): the pipeline and batch runner
//
// Per-image failures never surface as Go errors. They come back as an
// ExtractionResult with Success false and a message in Error.
package entityextractor

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/entity-extractor/pkg/client"
	"github.com/menta2k/entity-extractor/pkg/extraction"
	"github.com/menta2k/entity-extractor/pkg/ollama"
	"github.com/menta2k/entity-extractor/pkg/openai"
	"github.com/menta2k/entity-extractor/pkg/processing"
)

// Version of the entity extractor library
const Version = "1.0.0"

// Backend names accepted in Config.Backend.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// availableModels is a static list; it is not queried from the provider.
var availableModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4-vision-preview",
}

// Config selects the model backend and how requests are sent to it.
type Config struct {
	APIKey      string
	Backend     string
	BaseURL     string // empty selects the backend default
	Model       string
	MaxTokens   int
	Temperature float64
	Detail      string
	Timeout     time.Duration

	BatchConcurrency int
	SendMaxDim       int // 0 sends original bytes
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		Backend:          BackendOpenAI,
		Model:            "gpt-4.1",
		MaxTokens:        client.DefaultMaxTokens,
		Temperature:      client.DefaultTemperature,
		Detail:           client.DefaultDetail,
		Timeout:          300 * time.Second,
		BatchConcurrency: 1,
	}
}

// RequiresCredential reports whether backend needs an API key.
func RequiresCredential(backend string) bool {
	return backend != BackendOllama
}

// NewClient creates the completion client for cfg.Backend. The OpenAI
// backend refuses to start without a key.
func NewClient(cfg Config) (client.CompletionClient, error) {
	switch cfg.Backend {
	case "", BackendOpenAI:
		if cfg.APIKey == "" {
			return nil, extraction.ErrMissingCredential
		}
		return openai.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case BackendOllama:
		c, err := ollama.NewClient(cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use %q or %q)", cfg.Backend, BackendOpenAI, BackendOllama)
	}
}

// New creates an extractor for cfg. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger, opts ...extraction.Option) (*extraction.Extractor, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(c, cfg, logger, opts...), nil
}

// NewWithClient creates an extractor around an existing client. Options in
// opts are applied after the ones derived from cfg.
func NewWithClient(c client.CompletionClient, cfg Config, logger *zap.Logger, opts ...extraction.Option) *extraction.Extractor {
	base := []extraction.Option{
		extraction.WithLogger(logger),
		extraction.WithBatchConcurrency(cfg.BatchConcurrency),
	}
	if cfg.SendMaxDim > 0 {
		base = append(base, extraction.WithProcessor(processing.NewProcessorWithMaxDim(cfg.SendMaxDim, 85)))
	}

	return extraction.NewExtractor(c, client.Options{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Detail:      cfg.Detail,
	}, append(base, opts...)...)
}

// ModelList describes the configured model and the vision-capable models
// the service advertises.
type ModelList struct {
	CurrentModel    string   `json:"current_model"`
	AvailableModels []string `json:"available_models"`
	Description     string   `json:"description"`
}

// ListSupportedModels returns the static model list with current as the
// configured model.
func ListSupportedModels(current string) ModelList {
	return ModelList{
		CurrentModel:    current,
		AvailableModels: append([]string(nil), availableModels...),
		Description:     "Models with vision capabilities for image analysis",
	}
}
