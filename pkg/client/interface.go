package client

import (
	"context"

	"github.com/menta2k/entity-extractor/pkg/types"
)

// Generation defaults sent with every completion request.
const (
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.1
	DefaultDetail      = "high"
)

// Options are the fixed generation parameters of a completion request.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Detail      string
}

// WithDefaults fills zero fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.Detail == "" {
		o.Detail = DefaultDetail
	}
	return o
}

// CompletionClient sends one prompt plus one image to a multimodal model and
// returns the raw text of its reply.
type CompletionClient interface {
	Name() string
	Complete(ctx context.Context, opts Options, prompt string, img types.ImageRef) (string, error)
}
