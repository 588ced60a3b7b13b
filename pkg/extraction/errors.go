package extraction

import (
	"errors"

	"github.com/menta2k/entity-extractor/pkg/parser"
	"github.com/menta2k/entity-extractor/pkg/processing"
)

// Error kinds. Per-image failures are reported inside ExtractionResult.Error
// and never returned; ErrMissingCredential and ErrInvalidInput are raised
// before any extraction starts.
var (
	ErrMissingCredential = errors.New("OpenAI API key is required")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = processing.ErrNotFound
	ErrUpstream          = errors.New("model request failed")
	ErrParse             = parser.ErrParse
)
