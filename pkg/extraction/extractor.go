package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/entity-extractor/pkg/client"
	"github.com/menta2k/entity-extractor/pkg/parser"
	"github.com/menta2k/entity-extractor/pkg/processing"
	"github.com/menta2k/entity-extractor/pkg/schema"
	"github.com/menta2k/entity-extractor/pkg/types"
)

// Source labels used in logs and metrics.
const (
	SourceFile = "file"
	SourceURL  = "url"
)

// Recorder receives extraction telemetry. A nil Recorder is allowed.
type Recorder interface {
	ObserveCompletion(backend string, elapsed time.Duration, err error)
	ObserveResult(source string, success bool)
	ObserveWarnings(n int)
}

// Extractor runs the extraction pipeline for one image at a time. It holds
// no per-request state and is safe for concurrent use.
type Extractor struct {
	client    client.CompletionClient
	processor *processing.Processor
	opts      client.Options
	logger    *zap.Logger
	recorder  Recorder

	batchConcurrency int
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithProcessor replaces the default image processor.
func WithProcessor(p *processing.Processor) Option {
	return func(e *Extractor) { e.processor = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Extractor) { e.recorder = r }
}

// WithBatchConcurrency bounds how many batch items run at once. 1 keeps the
// batch strictly sequential.
func WithBatchConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.batchConcurrency = n
		}
	}
}

// NewExtractor creates an extractor that sends requests through c.
func NewExtractor(c client.CompletionClient, opts client.Options, options ...Option) *Extractor {
	e := &Extractor{
		client:           c,
		processor:        processing.NewProcessor(),
		opts:             opts.WithDefaults(),
		logger:           zap.NewNop(),
		batchConcurrency: 1,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Model returns the model identifier requests are sent to.
func (e *Extractor) Model() string {
	return e.opts.Model
}

// ExtractFromPath extracts entities from a local image file. Failures are
// returned as a failed result, never as an error.
func (e *Extractor) ExtractFromPath(ctx context.Context, path string) types.ExtractionResult {
	log := e.logger.With(zap.String("request_id", uuid.NewString()), zap.String("path", path))

	if err := e.processor.CheckExists(path); err != nil {
		log.Warn("image file not found")
		return e.finish(SourceFile, failure(err, err, nil))
	}

	info := e.processor.FileInfo(path)
	if info.Width == 0 {
		log.Warn("could not read image metadata")
	}

	ref, err := e.processor.EncodeFile(path)
	if err != nil {
		log.Error("failed to encode image", zap.Error(err))
		return e.finish(SourceFile, failure(err, err, info))
	}

	log.Info("processing image", zap.String("model", e.opts.Model), zap.String("backend", e.client.Name()))
	return e.finish(SourceFile, e.run(ctx, log, ref, info))
}

// ExtractFromURL extracts entities from a remote image. The URL is handed to
// the model as-is.
func (e *Extractor) ExtractFromURL(ctx context.Context, imageURL string) types.ExtractionResult {
	log := e.logger.With(zap.String("request_id", uuid.NewString()), zap.String("url", imageURL))
	info := types.URLInfo(imageURL)

	log.Info("processing image URL", zap.String("model", e.opts.Model), zap.String("backend", e.client.Name()))
	return e.finish(SourceURL, e.run(ctx, log, e.processor.URLReference(imageURL), info))
}

// run performs the model call and parses its reply. info is attached to
// every outcome.
func (e *Extractor) run(ctx context.Context, log *zap.Logger, ref types.ImageRef, info *types.ImageInfo) types.ExtractionResult {
	start := time.Now()
	reply, err := e.client.Complete(ctx, e.opts, BuildPrompt(), ref)
	elapsed := time.Since(start)
	if e.recorder != nil {
		e.recorder.ObserveCompletion(e.client.Name(), elapsed, err)
	}
	if err != nil {
		log.Error("model request failed", zap.Error(err), zap.Int64("elapsed_ms", elapsed.Milliseconds()))
		return failure(err, fmt.Errorf("%w: %w", ErrUpstream, err), info)
	}

	payload, err := parser.Parse(reply)
	if err != nil {
		log.Error("could not parse model reply", zap.Error(err), zap.Int("reply_len", len(reply)))
		return failure(err, err, info)
	}

	result := types.ExtractionResult{
		Success:   true,
		Entities:  payload,
		ImageInfo: info,
	}

	result.Warnings = schema.Check(payload)
	if catalog, err := types.DecodeCatalog(payload); err == nil {
		result.Catalog = catalog
	} else {
		result.Warnings = append(result.Warnings, types.SchemaWarning{Path: "/", Message: "payload does not fit the catalog shape: " + err.Error()})
	}
	if len(result.Warnings) > 0 {
		log.Warn("model reply deviates from the catalog schema", zap.Any("warnings", result.Warnings))
		if e.recorder != nil {
			e.recorder.ObserveWarnings(len(result.Warnings))
		}
	}

	log.Info("successfully extracted entities",
		zap.Int("entities", result.EntityCount()),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()),
	)
	return result
}

func (e *Extractor) finish(source string, r types.ExtractionResult) types.ExtractionResult {
	if e.recorder != nil {
		e.recorder.ObserveResult(source, r.Success)
	}
	return r
}

// failure builds a failed result. msg supplies the reported message, kind the
// error callers inspect with errors.Is.
func failure(msg, kind error, info *types.ImageInfo) types.ExtractionResult {
	return types.ExtractionResult{
		Success:   false,
		Error:     msg.Error(),
		ImageInfo: info,
		Err:       kind,
	}
}
