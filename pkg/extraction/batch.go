package extraction

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/entity-extractor/pkg/types"
)

// ExtractBatch extracts entities from each URL. Results keep input order and
// a failing or panicking item never stops the others. At most
// batchConcurrency items are in flight.
func (e *Extractor) ExtractBatch(ctx context.Context, urls []string) types.BatchResult {
	results := make([]types.ExtractionResult, len(urls))

	var g errgroup.Group
	g.SetLimit(e.batchConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = e.extractItem(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	batch := types.BatchResult{
		Results:        results,
		TotalProcessed: len(urls),
	}
	for _, r := range results {
		if r.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
	}

	e.logger.Info("batch finished",
		zap.Int("total", batch.TotalProcessed),
		zap.Int("successful", batch.Successful),
		zap.Int("failed", batch.Failed),
	)
	return batch
}

func (e *Extractor) extractItem(ctx context.Context, imageURL string) (result types.ExtractionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("batch item panicked", zap.String("url", imageURL), zap.Any("panic", rec))
			err := fmt.Errorf("%v", rec)
			result = failure(err, err, types.URLInfo(imageURL))
		}
	}()
	return e.ExtractFromURL(ctx, imageURL)
}
