package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
)

// DefaultBatchSize bounds concurrent calls against the remote classifier.
const DefaultBatchSize = 10

// ItemClassifier classifies a single description.
type ItemClassifier interface {
	Classify(ctx context.Context, description string) (model.ClassificationResult, error)
}

// ProgressFunc is called after each item finishes.
type ProgressFunc func(done, total int)

// Bulk classifies many items in fixed-size batches. Items in a batch run
// concurrently and the next batch starts only after the whole batch is done.
type Bulk struct {
	classifier ItemClassifier
	logger     *slog.Logger
	batchSize  int
}

// NewBulk creates a Bulk orchestrator. batchSize <= 0 selects DefaultBatchSize.
func NewBulk(classifier ItemClassifier, batchSize int, logger *slog.Logger) *Bulk {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bulk{classifier: classifier, batchSize: batchSize, logger: logger}
}

// ParseItems decodes a JSON array of items. Anything other than an array is
// rejected with ErrInvalidInput.
func ParseItems(data []byte) ([]model.BulkItem, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}

	var items []model.BulkItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: items must be a list: %w", common.ErrInvalidInput, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: items must be a list", common.ErrInvalidInput)
	}
	return items, nil
}

// Classify returns one result per item in input order. A nil slice is
// rejected; per-item failures become failed results and never abort the run.
func (b *Bulk) Classify(ctx context.Context, items []model.BulkItem, progress ProgressFunc) ([]model.BulkResult, error) {
	if items == nil {
		return nil, fmt.Errorf("%w: items must be a list", common.ErrInvalidInput)
	}

	results := make([]model.BulkResult, len(items))
	var done atomic.Int64

	for start := 0; start < len(items); start += b.batchSize {
		end := min(start+b.batchSize, len(items))

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = b.classifyOne(ctx, items[i])
				if progress != nil {
					progress(int(done.Add(1)), len(items))
				}
				return nil
			})
		}
		_ = g.Wait()

		b.logger.Debug("Classified batch",
			"batch_start", start,
			"batch_end", end,
			"total", len(items))
	}

	return results, nil
}

func (b *Bulk) classifyOne(ctx context.Context, item model.BulkItem) (out model.BulkResult) {
	out.ID = item.ID

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", common.ErrClassificationFailed, r)
			b.logger.Error("Classifier panicked", "item_id", item.ID, "error", err)
			out.ClassificationResult = model.FailedClassification(item.Description, err)
		}
	}()

	result, err := b.classifier.Classify(ctx, item.Description)
	if err != nil {
		b.logger.Warn("Item classification failed",
			"item_id", item.ID,
			"error", err)
		result = model.FailedClassification(item.Description, err)
	}
	out.ClassificationResult = result
	return out
}
