// Package classify turns invoice line descriptions into HS codes.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/customs-flow/internal/cache"
	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/metrics"
	"github.com/Veraticus/customs-flow/internal/model"
)

// DefaultTimeout bounds a single remote prediction.
const DefaultTimeout = 10 * time.Second

// Options tunes a Classifier.
type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Threshold float64
	Timeout   time.Duration
}

// Classifier combines the result cache with the remote model and applies the
// confidence threshold.
type Classifier struct {
	remote    Remote
	cache     *cache.ResultCache
	logger    *slog.Logger
	metrics   *metrics.Metrics
	threshold float64
	timeout   time.Duration
}

// NewClassifier creates a Classifier. A nil cache disables caching.
func NewClassifier(remote Remote, rc *cache.ResultCache, opts Options) *Classifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if rc == nil {
		rc = cache.NewResultCache(nil, 0, opts.Logger, opts.Metrics)
	}
	return &Classifier{
		remote:    remote,
		cache:     rc,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		threshold: opts.Threshold,
		timeout:   opts.Timeout,
	}
}

// Threshold returns the confidence below which results are flagged.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify returns the HS code classification for description. The only
// error it returns is ErrInvalidInput for an empty description; remote
// failures come back as a failed, flagged result.
func (c *Classifier) Classify(ctx context.Context, description string) (model.ClassificationResult, error) {
	normalized := model.NormalizeDescription(description)
	if normalized == "" {
		return model.ClassificationResult{}, fmt.Errorf("%w: description is required", common.ErrInvalidInput)
	}

	key := cache.Key(normalized)
	if entry, ok := c.cache.Get(ctx, key); ok {
		result := entry.Resolve(c.threshold)
		result.Description = normalized
		c.metrics.Classification(string(result.Method), result.Flagged)
		return result, nil
	}

	prediction, err := c.predict(ctx, normalized)
	if err != nil {
		c.logger.Warn("Classification failed, flagging for review",
			"description", normalized,
			"error", err)
		result := model.FailedClassification(normalized, err)
		c.metrics.Classification(string(result.Method), result.Flagged)
		return result, nil
	}

	result := model.ClassificationResult{
		Description: normalized,
		HSCode:      prediction.HSCode,
		Confidence:  prediction.Confidence,
		Flagged:     prediction.Confidence < c.threshold,
		Method:      model.MethodAuto,
	}

	c.cache.Put(ctx, key, result, 0)
	c.metrics.Classification(string(result.Method), result.Flagged)

	c.logger.Debug("Classified description",
		"description", normalized,
		"hs_code", result.HSCode,
		"confidence", result.Confidence,
		"flagged", result.Flagged)

	return result, nil
}

func (c *Classifier) predict(ctx context.Context, description string) (prediction Prediction, err error) {
	if c.remote == nil {
		return Prediction{}, fmt.Errorf("%w: no classification remote", common.ErrMissingConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: remote panicked: %v", common.ErrClassificationFailed, r)
		}
	}()

	prediction, err = c.remote.Predict(ctx, description)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %w", common.ErrClassificationFailed, err)
	}
	return prediction, nil
}
