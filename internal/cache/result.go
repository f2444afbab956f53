package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Veraticus/customs-flow/internal/metrics"
	"github.com/Veraticus/customs-flow/internal/model"
)

// DefaultTTL is how long a classification stays cached when no TTL is configured.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "customs:classification:"

// Key derives the cache key for a description. Descriptions differing only
// in surrounding whitespace share a key.
func Key(description string) string {
	sum := sha256.Sum256([]byte(model.NormalizeDescription(description)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Entry is a cached classification. Entries written before flagging existed
// carry a nil Flagged; Resolve back-fills it.
type Entry struct {
	Flagged     *bool                      `json:"flagged,omitempty"`
	Description string                     `json:"description"`
	HSCode      string                     `json:"hsCode,omitempty"`
	Method      model.ClassificationMethod `json:"method"`
	Confidence  float64                    `json:"confidence"`
}

// Resolve converts the entry to a result. Flagged is recomputed against the
// current threshold so a changed threshold applies to cached entries too.
func (e Entry) Resolve(threshold float64) model.ClassificationResult {
	method := e.Method
	if method == "" {
		method = model.MethodAuto
	}
	flagged := e.Confidence < threshold || method == model.MethodFailed
	return model.ClassificationResult{
		Description: e.Description,
		HSCode:      e.HSCode,
		Method:      method,
		Confidence:  e.Confidence,
		Flagged:     flagged,
	}
}

// ResultCache is the best-effort classification cache. None of its methods
// return errors; backend failures are logged and treated as a miss.
type ResultCache struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
}

// NewResultCache wraps store. A zero ttl selects DefaultTTL.
func NewResultCache(store Store, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *ResultCache {
	if store == nil {
		store = DisabledStore{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{store: store, ttl: ttl, logger: logger, metrics: m}
}

// Get returns the cached entry for key, if any.
func (c *ResultCache) Get(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrMiss):
		c.metrics.CacheRequest(metrics.CacheMiss)
		return Entry{}, false
	case err != nil:
		c.metrics.CacheRequest(metrics.CacheError)
		c.logFailure("get", key, err)
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.metrics.CacheRequest(metrics.CacheError)
		c.logger.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		return Entry{}, false
	}

	c.metrics.CacheRequest(metrics.CacheHit)
	return entry, true
}

// Put stores result under key. A zero ttl uses the cache default.
func (c *ResultCache) Put(ctx context.Context, key string, result model.ClassificationResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	flagged := result.Flagged
	raw, err := json.Marshal(Entry{
		Description: result.Description,
		HSCode:      result.HSCode,
		Method:      result.Method,
		Confidence:  result.Confidence,
		Flagged:     &flagged,
	})
	if err != nil {
		c.logFailure("encode", key, err)
		return
	}

	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logFailure("put", key, err)
	}
}

// Delete removes key and reports whether a live entry existed.
func (c *ResultCache) Delete(ctx context.Context, key string) bool {
	existed, err := c.store.Delete(ctx, key)
	if err != nil {
		c.logFailure("delete", key, err)
		return false
	}
	return existed
}

// TTL returns the default entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

func (c *ResultCache) logFailure(op, key string, err error) {
	// A disabled cache is a normal configuration, not worth a warning.
	if errors.Is(err, ErrUnavailable) && isDisabled(c.store) {
		return
	}
	c.logger.Warn("Cache operation failed",
		"op", op,
		"key", key,
		"error", err)
}

func isDisabled(store Store) bool {
	_, ok := store.(DisabledStore)
	return ok
}
