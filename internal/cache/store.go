// Package cache stores classification results keyed by normalized description.
//
// Store backends report failures as errors. ResultCache sits on top of a Store
// and turns every backend failure into a logged miss or no-op, so callers
// never see cache errors.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/customs-flow/internal/config"
)

var (
	// ErrMiss is returned by Store.Get when no live entry exists.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable is returned by every operation of a backend that cannot serve requests.
	ErrUnavailable = errors.New("cache unavailable")
)

// Store is a byte-oriented key/value backend with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete reports whether a live entry existed.
	Delete(ctx context.Context, key string) (bool, error)
	Close() error
}

// DisabledStore is the backend used when caching is turned off.
type DisabledStore struct{}

// Get implements Store.
func (DisabledStore) Get(context.Context, string) ([]byte, error) { return nil, ErrUnavailable }

// Set implements Store.
func (DisabledStore) Set(context.Context, string, []byte, time.Duration) error {
	return ErrUnavailable
}

// Delete implements Store.
func (DisabledStore) Delete(context.Context, string) (bool, error) { return false, ErrUnavailable }

// Close implements Store.
func (DisabledStore) Close() error { return nil }

// NewStore builds the backend selected by cfg.Backend.
func NewStore(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory, "":
		return NewMemoryStore(), nil
	case config.CacheBackendRedis:
		store := NewRedisStore(cfg.Redis)
		if err := store.Ping(ctx); err != nil {
			// Still usable: every call degrades to a miss until redis comes back.
			logger.Warn("Redis cache unreachable at startup",
				"addr", cfg.Redis.Addr,
				"error", err)
		}
		return store, nil
	case config.CacheBackendNone:
		return DisabledStore{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
