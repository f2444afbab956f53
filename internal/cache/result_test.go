package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/metrics"
	"github.com/Veraticus/customs-flow/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("Red Cotton T-Shirt, Size L")
	b := Key("  Red Cotton T-Shirt, Size L\n")
	c := Key("Red Cotton T-Shirt, Size M")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^customs:classification:[0-9a-f]{64}$`, a)
}

func TestResultCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()

	rc := NewResultCache(store, time.Hour, common.DiscardLogger(), metrics.New(prometheus.NewRegistry()))
	key := Key("Red Cotton T-Shirt, Size L")
	result := model.ClassificationResult{
		Description: "Red Cotton T-Shirt, Size L",
		HSCode:      "610910",
		Method:      model.MethodAuto,
		Confidence:  0.85,
		Flagged:     false,
	}

	_, ok := rc.Get(ctx, key)
	assert.False(t, ok)

	rc.Put(ctx, key, result, 0)

	entry, ok := rc.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, result, entry.Resolve(0.7))

	assert.True(t, rc.Delete(ctx, key))
	_, ok = rc.Get(ctx, key)
	assert.False(t, ok)
	assert.False(t, rc.Delete(ctx, key))
}

func TestResultCache_BackfillsFlagged(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()

	key := Key("Leather Wallet")
	legacy := `{"description":"Leather Wallet","hsCode":"420231","confidence":0.6}`
	require.NoError(t, store.Set(ctx, key, []byte(legacy), time.Hour))

	rc := NewResultCache(store, 0, common.DiscardLogger(), nil)
	entry, ok := rc.Get(ctx, key)
	require.True(t, ok)
	assert.Nil(t, entry.Flagged)

	result := entry.Resolve(0.7)
	assert.True(t, result.Flagged)
	assert.Equal(t, model.MethodAuto, result.Method)

	assert.False(t, entry.Resolve(0.5).Flagged)
}

func TestResultCache_FlagFollowsCurrentThreshold(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()

	rc := NewResultCache(store, 0, common.DiscardLogger(), nil)
	key := Key("Wallet")
	rc.Put(ctx, key, model.ClassificationResult{Description: "Wallet", HSCode: "420232", Method: model.MethodAuto, Confidence: 0.75, Flagged: false}, 0)

	entry, ok := rc.Get(ctx, key)
	require.True(t, ok)
	require.NotNil(t, entry.Flagged)
	assert.False(t, *entry.Flagged)
	assert.True(t, entry.Resolve(0.8).Flagged)
	assert.False(t, entry.Resolve(0.7).Flagged)

	failed := Entry{Description: "Wallet", Method: model.MethodFailed, Confidence: 1}
	assert.True(t, failed.Resolve(0.5).Flagged)
}

func TestResultCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()

	key := Key("Widget")
	require.NoError(t, store.Set(ctx, key, []byte("{not json"), time.Hour))

	rc := NewResultCache(store, 0, common.DiscardLogger(), nil)
	_, ok := rc.Get(ctx, key)
	assert.False(t, ok)
}

func TestResultCache_Disabled(t *testing.T) {
	ctx := context.Background()
	rc := NewResultCache(nil, 0, common.DiscardLogger(), nil)

	rc.Put(ctx, Key("x"), model.ClassificationResult{HSCode: "1"}, time.Minute)
	_, ok := rc.Get(ctx, Key("x"))
	assert.False(t, ok)
	assert.False(t, rc.Delete(ctx, Key("x")))
	assert.Equal(t, DefaultTTL, rc.TTL())
}
