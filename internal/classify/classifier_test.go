package classify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/customs-flow/internal/cache"
	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
)

// stubRemote answers from a table keyed by description.
type stubRemote struct {
	answers map[string]Prediction
	err     error
	delay   time.Duration
	calls   map[string]int
	mu      sync.Mutex
}

func newStubRemote() *stubRemote {
	return &stubRemote{answers: map[string]Prediction{}, calls: map[string]int{}}
}

func (s *stubRemote) Predict(ctx context.Context, description string) (Prediction, error) {
	s.mu.Lock()
	s.calls[description]++
	answer, ok := s.answers[description]
	err := s.err
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return Prediction{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return Prediction{}, err
	}
	if !ok {
		return Prediction{}, errors.New("no answer")
	}
	return answer, nil
}

func (s *stubRemote) callCount(description string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[description]
}

func newTestClassifier(t *testing.T, remote Remote, threshold float64) (*Classifier, *cache.ResultCache) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	rc := cache.NewResultCache(store, time.Hour, common.DiscardLogger(), nil)
	c := NewClassifier(remote, rc, Options{
		Logger:    common.DiscardLogger(),
		Threshold: threshold,
		Timeout:   100 * time.Millisecond,
	})
	return c, rc
}

func TestClassifier_ThresholdScenario(t *testing.T) {
	const desc = "Red Cotton T-Shirt, Size L"

	tests := []struct {
		name       string
		confidence float64
		flagged    bool
	}{
		{name: "confident", confidence: 0.85, flagged: false},
		{name: "unsure", confidence: 0.5, flagged: true},
		{name: "exactly at threshold", confidence: 0.7, flagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newStubRemote()
			remote.answers[desc] = Prediction{HSCode: "610910", Confidence: tt.confidence}
			c, _ := newTestClassifier(t, remote, 0.7)

			got, err := c.Classify(context.Background(), desc)
			require.NoError(t, err)
			assert.Equal(t, model.ClassificationResult{
				Description: desc,
				HSCode:      "610910",
				Confidence:  tt.confidence,
				Flagged:     tt.flagged,
				Method:      model.MethodAuto,
			}, got)
		})
	}
}

func TestClassifier_RejectsEmptyDescription(t *testing.T) {
	remote := newStubRemote()
	c, _ := newTestClassifier(t, remote, 0.7)

	for _, desc := range []string{"", "   ", "\n\t"} {
		_, err := c.Classify(context.Background(), desc)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	}
	assert.Empty(t, remote.calls)
}

func TestClassifier_RemoteFailureDegrades(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		remote := newStubRemote()
		remote.err = errors.New("connection refused")
		c, _ := newTestClassifier(t, remote, 0.7)

		got, err := c.Classify(context.Background(), "Widget")
		require.NoError(t, err)
		assert.Equal(t, model.MethodFailed, got.Method)
		assert.Empty(t, got.HSCode)
		assert.Zero(t, got.Confidence)
		assert.True(t, got.Flagged)
		assert.Contains(t, got.Error, "connection refused")
	})

	t.Run("timeout", func(t *testing.T) {
		remote := newStubRemote()
		remote.answers["Widget"] = Prediction{HSCode: "847130", Confidence: 0.9}
		remote.delay = time.Second
		c, _ := newTestClassifier(t, remote, 0.7)

		got, err := c.Classify(context.Background(), "Widget")
		require.NoError(t, err)
		assert.Equal(t, model.MethodFailed, got.Method)
		assert.True(t, got.Flagged)
	})

	t.Run("missing remote", func(t *testing.T) {
		c := NewClassifier(nil, nil, Options{Logger: common.DiscardLogger(), Threshold: 0.7})
		got, err := c.Classify(context.Background(), "Widget")
		require.NoError(t, err)
		assert.True(t, got.IsFailed())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		remote := newStubRemote()
		remote.err = errors.New("down")
		c, _ := newTestClassifier(t, remote, 0.7)

		_, _ = c.Classify(context.Background(), "Widget")
		remote.mu.Lock()
		remote.err = nil
		remote.answers["Widget"] = Prediction{HSCode: "847130", Confidence: 0.9}
		remote.mu.Unlock()

		got, err := c.Classify(context.Background(), "Widget")
		require.NoError(t, err)
		assert.Equal(t, "847130", got.HSCode)
		assert.Equal(t, 2, remote.callCount("Widget"))
	})
}

func TestClassifier_UsesCache(t *testing.T) {
	remote := newStubRemote()
	remote.answers["Leather Wallet"] = Prediction{HSCode: "420231", Confidence: 0.9}
	c, rc := newTestClassifier(t, remote, 0.7)
	ctx := context.Background()

	first, err := c.Classify(ctx, "Leather Wallet")
	require.NoError(t, err)
	second, err := c.Classify(ctx, "  Leather Wallet ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, remote.callCount("Leather Wallet"))

	assert.True(t, rc.Delete(ctx, cache.Key("Leather Wallet")))
	_, err = c.Classify(ctx, "Leather Wallet")
	require.NoError(t, err)
	assert.Equal(t, 2, remote.callCount("Leather Wallet"))
}

func TestClassifier_FlagConsistency(t *testing.T) {
	remote := newStubRemote()
	confidences := []float64{0, 0.1, 0.49, 0.5, 0.69, 0.7, 0.71, 0.99, 1}
	descs := make([]string, 0, len(confidences))
	for i, conf := range confidences {
		desc := string(rune('A'+i)) + " item"
		descs = append(descs, desc)
		remote.answers[desc] = Prediction{HSCode: "999999", Confidence: conf}
	}
	descs = append(descs, "unknown item")

	for _, threshold := range []float64{0, 0.5, 0.7, 1} {
		c, _ := newTestClassifier(t, remote, threshold)
		for _, desc := range descs {
			got, err := c.Classify(context.Background(), desc)
			require.NoError(t, err)
			want := got.Confidence < threshold || got.Method == model.MethodFailed
			assert.Equal(t, want, got.Flagged, "threshold %v desc %q", threshold, desc)
		}
	}
}

func TestClassifier_CachedFlagFollowsThreshold(t *testing.T) {
	remote := newStubRemote()
	remote.answers["Wallet"] = Prediction{HSCode: "420232", Confidence: 0.75}
	lenient, rc := newTestClassifier(t, remote, 0.7)
	ctx := context.Background()

	first, err := lenient.Classify(ctx, "Wallet")
	require.NoError(t, err)
	assert.False(t, first.Flagged)

	strict := NewClassifier(remote, rc, Options{Logger: common.DiscardLogger(), Threshold: 0.8})
	second, err := strict.Classify(ctx, "Wallet")
	require.NoError(t, err)
	assert.Equal(t, 0.75, second.Confidence)
	assert.True(t, second.Flagged)
	assert.Equal(t, 1, remote.callCount("Wallet"))
}
