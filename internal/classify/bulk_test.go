package classify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
)

// trackingClassifier records peak concurrency and can fail or panic on demand.
type trackingClassifier struct {
	failOn   map[string]error
	panicOn  map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
}

func (c *trackingClassifier) Classify(_ context.Context, description string) (model.ClassificationResult, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	err := c.failOn[description]
	shouldPanic := c.panicOn[description]
	c.mu.Unlock()

	if shouldPanic {
		panic("classifier exploded")
	}
	if err != nil {
		return model.ClassificationResult{}, err
	}
	return model.ClassificationResult{
		Description: description,
		HSCode:      "HS-" + description,
		Confidence:  0.9,
		Method:      model.MethodAuto,
	}, nil
}

func items(n int) []model.BulkItem {
	out := make([]model.BulkItem, n)
	for i := range out {
		out[i] = model.BulkItem{ID: fmt.Sprintf("line-%d", i), Description: fmt.Sprintf("item %d", i)}
	}
	return out
}

func TestBulk_PreservesOrder(t *testing.T) {
	classifier := &trackingClassifier{}
	bulk := NewBulk(classifier, 10, common.DiscardLogger())

	input := items(25)
	results, err := bulk.Classify(context.Background(), input, nil)
	require.NoError(t, err)
	require.Len(t, results, len(input))

	for i, r := range results {
		assert.Equal(t, input[i].ID, r.ID)
		assert.Equal(t, "HS-"+input[i].Description, r.HSCode)
	}
}

func TestBulk_BoundsConcurrency(t *testing.T) {
	classifier := &trackingClassifier{}
	bulk := NewBulk(classifier, 4, common.DiscardLogger())

	_, err := bulk.Classify(context.Background(), items(17), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, classifier.peak.Load(), int32(4))
	assert.Positive(t, classifier.peak.Load())
}

func TestBulk_PerItemFailures(t *testing.T) {
	classifier := &trackingClassifier{
		failOn:  map[string]error{"item 1": fmt.Errorf("%w: blank", common.ErrInvalidInput)},
		panicOn: map[string]bool{"item 3": true},
	}
	bulk := NewBulk(classifier, 2, common.DiscardLogger())

	results, err := bulk.Classify(context.Background(), items(5), nil)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for _, i := range []int{1, 3} {
		r := results[i]
		assert.Equal(t, fmt.Sprintf("line-%d", i), r.ID)
		assert.Equal(t, model.MethodFailed, r.Method)
		assert.True(t, r.Flagged)
		assert.Empty(t, r.HSCode)
		assert.False(t, r.Persistable())
	}
	for _, i := range []int{0, 2, 4} {
		assert.True(t, results[i].Persistable())
	}
}

func TestBulk_ProgressAndEmptyInput(t *testing.T) {
	bulk := NewBulk(&trackingClassifier{}, 0, nil)

	var calls atomic.Int32
	var last atomic.Int32
	_, err := bulk.Classify(context.Background(), items(12), func(done, total int) {
		calls.Add(1)
		assert.Equal(t, 12, total)
		if int32(done) > last.Load() {
			last.Store(int32(done))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), calls.Load())
	assert.Equal(t, int32(12), last.Load())

	results, err := bulk.Classify(context.Background(), []model.BulkItem{}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = bulk.Classify(context.Background(), nil, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestBulk_WithRealClassifier(t *testing.T) {
	remote := newStubRemote()
	remote.answers["Red Cotton T-Shirt, Size L"] = Prediction{HSCode: "610910", Confidence: 0.85}
	remote.answers["Mystery Gadget"] = Prediction{HSCode: "854370", Confidence: 0.4}
	c, _ := newTestClassifier(t, remote, 0.7)

	results, err := NewBulk(c, 10, common.DiscardLogger()).Classify(context.Background(), []model.BulkItem{
		{ID: "a", Description: "Red Cotton T-Shirt, Size L"},
		{ID: "b", Description: "Mystery Gadget"},
		{ID: "c", Description: "Unknown thing"},
		{Description: "  "},
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.False(t, results[0].Flagged)
	assert.True(t, results[1].Flagged)
	assert.Equal(t, model.MethodAuto, results[1].Method)
	assert.Equal(t, model.MethodFailed, results[2].Method)
	assert.Equal(t, model.MethodFailed, results[3].Method)
	assert.False(t, results[3].Persistable())
}

func TestParseItems(t *testing.T) {
	got, err := ParseItems([]byte(`[{"id":"1","description":"Widget"},{"description":"Gizmo"}]`))
	require.NoError(t, err)
	assert.Equal(t, []model.BulkItem{{ID: "1", Description: "Widget"}, {Description: "Gizmo"}}, got)

	got, err = ParseItems([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{`{"description":"x"}`, `null`, `"x"`, `not json`} {
		_, err := ParseItems([]byte(bad))
		assert.ErrorIs(t, err, common.ErrInvalidInput, bad)
	}
}
