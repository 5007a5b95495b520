package processor

import (
	"errors"
	"fmt"
	"testing"

	"matchstats/internal/apperr"

	"github.com/bmizerany/assert"
)

func TestSplitIntoBatches(t *testing.T) {
	items := make([]int, 325)
	for i := range items {
		items[i] = i
	}

	batches := SplitIntoBatches(items, 160)
	assert.Equal(t, 3, len(batches))
	assert.Equal(t, 160, len(batches[0]))
	assert.Equal(t, 5, len(batches[2]))
	assert.Equal(t, 324, batches[2][4])

	assert.Equal(t, 0, len(SplitIntoBatches([]int{}, 10)))
	assert.T(t, SplitIntoBatches(items, 0) == nil)
}

func TestProcessBatchTalliesStatuses(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	metrics := ProcessBatch(items, func(i int) StatusError {
		switch {
		case i%4 == 0:
			return NewFailureError(fmt.Errorf("item %d", i))
		case i%3 == 0:
			return NewWarningError("duplicate")
		case i == 7:
			return NewSkippedError("empty")
		}
		return NewSuccessError("ok")
	}, 3)

	assert.Equal(t, BatchMetrics{SuccessCount: 3, WarningCount: 2, FailureCount: 2, SkippedCount: 1}, metrics)
	assert.Equal(t, len(items), metrics.Total())
}

func TestFromError(t *testing.T) {
	assert.Equal(t, StatusSuccess, FromError(nil).Status())
	assert.Equal(t, StatusWarning, FromError(apperr.Validation("ingest", "bad id")).Status())
	assert.Equal(t, StatusWarning, FromError(apperr.ConfigInUse("matchconfig", 1)).Status())

	cause := apperr.Exhausted("dimension", 5, errors.New("40001"))
	status := FromError(cause)
	assert.Equal(t, StatusFailure, status.Status())
	assert.T(t, errors.Is(status, apperr.ErrExhausted))
}
