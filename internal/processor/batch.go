package processor

import (
	"runtime"
	"sync"
)

// BatchMetrics counts the outcome of every item handed to ProcessBatch
type BatchMetrics struct {
	SuccessCount int `json:"success_count"`
	WarningCount int `json:"warning_count"`
	FailureCount int `json:"failure_count"`
	SkippedCount int `json:"skipped_count"`
}

func (m BatchMetrics) Total() int {
	return m.SuccessCount + m.WarningCount + m.FailureCount + m.SkippedCount
}

// Add counts one outcome. Unknown statuses count as failures.
func (m *BatchMetrics) Add(status StatusError) {
	switch status.Status() {
	case StatusSuccess:
		m.SuccessCount++
	case StatusWarning:
		m.WarningCount++
	case StatusSkipped:
		m.SkippedCount++
	default:
		m.FailureCount++
	}
}

// ProcessBatch applies operation to every item on a bounded worker pool and
// tallies the returned statuses
func ProcessBatch[T any](items []T, operation func(T) StatusError, maxConcurrency int) BatchMetrics {
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
	}
	maxConcurrency = min(maxConcurrency, max(len(items), 1))

	var (
		metrics BatchMetrics
		mutex   sync.Mutex
		wg      sync.WaitGroup
	)

	work := make(chan T, min(len(items), 1000))

	wg.Add(maxConcurrency)
	for range maxConcurrency {
		go func() {
			defer wg.Done()

			for item := range work {
				status := operation(item)

				mutex.Lock()
				metrics.Add(status)
				mutex.Unlock()
			}
		}()
	}

	for _, item := range items {
		work <- item
	}
	close(work)

	wg.Wait()

	return metrics
}

// SplitIntoBatches divides items into consecutive slices of at most batchSize
func SplitIntoBatches[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 {
		return nil
	}
	if len(items) == 0 {
		return [][]T{}
	}

	batches := make([][]T, 0, (len(items)+batchSize-1)/batchSize)
	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		batches = append(batches, items[i:end])
	}

	return batches
}
