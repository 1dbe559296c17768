package retry

import "sync/atomic"

type counters struct {
	totalOperations   atomic.Int64
	successOnFirstTry atomic.Int64
	successWithRetry  atomic.Int64
	totalFailures     atomic.Int64
	retriesUsed       atomic.Int64
}

// Stats is a point-in-time snapshot of the executor's counters.
type Stats struct {
	TotalOperations   int64   `json:"total_operations"`
	SuccessOnFirstTry int64   `json:"success_on_first_try"`
	SuccessWithRetry  int64   `json:"success_with_retry"`
	TotalFailures     int64   `json:"total_failures"`
	RetriesUsed       int64   `json:"retries_used"`
	SuccessRate       float64 `json:"success_rate"`
	AvgRetries        float64 `json:"avg_retries"`
}

// Stats snapshots the running counters and derives the success rate and
// average retries per operation.
func (e *Executor) Stats() Stats {
	s := Stats{
		TotalOperations:   e.stats.totalOperations.Load(),
		SuccessOnFirstTry: e.stats.successOnFirstTry.Load(),
		SuccessWithRetry:  e.stats.successWithRetry.Load(),
		TotalFailures:     e.stats.totalFailures.Load(),
		RetriesUsed:       e.stats.retriesUsed.Load(),
	}
	if s.TotalOperations > 0 {
		s.SuccessRate = float64(s.SuccessOnFirstTry+s.SuccessWithRetry) / float64(s.TotalOperations)
		s.AvgRetries = float64(s.RetriesUsed) / float64(s.TotalOperations)
	}
	return s
}

// ResetStats zeroes all counters.
func (e *Executor) ResetStats() {
	e.stats.totalOperations.Store(0)
	e.stats.successOnFirstTry.Store(0)
	e.stats.successWithRetry.Store(0)
	e.stats.totalFailures.Store(0)
	e.stats.retriesUsed.Store(0)
}
