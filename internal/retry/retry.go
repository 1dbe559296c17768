// Package retry wraps fallible operations with bounded attempts and
// exponential backoff. A classifier separates transient failures, which are
// retried, from permanent ones, which fail fast without consuming the
// remaining attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Operation is a single attempt of a retryable unit of work.
type Operation func(ctx context.Context) error

// Context carries observability metadata for one retried operation.
type Context struct {
	Op            string
	CorrelationID string
}

// HTTPError represents a non-2xx response from an upstream or downstream
// call. Its status drives retry classification.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the executor fails fast on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ExhaustedError is the terminal failure after all attempts are spent.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// RetryableStatus reports whether an HTTP status is worth retrying.
// 5xx, 429 and 408 are transient; any other 4xx is a permanent client error.
func RetryableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

// Retryable classifies err. Permanent-wrapped errors and non-retryable HTTP
// statuses fail fast; everything else (network errors, timeouts, transient
// statuses) is retried.
func Retryable(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return RetryableStatus(httpErr.Status)
	}
	return true
}

// Options tunes an Executor.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (o Options) normalized() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	return o
}

// Executor runs operations with bounded retries and tracks aggregate
// statistics. Safe for concurrent use; the counters are approximate under
// concurrency, which is all the metrics endpoint needs.
type Executor struct {
	opts   Options
	logger *slog.Logger
	stats  counters
}

// NewExecutor creates an executor with the given options.
func NewExecutor(log *slog.Logger, opts Options) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		opts:   opts.normalized(),
		logger: log.With(slog.String("component", "retry")),
	}
}

// Backoff returns the delay before attempt k (1-based for the first retry):
// min(base * 2^(k-1), max). Non-decreasing in k.
func (e *Executor) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := e.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.opts.MaxDelay {
			return e.opts.MaxDelay
		}
	}
	if delay > e.opts.MaxDelay {
		return e.opts.MaxDelay
	}
	return delay
}

// Do invokes op up to MaxAttempts times. Classification runs before attempt
// accounting: a permanent error on any attempt returns immediately. When the
// budget is exhausted the last error is wrapped in an ExhaustedError.
func (e *Executor) Do(ctx context.Context, op Operation, rc Context) error {
	e.stats.totalOperations.Add(1)

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt == 1 {
				e.stats.successOnFirstTry.Add(1)
			} else {
				e.stats.successWithRetry.Add(1)
				e.stats.retriesUsed.Add(int64(attempt - 1))
			}
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			e.stats.totalFailures.Add(1)
			e.logger.Warn("permanent failure, not retrying",
				"op", rc.Op,
				"correlation_id", rc.CorrelationID,
				"attempt", attempt,
				"error", err,
			)
			return err
		}

		if attempt == e.opts.MaxAttempts {
			break
		}

		delay := e.Backoff(attempt)
		e.logger.Debug("transient failure, backing off",
			"op", rc.Op,
			"correlation_id", rc.CorrelationID,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			e.stats.totalFailures.Add(1)
			e.stats.retriesUsed.Add(int64(attempt - 1))
			return ctx.Err()
		}
	}

	e.stats.totalFailures.Add(1)
	e.stats.retriesUsed.Add(int64(e.opts.MaxAttempts - 1))
	return &ExhaustedError{Op: rc.Op, Attempts: e.opts.MaxAttempts, Err: lastErr}
}

// DoHTTP runs an HTTP round trip with retries, treating any status in
// [200,300) as success. Failed-attempt response bodies are drained into the
// classification error; the successful response is returned with its body
// open for the caller to consume.
func (e *Executor) DoHTTP(ctx context.Context, op func(ctx context.Context) (*http.Response, error), rc Context) (*http.Response, error) {
	var resp *http.Response
	err := e.Do(ctx, func(ctx context.Context) error {
		r, err := op(ctx)
		if err != nil {
			return err
		}
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			resp = r
			return nil
		}
		return closeToHTTPError(r)
	}, rc)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
