package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// WriteQueueConfig tunes the algorithm of spec §4.2.
type WriteQueueConfig struct {
	MaxRetries          int           // R_max, default 3
	InitialBackoff      time.Duration // default 100ms
	CheckpointEvery      int          // T_ckpt, default 1000
	CheckpointInterval   time.Duration // I_ckpt, default 300s
	SoftQueueLimit       int          // backpressure threshold (spec §5)
}

// DefaultWriteQueueConfig matches spec §4.2's stated defaults.
var DefaultWriteQueueConfig = WriteQueueConfig{
	MaxRetries:         3,
	InitialBackoff:     100 * time.Millisecond,
	CheckpointEvery:    1000,
	CheckpointInterval: 300 * time.Second,
	SoftQueueLimit:     500,
}

type writeJob struct {
	ctx      context.Context
	fn       TransactionFunc
	resultCh chan error
}

// WriteQueue is the in-process serializer for SQLite writes: a single
// worker consumes a buffered FIFO queue (Submit returns ErrBusy once
// SoftQueueLimit jobs are waiting), retries ErrConflict failures with
// exponential backoff, and triggers periodic checkpoints (every 1000 txns
// or 300s), reimplemented as Go's native goroutine-plus-channel worker
// instead of an asyncio task.
type WriteQueue struct {
	store  *Store
	cfg    WriteQueueConfig
	jobs   chan writeJob
	done   chan struct{}
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger *slog.Logger
}

// NewWriteQueue starts the worker goroutine and returns the queue handle.
func NewWriteQueue(store *Store, cfg WriteQueueConfig, logger *slog.Logger) *WriteQueue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultWriteQueueConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultWriteQueueConfig.InitialBackoff
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultWriteQueueConfig.CheckpointEvery
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultWriteQueueConfig.CheckpointInterval
	}
	if cfg.SoftQueueLimit <= 0 {
		cfg.SoftQueueLimit = DefaultWriteQueueConfig.SoftQueueLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	// The breaker wraps each ApplyWrite attempt inside applyWithRetry and
	// trips after 5 consecutive failed attempts of any error kind, giving the
	// "monitored length... typed Busy error" backpressure of spec §5 a second
	// line of defense beyond the raw channel-length check: while it is open,
	// a Store that is failing every write (not merely queued deep) returns
	// ErrBusy on the first attempt instead of running the retry loop.
	breakerSettings := gobreaker.Settings{
		Name:        "write_queue",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	q := &WriteQueue{
		store:   store,
		cfg:     cfg,
		jobs:    make(chan writeJob, cfg.SoftQueueLimit*4),
		done:    make(chan struct{}),
		breaker: gobreaker.NewCircuitBreaker[struct{}](breakerSettings),
		logger:  logger,
	}
	go q.run()
	return q
}

// QueueLength reports the number of jobs currently buffered, for health
// checks and the backpressure decision in Submit.
func (q *WriteQueue) QueueLength() int { return len(q.jobs) }

// Submit enqueues a write and blocks until it completes (spec §4.2: "the
// caller awaits completion"). If the queue is saturated it returns ErrBusy
// immediately without enqueuing (spec §5 backpressure).
func (q *WriteQueue) Submit(ctx context.Context, fn TransactionFunc) error {
	if len(q.jobs) >= q.cfg.SoftQueueLimit {
		return ErrBusy
	}
	job := writeJob{ctx: ctx, fn: fn, resultCh: make(chan error, 1)}
	select {
	case q.jobs <- job:
	case <-q.done:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.resultCh:
		return err
	case <-ctx.Done():
		// The write continues to completion inside the worker (spec §5: "any
		// in-flight WriteQueue submission continues to completion... but its
		// future is abandoned"); we simply stop waiting on it here.
		return ctx.Err()
	}
}

// SubmitBatch is Submit under a different name for call-site clarity; the
// atomicity guarantee comes from fn itself running inside one transaction
// (spec §4.2: "atomic batch submission with a single future").
func (q *WriteQueue) SubmitBatch(ctx context.Context, fn TransactionFunc) error {
	return q.Submit(ctx, fn)
}

// Shutdown stops accepting new work, drains in-flight jobs, issues a final
// checkpoint, and returns (spec §4.2/§5 graceful shutdown).
func (q *WriteQueue) Shutdown(ctx context.Context) error {
	close(q.jobs)
	select {
	case <-q.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return q.store.Checkpoint(ctx)
}

func (q *WriteQueue) run() {
	defer close(q.done)

	successCount := 0
	lastCheckpoint := time.Now()

	for job := range q.jobs {
		err := q.applyWithRetry(job.ctx, job.fn)
		job.resultCh <- err

		if err == nil {
			successCount++
		}

		if successCount >= q.cfg.CheckpointEvery || time.Since(lastCheckpoint) > q.cfg.CheckpointInterval {
			ckptCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if cerr := q.store.Checkpoint(ckptCtx); cerr != nil {
				q.logger.Error("write queue checkpoint failed", "error", cerr)
			}
			cancel()
			successCount = 0
			lastCheckpoint = time.Now()
		}
	}
}

// applyWithRetry implements spec §4.2's R_max=3 exponential-backoff
// algorithm (100ms, 200ms, 400ms) on ErrConflict (a locked or busy
// database); every other error surfaces immediately.
func (q *WriteQueue) applyWithRetry(ctx context.Context, fn TransactionFunc) error {
	delay := q.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= q.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}

		_, breakerErr := q.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, q.store.ApplyWrite(ctx, fn)
		})

		if breakerErr == nil {
			return nil
		}
		if errors.Is(breakerErr, gobreaker.ErrOpenState) || errors.Is(breakerErr, gobreaker.ErrTooManyRequests) {
			return ErrBusy
		}

		lastErr = breakerErr
		if !isRetryable(errors.Unwrap(breakerErr)) && !isRetryable(breakerErr) {
			return lastErr
		}
	}
	return lastErr
}
