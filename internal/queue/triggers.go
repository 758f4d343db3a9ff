// Package queue runs document triggers on a background worker pool
package queue

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/telemetry"
)

var (
	// ErrQueueFull is returned by Submit when the buffer is exhausted
	ErrQueueFull = errors.New("trigger queue is full")
	// ErrQueueStopped is returned by Submit after Stop
	ErrQueueStopped = errors.New("trigger queue is stopped")
)

// Handler reacts to one committed document write
type Handler func(ctx context.Context, ev docstore.ChangeEvent) error

// Chain runs handlers in order and joins their errors
func Chain(handlers ...Handler) Handler {
	return func(ctx context.Context, ev docstore.ChangeEvent) error {
		var errs []error
		for _, h := range handlers {
			if err := h(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Options configures a TriggerQueue
type Options struct {
	Workers     int
	Buffer      int
	MaxAttempts uint
	// Per event processing timeout
	Timeout time.Duration
}

// TriggerQueue delivers change events to a handler at least once. Failed
// events are retried with exponential backoff before being dropped.
type TriggerQueue struct {
	events  chan docstore.ChangeEvent
	handler Handler
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	pending   atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewTriggerQueue creates a queue; call Start to spawn workers
func NewTriggerQueue(handler Handler, opts Options) *TriggerQueue {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
		if opts.Workers > 8 {
			opts.Workers = 8
		}
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1000
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TriggerQueue{
		events:  make(chan docstore.ChangeEvent, opts.Buffer),
		handler: handler,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing events with the worker pool
func (q *TriggerQueue) Start() {
	logger.Log.Info("Starting trigger queue", zap.Int("workers", q.opts.Workers))
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop rejects new events, drains the buffer and waits for workers
func (q *TriggerQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.events)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
	logger.Log.Info("Trigger queue stopped",
		zap.Int64("processed", q.processed.Load()),
		zap.Int64("failed", q.failed.Load()))
}

// Submit enqueues an event without blocking
func (q *TriggerQueue) Submit(ev docstore.ChangeEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}
	q.pending.Add(1)
	select {
	case q.events <- ev:
		metrics.Get().TriggerQueuePending.WithLabelValues().Inc()
		return nil
	default:
		q.pending.Add(-1)
		metrics.Get().TriggerQueueRejections.WithLabelValues(ev.Ref.Root()).Inc()
		return ErrQueueFull
	}
}

// Hook adapts the queue to a store change feed
func (q *TriggerQueue) Hook() docstore.ChangeHook {
	return func(ev docstore.ChangeEvent) {
		if err := q.Submit(ev); err != nil {
			logger.Log.Warn("Dropping change event",
				zap.String("path", ev.Ref.Path()),
				zap.String("kind", ev.Kind.String()),
				zap.Error(err))
		}
	}
}

// Pending returns the number of queued or in-flight events
func (q *TriggerQueue) Pending() int64 {
	return q.pending.Load()
}

// WaitIdle blocks until every submitted event has been processed (for tests
// and graceful shutdown)
func (q *TriggerQueue) WaitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for q.pending.Load() > 0 {
		if time.Now().After(deadline) {
			return errors.New("timeout waiting for trigger queue")
		}
		<-ticker.C
	}
	return nil
}

func (q *TriggerQueue) worker(workerID int) {
	defer q.wg.Done()
	for ev := range q.events {
		q.process(workerID, ev)
	}
}

func (q *TriggerQueue) process(workerID int, ev docstore.ChangeEvent) {
	defer func() {
		q.pending.Add(-1)
		metrics.Get().TriggerQueuePending.WithLabelValues().Dec()
	}()

	start := time.Now()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	spanCtx, span := telemetry.TraceTrigger(q.ctx, ev.Ref.Path(), ev.Kind.String())
	_, err := backoff.Retry(spanCtx, func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(spanCtx, q.opts.Timeout)
		defer cancel()
		return struct{}{}, q.handler(ctx, ev)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(q.opts.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Log.Warn("Trigger failed, retrying",
				zap.Int("worker_id", workerID),
				zap.String("path", ev.Ref.Path()),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	)

	telemetry.End(span, err)
	metrics.RecordTrigger(ev.Ref.Root(), ev.Kind.String(), time.Since(start), err)
	if err != nil {
		q.failed.Add(1)
		logger.Log.Error("Trigger failed, event dropped",
			zap.Int("worker_id", workerID),
			zap.String("path", ev.Ref.Path()),
			zap.String("kind", ev.Kind.String()),
			zap.Error(err))
		return
	}
	q.processed.Add(1)
}
