// Package queue buffers action events and hands them to a sink in batches.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"crm_syncer/internal/domain"
	"crm_syncer/internal/metrics"
)

// Sink receives flushed batches. The queue owns nothing after the call;
// the batch slice belongs to the sink.
type Sink interface {
	Accept(ctx context.Context, batch []domain.ActionEvent) error
}

// Queue accumulates events and flushes them once the buffer grows past the
// threshold. A flush swaps the buffer for a fresh one under the lock, so
// pushes that race with a flush land in the next batch. Full batches wait in
// a FIFO drained by a single worker, so the sink sees them in push order and
// one at a time.
type Queue struct {
	sink      Sink
	threshold int
	logger    *slog.Logger

	mu       sync.Mutex
	buf      []domain.ActionEvent
	pending  [][]domain.ActionEvent
	flushing bool
	worker   sync.WaitGroup

	errMu sync.Mutex
	errs  []error
}

func New(sink Sink, threshold int, logger *slog.Logger) *Queue {
	return &Queue{
		sink:      sink,
		threshold: threshold,
		logger:    logger.With("component", "queue"),
		buf:       make([]domain.ActionEvent, 0, threshold+1),
	}
}

// Push appends an event. When the buffer exceeds the threshold the whole
// buffer is handed to the background worker.
func (q *Queue) Push(ctx context.Context, ev domain.ActionEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.buf = append(q.buf, ev)
	if len(q.buf) <= q.threshold {
		return
	}
	q.pending = append(q.pending, q.swap())

	if !q.flushing {
		q.flushing = true
		q.worker.Add(1)
		go q.run(context.WithoutCancel(ctx))
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.worker.Done()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.flushing = false
			q.mu.Unlock()
			return
		}
		batch := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.flush(ctx, batch)
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Drain waits for the worker to empty the FIFO and flushes whatever is left.
// It returns every sink error seen since the previous Drain.
func (q *Queue) Drain(ctx context.Context) error {
	q.worker.Wait()

	q.mu.Lock()
	batch := q.swap()
	q.mu.Unlock()

	if len(batch) > 0 {
		q.flush(ctx, batch)
	}

	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := errors.Join(q.errs...)
	q.errs = nil
	return err
}

// swap must be called with mu held.
func (q *Queue) swap() []domain.ActionEvent {
	batch := q.buf
	q.buf = make([]domain.ActionEvent, 0, q.threshold+1)
	return batch
}

func (q *Queue) flush(ctx context.Context, batch []domain.ActionEvent) {
	err := q.sink.Accept(ctx, batch)

	metrics.RecordFlush(err)
	if err != nil {
		q.logger.Error("failed to flush batch", "events", len(batch), "error", err)
		q.errMu.Lock()
		q.errs = append(q.errs, err)
		q.errMu.Unlock()
		return
	}
	q.logger.Info("batch flushed", "events", len(batch))
}
