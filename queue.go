package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SubmissionIntent is one queued request to drive a sample through the case
// submission sequence.
type SubmissionIntent struct {
	ID      uuid.UUID
	Request SubmissionRequest
}

// SubmissionRunner performs one submission out-of-band. Failures are its
// own to log; the engine only ever observes them on a later pass via
// polling.
type SubmissionRunner func(ctx context.Context, intent SubmissionIntent)

// SubmissionQueue decouples the engine from submission execution: the
// engine blocks only on the accept/reject of Enqueue, while a fixed worker
// pool consumes intents in the background.
type SubmissionQueue struct {
	jobs   chan SubmissionIntent
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

func NewSubmissionQueue(ctx context.Context, workers, buffer int, runner SubmissionRunner, logger *slog.Logger) *SubmissionQueue {
	if workers < 1 {
		workers = 1
	}
	q := &SubmissionQueue{
		jobs:   make(chan SubmissionIntent, buffer),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for intent := range q.jobs {
				select {
				case <-ctx.Done():
					q.logger.Info("Context canceled, dropping submission intent", "intent_id", intent.ID.String())
					continue
				default:
				}
				q.logger.Info("Starting submission",
					"intent_id", intent.ID.String(),
					"subject_id", intent.Request.SubjectID,
					"library_id", intent.Request.LibraryID)
				runner(ctx, intent)
			}
		}()
	}
	return q
}

// Enqueue accepts or rejects an intent without blocking on its execution.
// A full buffer or a shut-down queue is a rejection.
func (q *SubmissionQueue) Enqueue(intent SubmissionIntent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("submission queue is shut down")
	}
	select {
	case q.jobs <- intent:
		return nil
	default:
		return fmt.Errorf("submission queue is full")
	}
}

// Shutdown stops intake and waits for in-flight submissions to finish.
func (q *SubmissionQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}
