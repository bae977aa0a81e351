// Package queue implements the durable task queue's cooperative worker loop
// (§4.1). Dequeue atomicity lives in internal/store/pg; this package owns
// the poll/wake scheduling, backoff, and handler dispatch on top of it.
package queue

import (
	"context"
	"time"

	"github.com/familyassistant/core/internal/store"
)

// Queue wraps a store.TaskQueueStore with the wake-channel hand-off the
// teacher's scheduler lane uses (cmd/gateway_cron.go's `outCh :=
// sched.Schedule(...)`), so a freshly enqueued due task doesn't wait out a
// full poll interval before a worker picks it up.
type Queue struct {
	store  store.TaskQueueStore
	wakeCh chan struct{}
}

func New(s store.TaskQueueStore) *Queue {
	return &Queue{store: s, wakeCh: make(chan struct{}, 1)}
}

// WakeCh signals (non-blockingly) whenever Enqueue inserts a new row.
func (q *Queue) WakeCh() <-chan struct{} { return q.wakeCh }

func (q *Queue) signal() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

func (q *Queue) Enqueue(ctx context.Context, t *store.Task) (bool, error) {
	inserted, err := q.store.Enqueue(ctx, t)
	if err != nil {
		return false, err
	}
	if inserted {
		q.signal()
	}
	return inserted, nil
}

func (q *Queue) Dequeue(ctx context.Context, workerID string, handledTypes []string, leaseDuration time.Duration) (*store.Task, error) {
	return q.store.Dequeue(ctx, workerID, handledTypes, leaseDuration)
}

func (q *Queue) ExtendLease(ctx context.Context, taskID, workerID string, leaseDuration time.Duration) error {
	return q.store.ExtendLease(ctx, taskID, workerID, leaseDuration)
}

func (q *Queue) UpdateStatus(ctx context.Context, taskID string, status store.TaskStatus, lastError string) error {
	return q.store.UpdateStatus(ctx, taskID, status, lastError)
}

func (q *Queue) RescheduleForRetry(ctx context.Context, taskID string, nextAt time.Time, retryCount int, lastError string) error {
	return q.store.RescheduleForRetry(ctx, taskID, nextAt, retryCount, lastError)
}

func (q *Queue) CancelTasksMatching(ctx context.Context, pred store.TaskPredicate) (int, error) {
	return q.store.CancelTasksMatching(ctx, pred)
}

func (q *Queue) Get(ctx context.Context, taskID string) (*store.Task, error) {
	return q.store.Get(ctx, taskID)
}

func (q *Queue) ListByStatus(ctx context.Context, status store.TaskStatus, limit int) ([]store.Task, error) {
	return q.store.ListByStatus(ctx, status, limit)
}
