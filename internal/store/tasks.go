package store

import (
	"context"
	"errors"
	"time"
)

// ErrTaskNotFound is returned when a task id has no matching row.
var ErrTaskNotFound = errors.New("store: task not found")

// ErrTaskExists is returned by Enqueue when task_id is a duplicate and the
// backend is configured to reject rather than no-op on duplicates.
var ErrTaskExists = errors.New("store: task already enqueued")

// Task is one row of the durable queue (§3.2).
type Task struct {
	TaskID          string         `json:"task_id"`
	TaskType        string         `json:"task_type"`
	Payload         map[string]any `json:"payload"`
	Status          TaskStatus     `json:"status"`
	ScheduledAt     time.Time      `json:"scheduled_at"`
	CreatedAt       time.Time      `json:"created_at"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	LastError       string         `json:"last_error,omitempty"`
	WorkerID        string         `json:"worker_id,omitempty"`
	LeaseExpiresAt  *time.Time     `json:"lease_expires_at,omitempty"`
	RecurrenceRule  string         `json:"recurrence_rule,omitempty"`
	OriginalTaskID  string         `json:"original_task_id,omitempty"`
}

// Dequeueable reports whether t satisfies the §3.2 dequeue predicate at instant now.
func (t *Task) Dequeueable(now time.Time) bool {
	if t.Status != TaskPending || t.ScheduledAt.After(now) {
		return false
	}
	if t.WorkerID == "" {
		return true
	}
	return t.LeaseExpiresAt != nil && t.LeaseExpiresAt.Before(now)
}

// TaskPredicate selects tasks for CancelTasksMatching. Implementations may
// translate common shapes (e.g. "payload field equals value") to SQL; the
// in-memory/test backend evaluates it directly against decoded payloads.
type TaskPredicate struct {
	TaskType        string // "" = any
	PayloadEquals   map[string]any
	Status          TaskStatus // "" = any
}

// TaskQueueStore is the durable backing store behind internal/queue.Queue.
type TaskQueueStore interface {
	// Enqueue inserts a new row. A duplicate TaskID is a no-op (returns nil,
	// false) unless the backend is configured to return ErrTaskExists — see
	// DESIGN.md for the chosen default (no-op).
	Enqueue(ctx context.Context, t *Task) (inserted bool, err error)

	// Dequeue atomically claims the oldest eligible row for one of
	// handledTypes, in a single serializable transaction (§4.1).
	Dequeue(ctx context.Context, workerID string, handledTypes []string, leaseDuration time.Duration) (*Task, error)

	// ExtendLease pushes LeaseExpiresAt forward for a long-running handler's
	// check-in callback.
	ExtendLease(ctx context.Context, taskID, workerID string, leaseDuration time.Duration) error

	// UpdateStatus transitions a task to a terminal (done/failed) or
	// cancelled status, releasing its lease.
	UpdateStatus(ctx context.Context, taskID string, status TaskStatus, lastError string) error

	// RescheduleForRetry sets scheduled_at/retry_count/status=pending and
	// releases the lease, recording lastError.
	RescheduleForRetry(ctx context.Context, taskID string, nextScheduledAt time.Time, retryCount int, lastError string) error

	// CancelTasksMatching transitions all matching pending/in_progress rows
	// to cancelled, returning the count affected.
	CancelTasksMatching(ctx context.Context, pred TaskPredicate) (int, error)

	// Get fetches a single row.
	Get(ctx context.Context, taskID string) (*Task, error)

	// ListByStatus returns rows with the given status, most recent first —
	// used to surface failed scheduled tasks with their last_error (§7).
	ListByStatus(ctx context.Context, status TaskStatus, limit int) ([]Task, error)
}
