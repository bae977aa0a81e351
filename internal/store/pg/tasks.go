package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/familyassistant/core/internal/store"
)

// TaskQueueStore is the Postgres-backed durable task queue (§3.2, §4.1).
// Dequeue/claim semantics follow the teacher's conditional
// `UPDATE ... WHERE status = $pending` + RowsAffected pattern from its
// team-task claiming code, combined with `FOR UPDATE SKIP LOCKED` so that
// concurrent workers never block on each other picking a row.
type TaskQueueStore struct {
	db *sql.DB
}

func NewTaskQueueStore(db *sql.DB) *TaskQueueStore {
	return &TaskQueueStore{db: db}
}

func (s *TaskQueueStore) Enqueue(ctx context.Context, t *store.Task) (bool, error) {
	if t.Status == "" {
		t.Status = store.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = store.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, task_type, payload, status, scheduled_at, created_at,
		 retry_count, max_retries, last_error, worker_id, lease_expires_at, recurrence_rule, original_task_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT (task_id) DO NOTHING`,
		t.TaskID, t.TaskType, jsonOrNull(t.Payload), t.Status, t.ScheduledAt, t.CreatedAt,
		t.RetryCount, t.MaxRetries, nilStr(t.LastError), nilStr(t.WorkerID), t.LeaseExpiresAt,
		nilStr(t.RecurrenceRule), nilStr(t.OriginalTaskID),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *TaskQueueStore) Dequeue(ctx context.Context, workerID string, handledTypes []string, leaseDuration time.Duration) (*store.Task, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := store.Now()
	row := tx.QueryRowContext(ctx,
		`SELECT task_id FROM tasks
		 WHERE status = $1 AND scheduled_at <= $2
		 AND task_type = ANY($3)
		 AND (worker_id IS NULL OR lease_expires_at < $2)
		 ORDER BY scheduled_at ASC
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`,
		store.TaskPending, now, pq.Array(handledTypes),
	)
	var taskID string
	if err := row.Scan(&taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	lease := now.Add(leaseDuration)
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = $1, worker_id = $2, lease_expires_at = $3
		 WHERE task_id = $4 AND status = $5`,
		store.TaskInProgress, workerID, lease, taskID, store.TaskPending,
	)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, nil
	}

	t, err := s.getTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	return t, tx.Commit()
}

func (s *TaskQueueStore) ExtendLease(ctx context.Context, taskID, workerID string, leaseDuration time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET lease_expires_at = $1
		 WHERE task_id = $2 AND worker_id = $3 AND status = $4`,
		store.Now().Add(leaseDuration), taskID, workerID, store.TaskInProgress,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s not leased by worker %s", taskID, workerID)
	}
	return nil
}

func (s *TaskQueueStore) UpdateStatus(ctx context.Context, taskID string, status store.TaskStatus, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = $1, last_error = $2, worker_id = NULL, lease_expires_at = NULL
		 WHERE task_id = $3`,
		status, nilStr(lastError), taskID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func (s *TaskQueueStore) RescheduleForRetry(ctx context.Context, taskID string, nextScheduledAt time.Time, retryCount int, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = $1, scheduled_at = $2, retry_count = $3, last_error = $4,
		 worker_id = NULL, lease_expires_at = NULL
		 WHERE task_id = $5`,
		store.TaskPending, nextScheduledAt, retryCount, nilStr(lastError), taskID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func (s *TaskQueueStore) CancelTasksMatching(ctx context.Context, pred store.TaskPredicate) (int, error) {
	q := `UPDATE tasks SET status = $1, worker_id = NULL, lease_expires_at = NULL
	      WHERE status IN ($2, $3)`
	args := []any{store.TaskCancelled, store.TaskPending, store.TaskInProgress}
	n := 4
	if pred.TaskType != "" {
		q += fmt.Sprintf(" AND task_type = $%d", n)
		args = append(args, pred.TaskType)
		n++
	}
	if pred.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, pred.Status)
		n++
	}
	for k, v := range pred.PayloadEquals {
		q += fmt.Sprintf(" AND payload->>'%s' = $%d", k, n)
		args = append(args, fmt.Sprintf("%v", v))
		n++
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *TaskQueueStore) Get(ctx context.Context, taskID string) (*store.Task, error) {
	return s.getTx(ctx, s.db, taskID)
}

func (s *TaskQueueStore) getTx(ctx context.Context, ex queryRower, taskID string) (*store.Task, error) {
	row := ex.QueryRowContext(ctx,
		`SELECT task_id, task_type, payload, status, scheduled_at, created_at,
		 retry_count, max_retries, last_error, worker_id, lease_expires_at, recurrence_rule, original_task_id
		 FROM tasks WHERE task_id = $1`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TaskQueueStore) ListByStatus(ctx context.Context, status store.TaskStatus, limit int) ([]store.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, task_type, payload, status, scheduled_at, created_at,
		 retry_count, max_retries, last_error, worker_id, lease_expires_at, recurrence_rule, original_task_id
		 FROM tasks WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanTask(row rowScanner) (store.Task, error) {
	var t store.Task
	var payload []byte
	var lastError, workerID, recurrence, originalID *string
	if err := row.Scan(
		&t.TaskID, &t.TaskType, &payload, &t.Status, &t.ScheduledAt, &t.CreatedAt,
		&t.RetryCount, &t.MaxRetries, &lastError, &workerID, &t.LeaseExpiresAt, &recurrence, &originalID,
	); err != nil {
		return store.Task{}, err
	}
	if err := decodeJSONInto(payload, &t.Payload); err != nil {
		return store.Task{}, err
	}
	t.LastError = derefStr(lastError)
	t.WorkerID = derefStr(workerID)
	t.RecurrenceRule = derefStr(recurrence)
	t.OriginalTaskID = derefStr(originalID)
	return t, nil
}
