package queue

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/familyassistant/core/internal/automation/rrule"
	"github.com/familyassistant/core/internal/metrics"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/internal/telemetry"
)

func taskSpanAttrs(task *store.Task) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("task_id", task.TaskID),
		attribute.String("task_type", task.TaskType),
	}
}

// nextAfterAdapter satisfies AutomationStore.RecordScheduleExecution's
// nextAfter parameter using the RRULE-to-cron translator.
var nextAfterAdapter = rrule.NextAfter

// Handler executes one dequeued task. A returned error schedules a retry
// (or a terminal failure once MaxRetries is exceeded); a nil error marks
// the task done.
type Handler func(ctx context.Context, task *store.Task) error

// Config bundles the worker's tunables (§6.6: lease_duration, poll_interval,
// max_retries_default).
type Config struct {
	WorkerID          string
	LeaseDuration     time.Duration
	PollInterval      time.Duration
	MaxRetriesDefault int
	BackoffBase       time.Duration
	// DequeueRate caps how often the worker may round-trip to Dequeue,
	// protecting the pool from a thundering herd of wake signals.
	DequeueRate rate.Limit
}

func DefaultConfig(workerID string) Config {
	return Config{
		WorkerID:          workerID,
		LeaseDuration:     2 * time.Minute,
		PollInterval:      5 * time.Second,
		MaxRetriesDefault: 3,
		BackoffBase:       time.Second,
		DequeueRate:       20,
	}
}

// Worker is the cooperative poll loop described in §4.1: a timer-bounded
// wait on the queue's wake channel, mirroring the teacher's channel-based
// scheduler lane hand-off in cmd/gateway_cron.go.
type Worker struct {
	q           *Queue
	automations store.AutomationStore
	cfg         Config
	handlers    map[string]Handler
	limiter     *rate.Limiter

	// enqueueWake re-enqueues the next occurrence of a recurring schedule
	// automation — injected so this package does not import internal/automation.
	enqueueWake func(a *store.Automation, next time.Time) error
}

func NewWorker(q *Queue, automations store.AutomationStore, cfg Config, enqueueWake func(a *store.Automation, next time.Time) error) *Worker {
	return &Worker{
		q:           q,
		automations: automations,
		cfg:         cfg,
		handlers:    make(map[string]Handler),
		limiter:     rate.NewLimiter(cfg.DequeueRate, 1),
		enqueueWake: enqueueWake,
	}
}

func (w *Worker) RegisterHandler(taskType string, h Handler) {
	w.handlers[taskType] = h
}

func (w *Worker) handledTypes() []string {
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	return types
}

// Run blocks until ctx is cancelled, repeatedly draining eligible tasks and
// otherwise sleeping until the next poll interval or wake signal.
func (w *Worker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.q.WakeCh():
		case <-timer.C:
		}

		for w.drainOnce(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.cfg.PollInterval)
	}
}

// drainOnce claims and executes a single eligible task, returning true if
// one was found (so Run keeps draining the backlog before sleeping again).
func (w *Worker) drainOnce(ctx context.Context) bool {
	if err := w.limiter.Wait(ctx); err != nil {
		return false
	}
	task, err := w.q.Dequeue(ctx, w.cfg.WorkerID, w.handledTypes(), w.cfg.LeaseDuration)
	if err != nil {
		slog.Error("queue: dequeue failed", "error", err)
		return false
	}
	if task == nil {
		return false
	}
	w.execute(ctx, task)
	return true
}

func (w *Worker) execute(ctx context.Context, task *store.Task) {
	ctx, span := telemetry.Tracer("familyassistant/queue").Start(ctx, "task.execute")
	span.SetAttributes(taskSpanAttrs(task)...)
	defer span.End()

	start := time.Now()

	handler, ok := w.handlers[task.TaskType]
	if !ok {
		slog.Error("queue: no handler registered", "task_type", task.TaskType, "task_id", task.TaskID)
		if err := w.q.UpdateStatus(ctx, task.TaskID, store.TaskFailed, "no handler registered for task_type"); err != nil {
			slog.Error("queue: failed to mark unhandled task failed", "error", err)
		}
		metrics.RecordTask(task.TaskType, "no_handler", time.Since(start))
		return
	}

	err := handler(ctx, task)
	if err != nil {
		span.RecordError(err)
		w.failOrRetry(ctx, task, err)
		metrics.RecordTask(task.TaskType, "error", time.Since(start))
		return
	}

	if err := w.q.UpdateStatus(ctx, task.TaskID, store.TaskDone, ""); err != nil {
		slog.Error("queue: failed to mark task done", "task_id", task.TaskID, "error", err)
		metrics.RecordTask(task.TaskType, "error", time.Since(start))
		return
	}
	w.afterCompletion(ctx, task)
	metrics.RecordTask(task.TaskType, "done", time.Since(start))
}

func (w *Worker) failOrRetry(ctx context.Context, task *store.Task, cause error) {
	maxRetries := task.MaxRetries
	if maxRetries == 0 {
		maxRetries = w.cfg.MaxRetriesDefault
	}
	retry := task.RetryCount + 1
	if retry > maxRetries {
		if err := w.q.UpdateStatus(ctx, task.TaskID, store.TaskFailed, cause.Error()); err != nil {
			slog.Error("queue: failed to mark task failed", "task_id", task.TaskID, "error", err)
		}
		return
	}

	next := store.Now().Add(Backoff(w.cfg.BackoffBase, retry))
	if err := w.q.RescheduleForRetry(ctx, task.TaskID, next, retry, cause.Error()); err != nil {
		slog.Error("queue: failed to reschedule task", "task_id", task.TaskID, "error", err)
	}
}

// afterCompletion runs the §4.1/§4.2 after-execution recurrence logic.
// Automation-driven tasks (carrying automation_id) are hook-only: recurrence
// is driven by the automation row via AutomationStore, never by the task's
// own RecurrenceRule (Open Question 2). Any other recurring task (a plain
// RecurrenceRule set directly on Enqueue, §4.1's generic queue contract)
// gets the queue-level successor with a deterministic
// `<original_task_id>_recur_<next-ISO-timestamp>` id.
func (w *Worker) afterCompletion(ctx context.Context, task *store.Task) {
	if automationID, _ := task.Payload["automation_id"].(string); automationID != "" {
		if w.automations == nil {
			return
		}
		if err := w.automations.RecordScheduleExecution(ctx, automationID, store.Now(),
			nextAfterAdapter, w.enqueueWake); err != nil {
			slog.Error("queue: recurrence hook failed", "automation_id", automationID, "error", err)
		}
		return
	}

	if task.RecurrenceRule == "" {
		return
	}
	next, ok, err := rrule.NextAfter(task.ScheduledAt, task.RecurrenceRule)
	if err != nil {
		slog.Error("queue: recurrence calculation failed", "task_id", task.TaskID, "error", err)
		return
	}
	if !ok {
		return
	}
	originalID := task.OriginalTaskID
	if originalID == "" {
		originalID = task.TaskID
	}
	successor := &store.Task{
		TaskID:         originalID + "_recur_" + next.UTC().Format(time.RFC3339),
		TaskType:       task.TaskType,
		Payload:        task.Payload,
		ScheduledAt:    next,
		MaxRetries:     task.MaxRetries,
		RecurrenceRule: task.RecurrenceRule,
		OriginalTaskID: originalID,
	}
	if _, err := w.q.Enqueue(ctx, successor); err != nil {
		slog.Error("queue: failed to enqueue recurrence successor", "task_id", task.TaskID, "error", err)
	}
}
