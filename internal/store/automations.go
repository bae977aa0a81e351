package store

import (
	"context"
	"errors"
	"time"
)

// ErrAutomationNotFound is returned when an automation id has no matching row.
var ErrAutomationNotFound = errors.New("store: automation not found")

// ErrNameTaken is returned by CheckNameAvailable-backed create paths when
// (name, conversation_id) already exists in either automation variant.
var ErrNameTaken = errors.New("store: automation name already used in this conversation")

// Automation is the unified view described in §3.3. Schedule-only and
// event-only fields are zero-valued on the other variant.
type Automation struct {
	ID               string         `json:"id"`
	Type             AutomationType `json:"type"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	ConversationID   string         `json:"conversation_id"`
	InterfaceType    string         `json:"interface_type"`
	Enabled          bool           `json:"enabled"`
	CreatedAt        time.Time      `json:"created_at"`
	LastExecutionAt  *time.Time     `json:"last_execution_at,omitempty"`
	ActionType       ActionType     `json:"action_type"`
	ActionConfig     map[string]any `json:"action_config"`

	// Schedule variant
	RecurrenceRule   string     `json:"recurrence_rule,omitempty"`
	NextScheduledAt  *time.Time `json:"next_scheduled_at,omitempty"`
	ExecutionCount   int        `json:"execution_count"`

	// Event variant
	SourceID         string         `json:"source_id,omitempty"`
	MatchConditions  map[string]any `json:"match_conditions,omitempty"`
	ConditionScript  string         `json:"condition_script,omitempty"`
	OneTime          bool           `json:"one_time,omitempty"`
	DailyExecutions  int            `json:"daily_executions,omitempty"`
	DailyExecutionsResetAt *time.Time `json:"daily_executions_reset_at,omitempty"`
}

// AutomationStore persists both automation variants and enforces the
// cross-variant name-uniqueness and recurrence-cancellation invariants
// of §3.3/§4.2.
type AutomationStore interface {
	CreateSchedule(ctx context.Context, a *Automation) error
	CreateEvent(ctx context.Context, a *Automation) error

	Get(ctx context.Context, id string) (*Automation, error)

	// Update applies a partial update. For schedule automations, changing
	// RecurrenceRule must cancel pending queue instances (payload
	// automation_id=id) in the same transaction as persisting the new rule
	// and NextScheduledAt (§4.2).
	Update(ctx context.Context, id string, updates map[string]any) error

	Delete(ctx context.Context, id string) error

	ListByConversation(ctx context.Context, conversationID string) ([]Automation, error)

	// ListEnabledEvents returns all enabled event automations for a given
	// source_id, used by the dispatcher to rebuild its in-memory index.
	ListEnabledEvents(ctx context.Context, sourceID string) ([]Automation, error)

	// CheckNameAvailable reports whether name is free in conversationID
	// across both variants (§8 testable property).
	CheckNameAvailable(ctx context.Context, name, conversationID string) (bool, error)

	// RecordScheduleExecution runs the §4.2 after-execution hook atomically:
	// bump ExecutionCount/LastExecutionAt, compute+persist the next
	// occurrence strictly after executedAt, and enqueue the next task. No-op
	// (returns nil) if the automation is disabled or deleted. Idempotent by
	// deriving the next task id from (id, nextScheduledAt).
	RecordScheduleExecution(ctx context.Context, automationID string, executedAt time.Time, nextAfter func(from time.Time, rule string) (time.Time, bool, error), enqueueNext func(a *Automation, next time.Time) error) error

	// TriggerEvent runs the §4.3 trigger transaction: enqueue the
	// action task and, if OneTime, disable the listener — atomically.
	TriggerEvent(ctx context.Context, automationID string, enqueue func(a *Automation) error) error
}
