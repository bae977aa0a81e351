// Package automation implements the unified schedule/event automation
// engine (§4.2, §4.3), grounded on the teacher's cron lane
// (cmd/gateway_cron.go's makeCronJobHandler) generalized away from its
// channel/session-specific concerns toward automation records driving
// queue tasks directly.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/familyassistant/core/internal/automation/rrule"
	"github.com/familyassistant/core/internal/queue"
	"github.com/familyassistant/core/internal/store"
)

// ScheduleService creates and manages schedule-variant automations.
type ScheduleService struct {
	automations store.AutomationStore
	q           *queue.Queue
}

func NewScheduleService(automations store.AutomationStore, q *queue.Queue) *ScheduleService {
	return &ScheduleService{automations: automations, q: q}
}

// CreateScheduleParams is the input to Create.
type CreateScheduleParams struct {
	Name           string
	Description    string
	ConversationID string
	InterfaceType  string
	RecurrenceRule string
	ActionType     store.ActionType
	ActionConfig   map[string]any
}

// Create computes the first next_scheduled_at from the rule, persists the
// automation, and enqueues the first task instance (§4.2).
func (s *ScheduleService) Create(ctx context.Context, p CreateScheduleParams) (*store.Automation, error) {
	next, ok, err := rrule.NextAfter(store.Now(), p.RecurrenceRule)
	if err != nil {
		return nil, fmt.Errorf("compute first occurrence: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("recurrence rule %q never occurs", p.RecurrenceRule)
	}

	a := &store.Automation{
		Type:            store.AutomationSchedule,
		Name:            p.Name,
		Description:     p.Description,
		ConversationID:  p.ConversationID,
		InterfaceType:   p.InterfaceType,
		Enabled:         true,
		ActionType:      p.ActionType,
		ActionConfig:    p.ActionConfig,
		RecurrenceRule:  p.RecurrenceRule,
		NextScheduledAt: &next,
	}
	if err := s.automations.CreateSchedule(ctx, a); err != nil {
		return nil, err
	}
	if err := s.enqueueInstance(ctx, a, next); err != nil {
		return nil, fmt.Errorf("enqueue first instance: %w", err)
	}
	return a, nil
}

// ChangeRule updates the recurrence rule, cancelling pending instances and
// enqueueing a fresh first occurrence in the same transaction (§4.2).
func (s *ScheduleService) ChangeRule(ctx context.Context, automationID, newRule string) error {
	next, ok, err := rrule.NextAfter(store.Now(), newRule)
	if err != nil {
		return fmt.Errorf("compute next occurrence: %w", err)
	}
	if !ok {
		return fmt.Errorf("recurrence rule %q never occurs", newRule)
	}
	if err := s.automations.Update(ctx, automationID, map[string]any{
		"recurrence_rule":   newRule,
		"next_scheduled_at": next,
	}); err != nil {
		return err
	}
	a, err := s.automations.Get(ctx, automationID)
	if err != nil {
		return err
	}
	return s.enqueueInstance(ctx, a, next)
}

// enqueueWake satisfies the Worker's enqueueWake callback, invoked from the
// after-execution hook (AutomationStore.RecordScheduleExecution).
func (s *ScheduleService) enqueueWake(a *store.Automation, next time.Time) error {
	return s.enqueueInstance(context.Background(), a, next)
}

// EnqueueWakeFunc exposes enqueueWake for wiring into queue.NewWorker
// without internal/queue importing internal/automation.
func (s *ScheduleService) EnqueueWakeFunc() func(a *store.Automation, next time.Time) error {
	return s.enqueueWake
}

func (s *ScheduleService) enqueueInstance(ctx context.Context, a *store.Automation, at time.Time) error {
	taskType, payload, err := s.buildTask(a)
	if err != nil {
		return err
	}
	task := &store.Task{
		TaskID:      fmt.Sprintf("%s_recur_%s", a.ID, at.UTC().Format(time.RFC3339)),
		TaskType:    taskType,
		Payload:     payload,
		ScheduledAt: at,
	}
	_, err = s.q.Enqueue(ctx, task)
	return err
}

func (s *ScheduleService) buildTask(a *store.Automation) (string, map[string]any, error) {
	switch a.ActionType {
	case store.ActionWakeLLM:
		p := queue.WakeLLMPayload{
			ConversationID: a.ConversationID,
			AutomationID:   a.ID,
		}
		if v, ok := a.ActionConfig["prompt"].(string); ok {
			p.Prompt = v
		}
		payload, err := queue.ToPayload(p)
		if err != nil {
			return "", nil, err
		}
		payload["automation_type"] = string(store.AutomationSchedule)
		return queue.TaskTypeWakeLLM, payload, nil
	case store.ActionScript:
		p := queue.ScriptExecutionPayload{
			ConversationID: a.ConversationID,
			AutomationID:   a.ID,
			Context:        a.ActionConfig,
		}
		if v, ok := a.ActionConfig["script_code"].(string); ok {
			p.Script = v
		}
		payload, err := queue.ToPayload(p)
		if err != nil {
			return "", nil, err
		}
		payload["automation_type"] = string(store.AutomationSchedule)
		return queue.TaskTypeScriptExecution, payload, nil
	default:
		return "", nil, fmt.Errorf("unknown action type %q", a.ActionType)
	}
}
