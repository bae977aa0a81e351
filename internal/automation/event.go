package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/familyassistant/core/internal/queue"
	"github.com/familyassistant/core/internal/sandbox"
	"github.com/familyassistant/core/internal/store"
)

// EventService creates event-variant automations and evaluates them against
// published events (§4.3).
type EventService struct {
	automations store.AutomationStore
	q           *queue.Queue
	scripts     sandbox.Evaluator // evaluates optional condition_script; may be nil
}

func NewEventService(automations store.AutomationStore, q *queue.Queue, scripts sandbox.Evaluator) *EventService {
	return &EventService{automations: automations, q: q, scripts: scripts}
}

// CreateEventParams is the input to Create.
type CreateEventParams struct {
	Name            string
	Description     string
	ConversationID  string
	InterfaceType   string
	SourceID        string
	MatchConditions map[string]any
	ConditionScript string
	OneTime         bool
	ActionType      store.ActionType
	ActionConfig    map[string]any
}

func (s *EventService) Create(ctx context.Context, p CreateEventParams) (*store.Automation, error) {
	a := &store.Automation{
		Type:            store.AutomationEvent,
		Name:            p.Name,
		Description:     p.Description,
		ConversationID:  p.ConversationID,
		InterfaceType:   p.InterfaceType,
		Enabled:         true,
		ActionType:      p.ActionType,
		ActionConfig:    p.ActionConfig,
		SourceID:        p.SourceID,
		MatchConditions: p.MatchConditions,
		ConditionScript: p.ConditionScript,
		OneTime:         p.OneTime,
	}
	if err := s.automations.CreateEvent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// HandleEvent evaluates every enabled listener subscribed to sourceID
// against event and triggers the ones that match (§4.3). Errors evaluating
// an individual listener's condition_script are logged and treated as a
// non-match, never disabling the listener.
func (s *EventService) HandleEvent(ctx context.Context, sourceID string, event map[string]any) error {
	listeners, err := s.automations.ListEnabledEvents(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list listeners for source %q: %w", sourceID, err)
	}
	for i := range listeners {
		a := &listeners[i]
		if !Match(a.MatchConditions, event) {
			continue
		}
		if a.ConditionScript != "" {
			ok, err := s.evalCondition(ctx, a.ConditionScript, event)
			if err != nil {
				slog.Error("automation: condition_script evaluation failed", "automation_id", a.ID, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}
		if err := s.trigger(ctx, a, event); err != nil {
			slog.Error("automation: trigger failed", "automation_id", a.ID, "error", err)
		}
	}
	return nil
}

func (s *EventService) evalCondition(ctx context.Context, script string, event map[string]any) (bool, error) {
	if s.scripts == nil {
		return false, fmt.Errorf("condition_script present but no sandbox evaluator configured")
	}
	result, err := s.scripts.Eval(ctx, script, map[string]any{"event": event})
	if err != nil {
		return false, err
	}
	truthy, _ := result.(bool)
	return truthy, nil
}

func (s *EventService) trigger(ctx context.Context, a *store.Automation, event map[string]any) error {
	return s.automations.TriggerEvent(ctx, a.ID, func(a *store.Automation) error {
		taskType, payload, err := s.buildTask(a, event)
		if err != nil {
			return err
		}
		task := &store.Task{
			TaskID:      fmt.Sprintf("%s_event_%d", a.ID, store.Now().UnixNano()),
			TaskType:    taskType,
			Payload:     payload,
			ScheduledAt: store.Now(),
		}
		_, err = s.q.Enqueue(ctx, task)
		return err
	})
}

func (s *EventService) buildTask(a *store.Automation, event map[string]any) (string, map[string]any, error) {
	switch a.ActionType {
	case store.ActionWakeLLM:
		p := queue.WakeLLMPayload{
			ConversationID: a.ConversationID,
			AutomationID:   a.ID,
			IncludeEvent:   true,
			Event:          event,
		}
		if v, ok := a.ActionConfig["callback_context"].(string); ok {
			p.Prompt = v
		}
		payload, err := queue.ToPayload(p)
		if err != nil {
			return "", nil, err
		}
		payload["automation_type"] = string(store.AutomationEvent)
		return queue.TaskTypeWakeLLM, payload, nil
	case store.ActionScript:
		p := queue.ScriptExecutionPayload{
			ConversationID: a.ConversationID,
			AutomationID:   a.ID,
			Context:        map[string]any{"event": event},
		}
		if v, ok := a.ActionConfig["script_code"].(string); ok {
			p.Script = v
		}
		payload, err := queue.ToPayload(p)
		if err != nil {
			return "", nil, err
		}
		payload["automation_type"] = string(store.AutomationEvent)
		return queue.TaskTypeScriptExecution, payload, nil
	default:
		return "", nil, fmt.Errorf("unknown action type %q", a.ActionType)
	}
}
