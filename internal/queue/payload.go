package queue

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
)

// Task type names recognized by internal/queue.Worker's default handlers.
const (
	TaskTypeWakeLLM         = "llm_callback"
	TaskTypeScriptExecution = "script_execution"
)

// WakeLLMPayload is the §6.1 payload shape for TaskTypeWakeLLM rows.
type WakeLLMPayload struct {
	ConversationID string         `json:"conversation_id" mapstructure:"conversation_id"`
	AutomationID   string         `json:"automation_id,omitempty" mapstructure:"automation_id"`
	Prompt         string         `json:"prompt,omitempty" mapstructure:"prompt"`
	IncludeEvent   bool           `json:"include_event" mapstructure:"include_event"`
	Event          map[string]any `json:"event,omitempty" mapstructure:"event"`
}

// ScriptExecutionPayload is the §6.1 payload shape for TaskTypeScriptExecution rows.
type ScriptExecutionPayload struct {
	ConversationID string         `json:"conversation_id" mapstructure:"conversation_id"`
	AutomationID   string         `json:"automation_id,omitempty" mapstructure:"automation_id"`
	Script         string         `json:"script" mapstructure:"script"`
	Context        map[string]any `json:"context,omitempty" mapstructure:"context"`
}

// ToPayload converts a typed payload struct into the map[string]any shape
// store.Task.Payload carries, via a round trip through encoding/json so the
// json tags above are the single source of truth for the wire shape.
func ToPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromPayload decodes a store.Task's generic payload map into a typed
// struct with mapstructure.
func FromPayload(payload map[string]any, out any) error {
	return mapstructure.Decode(payload, out)
}
