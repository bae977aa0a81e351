package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrA2ATaskNotFound is returned when a task id has no matching row.
var ErrA2ATaskNotFound = errors.New("store: a2a task not found")

// A2ATask mirrors the external agent-protocol task state (§3.7, §6.5).
type A2ATask struct {
	TaskID         string          `json:"task_id"`
	ProfileID      string          `json:"profile_id"`
	ConversationID string          `json:"conversation_id"`
	ContextID      string          `json:"context_id"`
	Status         A2ATaskStatus   `json:"status"`
	ArtifactsJSON  json.RawMessage `json:"artifacts_json,omitempty"`
	HistoryJSON    json.RawMessage `json:"history_json,omitempty"`
}

// A2ATaskStore persists the A2A task mirror used by tasks/get and tasks/cancel.
type A2ATaskStore interface {
	Create(ctx context.Context, t *A2ATask) error
	Get(ctx context.Context, taskID string) (*A2ATask, error)
	UpdateStatus(ctx context.Context, taskID string, status A2ATaskStatus) error
	AppendArtifact(ctx context.Context, taskID string, artifact json.RawMessage) error
	AppendHistory(ctx context.Context, taskID string, entry json.RawMessage) error
}
