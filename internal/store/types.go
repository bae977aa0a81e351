// Package store defines the persistence contracts for message history, the
// task queue, automations, attachments, documents, and the A2A task mirror.
// Concrete backends live in internal/store/pg.
package store

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies who produced a message_history row.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
	RoleSystem    MessageRole = "system"
)

// TaskStatus is the lifecycle state of a queue row (§3.2).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// AutomationType tags the unified automation view (§3.3).
type AutomationType string

const (
	AutomationSchedule AutomationType = "schedule"
	AutomationEvent    AutomationType = "event"
)

// ActionType names the action an automation performs when it fires.
type ActionType string

const (
	ActionWakeLLM ActionType = "wake_llm"
	ActionScript  ActionType = "script"
)

// AttachmentSourceType names the producer of an attachment (§3.4).
type AttachmentSourceType string

const (
	AttachmentSourceUser  AttachmentSourceType = "user"
	AttachmentSourceTool  AttachmentSourceType = "tool"
	AttachmentSourceScript AttachmentSourceType = "script"
)

// EmbeddingType names the kind of content an embedding row indexes (§3.5).
type EmbeddingType string

const (
	EmbeddingContentChunk EmbeddingType = "content_chunk"
	EmbeddingSummary      EmbeddingType = "summary"
	EmbeddingTitle        EmbeddingType = "title"
	EmbeddingOCRText      EmbeddingType = "ocr_text"
)

// A2ATaskStatus mirrors the A2A wire protocol task states (§3.7, §6.5).
type A2ATaskStatus string

const (
	A2ASubmitted A2ATaskStatus = "submitted"
	A2AWorking   A2ATaskStatus = "working"
	A2ACompleted A2ATaskStatus = "completed"
	A2AFailed    A2ATaskStatus = "failed"
	A2ACanceled  A2ATaskStatus = "canceled"
)

// ErrorLevel mirrors slog levels for the persisted error log (§3.6).
type ErrorLevel string

const (
	LevelDebug ErrorLevel = "debug"
	LevelInfo  ErrorLevel = "info"
	LevelWarn  ErrorLevel = "warn"
	LevelError ErrorLevel = "error"
)

// now is overridden in tests that need deterministic clocks.
var now = time.Now

// Now returns the current UTC instant. Storage rows always stamp UTC.
func Now() time.Time { return now().UTC() }

// NewID mints a fresh row identifier for stores that use string ids rather
// than a database-assigned serial.
func NewID() string { return uuid.NewString() }
