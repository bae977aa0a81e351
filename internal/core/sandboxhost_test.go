package core

import (
	"context"
	"testing"
	"time"

	"github.com/familyassistant/core/internal/providers"
	"github.com/familyassistant/core/internal/queue"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/internal/tools"
)

type fakeToolProvider struct {
	defs    map[string]tools.ToolDefinition
	execute func(ctx context.Context, name string, args map[string]any) (*tools.Result, error)
}

func (f *fakeToolProvider) List() []string {
	names := make([]string, 0, len(f.defs))
	for n := range f.defs {
		names = append(names, n)
	}
	return names
}

func (f *fakeToolProvider) Describe(name string) (tools.ToolDefinition, bool) {
	d, ok := f.defs[name]
	return d, ok
}

func (f *fakeToolProvider) Execute(ctx context.Context, ec *tools.ExecutionContext, name string, args map[string]any) (*tools.Result, error) {
	if _, ok := f.defs[name]; !ok {
		return nil, tools.ErrToolNotFound
	}
	return f.execute(ctx, name, args)
}

type fakeTaskQueueStore struct {
	enqueued []*store.Task
}

func (f *fakeTaskQueueStore) Enqueue(ctx context.Context, t *store.Task) (bool, error) {
	f.enqueued = append(f.enqueued, t)
	return true, nil
}
func (f *fakeTaskQueueStore) Dequeue(ctx context.Context, workerID string, handledTypes []string, leaseDuration time.Duration) (*store.Task, error) {
	return nil, nil
}
func (f *fakeTaskQueueStore) ExtendLease(ctx context.Context, taskID, workerID string, leaseDuration time.Duration) error {
	return nil
}
func (f *fakeTaskQueueStore) UpdateStatus(ctx context.Context, taskID string, status store.TaskStatus, lastError string) error {
	return nil
}
func (f *fakeTaskQueueStore) RescheduleForRetry(ctx context.Context, taskID string, nextScheduledAt time.Time, retryCount int, lastError string) error {
	return nil
}
func (f *fakeTaskQueueStore) CancelTasksMatching(ctx context.Context, pred store.TaskPredicate) (int, error) {
	return 0, nil
}
func (f *fakeTaskQueueStore) Get(ctx context.Context, taskID string) (*store.Task, error) {
	return nil, store.ErrTaskNotFound
}
func (f *fakeTaskQueueStore) ListByStatus(ctx context.Context, status store.TaskStatus, limit int) ([]store.Task, error) {
	return nil, nil
}

func TestSandboxHost_ToolsListAndExecute(t *testing.T) {
	provider := &fakeToolProvider{
		defs: map[string]tools.ToolDefinition{
			"echo": {Type: "function", Function: providers.ToolFunctionSchema{
				Name: "echo", Description: "echoes input", Parameters: map[string]any{"type": "object"},
			}},
		},
		execute: func(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
			return tools.NewResult("echoed: " + args["msg"].(string)), nil
		},
	}
	host := NewSandboxHost(provider, nil, nil, &tools.ExecutionContext{ConversationID: "conv-1"})

	list, err := host.ToolsList(context.Background())
	if err != nil {
		t.Fatalf("ToolsList() error = %v", err)
	}
	if len(list) != 1 || list[0]["name"] != "echo" {
		t.Fatalf("ToolsList() = %v", list)
	}

	out, err := host.ToolsExecute(context.Background(), "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("ToolsExecute() error = %v", err)
	}
	if out != "echoed: hi" {
		t.Errorf("ToolsExecute() = %q, want %q", out, "echoed: hi")
	}
}

func TestSandboxHost_ToolsExecute_Error(t *testing.T) {
	provider := &fakeToolProvider{
		defs: map[string]tools.ToolDefinition{"fails": {}},
		execute: func(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
			return tools.ErrorResult("tool blew up"), nil
		},
	}
	host := NewSandboxHost(provider, nil, nil, &tools.ExecutionContext{})

	_, err := host.ToolsExecute(context.Background(), "fails", nil)
	if err == nil {
		t.Fatal("expected an error for an IsError result")
	}
}

func TestSandboxHost_ToolsExecuteJSON(t *testing.T) {
	provider := &fakeToolProvider{
		defs: map[string]tools.ToolDefinition{"search": {}},
		execute: func(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
			return tools.NewResult(`{"hits": 3}`), nil
		},
	}
	host := NewSandboxHost(provider, nil, nil, &tools.ExecutionContext{})

	got, err := host.ToolsExecuteJSON(context.Background(), "search", nil)
	if err != nil {
		t.Fatalf("ToolsExecuteJSON() error = %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected a parsed map, got %T", got)
	}
	if m["hits"] != float64(3) {
		t.Errorf("hits = %v, want 3", m["hits"])
	}
}

func TestSandboxHost_ToolsExecuteJSON_NonJSONFallsBack(t *testing.T) {
	provider := &fakeToolProvider{
		defs: map[string]tools.ToolDefinition{"text_tool": {}},
		execute: func(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
			return tools.NewResult("plain text result"), nil
		},
	}
	host := NewSandboxHost(provider, nil, nil, &tools.ExecutionContext{})

	got, err := host.ToolsExecuteJSON(context.Background(), "text_tool", nil)
	if err != nil {
		t.Fatalf("ToolsExecuteJSON() error = %v", err)
	}
	if got != "plain text result" {
		t.Errorf("got %v, want the raw string fallback", got)
	}
}

func TestSandboxHost_WakeLLM(t *testing.T) {
	taskStore := &fakeTaskQueueStore{}
	q := queue.New(taskStore)
	host := NewSandboxHost(&fakeToolProvider{defs: map[string]tools.ToolDefinition{}}, nil, q, &tools.ExecutionContext{ConversationID: "conv-9"})

	if err := host.WakeLLM(context.Background(), "check on the thing", true); err != nil {
		t.Fatalf("WakeLLM() error = %v", err)
	}
	if len(taskStore.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(taskStore.enqueued))
	}
	task := taskStore.enqueued[0]
	if task.TaskType != queue.TaskTypeWakeLLM {
		t.Errorf("TaskType = %q, want %q", task.TaskType, queue.TaskTypeWakeLLM)
	}
	var payload queue.WakeLLMPayload
	if err := queue.FromPayload(task.Payload, &payload); err != nil {
		t.Fatalf("FromPayload() error = %v", err)
	}
	if payload.ConversationID != "conv-9" {
		t.Errorf("ConversationID = %q, want conv-9", payload.ConversationID)
	}
	if payload.Prompt != "check on the thing" {
		t.Errorf("Prompt = %q", payload.Prompt)
	}
	if !payload.IncludeEvent {
		t.Error("expected IncludeEvent to be true")
	}
}

func TestSandboxHost_WakeLLM_ConversationIDFromContext(t *testing.T) {
	taskStore := &fakeTaskQueueStore{}
	q := queue.New(taskStore)
	host := NewSandboxHost(&fakeToolProvider{defs: map[string]tools.ToolDefinition{}}, nil, q, nil)

	ctx := WithConversationID(context.Background(), "conv-from-ctx")
	if err := host.WakeLLM(ctx, "prompt", false); err != nil {
		t.Fatalf("WakeLLM() error = %v", err)
	}
	var payload queue.WakeLLMPayload
	if err := queue.FromPayload(taskStore.enqueued[0].Payload, &payload); err != nil {
		t.Fatalf("FromPayload() error = %v", err)
	}
	if payload.ConversationID != "conv-from-ctx" {
		t.Errorf("ConversationID = %q, want conv-from-ctx", payload.ConversationID)
	}
}

func TestBuildSandboxPolicy_DenyAllWins(t *testing.T) {
	registry := tools.NewRegistry()
	pe := tools.NewPolicyEngine(nil)
	policy := BuildSandboxPolicy(pe, registry, "test", nil, true)
	if !policy.DenyAllTools {
		t.Error("expected DenyAllTools to be true when denyAllTools is set")
	}
}
