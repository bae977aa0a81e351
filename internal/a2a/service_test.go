package a2a

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/pkg/a2aprotocol"
)

type fakeA2ATaskStore struct {
	rows map[string]*store.A2ATask
}

func newFakeA2ATaskStore() *fakeA2ATaskStore {
	return &fakeA2ATaskStore{rows: make(map[string]*store.A2ATask)}
}

func (f *fakeA2ATaskStore) Create(ctx context.Context, t *store.A2ATask) error {
	cp := *t
	f.rows[t.TaskID] = &cp
	return nil
}

func (f *fakeA2ATaskStore) Get(ctx context.Context, taskID string) (*store.A2ATask, error) {
	t, ok := f.rows[taskID]
	if !ok {
		return nil, store.ErrA2ATaskNotFound
	}
	return t, nil
}

func (f *fakeA2ATaskStore) UpdateStatus(ctx context.Context, taskID string, status store.A2ATaskStatus) error {
	t, ok := f.rows[taskID]
	if !ok {
		return store.ErrA2ATaskNotFound
	}
	t.Status = status
	return nil
}

func (f *fakeA2ATaskStore) AppendArtifact(ctx context.Context, taskID string, artifact json.RawMessage) error {
	t, ok := f.rows[taskID]
	if !ok {
		return store.ErrA2ATaskNotFound
	}
	t.ArtifactsJSON = appendJSONArray(t.ArtifactsJSON, artifact)
	return nil
}

func (f *fakeA2ATaskStore) AppendHistory(ctx context.Context, taskID string, entry json.RawMessage) error {
	t, ok := f.rows[taskID]
	if !ok {
		return store.ErrA2ATaskNotFound
	}
	t.HistoryJSON = appendJSONArray(t.HistoryJSON, entry)
	return nil
}

func appendJSONArray(arr json.RawMessage, entry json.RawMessage) json.RawMessage {
	var items []json.RawMessage
	if len(arr) > 0 {
		_ = json.Unmarshal(arr, &items)
	}
	items = append(items, entry)
	out, _ := json.Marshal(items)
	return out
}

type fakeTurnRunner struct {
	replyText string
	err       error
	lastReq   TurnRequest
}

func (f *fakeTurnRunner) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &TurnResult{Reply: a2aprotocol.Message{
		Role:      "agent",
		Parts:     []a2aprotocol.Part{a2aprotocol.TextPart(f.replyText)},
		MessageID: store.NewID(),
		TaskID:    req.ConversationID,
	}}, nil
}

func newTestService(runner TurnRunner) (*Service, *fakeA2ATaskStore) {
	tasks := newFakeA2ATaskStore()
	cfg := &config.Config{Profiles: map[string]config.ProcessingProfile{
		"default": {Name: "Default", Description: "general purpose", ExposeAsSkill: true},
		"hidden":  {Name: "Hidden", ExposeAsSkill: false},
	}}
	return NewService(tasks, runner, cfg, "http://localhost:8090"), tasks
}

func TestService_AgentCard_OnlyExposedSkills(t *testing.T) {
	svc, _ := newTestService(&fakeTurnRunner{replyText: "hi"})
	card := svc.AgentCard()
	if len(card.Skills) != 1 {
		t.Fatalf("skills = %d, want 1", len(card.Skills))
	}
	if card.Skills[0].ID != "default" {
		t.Errorf("skill id = %q, want default", card.Skills[0].ID)
	}
	if !card.Capabilities.Streaming {
		t.Error("expected streaming capability to be advertised")
	}
}

func TestService_SendMessage_CompletesTask(t *testing.T) {
	runner := &fakeTurnRunner{replyText: "done"}
	svc, tasks := newTestService(runner)

	params := a2aprotocol.MessageSendParams{
		Message: a2aprotocol.Message{
			Role:      "user",
			Parts:     []a2aprotocol.Part{a2aprotocol.TextPart("hello")},
			MessageID: store.NewID(),
		},
		ProfileID: "default",
	}
	task, err := svc.SendMessage(context.Background(), params)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if task.Status != string(store.A2ACompleted) {
		t.Errorf("status = %q, want completed", task.Status)
	}
	if len(task.Messages) != 2 {
		t.Fatalf("history = %d entries, want 2 (user + agent)", len(task.Messages))
	}
	if task.Messages[1].Parts[0].Text != "done" {
		t.Errorf("reply text = %q, want done", task.Messages[1].Parts[0].Text)
	}
	if _, ok := tasks.rows[task.TaskID]; !ok {
		t.Fatal("expected the task to be persisted in the store")
	}
}

func TestService_SendMessage_TurnFailureMarksFailed(t *testing.T) {
	runner := &fakeTurnRunner{err: context.DeadlineExceeded}
	svc, _ := newTestService(runner)

	params := a2aprotocol.MessageSendParams{
		Message: a2aprotocol.Message{Role: "user", Parts: []a2aprotocol.Part{a2aprotocol.TextPart("hi")}, MessageID: store.NewID()},
	}
	task, err := svc.SendMessage(context.Background(), params)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if task.Status != string(store.A2AFailed) {
		t.Errorf("status = %q, want failed", task.Status)
	}
}

func TestService_CancelTask(t *testing.T) {
	svc, tasks := newTestService(&fakeTurnRunner{replyText: "x"})
	tasks.rows["t1"] = &store.A2ATask{TaskID: "t1", Status: store.A2AWorking}

	task, err := svc.CancelTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CancelTask() error = %v", err)
	}
	if task.Status != string(store.A2ACanceled) {
		t.Errorf("status = %q, want canceled", task.Status)
	}
}

func TestService_CancelTask_TerminalRejected(t *testing.T) {
	svc, tasks := newTestService(&fakeTurnRunner{replyText: "x"})
	tasks.rows["t1"] = &store.A2ATask{TaskID: "t1", Status: store.A2ACompleted}

	_, err := svc.CancelTask(context.Background(), "t1")
	if err != ErrNotCancelable {
		t.Errorf("error = %v, want ErrNotCancelable", err)
	}
}

func TestService_GetTask_NotFound(t *testing.T) {
	svc, _ := newTestService(&fakeTurnRunner{})
	_, err := svc.GetTask(context.Background(), "missing")
	if err != store.ErrA2ATaskNotFound {
		t.Errorf("error = %v, want ErrA2ATaskNotFound", err)
	}
}
