// Package a2a implements the §6.5 external agent-protocol server: a
// JSON-RPC 2.0 + SSE endpoint that lets other agents discover this
// assistant's skills and drive conversational turns against it.
package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/pkg/a2aprotocol"
)

// TurnRequest carries the §4.1 orchestrator input shape, adapted for A2A
// callers: a profile-routed message from an external agent rather than a
// channel interface.
type TurnRequest struct {
	ConversationID    string
	ContextID         string
	ProfileID         string
	TriggerParts      []a2aprotocol.Part
	TriggerMessageID  string
	UserName          string
	UserID            string
}

// TurnResult is what a completed turn hands back to the A2A layer.
type TurnResult struct {
	Reply a2aprotocol.Message
}

// TurnRunner executes one orchestrator turn. It is implemented by
// orchestrator.Runner; defined here as a narrow interface so this package
// carries no hard dependency on the orchestrator's construction.
type TurnRunner interface {
	Run(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// Service implements the A2A operations against a TurnRunner and the A2A
// task mirror, independent of the HTTP/JSON-RPC transport.
type Service struct {
	tasks  store.A2ATaskStore
	runner TurnRunner
	cfg    *config.Config
	url    string
}

func NewService(tasks store.A2ATaskStore, runner TurnRunner, cfg *config.Config, publicURL string) *Service {
	return &Service{tasks: tasks, runner: runner, cfg: cfg, url: publicURL}
}

// AgentCard derives the agent card from the configured processing profiles
// flagged ExposeAsSkill (§6.1).
func (s *Service) AgentCard() a2aprotocol.AgentCard {
	var skills []a2aprotocol.AgentSkill
	ids := make([]string, 0, len(s.cfg.Profiles))
	for id := range s.cfg.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := s.cfg.Profiles[id]
		if !p.ExposeAsSkill {
			continue
		}
		in, out := p.InputModes, p.OutputModes
		if len(in) == 0 {
			in = []string{"text/plain"}
		}
		if len(out) == 0 {
			out = []string{"text/plain"}
		}
		skills = append(skills, a2aprotocol.AgentSkill{
			ID: id, Name: p.Name, Description: p.Description,
			Tags: p.Tags, InputModes: in, OutputModes: out,
		})
	}
	return a2aprotocol.AgentCard{
		Name:        "familyassistant",
		Description: "A personal household assistant reachable over the agent-to-agent protocol.",
		URL:         s.url,
		Version:     "1.0",
		Capabilities: a2aprotocol.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      false,
			StateTransitionHistory: true,
		},
		Skills:             skills,
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
	}
}

// SendMessage creates (or continues) a task, runs one orchestrator turn
// synchronously, and returns the completed task.
func (s *Service) SendMessage(ctx context.Context, params a2aprotocol.MessageSendParams) (*a2aprotocol.Task, error) {
	taskID := params.Message.TaskID
	contextID := params.Message.ContextID
	if taskID == "" {
		taskID = store.NewID()
	}
	if contextID == "" {
		contextID = store.NewID()
	}

	conversationID := contextID
	t := &store.A2ATask{
		TaskID:         taskID,
		ProfileID:      params.ProfileID,
		ConversationID: conversationID,
		ContextID:      contextID,
		Status:         store.A2ASubmitted,
	}
	if existing, err := s.tasks.Get(ctx, taskID); err == nil && existing != nil {
		t = existing
	} else if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	if err := s.appendMessage(ctx, taskID, params.Message); err != nil {
		return nil, err
	}
	if err := s.tasks.UpdateStatus(ctx, taskID, store.A2AWorking); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	result, err := s.runner.Run(ctx, TurnRequest{
		ConversationID:   conversationID,
		ContextID:        contextID,
		ProfileID:        params.ProfileID,
		TriggerParts:     params.Message.Parts,
		TriggerMessageID: params.Message.MessageID,
	})
	if err != nil {
		slog.Error("a2a.turn_failed", "task_id", taskID, "error", err)
		_ = s.tasks.UpdateStatus(ctx, taskID, store.A2AFailed)
		return s.loadWireTask(ctx, taskID)
	}

	if err := s.appendMessage(ctx, taskID, result.Reply); err != nil {
		return nil, err
	}
	if err := s.tasks.UpdateStatus(ctx, taskID, store.A2ACompleted); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return s.loadWireTask(ctx, taskID)
}

func (s *Service) appendMessage(ctx context.Context, taskID string, msg a2aprotocol.Message) error {
	entry, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	if err := s.tasks.AppendHistory(ctx, taskID, entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// GetTask returns a task as known to the A2A mirror.
func (s *Service) GetTask(ctx context.Context, taskID string) (*a2aprotocol.Task, error) {
	return s.loadWireTask(ctx, taskID)
}

func (s *Service) loadWireTask(ctx context.Context, taskID string) (*a2aprotocol.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return toWireTask(t), nil
}

// CancelTask marks a task canceled, unless it has already reached a
// terminal state.
func (s *Service) CancelTask(ctx context.Context, taskID string) (*a2aprotocol.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == store.A2ACompleted || t.Status == store.A2AFailed || t.Status == store.A2ACanceled {
		return nil, ErrNotCancelable
	}
	if err := s.tasks.UpdateStatus(ctx, taskID, store.A2ACanceled); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return s.loadWireTask(ctx, taskID)
}

func toWireTask(t *store.A2ATask) *a2aprotocol.Task {
	wt := &a2aprotocol.Task{
		TaskID:    t.TaskID,
		ContextID: t.ContextID,
		Status:    string(t.Status),
	}
	if len(t.HistoryJSON) > 0 {
		var raw []json.RawMessage
		if err := json.Unmarshal(t.HistoryJSON, &raw); err == nil {
			for _, r := range raw {
				var m a2aprotocol.Message
				if err := json.Unmarshal(r, &m); err == nil {
					wt.Messages = append(wt.Messages, m)
				}
			}
		}
	}
	if len(t.ArtifactsJSON) > 0 {
		var raw []json.RawMessage
		if err := json.Unmarshal(t.ArtifactsJSON, &raw); err == nil {
			for _, r := range raw {
				var a a2aprotocol.Artifact
				if err := json.Unmarshal(r, &a); err == nil {
					wt.Artifacts = append(wt.Artifacts, a)
				}
			}
		}
	}
	return wt
}
