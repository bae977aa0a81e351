package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/familyassistant/core/internal/attachments"
	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/queue"
	"github.com/familyassistant/core/internal/sandbox"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/internal/tools"
)

// BuildSandboxPolicy derives a sandbox.Policy from the same
// tools.PolicyEngine pipeline the provider-facing tool list uses, so a
// script's allowed_tools never exceeds what its owning automation's
// scoped policy (or the global policy) would already permit. denyAllTools
// comes from the automation's own config (§4.6's deny_all_tools flag) and
// always wins regardless of what the policy engine allows.
func BuildSandboxPolicy(pe *tools.PolicyEngine, provider tools.Provider, providerName string, scoped *config.ToolPolicySpec, denyAllTools bool) sandbox.Policy {
	if denyAllTools {
		return sandbox.Policy{DenyAllTools: true}
	}
	var allowed []string
	for _, name := range provider.List() {
		if pe.Allows(provider, providerName, scoped, name) {
			allowed = append(allowed, name)
		}
	}
	if len(allowed) == 0 {
		return sandbox.Policy{DenyAllTools: true}
	}
	return sandbox.Policy{AllowedTools: allowed}
}

// SandboxHost implements sandbox.Host by proxying into the same
// tools.Provider + tools.ExecutionContext the orchestrator's tool loop
// uses, and into the attachment registry and queue for the Attachment and
// Wake APIs — so a condition_script or script_code body reaches the exact
// same tool surface (and the exact same policy gate) a turn's LLM does,
// per §4.6's design note that sandbox policy is enforced once in
// tools.PolicyEngine, not reimplemented here.
type SandboxHost struct {
	Tools       tools.Provider
	Attachments *attachments.Registry
	Queue       *queue.Queue
	ExecCtx     *tools.ExecutionContext
}

func NewSandboxHost(toolsProvider tools.Provider, attachmentsReg *attachments.Registry, q *queue.Queue, ec *tools.ExecutionContext) *SandboxHost {
	return &SandboxHost{Tools: toolsProvider, Attachments: attachmentsReg, Queue: q, ExecCtx: ec}
}

func (h *SandboxHost) ToolsList(ctx context.Context) ([]map[string]any, error) {
	names := h.Tools.List()
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		def, ok := h.Tools.Describe(n)
		if !ok {
			continue
		}
		out = append(out, toolDefToMap(def))
	}
	return out, nil
}

func (h *SandboxHost) ToolsGet(ctx context.Context, name string) (map[string]any, error) {
	def, ok := h.Tools.Describe(name)
	if !ok {
		return nil, tools.ErrToolNotFound
	}
	return toolDefToMap(def), nil
}

func (h *SandboxHost) ToolsExecute(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := h.Tools.Execute(ctx, h.ExecCtx, name, args)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", fmt.Errorf("%s", res.ForLLM)
	}
	return res.ForLLM, nil
}

// ToolsExecuteJSON behaves like ToolsExecute but attempts to parse the
// tool's textual result as JSON, falling back to the raw string when it
// isn't — scripts calling a tool that returns structured data (e.g. a
// documents_search hit list) want the parsed form, not a string to
// re-parse themselves.
func (h *SandboxHost) ToolsExecuteJSON(ctx context.Context, name string, args map[string]any) (any, error) {
	text, err := h.ToolsExecute(ctx, name, args)
	if err != nil {
		return nil, err
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return text, nil
	}
	return parsed, nil
}

func (h *SandboxHost) AttachmentGet(ctx context.Context, id string) (map[string]any, error) {
	a, _, err := h.Attachments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"attachment_id": a.AttachmentID,
		"source_type":   string(a.SourceType),
		"source_id":     a.SourceID,
		"mime_type":     a.MimeType,
		"description":   a.Description,
		"size":          a.Size,
	}, nil
}

// WakeLLM enqueues a TaskTypeWakeLLM task, mirroring the same payload
// shape internal/queue/payload.go defines for the §4.2 hook-only
// recurrence path — a script's wake_llm() call and an automation's
// schedule/event hook both resolve to the same queued task type, so the
// worker's dispatch table handles them identically.
func (h *SandboxHost) WakeLLM(ctx context.Context, promptContext string, includeEvent bool) error {
	conversationID, _ := ctx.Value(conversationIDKey{}).(string)
	if conversationID == "" && h.ExecCtx != nil {
		conversationID = h.ExecCtx.ConversationID
	}
	payload, err := queue.ToPayload(queue.WakeLLMPayload{
		ConversationID: conversationID,
		Prompt:         promptContext,
		IncludeEvent:   includeEvent,
	})
	if err != nil {
		return fmt.Errorf("build wake_llm payload: %w", err)
	}
	_, err = h.Queue.Enqueue(ctx, &store.Task{
		TaskID:      store.NewID(),
		TaskType:    queue.TaskTypeWakeLLM,
		Payload:     payload,
		Status:      store.TaskPending,
		ScheduledAt: store.Now(),
		CreatedAt:   store.Now(),
		MaxRetries:  3,
	})
	return err
}

// conversationIDKey lets a caller thread the owning conversation through
// context when ExecCtx itself doesn't carry one (e.g. a condition_script
// evaluated outside a live tool-loop turn).
type conversationIDKey struct{}

func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationIDKey{}, conversationID)
}

func toolDefToMap(def tools.ToolDefinition) map[string]any {
	return map[string]any{
		"name":        def.Function.Name,
		"description": def.Function.Description,
		"parameters":  def.Function.Parameters,
	}
}
