package orchestrator

import (
	"context"
	"testing"

	"github.com/familyassistant/core/internal/a2a"
	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/providers"
	"github.com/familyassistant/core/internal/tools"
	"github.com/familyassistant/core/pkg/a2aprotocol"
)

// stubProvider is a scripted providers.Provider: each call to Chat returns
// the next entry in responses, so tests can script multi-iteration turns
// (tool call, then a final reply).
type stubProvider struct {
	responses []*providers.ChatResponse
	calls     int
	lastReq   providers.ChatRequest
}

func (p *stubProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.lastReq = req
	resp := p.responses[p.calls]
	if p.calls < len(p.responses)-1 {
		p.calls++
	}
	return resp, nil
}

func (p *stubProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *stubProvider) DefaultModel() string { return "stub-model" }
func (p *stubProvider) Name() string         { return "stub" }

func newTurn(t *testing.T, provider providers.Provider, reg *tools.Registry) *Turn {
	t.Helper()
	return New(Config{
		Provider: provider,
		Model:    "stub-model",
		Tools:    reg,
		History:  NewMemoryHistoryStore(),
	})
}

func TestTurn_Run_NoToolCalls_ReturnsContent(t *testing.T) {
	provider := &stubProvider{responses: []*providers.ChatResponse{
		{Content: "hello there"},
	}}
	turn := newTurn(t, provider, tools.NewRegistry())

	reply, err := turn.Run(context.Background(), RunRequest{ConversationID: "c1", UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q, want %q", reply, "hello there")
	}
}

func TestTurn_Run_PersistsHistoryAcrossTurns(t *testing.T) {
	provider := &stubProvider{responses: []*providers.ChatResponse{
		{Content: "first reply"},
		{Content: "second reply"},
	}}
	turn := newTurn(t, provider, tools.NewRegistry())

	if _, err := turn.Run(context.Background(), RunRequest{ConversationID: "c1", UserMessage: "one"}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := turn.Run(context.Background(), RunRequest{ConversationID: "c1", UserMessage: "two"}); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	hist := turn.cfg.History.Get("c1")
	if len(hist) != 4 {
		t.Fatalf("history length = %d, want 4 (2 user + 2 assistant)", len(hist))
	}
	if hist[0].Content != "one" || hist[2].Content != "two" {
		t.Errorf("history = %+v", hist)
	}
}

func TestTurn_Run_ExecutesToolCallThenReturnsFinalContent(t *testing.T) {
	reg := tools.NewRegistry()
	_ = reg.Register(tools.Tool{
		Name: "get_weather",
		Handler: func(ctx context.Context, ec *tools.ExecutionContext, args map[string]any) (*tools.Result, error) {
			return tools.NewResult("sunny"), nil
		},
	})

	provider := &stubProvider{responses: []*providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "call1", Name: "get_weather", Arguments: map[string]interface{}{}}}},
		{Content: "it's sunny today"},
	}}
	turn := newTurn(t, provider, reg)

	reply, err := turn.Run(context.Background(), RunRequest{ConversationID: "c1", UserMessage: "weather?"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reply != "it's sunny today" {
		t.Errorf("reply = %q", reply)
	}
	if provider.calls == 0 {
		t.Error("expected the provider to advance past its first scripted response")
	}
}

func TestTurn_Run_CriticalLoopStopsEarly(t *testing.T) {
	reg := tools.NewRegistry()
	_ = reg.Register(tools.Tool{
		Name: "loop_tool",
		Handler: func(ctx context.Context, ec *tools.ExecutionContext, args map[string]any) (*tools.Result, error) {
			return tools.NewResult("same result"), nil
		},
	})

	call := providers.ToolCall{ID: "x", Name: "loop_tool", Arguments: map[string]interface{}{"k": "v"}}
	resp := &providers.ChatResponse{ToolCalls: []providers.ToolCall{call}}
	provider := &stubProvider{responses: []*providers.ChatResponse{resp}}

	turn := New(Config{
		Provider:      provider,
		Model:         "stub-model",
		Tools:         reg,
		History:       NewMemoryHistoryStore(),
		MaxIterations: 20,
	})

	reply, err := turn.Run(context.Background(), RunRequest{ConversationID: "c1", UserMessage: "loop please"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reply == "" {
		t.Error("expected a non-empty bail-out message once the loop guard trips")
	}
}

func TestRunner_Run_ConvertsPartsAndWritesReplyAsTextPart(t *testing.T) {
	provider := &stubProvider{responses: []*providers.ChatResponse{{Content: "answer"}}}
	turn := newTurn(t, provider, tools.NewRegistry())
	profiles := NewProfileResolver(map[string]config.ProcessingProfile{
		"default": {SystemPrompt: "be helpful", Model: "stub-model"},
	})
	runner := NewRunner(turn, profiles)

	result, err := runner.Run(context.Background(), a2a.TurnRequest{
		ConversationID: "conv1",
		ContextID:      "ctx1",
		ProfileID:      "default",
		TriggerParts:   []a2aprotocol.Part{a2aprotocol.TextPart("question")},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Reply.Parts) != 1 || result.Reply.Parts[0].Text != "answer" {
		t.Errorf("Reply.Parts = %+v", result.Reply.Parts)
	}
	if result.Reply.ContextID != "ctx1" {
		t.Errorf("ContextID = %q", result.Reply.ContextID)
	}
}

func TestPartsToMessage_SeparatesTextAndImages(t *testing.T) {
	parts := []a2aprotocol.Part{
		a2aprotocol.TextPart("line one"),
		a2aprotocol.DataPart("image/png", []byte("fakepng")),
	}
	text, images := partsToMessage(parts)
	if text != "line one" {
		t.Errorf("text = %q", text)
	}
	if len(images) != 1 || images[0].MimeType != "image/png" {
		t.Errorf("images = %+v", images)
	}
}
