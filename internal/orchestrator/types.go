// Package orchestrator runs one LLM turn: assembling the message window,
// calling the provider, executing any requested tools, and looping until
// the model stops calling tools or the turn cap is hit.
package orchestrator

import (
	"github.com/familyassistant/core/internal/providers"
	"github.com/familyassistant/core/internal/tools"
)

// EventType tags a streamed Event.
type EventType string

const (
	EventContent  EventType = "content"  // a chunk of assistant text
	EventThinking EventType = "thinking" // a chunk of extended-thinking text
	EventToolCall EventType = "tool_call"
	EventToolDone EventType = "tool_result"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is a progress item (content, tool call, error, done) produced
// inside a turn. Turn.Run passes every Event to a no-op callback: there is
// no streaming Run, and no caller receives Events before the turn completes.
type Event struct {
	Type     EventType
	Content  string
	ToolName string
	ToolID   string
	IsError  bool
	Err      error
}

// Config configures a Turn.
type Config struct {
	Provider      providers.Provider
	Model         string
	ContextWindow int
	MaxIterations int // hard cap on LLM<->tool round trips, default 20

	Tools      tools.Provider
	ToolPolicy *tools.PolicyEngine // optional: filters tools sent to LLM

	History         HistoryStore
	SystemPrompt    string
	MaxMessageChars int // 0 = use default (32000)
	ThinkingLevel   string
}

// Turn runs one conversational turn: build the window, call the provider,
// execute any tool calls, repeat until the model replies without tool
// calls or MaxIterations is reached.
type Turn struct {
	cfg Config
}

// New builds a Turn from cfg, applying defaults for zero-valued fields.
func New(cfg Config) *Turn {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 200000
	}
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = 32000
	}
	if cfg.History == nil {
		cfg.History = NewMemoryHistoryStore()
	}
	return &Turn{cfg: cfg}
}
