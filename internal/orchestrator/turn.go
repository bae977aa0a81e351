package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/familyassistant/core/internal/a2a"
	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/metrics"
	"github.com/familyassistant/core/internal/providers"
	"github.com/familyassistant/core/internal/telemetry"
	"github.com/familyassistant/core/internal/tools"
	"github.com/familyassistant/core/pkg/a2aprotocol"
)

// ProfileResolver looks up a named processing profile, so Turn can apply
// its system prompt, model override, and tool allow-set per request
// without depending on config.Config's full shape at call time.
type ProfileResolver interface {
	Profile(id string) (config.ProcessingProfile, bool)
}

// staticProfiles is a ProfileResolver backed by a fixed map, typically
// config.Config.Profiles.
type staticProfiles map[string]config.ProcessingProfile

func (p staticProfiles) Profile(id string) (config.ProcessingProfile, bool) {
	prof, ok := p[id]
	return prof, ok
}

// NewProfileResolver adapts a config.Config's Profiles map.
func NewProfileResolver(profiles map[string]config.ProcessingProfile) ProfileResolver {
	return staticProfiles(profiles)
}

// Runner adapts Turn to a2a.TurnRunner, resolving a per-request
// config.ProcessingProfile before delegating to Turn.Run.
type Runner struct {
	turn     *Turn
	profiles ProfileResolver
}

// NewRunner builds an a2a.TurnRunner backed by turn and profiles.
func NewRunner(turn *Turn, profiles ProfileResolver) *Runner {
	return &Runner{turn: turn, profiles: profiles}
}

var _ a2a.TurnRunner = (*Runner)(nil)

// Run implements a2a.TurnRunner.
func (r *Runner) Run(ctx context.Context, req a2a.TurnRequest) (*a2a.TurnResult, error) {
	profile, ok := r.profiles.Profile(req.ProfileID)
	if !ok {
		slog.Debug("orchestrator: unknown profile, using turn defaults", "profile", req.ProfileID)
	}

	userMsg, images := partsToMessage(req.TriggerParts)

	reply, err := r.turn.Run(ctx, RunRequest{
		ConversationID: conversationKey(req),
		ProfileID:      req.ProfileID,
		SystemPrompt:   profile.SystemPrompt,
		Model:          profile.Model,
		ToolPolicy:     profile.Tools,
		UserMessage:    userMsg,
		Images:         images,
	})
	if err != nil {
		return nil, err
	}

	return &a2a.TurnResult{
		Reply: a2aprotocol.Message{
			Role:      "agent",
			Parts:     []a2aprotocol.Part{a2aprotocol.TextPart(reply)},
			TaskID:    req.ConversationID,
			ContextID: req.ContextID,
		},
	}, nil
}

func conversationKey(req a2a.TurnRequest) string {
	if req.ContextID != "" {
		return req.ContextID
	}
	return req.ConversationID
}

// partsToMessage flattens A2A message parts into a single text prompt plus
// any attached images (DataParts with an image/* MIME type).
func partsToMessage(parts []a2aprotocol.Part) (string, []providers.ImageContent) {
	var text string
	var images []providers.ImageContent
	for _, p := range parts {
		switch p.Kind {
		case "text":
			if text != "" {
				text += "\n"
			}
			text += p.Text
		case "data":
			if len(p.MimeType) >= 6 && p.MimeType[:6] == "image/" {
				images = append(images, providers.ImageContent{MimeType: p.MimeType, Data: p.Data})
			}
		}
	}
	return text, images
}

// RunRequest is Turn's transport-agnostic input: one user message plus
// per-call overrides (profile system prompt, model, tool policy).
type RunRequest struct {
	ConversationID string
	ProfileID      string
	SystemPrompt   string
	Model          string
	ToolPolicy     config.ToolPolicySpec
	UserMessage    string
	Images         []providers.ImageContent
}

// Run executes one turn: assemble the window, call the provider, execute
// any requested tools, and repeat until the model stops calling tools or
// MaxIterations is hit. Returns the final assistant text.
func (t *Turn) Run(ctx context.Context, req RunRequest) (string, error) {
	ctx, span := telemetry.Tracer("familyassistant/orchestrator").Start(ctx, "turn.run",
		trace.WithAttributes(attribute.String("conversation_id", req.ConversationID)))
	defer span.End()
	start := time.Now()
	outcome := "ok"
	defer func() { metrics.RecordTurn(outcome, time.Since(start)) }()

	model := req.Model
	if model == "" {
		model = t.cfg.Model
	}

	userMessage := req.UserMessage
	if len(userMessage) > t.cfg.MaxMessageChars {
		userMessage = userMessage[:t.cfg.MaxMessageChars] +
			fmt.Sprintf("\n\n[Message truncated to %d characters.]", t.cfg.MaxMessageChars)
	}

	messages := t.buildWindow(req.ConversationID, req.SystemPrompt)
	messages = append(messages, providers.Message{Role: "user", Content: userMessage})
	attachImagesIfSupported(t.cfg.Provider, messages, req.Images)

	ec := &tools.ExecutionContext{ConversationID: req.ConversationID}

	var toolDefs []providers.ToolDefinition
	if t.cfg.ToolPolicy != nil && t.cfg.Tools != nil {
		toolDefs = t.cfg.ToolPolicy.FilterTools(t.cfg.Tools, t.cfg.Provider.Name(), &req.ToolPolicy)
	} else if t.cfg.Tools != nil {
		toolDefs = tools.AllDefs(t.cfg.Tools)
	}

	guard := newLoopGuard()
	var final string
	iteration := 0

	for iteration < t.cfg.MaxIterations {
		iteration++

		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
			Model:    model,
			Options: map[string]interface{}{
				providers.OptMaxTokens:   8192,
				providers.OptTemperature: 0.7,
			},
		}
		if t.cfg.ThinkingLevel != "" && t.cfg.ThinkingLevel != "off" {
			if tc, ok := t.cfg.Provider.(providers.ThinkingCapable); ok && tc.SupportsThinking() {
				chatReq.Options[providers.OptThinkingLevel] = t.cfg.ThinkingLevel
			}
		}

		resp, err := t.cfg.Provider.Chat(ctx, chatReq)
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			return "", fmt.Errorf("orchestrator: llm call failed (iteration %d): %w", iteration, err)
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		assistantMsg := providers.Message{
			Role:                 "assistant",
			Content:              resp.Content,
			ToolCalls:            resp.ToolCalls,
			RawAssistantContent:  resp.RawAssistantContent,
		}
		messages = append(messages, assistantMsg)

		toolMsgs := t.runToolCalls(ctx, ec, resp.ToolCalls, guard, func(Event) {})

		stuck := false
		for _, tc := range resp.ToolCalls {
			hash := hashCall(tc.Name, tc.Arguments)
			if level, msg := guard.detect(tc.Name, hash); level == "critical" {
				final = "I got stuck repeatedly calling " + tc.Name + " without making progress. Please rephrase your request."
				outcome = "stuck"
				stuck = true
				break
			} else if level == "warning" {
				messages = append(messages, providers.Message{Role: "user", Content: msg})
			}
		}
		messages = append(messages, toolMsgs...)
		if stuck {
			break
		}
	}

	if final == "" {
		final = "..."
	}

	t.cfg.History.Append(req.ConversationID,
		providers.Message{Role: "user", Content: userMessage},
		providers.Message{Role: "assistant", Content: final},
	)

	return final, nil
}

func (t *Turn) buildWindow(conversationID, systemPrompt string) []providers.Message {
	var messages []providers.Message
	prompt := systemPrompt
	if prompt == "" {
		prompt = t.cfg.SystemPrompt
	}
	if prompt != "" {
		messages = append(messages, providers.Message{Role: "system", Content: prompt})
	}
	messages = append(messages, t.cfg.History.Get(conversationID)...)
	return messages
}
