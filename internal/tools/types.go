// Package tools implements the §4.5 tool provider chain: a local registry,
// a remote MCP provider, composed through a fallthrough CompositeProvider,
// decorated with a confirmation gate, and filtered by a policy engine. The
// shapes here are adapted from the teacher's internal/tools package,
// trimmed of the channel/vision/subagent dimensions that don't apply to
// this domain (see DESIGN.md).
package tools

import (
	"context"
	"errors"

	"github.com/familyassistant/core/internal/providers"
)

// ErrToolNotFound is returned by a Provider that does not recognize the
// requested tool name, letting CompositeProvider fall through to the next
// provider in the chain.
var ErrToolNotFound = errors.New("tool not found")

// Tool describes one callable tool's schema and handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON Schema object
	Handler     func(ctx context.Context, ec *ExecutionContext, args map[string]any) (*Result, error)
}

// Provider resolves and executes tools. Implemented by Registry (local),
// mcpprovider.Provider (remote), CompositeProvider (fallthrough), and
// ConfirmingProvider (decorator).
type Provider interface {
	// List returns the tool names this provider can resolve.
	List() []string
	// Describe returns the LLM-facing schema for name, or ok=false if this
	// provider does not serve that tool.
	Describe(name string) (ToolDefinition, bool)
	// Execute runs the named tool. Returns ErrToolNotFound if unrecognized.
	Execute(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error)
}

// ToolDefinition mirrors providers.ToolDefinition so packages that only
// need schema shape don't have to import providers directly.
type ToolDefinition = providers.ToolDefinition

// AllDefs returns every tool p can resolve, unfiltered by policy — used
// when no PolicyEngine is configured for a turn. Works for any Provider
// (a plain Registry or a CompositeProvider fanning out to remote tools),
// not just one with direct access to its own handler storage.
func AllDefs(p Provider) []providers.ToolDefinition {
	names := p.List()
	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		if def, ok := p.Describe(name); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// ToProviderDef converts a Tool's schema into the wire shape an LLM
// provider expects.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		},
	}
}

// ExecutionContext carries the per-call capabilities a tool handler may
// need, expressed as small capability-trait interfaces rather than a
// back-reference to a concrete orchestrator type (§6.4) — a handler that
// only needs to ask for confirmation depends on ConfirmationRequester, not
// on the whole turn machinery.
type ExecutionContext struct {
	ConversationID string
	AgentID        string

	Confirm      ConfirmationRequester
	Activity     ActivityUpdater
	Attachments  AttachmentAccessor
}

// ConfirmationRequester is implemented by whatever is driving the current
// turn (normally the orchestrator) to ask a human for go-ahead before a
// gated tool call executes.
type ConfirmationRequester interface {
	RequestConfirmation(ctx context.Context, toolName string, rendered string) (bool, error)
}

// ActivityUpdater lets a long-running tool call stream progress text back
// to the conversation without blocking on a final result.
type ActivityUpdater interface {
	UpdateActivity(ctx context.Context, text string)
}

// AttachmentAccessor exposes read access to attachments for tools that
// need to load one by ID (e.g. a document-ingestion tool).
type AttachmentAccessor interface {
	GetAttachment(ctx context.Context, id string) (any, error)
}
