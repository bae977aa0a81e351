package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/familyassistant/core/internal/config"
)

// Renderer turns a tool call's arguments into a short human-readable
// description shown in a confirmation prompt ("run `rm -rf /tmp/x`?").
type Renderer func(args map[string]any) string

// ConfirmingProvider decorates another Provider, requiring an explicit
// go-ahead through ExecutionContext.Confirm before executing any tool
// named in its gated set — grounded on the teacher's ExecApprovalCfg
// (security/ask/allowlist), generalized here to this spec's domain-neutral
// tool set.
type ConfirmingProvider struct {
	inner     Provider
	gated     map[string]bool
	renderers map[string]Renderer
	allowlist map[string]bool
	cfg       config.ExecApprovalCfg
	timeout   time.Duration
}

func NewConfirmingProvider(inner Provider, cfg config.ExecApprovalCfg, timeout time.Duration) *ConfirmingProvider {
	allow := make(map[string]bool, len(cfg.Allowlist))
	for _, a := range cfg.Allowlist {
		allow[a] = true
	}
	return &ConfirmingProvider{
		inner:     inner,
		gated:     make(map[string]bool),
		renderers: make(map[string]Renderer),
		allowlist: allow,
		cfg:       cfg,
		timeout:   timeout,
	}
}

// Gate marks name as requiring confirmation, with an optional renderer for
// the prompt text (falls back to a generic "run %s?" if nil).
func (c *ConfirmingProvider) Gate(name string, r Renderer) {
	c.gated[name] = true
	if r != nil {
		c.renderers[name] = r
	}
}

func (c *ConfirmingProvider) List() []string { return c.inner.List() }

func (c *ConfirmingProvider) Describe(name string) (ToolDefinition, bool) {
	return c.inner.Describe(name)
}

func (c *ConfirmingProvider) Execute(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
	if c.requiresConfirmation(name) {
		if ec == nil || ec.Confirm == nil {
			return ErrorResult(fmt.Sprintf("tool %q requires confirmation but no confirmation channel is available", name)), nil
		}

		rendered := fmt.Sprintf("run %s?", name)
		if r, ok := c.renderers[name]; ok {
			rendered = r(args)
		}

		confirmCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		ok, err := ec.Confirm.RequestConfirmation(confirmCtx, name, rendered)
		if err != nil {
			return ErrorResult(fmt.Sprintf("confirmation failed for %s: %v", name, err)), nil
		}
		if !ok {
			return ErrorResult(fmt.Sprintf("tool %q was not confirmed", name)), nil
		}
	}
	return c.inner.Execute(ctx, ec, name, args)
}

// requiresConfirmation applies the teacher's security/ask precedence:
// security=deny blocks a gated tool outright is handled upstream by the
// policy engine, so here we only decide whether to prompt. ask=always
// prompts for every gated tool; ask=on-miss prompts only when the tool
// isn't on the allowlist; ask=off never prompts.
func (c *ConfirmingProvider) requiresConfirmation(name string) bool {
	if !c.gated[name] {
		return false
	}
	switch c.cfg.Ask {
	case "always":
		return true
	case "on-miss":
		return !c.allowlist[name]
	default:
		return false
	}
}
