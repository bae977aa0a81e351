package tools

import (
	"context"
	"testing"

	"github.com/familyassistant/core/internal/config"
)

func registryWith(names ...string) *Registry {
	r := NewRegistry()
	for _, n := range names {
		_ = r.Register(Tool{Name: n, Handler: func(ctx context.Context, ec *ExecutionContext, args map[string]any) (*Result, error) {
			return nil, nil
		}})
	}
	return r
}

func TestPolicyEngine_NoRestriction(t *testing.T) {
	r := registryWith("web_search", "web_fetch", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{})
	defs := pe.FilterTools(r, "anthropic", nil)
	if len(defs) != 3 {
		t.Fatalf("FilterTools() = %d defs, want 3", len(defs))
	}
}

func TestPolicyEngine_Profile_Minimal(t *testing.T) {
	r := registryWith("web_search", "attachment_get", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "minimal"})
	defs := pe.FilterTools(r, "anthropic", nil)
	if len(defs) != 1 || defs[0].Function.Name != "attachment_get" {
		t.Fatalf("FilterTools() = %+v, want only attachment_get", defs)
	}
}

func TestPolicyEngine_GlobalAllowIntersects(t *testing.T) {
	r := registryWith("web_search", "web_fetch", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{Allow: []string{"web_search"}})
	if !pe.Allows(r, "anthropic", nil, "web_search") {
		t.Error("expected web_search to be allowed")
	}
	if pe.Allows(r, "anthropic", nil, "send_message") {
		t.Error("expected send_message to be denied by the allow list")
	}
}

func TestPolicyEngine_GlobalDenySubtracts(t *testing.T) {
	r := registryWith("web_search", "web_fetch")
	pe := NewPolicyEngine(&config.ToolsConfig{Deny: []string{"web_fetch"}})
	if pe.Allows(r, "anthropic", nil, "web_fetch") {
		t.Error("expected web_fetch to be denied")
	}
	if !pe.Allows(r, "anthropic", nil, "web_search") {
		t.Error("expected web_search to remain allowed")
	}
}

func TestPolicyEngine_GroupExpansion(t *testing.T) {
	r := registryWith("web_search", "web_fetch", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{Allow: []string{"group:web"}})
	if !pe.Allows(r, "anthropic", nil, "web_search") || !pe.Allows(r, "anthropic", nil, "web_fetch") {
		t.Error("expected both web group members to be allowed")
	}
	if pe.Allows(r, "anthropic", nil, "send_message") {
		t.Error("expected send_message outside the group to be denied")
	}
}

func TestPolicyEngine_ProviderOverride(t *testing.T) {
	r := registryWith("web_search", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{
		Allow: []string{"web_search", "send_message"},
		ByProvider: map[string]*config.ToolPolicySpec{
			"openai": {Allow: []string{"send_message"}},
		},
	})
	if !pe.Allows(r, "anthropic", nil, "web_search") {
		t.Error("expected anthropic to keep the global allow set")
	}
	if pe.Allows(r, "openai", nil, "web_search") {
		t.Error("expected openai's narrower override to exclude web_search")
	}
	if !pe.Allows(r, "openai", nil, "send_message") {
		t.Error("expected openai to retain send_message")
	}
}

func TestPolicyEngine_ScopedAllowAndDeny(t *testing.T) {
	r := registryWith("web_search", "web_fetch", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{})
	scoped := &config.ToolPolicySpec{Allow: []string{"group:web"}, Deny: []string{"web_fetch"}}
	if !pe.Allows(r, "anthropic", scoped, "web_search") {
		t.Error("expected web_search to survive scoped allow")
	}
	if pe.Allows(r, "anthropic", scoped, "web_fetch") {
		t.Error("expected scoped deny to remove web_fetch")
	}
	if pe.Allows(r, "anthropic", scoped, "send_message") {
		t.Error("expected send_message outside scoped allow to be denied")
	}
}

func TestPolicyEngine_AlsoAllowIsAdditive(t *testing.T) {
	r := registryWith("web_search", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{Allow: []string{"web_search"}, AlsoAllow: []string{"send_message"}})
	if !pe.Allows(r, "anthropic", nil, "web_search") {
		t.Error("expected web_search to be allowed")
	}
	if !pe.Allows(r, "anthropic", nil, "send_message") {
		t.Error("expected alsoAllow to reinstate send_message despite the narrower allow list")
	}
}

func TestPolicyEngine_UnknownProfileFallsBackToFull(t *testing.T) {
	r := registryWith("web_search", "send_message")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "nonexistent"})
	defs := pe.FilterTools(r, "anthropic", nil)
	if len(defs) != 2 {
		t.Fatalf("FilterTools() = %d, want 2 (unknown profile falls back to full)", len(defs))
	}
}

func TestRegisterAndUnregisterToolGroup(t *testing.T) {
	r := registryWith("custom_a", "custom_b")
	RegisterToolGroup("custom", []string{"custom_a", "custom_b"})
	defer UnregisterToolGroup("custom")

	pe := NewPolicyEngine(&config.ToolsConfig{Allow: []string{"group:custom"}})
	if !pe.Allows(r, "anthropic", nil, "custom_a") || !pe.Allows(r, "anthropic", nil, "custom_b") {
		t.Error("expected dynamically registered group members to be allowed")
	}
}
