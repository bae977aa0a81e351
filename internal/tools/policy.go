package tools

import (
	"log/slog"
	"strings"

	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/providers"
)

// toolGroups maps a group name to its member tool names, referenced from
// config via "group:name" in allow/deny/alsoAllow lists.
var toolGroups = map[string][]string{
	"web":         {"web_search", "web_fetch"},
	"documents":   {"documents_search", "documents_get", "documents_ingest"},
	"attachments": {"attachment_get", "attachment_list"},
	"automation":  {"automation_create", "automation_list", "automation_change_rule"},
	"messaging":   {"send_message", "wake_llm"},
}

// RegisterToolGroup adds or replaces a dynamic tool group — used by the
// MCP provider to register a "mcp:<server>" group per connected remote
// server, so config can allow/deny an entire server at once.
func RegisterToolGroup(name string, members []string) {
	toolGroups[name] = members
}

func UnregisterToolGroup(name string) {
	delete(toolGroups, name)
}

// toolProfiles define preset allow sets, selected via ToolsConfig.Profile.
var toolProfiles = map[string][]string{
	"minimal": {"group:attachments"},
	"assistant": {
		"group:web", "group:documents", "group:attachments",
		"group:automation", "group:messaging",
	},
	"full": {}, // empty = no restriction
}

// PolicyEngine evaluates tool access against layered config policies: a
// global ToolsConfig plus an optional per-scope (per-automation,
// per-conversation) ToolPolicySpec override — kept nearly verbatim from
// the teacher's evaluate() pipeline, with the subagent-specific dimensions
// dropped since this domain has no subagent concept.
type PolicyEngine struct {
	globalPolicy *config.ToolsConfig
}

func NewPolicyEngine(cfg *config.ToolsConfig) *PolicyEngine {
	return &PolicyEngine{globalPolicy: cfg}
}

// FilterTools returns the LLM-facing tool definitions allowed for a given
// provider and scoped policy override. provider is any tools.Provider —
// a plain *Registry or a CompositeProvider fanning out to the local
// registry plus remote (MCP) tools — since policy only needs List/Describe,
// never the registry's internal handler storage.
func (pe *PolicyEngine) FilterTools(
	provider Provider,
	providerName string,
	scopedPolicy *config.ToolPolicySpec,
) []providers.ToolDefinition {
	allTools := provider.List()
	allowed := pe.evaluate(allTools, providerName, scopedPolicy)

	var defs []providers.ToolDefinition
	for _, name := range allowed {
		if def, ok := provider.Describe(name); ok {
			defs = append(defs, def)
		}
	}

	slog.Debug("tool policy applied",
		"provider", providerName,
		"total_tools", len(allTools),
		"allowed", len(defs),
	)

	return defs
}

// Allows reports whether a single tool name survives the policy pipeline —
// used by the script sandbox's Host wiring to gate tools_execute without
// re-running the full FilterTools pass.
func (pe *PolicyEngine) Allows(provider Provider, providerName string, scopedPolicy *config.ToolPolicySpec, name string) bool {
	allowed := pe.evaluate(provider.List(), providerName, scopedPolicy)
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}

// evaluate runs the profile -> allow -> deny -> alsoAllow pipeline.
func (pe *PolicyEngine) evaluate(
	allTools []string,
	providerName string,
	scopedPolicy *config.ToolPolicySpec,
) []string {
	g := pe.globalPolicy

	// Step 1: global profile.
	allowed := pe.applyProfile(allTools, g.Profile)

	// Step 2: provider-level profile override.
	if g.ByProvider != nil {
		if pp, ok := g.ByProvider[providerName]; ok && pp.Profile != "" {
			allowed = pe.applyProfile(allTools, pp.Profile)
		}
	}

	// Step 3: global allow list.
	if len(g.Allow) > 0 {
		allowed = intersectWithSpec(allowed, g.Allow)
	}

	// Step 4: provider-level allow override.
	if g.ByProvider != nil {
		if pp, ok := g.ByProvider[providerName]; ok && len(pp.Allow) > 0 {
			allowed = intersectWithSpec(allowed, pp.Allow)
		}
	}

	// Step 5: scoped (per-automation/per-conversation) allow.
	if scopedPolicy != nil && len(scopedPolicy.Allow) > 0 {
		allowed = intersectWithSpec(allowed, scopedPolicy.Allow)
	}

	// Step 6: scoped per-provider allow.
	if scopedPolicy != nil && scopedPolicy.ByProvider != nil {
		if pp, ok := scopedPolicy.ByProvider[providerName]; ok && len(pp.Allow) > 0 {
			allowed = intersectWithSpec(allowed, pp.Allow)
		}
	}

	// Global deny, then scoped deny.
	if len(g.Deny) > 0 {
		allowed = subtractSpec(allowed, g.Deny)
	}
	if scopedPolicy != nil && len(scopedPolicy.Deny) > 0 {
		allowed = subtractSpec(allowed, scopedPolicy.Deny)
	}

	// alsoAllow is additive and applied last, global then scoped.
	if len(g.AlsoAllow) > 0 {
		allowed = unionWithSpec(allowed, allTools, g.AlsoAllow)
	}
	if scopedPolicy != nil && len(scopedPolicy.AlsoAllow) > 0 {
		allowed = unionWithSpec(allowed, allTools, scopedPolicy.AlsoAllow)
	}

	return allowed
}

// applyProfile returns the tools allowed by a named profile. "full" or
// empty means no restriction.
func (pe *PolicyEngine) applyProfile(allTools []string, profile string) []string {
	if profile == "" || profile == "full" {
		return copySlice(allTools)
	}
	spec, ok := toolProfiles[profile]
	if !ok {
		slog.Warn("unknown tool profile, using full", "profile", profile)
		return copySlice(allTools)
	}
	return expandSpec(allTools, spec)
}

// --- Set operations with group expansion ---

func expandSpec(available []string, spec []string) []string {
	expanded := expandGroups(spec)
	var result []string
	for _, t := range available {
		if expanded[t] {
			result = append(result, t)
		}
	}
	return result
}

func intersectWithSpec(current []string, spec []string) []string {
	expanded := expandGroups(spec)
	var result []string
	for _, t := range current {
		if expanded[t] {
			result = append(result, t)
		}
	}
	return result
}

func subtractSpec(current []string, spec []string) []string {
	denied := expandGroups(spec)
	var result []string
	for _, t := range current {
		if !denied[t] {
			result = append(result, t)
		}
	}
	return result
}

func unionWithSpec(current []string, allTools []string, spec []string) []string {
	existing := make(map[string]bool, len(current))
	for _, t := range current {
		existing[t] = true
	}
	for _, t := range expandSpec(allTools, spec) {
		if !existing[t] {
			current = append(current, t)
			existing[t] = true
		}
	}
	return current
}

func expandGroups(spec []string) map[string]bool {
	expanded := make(map[string]bool, len(spec))
	for _, s := range spec {
		if strings.HasPrefix(s, "group:") {
			groupName := strings.TrimPrefix(s, "group:")
			for _, m := range toolGroups[groupName] {
				expanded[m] = true
			}
		} else {
			expanded[s] = true
		}
	}
	return expanded
}

func copySlice(s []string) []string {
	c := make([]string, len(s))
	copy(c, s)
	return c
}
