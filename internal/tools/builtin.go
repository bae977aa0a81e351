package tools

import (
	"github.com/familyassistant/core/internal/config"
)

// RegisterBuiltinWebTools registers web_fetch and web_search against the
// configured backends (Brave if an API key is set, DuckDuckGo otherwise),
// matching the teacher's provider-priority wiring in NewWebSearchTool.
func RegisterBuiltinWebTools(r *Registry, cfg config.WebToolsConfig) error {
	if err := r.Register(NewWebFetchTool(WebFetchConfig{}).Tool()); err != nil {
		return err
	}

	searchCfg := WebSearchConfig{
		BraveAPIKey:     cfg.Brave.APIKey,
		BraveEnabled:    cfg.Brave.Enabled,
		BraveMaxResults: cfg.Brave.MaxResults,
		DDGEnabled:      cfg.DuckDuckGo.Enabled,
		DDGMaxResults:   cfg.DuckDuckGo.MaxResults,
	}
	if st := NewWebSearchTool(searchCfg); st != nil {
		if err := r.Register(st.Tool()); err != nil {
			return err
		}
	}
	return nil
}
