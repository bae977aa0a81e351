package mcpprovider

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/store"
)

// FromStaticConfig converts the file/env-configured MCP servers
// (internal/config.ToolsConfig.McpServers, §6.6) into ServerConfig values,
// skipping any explicitly disabled. $ENV_VAR_NAME indirection in Env/
// Headers is already resolved by config.Load before this runs.
func FromStaticConfig(servers map[string]*config.MCPServerConfig) []ServerConfig {
	out := make([]ServerConfig, 0, len(servers))
	for name, s := range servers {
		if !s.IsEnabled() {
			continue
		}
		out = append(out, ServerConfig{
			Name:       name,
			Transport:  s.Transport,
			Command:    s.Command,
			Args:       s.Args,
			Env:        s.Env,
			URL:        s.URL,
			Headers:    s.Headers,
			ToolPrefix: s.ToolPrefix,
			TimeoutSec: s.TimeoutSec,
		})
	}
	return out
}

// FromStore converts the persisted MCP servers (store.MCPServerStore,
// §4.5) into ServerConfig values, skipping disabled rows and resolving
// "$ENV_VAR_NAME" indirection in Env, Headers and APIKey.
func FromStore(servers []store.MCPServerConfig) []ServerConfig {
	resolve := func(v string) string {
		if strings.HasPrefix(v, "$") {
			if resolved := os.Getenv(v[1:]); resolved != "" {
				return resolved
			}
		}
		return v
	}
	out := make([]ServerConfig, 0, len(servers))
	for _, s := range servers {
		if !s.Enabled {
			continue
		}
		env := make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			env[k] = resolve(v)
		}
		headers := make(map[string]string, len(s.Headers)+1)
		for k, v := range s.Headers {
			headers[k] = resolve(v)
		}
		if s.APIKey != "" {
			headers["Authorization"] = "Bearer " + resolve(s.APIKey)
		}
		out = append(out, ServerConfig{
			Name:       s.Name,
			Transport:  s.Transport,
			Command:    s.Command,
			Args:       s.Args,
			Env:        env,
			URL:        s.URL,
			Headers:    headers,
			ToolPrefix: s.ToolPrefix,
			TimeoutSec: s.TimeoutSec,
		})
	}
	return out
}

// LoadServers merges the statically configured servers with whatever is
// persisted in store.MCPServerStore, store entries taking precedence on a
// name collision since they can be managed at runtime without a redeploy.
func LoadServers(ctx context.Context, staticServers map[string]*config.MCPServerConfig, db store.MCPServerStore) []ServerConfig {
	byName := make(map[string]ServerConfig)
	for _, sc := range FromStaticConfig(staticServers) {
		byName[sc.Name] = sc
	}
	if db != nil {
		rows, err := db.ListServers(ctx)
		if err != nil {
			slog.Warn("mcpprovider: failed to load persisted servers", "error", err)
		} else {
			for _, sc := range FromStore(rows) {
				byName[sc.Name] = sc
			}
		}
	}
	out := make([]ServerConfig, 0, len(byName))
	for _, sc := range byName {
		out = append(out, sc)
	}
	return out
}
