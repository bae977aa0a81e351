package cmd

import (
	"log/slog"

	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/providers"
)

// buildProviders registers one providers.Provider per configured API key,
// keyed by provider name, mirroring the teacher's registerProviders wiring
// but over this domain's narrower ProvidersConfig (Anthropic/OpenAI/Gemini/
// DashScope only — no OpenRouter/Groq/DeepSeek/etc., since no ProviderConfig
// field models them here).
func buildProviders(cfg *config.Config) map[string]providers.Provider {
	reg := make(map[string]providers.Provider)

	if cfg.Providers.Anthropic.APIKey != "" {
		reg["anthropic"] = providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey)
		slog.Info("registered provider", "name", "anthropic")
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		model := cfg.Providers.OpenAI.Model
		if model == "" {
			model = "gpt-4o"
		}
		reg["openai"] = providers.NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, model)
		slog.Info("registered provider", "name", "openai")
	}
	if cfg.Providers.Gemini.APIKey != "" {
		apiBase := cfg.Providers.Gemini.APIBase
		if apiBase == "" {
			apiBase = "https://generativelanguage.googleapis.com/v1beta/openai"
		}
		model := cfg.Providers.Gemini.Model
		if model == "" {
			model = "gemini-2.0-flash"
		}
		reg["gemini"] = providers.NewOpenAIProvider("gemini", cfg.Providers.Gemini.APIKey, apiBase, model)
		slog.Info("registered provider", "name", "gemini")
	}
	if cfg.Providers.DashScope.APIKey != "" {
		model := cfg.Providers.DashScope.Model
		if model == "" {
			model = "qwen-max"
		}
		reg["dashscope"] = providers.NewDashScopeProvider(cfg.Providers.DashScope.APIKey, cfg.Providers.DashScope.APIBase, model)
		slog.Info("registered provider", "name", "dashscope")
	}

	return reg
}

// defaultProvider picks the first configured provider in a stable priority
// order, for a processing profile that doesn't name one explicitly.
func defaultProvider(reg map[string]providers.Provider) providers.Provider {
	for _, name := range []string{"anthropic", "openai", "gemini", "dashscope"} {
		if p, ok := reg[name]; ok {
			return p
		}
	}
	return nil
}
