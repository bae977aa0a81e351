package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults, mirroring the shape of
// every tunable the worker and orchestrator need so a bare deployment (no
// config file at all) still runs.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			LeaseDurationSec:     120,
			PollIntervalSec:      5,
			MaxRetriesDefault:    3,
			BackoffBaseMs:        1000,
			DequeueRatePerSecond: 20,
		},
		Attachments: AttachmentsConfig{
			SelectionThreshold:     16384,
			MaxResponseAttachments: 5,
		},
		History: HistoryConfig{
			MaxAgeHours:        720,
			MaxHistoryMessages: 200,
		},
		A2A: A2AConfig{
			Host:         "0.0.0.0",
			Port:         8790,
			RateLimitRPM: 20,
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				DuckDuckGo: DuckDuckGoConfig{Enabled: true, MaxResults: 5},
			},
			ExecApproval: ExecApprovalCfg{
				Security: "full",
				Ask:      "off",
			},
			ConfirmTimeoutSec: 120,
		},
		Timezone: "UTC",
	}
}

// Load reads config from a json5 file, then overlays environment variables
// (secrets never live in the file, §6.6). A missing file is not an error —
// it falls back to Default() plus whatever the environment supplies.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars always win
// over file values, matching the teacher's layering.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("FAMILYASSISTANT_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("FAMILYASSISTANT_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.APIBase)
	envStr("FAMILYASSISTANT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("FAMILYASSISTANT_GEMINI_API_KEY", &c.Providers.Gemini.APIKey)
	envStr("FAMILYASSISTANT_DASHSCOPE_API_KEY", &c.Providers.DashScope.APIKey)

	envStr("FAMILYASSISTANT_POSTGRES_DSN", &c.Database.DSN)

	envStr("FAMILYASSISTANT_A2A_HOST", &c.A2A.Host)
	envStr("FAMILYASSISTANT_A2A_TOKEN", &c.A2A.Token)
	if v := os.Getenv("FAMILYASSISTANT_A2A_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.A2A.Port = port
		}
	}
	if v := os.Getenv("FAMILYASSISTANT_A2A_ALLOWED_ORIGINS"); v != "" {
		c.A2A.AllowedOrigins = strings.Split(v, ",")
	}

	envStr("FAMILYASSISTANT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("FAMILYASSISTANT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("FAMILYASSISTANT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("FAMILYASSISTANT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("FAMILYASSISTANT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	envStr("FAMILYASSISTANT_TIMEZONE", &c.Timezone)

	resolveMCPEnv(c.Tools.McpServers)
}

// resolveMCPEnv resolves `$ENV_VAR_NAME` indirection in MCP server configs
// (§6.6): secret-bearing fields in the config file hold an environment
// variable name rather than the raw secret, resolved here at load time
// rather than stored encrypted at rest (see DESIGN.md for why no at-rest
// encryption scheme was wired in).
func resolveMCPEnv(servers map[string]*MCPServerConfig) {
	resolve := func(v string) string {
		if strings.HasPrefix(v, "$") {
			if resolved := os.Getenv(v[1:]); resolved != "" {
				return resolved
			}
		}
		return v
	}
	for _, s := range servers {
		for k, v := range s.Env {
			s.Env[k] = resolve(v)
		}
		for k, v := range s.Headers {
			s.Headers[k] = resolve(v)
		}
	}
}

// Save writes the config to a json file. No command in cmd calls it.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 hash of the config for optimistic
// concurrency checks when reloading.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}
