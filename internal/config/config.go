package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, carried
// forward from the teacher's config for MCP allow-lists fed by user-edited
// json5 files where a stray numeric literal is common.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration, loaded from a json5 file and overlaid
// with environment variables for secrets (§6.6).
type Config struct {
	Providers   ProvidersConfig   `json:"providers"`
	Tools       ToolsConfig       `json:"tools"`
	Database    DatabaseConfig    `json:"database"`
	Queue       QueueConfig       `json:"queue"`
	Attachments AttachmentsConfig `json:"attachments"`
	History     HistoryConfig     `json:"history"`
	A2A         A2AConfig         `json:"a2a"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	Profiles    map[string]ProcessingProfile `json:"profiles,omitempty"`

	mu sync.RWMutex
}

// ProcessingProfile is a named configuration bundle — system prompt, tool
// allow-set, LLM model parameters — selectable per A2A skill or conversation
// (§6.1, §6.5). Each profile with ExposeAsSkill set surfaces as one entry in
// the A2A agent card's skills list.
type ProcessingProfile struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	Model         string   `json:"model,omitempty"`
	Tools         ToolPolicySpec `json:"tools,omitempty"`
	MaxTurns      int      `json:"max_turns,omitempty"` // not read; the turn cap is orchestrator.Config.MaxIterations (20 in cmd/serve.go)
	ExposeAsSkill bool     `json:"expose_as_skill,omitempty"`
	InputModes    []string `json:"input_modes,omitempty"`  // default ["text/plain"]
	OutputModes   []string `json:"output_modes,omitempty"` // default ["text/plain"]
	Tags          []string `json:"tags,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex
// (grounded on the teacher's hot-reload support in Config.ReplaceFrom).
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Providers = src.Providers
	c.Tools = src.Tools
	c.Database = src.Database
	c.Queue = src.Queue
	c.Attachments = src.Attachments
	c.History = src.History
	c.A2A = src.A2A
	c.Telemetry = src.Telemetry
	c.Timezone = src.Timezone
	c.Profiles = src.Profiles
}

// DatabaseConfig configures Postgres. DSN is never read from the config
// file (secret) — only from the environment, matching the teacher's
// PostgresDSN convention.
type DatabaseConfig struct {
	DSN string `json:"-"` // from env FAMILYASSISTANT_POSTGRES_DSN only
}

// QueueConfig bundles the worker's tunables (§6.6).
type QueueConfig struct {
	LeaseDurationSec     int `json:"lease_duration_sec,omitempty"`      // default 120
	PollIntervalSec      int `json:"poll_interval_sec,omitempty"`       // default 5
	MaxRetriesDefault    int `json:"max_retries_default,omitempty"`     // default 3
	BackoffBaseMs        int `json:"backoff_base_ms,omitempty"`         // default 1000
	DequeueRatePerSecond int `json:"dequeue_rate_per_second,omitempty"` // default 20
}

// AttachmentsConfig controls §4.7/§4.4 attachment selection behavior.
type AttachmentsConfig struct {
	SelectionThreshold    int `json:"attachment_selection_threshold,omitempty"` // count of pending attachments; not read by the orchestrator, which applies no attachment selection
	MaxResponseAttachments int `json:"max_response_attachments,omitempty"`      // default 5
}

// HistoryConfig controls how much conversation history is loaded per turn.
type HistoryConfig struct {
	MaxAgeHours      int `json:"history_max_age_hours,omitempty"` // default 720 (30 days)
	MaxHistoryMessages int `json:"max_history_messages,omitempty"` // default 200
}

// A2AConfig controls the §6.5 JSON-RPC/SSE server, grounded on the
// teacher's GatewayConfig.
type A2AConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Token           string   `json:"token,omitempty"` // bearer token for HTTP/SSE auth
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
	RateLimitRPM    int      `json:"rate_limit_rpm,omitempty"` // default 20; not read, the A2A server applies no rate limit
	MetricsEnabled  bool     `json:"metrics_enabled,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export for orchestrator/worker
// spans, carried forward verbatim in shape from the teacher.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// ProvidersConfig maps provider name to its credentials.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
	Gemini    ProviderConfig `json:"gemini"`
	DashScope ProviderConfig `json:"dashscope"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
}

// HasAnyProvider returns true if at least one provider has an API key configured.
func (c *Config) HasAnyProvider() bool {
	p := c.Providers
	return p.Anthropic.APIKey != "" || p.OpenAI.APIKey != "" || p.Gemini.APIKey != "" || p.DashScope.APIKey != ""
}

// ToolsConfig controls tool availability and policy (§4.5) plus remote MCP
// server connections (§6.6).
type ToolsConfig struct {
	Profile          string                     `json:"profile,omitempty"`
	Allow            []string                   `json:"allow,omitempty"`
	Deny             []string                   `json:"deny,omitempty"`
	AlsoAllow        []string                   `json:"alsoAllow,omitempty"`
	ByProvider       map[string]*ToolPolicySpec `json:"byProvider,omitempty"`
	ExecApproval     ExecApprovalCfg            `json:"execApproval,omitempty"`
	Web              WebToolsConfig             `json:"web"`
	McpServers       map[string]*MCPServerConfig `json:"mcp_servers,omitempty"`
	ConfirmTimeoutSec int                       `json:"confirm_timeout_sec,omitempty"` // default 120
}

// MCPServerConfig configures a single external MCP server connection.
// Secret-bearing fields (Env, Headers) accept `$ENV_VAR_NAME` values,
// resolved against the process environment at load time (§6.6) rather than
// stored encrypted at rest, since no crypto package was present to ground
// an at-rest scheme on (see DESIGN.md).
type MCPServerConfig struct {
	Transport  string            `json:"transport"` // "stdio", "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"`
	ToolPrefix string            `json:"tool_prefix,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ExecApprovalCfg configures the confirming tool provider's approval gate
// (§4.5), grounded on the teacher's exec-approval settings.
type ExecApprovalCfg struct {
	Security  string   `json:"security,omitempty"` // "deny", "allowlist", "full" (default "full")
	Ask       string   `json:"ask,omitempty"`      // "off", "on-miss", "always" (default "off")
	Allowlist []string `json:"allowlist,omitempty"`
}

// ToolPolicySpec defines a tool policy at any level (global, per-agent,
// per-provider) — kept verbatim in shape from the teacher's policy.go.
type ToolPolicySpec struct {
	Profile    string                     `json:"profile,omitempty"`
	Allow      []string                   `json:"allow,omitempty"`
	Deny       []string                   `json:"deny,omitempty"`
	AlsoAllow  []string                   `json:"alsoAllow,omitempty"`
	ByProvider map[string]*ToolPolicySpec `json:"byProvider,omitempty"`
}

type WebToolsConfig struct {
	Brave      BraveConfig      `json:"brave"`
	DuckDuckGo DuckDuckGoConfig `json:"duckduckgo"`
}

type BraveConfig struct {
	Enabled    bool   `json:"enabled"`
	APIKey     string `json:"api_key"`
	MaxResults int    `json:"max_results"`
}

type DuckDuckGoConfig struct {
	Enabled    bool `json:"enabled"`
	MaxResults int  `json:"max_results"`
}
