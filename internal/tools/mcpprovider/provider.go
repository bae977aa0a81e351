// Package mcpprovider implements the §4.5 "Remote" tool provider: a
// tools.Provider backed by one or more MCP servers (stdio, SSE, or
// streamable-http transports), connected at startup and health-checked
// in the background. Adapted from the teacher's internal/mcp/manager.go,
// manager_connect.go, manager_tools.go — the Manager's registry
// dependency and its per-agent "managed mode" (store.MCPServerStore
// grants keyed by agent+user) are dropped since this domain has no
// per-agent MCP scoping, only the global server list configured via
// internal/config.ToolsConfig.McpServers / store.MCPServerStore.
package mcpprovider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/familyassistant/core/internal/providers"
	"github.com/familyassistant/core/internal/tools"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// ServerConfig is the subset of connection settings a server needs,
// independent of where the caller sourced it from (static config file or
// store.MCPServerStore).
type ServerConfig struct {
	Name       string
	Transport  string
	Command    string
	Args       []string
	Env        map[string]string
	URL        string
	Headers    map[string]string
	ToolPrefix string
	TimeoutSec int
}

// ServerStatus reports a connected server's health for diagnostics.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
	Error     string `json:"error,omitempty"`
}

type remoteTool struct {
	server     string
	schema     mcpgo.Tool
	originName string
}

type serverConn struct {
	name       string
	transport  string
	client     *mcpclient.Client
	connected  atomic.Bool
	timeoutSec int
	cancel     context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

// Provider connects to a fixed set of MCP servers and serves their tools
// through the standard tools.Provider interface, so it composes into a
// CompositeProvider alongside the local Registry.
type Provider struct {
	mu      sync.RWMutex
	servers map[string]*serverConn
	toolIdx map[string]*remoteTool // tool name (post-prefix) -> remote tool
}

func New() *Provider {
	return &Provider{
		servers: make(map[string]*serverConn),
		toolIdx: make(map[string]*remoteTool),
	}
}

// Start connects to every enabled server, logging and continuing past
// individual failures rather than aborting — one broken MCP server must
// never prevent the rest of the tool surface from coming up.
func (p *Provider) Start(ctx context.Context, servers []ServerConfig) {
	for _, cfg := range servers {
		if err := p.connect(ctx, cfg); err != nil {
			slog.Warn("mcpprovider: server connect failed", "server", cfg.Name, "error", err)
		}
	}
}

func (p *Provider) connect(ctx context.Context, cfg ServerConfig) error {
	client, err := createClient(cfg.Transport, cfg.Command, cfg.Args, cfg.Env, cfg.URL, cfg.Headers)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if cfg.Transport != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "familyassistant-core", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	sc := &serverConn{name: cfg.Name, transport: cfg.Transport, client: client, timeoutSec: timeoutSec}
	sc.connected.Store(true)

	p.mu.Lock()
	var registered []string
	for _, t := range listed.Tools {
		name := cfg.ToolPrefix + t.Name
		if _, exists := p.toolIdx[name]; exists {
			slog.Warn("mcpprovider: tool name collision, skipping", "server", cfg.Name, "tool", name)
			continue
		}
		p.toolIdx[name] = &remoteTool{
			server:     cfg.Name,
			originName: t.Name,
			schema:     t,
		}
		registered = append(registered, name)
	}
	p.servers[cfg.Name] = sc
	p.mu.Unlock()

	if len(registered) > 0 {
		tools.RegisterToolGroup("mcp:"+cfg.Name, registered)
	}

	hctx, cancel := context.WithCancel(context.Background())
	sc.cancel = cancel
	go p.healthLoop(hctx, sc)

	slog.Info("mcpprovider: server connected", "server", cfg.Name, "transport", cfg.Transport, "tools", len(listed.Tools))
	return nil
}

func createClient(transportType, command string, args []string, env map[string]string, url string, headers map[string]string) (*mcpclient.Client, error) {
	switch transportType {
	case "stdio":
		envSlice := make([]string, 0, len(env))
		for k, v := range env {
			envSlice = append(envSlice, k+"="+v)
		}
		return mcpclient.NewStdioMCPClient(command, envSlice, args...)
	case "sse":
		var opts []transport.ClientOption
		if len(headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(headers))
		}
		return mcpclient.NewSSEMCPClient(url, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		return mcpclient.NewStreamableHttpClient(url, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", transportType)
	}
}

func (p *Provider) healthLoop(ctx context.Context, sc *serverConn) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sc.client.Ping(ctx); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "method not found") {
					sc.connected.Store(true)
					continue
				}
				sc.connected.Store(false)
				sc.mu.Lock()
				sc.lastErr = err.Error()
				sc.mu.Unlock()
				slog.Warn("mcpprovider: health check failed", "server", sc.name, "error", err)
				p.tryReconnect(ctx, sc)
			} else {
				sc.connected.Store(true)
				sc.mu.Lock()
				sc.reconnAttempts = 0
				sc.lastErr = ""
				sc.mu.Unlock()
			}
		}
	}
}

func (p *Provider) tryReconnect(ctx context.Context, sc *serverConn) {
	sc.mu.Lock()
	if sc.reconnAttempts >= maxReconnectAttempts {
		sc.mu.Unlock()
		slog.Error("mcpprovider: reconnect attempts exhausted", "server", sc.name)
		return
	}
	sc.reconnAttempts++
	attempt := sc.reconnAttempts
	sc.mu.Unlock()

	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}
	if err := sc.client.Ping(ctx); err == nil {
		sc.connected.Store(true)
		sc.mu.Lock()
		sc.reconnAttempts = 0
		sc.mu.Unlock()
		slog.Info("mcpprovider: server reconnected", "server", sc.name)
	}
}

// Stop closes every server connection.
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sc := range p.servers {
		if sc.cancel != nil {
			sc.cancel()
		}
		if sc.client != nil {
			_ = sc.client.Close()
		}
		tools.UnregisterToolGroup("mcp:" + sc.name)
	}
	p.servers = make(map[string]*serverConn)
	p.toolIdx = make(map[string]*remoteTool)
}

// Close implements the optional io.Closer core.Handles checks for on
// shutdown.
func (p *Provider) Close() error {
	p.Stop()
	return nil
}

func (p *Provider) Status() []ServerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ServerStatus, 0, len(p.servers))
	for _, sc := range p.servers {
		count := 0
		for _, t := range p.toolIdx {
			if t.server == sc.name {
				count++
			}
		}
		out = append(out, ServerStatus{Name: sc.name, Transport: sc.transport, Connected: sc.connected.Load(), ToolCount: count, Error: sc.lastErr})
	}
	return out
}

func (p *Provider) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.toolIdx))
	for n := range p.toolIdx {
		names = append(names, n)
	}
	return names
}

func (p *Provider) Describe(name string) (tools.ToolDefinition, bool) {
	p.mu.RLock()
	rt, ok := p.toolIdx[name]
	p.mu.RUnlock()
	if !ok {
		return tools.ToolDefinition{}, false
	}
	return toolDefFromSchema(name, rt.schema), true
}

func toolDefFromSchema(name string, t mcpgo.Tool) tools.ToolDefinition {
	params := map[string]interface{}{"type": "object"}
	if t.InputSchema.Type != "" || len(t.InputSchema.Properties) > 0 {
		params = map[string]interface{}{
			"type":       "object",
			"properties": t.InputSchema.Properties,
			"required":   t.InputSchema.Required,
		}
	}
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        name,
			Description: t.Description,
			Parameters:  params,
		},
	}
}

func (p *Provider) Execute(ctx context.Context, ec *tools.ExecutionContext, name string, args map[string]any) (*tools.Result, error) {
	p.mu.RLock()
	rt, ok := p.toolIdx[name]
	var sc *serverConn
	if ok {
		sc = p.servers[rt.server]
	}
	p.mu.RUnlock()
	if !ok || sc == nil {
		return nil, tools.ErrToolNotFound
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(sc.timeoutSec)*time.Second)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = rt.originName
	req.Params.Arguments = args

	res, err := sc.client.CallTool(callCtx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("mcp tool %s failed: %v", name, err)), nil
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			sb.WriteString(tc.Text)
			sb.WriteByte('\n')
		}
	}
	if res.IsError {
		return tools.ErrorResult(sb.String()), nil
	}
	return tools.NewResult(sb.String()), nil
}
