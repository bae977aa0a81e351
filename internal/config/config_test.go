package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_SetsBaselineTunables(t *testing.T) {
	cfg := Default()
	if cfg.Queue.LeaseDurationSec != 120 {
		t.Errorf("LeaseDurationSec = %d, want 120", cfg.Queue.LeaseDurationSec)
	}
	if cfg.A2A.Port != 8790 {
		t.Errorf("A2A.Port = %d, want 8790", cfg.A2A.Port)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
	if cfg.Tools.ExecApproval.Security != "full" {
		t.Errorf("ExecApproval.Security = %q, want full", cfg.Tools.ExecApproval.Security)
	}
}

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json5"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.PollIntervalSec != 5 {
		t.Errorf("PollIntervalSec = %d, want the default of 5", cfg.Queue.PollIntervalSec)
	}
}

func TestLoad_ParsesJSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	content := `{
		// a comment, since json5 tolerates them
		timezone: "America/New_York",
		a2a: { host: "127.0.0.1", port: 9000 },
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.A2A.Port != 9000 {
		t.Errorf("A2A.Port = %d, want 9000", cfg.A2A.Port)
	}
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(`{a2a: {host: "from-file"}}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("FAMILYASSISTANT_A2A_HOST", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.A2A.Host != "from-env" {
		t.Errorf("A2A.Host = %q, want from-env", cfg.A2A.Host)
	}
}

func TestApplyEnvOverrides_ResolvesMCPSecretIndirection(t *testing.T) {
	t.Setenv("MY_MCP_TOKEN", "resolved-secret")
	cfg := Default()
	cfg.Tools.McpServers = map[string]*MCPServerConfig{
		"search": {Env: map[string]string{"TOKEN": "$MY_MCP_TOKEN"}},
	}
	cfg.applyEnvOverrides()
	if got := cfg.Tools.McpServers["search"].Env["TOKEN"]; got != "resolved-secret" {
		t.Errorf("resolved token = %q, want resolved-secret", got)
	}
}

func TestApplyEnvOverrides_UnresolvableIndirectionLeftAsIs(t *testing.T) {
	cfg := Default()
	cfg.Tools.McpServers = map[string]*MCPServerConfig{
		"search": {Env: map[string]string{"TOKEN": "$UNSET_VARIABLE_XYZ"}},
	}
	cfg.applyEnvOverrides()
	if got := cfg.Tools.McpServers["search"].Env["TOKEN"]; got != "$UNSET_VARIABLE_XYZ" {
		t.Errorf("token = %q, want the indirection left unresolved", got)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	cfg := Default()
	cfg.Timezone = "Europe/Berlin"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q, want Europe/Berlin", loaded.Timezone)
	}
}

func TestHash_ChangesWithContent(t *testing.T) {
	a := Default()
	b := Default()
	if a.Hash() != b.Hash() {
		t.Error("expected two identical default configs to hash the same")
	}
	b.Timezone = "Asia/Tokyo"
	if a.Hash() == b.Hash() {
		t.Error("expected a changed config to hash differently")
	}
}

func TestHasAnyProvider(t *testing.T) {
	cfg := Default()
	if cfg.HasAnyProvider() {
		t.Error("expected a bare default config to have no providers configured")
	}
	cfg.Providers.OpenAI.APIKey = "sk-test"
	if !cfg.HasAnyProvider() {
		t.Error("expected HasAnyProvider to be true once a key is set")
	}
}

func TestReplaceFrom_CopiesAllFields(t *testing.T) {
	dst := Default()
	src := Default()
	src.Timezone = "Pacific/Auckland"
	src.A2A.Port = 1234

	dst.ReplaceFrom(src)
	if dst.Timezone != "Pacific/Auckland" {
		t.Errorf("Timezone = %q", dst.Timezone)
	}
	if dst.A2A.Port != 1234 {
		t.Errorf("A2A.Port = %d", dst.A2A.Port)
	}
}

func TestFlexibleStringSlice_AcceptsStringsAndNumbers(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["a", "b"]`), &f); err != nil {
		t.Fatalf("Unmarshal(strings) error = %v", err)
	}
	if len(f) != 2 || f[0] != "a" {
		t.Errorf("got %v", f)
	}

	var f2 FlexibleStringSlice
	if err := json.Unmarshal([]byte(`[1, 2, "three"]`), &f2); err != nil {
		t.Fatalf("Unmarshal(mixed) error = %v", err)
	}
	want := []string{"1", "2", "three"}
	for i, w := range want {
		if f2[i] != w {
			t.Errorf("f2[%d] = %q, want %q", i, f2[i], w)
		}
	}
}

func TestMCPServerConfig_IsEnabled(t *testing.T) {
	var nilFlag MCPServerConfig
	if !nilFlag.IsEnabled() {
		t.Error("expected a nil Enabled flag to default to enabled")
	}
	yes := true
	on := MCPServerConfig{Enabled: &yes}
	if !on.IsEnabled() {
		t.Error("expected explicit true to be enabled")
	}
	no := false
	off := MCPServerConfig{Enabled: &no}
	if off.IsEnabled() {
		t.Error("expected explicit false to be disabled")
	}
}
