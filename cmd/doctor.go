package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/familyassistant/core/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("familyassistant doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Database.DSN == "" {
		fmt.Printf("    %-12s NOT SET (export FAMILYASSISTANT_POSTGRES_DSN)\n", "DSN:")
	} else {
		fmt.Printf("    %-12s set\n", "DSN:")
		checkSchema(cfg.Database.DSN)
	}

	fmt.Println()
	fmt.Println("  Providers:")
	checkProvider("Anthropic", cfg.Providers.Anthropic.APIKey)
	checkProvider("OpenAI", cfg.Providers.OpenAI.APIKey)
	checkProvider("Gemini", cfg.Providers.Gemini.APIKey)
	checkProvider("DashScope", cfg.Providers.DashScope.APIKey)
	if !cfg.HasAnyProvider() {
		fmt.Println("    (no provider configured — set at least one api_key)")
	}

	fmt.Println()
	fmt.Println("  MCP servers:")
	if len(cfg.Tools.McpServers) == 0 {
		fmt.Println("    (none configured)")
	} else {
		for name, srv := range cfg.Tools.McpServers {
			enabled := srv.Enabled == nil || *srv.Enabled
			status := "enabled"
			if !enabled {
				status = "disabled"
			}
			fmt.Printf("    %-16s %s (%s)\n", name+":", status, srv.Transport)
		}
	}

	fmt.Println()
	fmt.Println("  Attachments:")
	blobRoot := os.Getenv("FAMILYASSISTANT_BLOB_ROOT")
	if blobRoot == "" {
		blobRoot = "./data/attachments"
	}
	fmt.Printf("    %-12s %s", "Blob root:", blobRoot)
	if _, err := os.Stat(blobRoot); err != nil {
		fmt.Println(" (not yet created, will be created on first run)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("  External tools:")
	checkBinary("curl")
	checkBinary("git")

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSchema(dsn string) {
	m, err := newMigrator(dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Schema:", err)
		return
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		fmt.Printf("    %-12s no migrations applied yet (run: familyassistant migrate up)\n", "Schema:")
		return
	}
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	if dirty {
		fmt.Printf("    %-12s v%d (DIRTY — run: familyassistant migrate force %d)\n", "Schema:", v, v-1)
		return
	}
	fmt.Printf("    %-12s v%d\n", "Schema:", v)
}

func checkProvider(name, apiKey string) {
	if apiKey != "" {
		masked := apiKey
		if len(apiKey) > 8 {
			masked = apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
		}
		fmt.Printf("    %-12s %s\n", name+":", masked)
	} else {
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
