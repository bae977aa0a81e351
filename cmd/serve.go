package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/familyassistant/core/internal/a2a"
	"github.com/familyassistant/core/internal/attachments"
	"github.com/familyassistant/core/internal/automation"
	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/core"
	"github.com/familyassistant/core/internal/events"
	"github.com/familyassistant/core/internal/metrics"
	"github.com/familyassistant/core/internal/orchestrator"
	"github.com/familyassistant/core/internal/queue"
	"github.com/familyassistant/core/internal/sandbox"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/internal/store/pg"
	"github.com/familyassistant/core/internal/telemetry"
	"github.com/familyassistant/core/internal/tools"
	"github.com/familyassistant/core/internal/tools/mcpprovider"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task worker and the A2A server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.HasAnyProvider() {
		return fmt.Errorf("no LLM provider configured: set at least one of providers.anthropic/openai/gemini/dashscope.api_key")
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("no Postgres DSN configured: set FAMILYASSISTANT_POSTGRES_DSN")
	}

	db, err := pg.OpenDB(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	stores := pg.NewStores(db, store.Config{PostgresDSN: cfg.Database.DSN})

	toolsReg := tools.NewRegistry()
	if err := tools.RegisterBuiltinWebTools(toolsReg, cfg.Tools.Web); err != nil {
		return fmt.Errorf("register web tools: %w", err)
	}
	policyEngine := tools.NewPolicyEngine(&cfg.Tools)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	mcpProv := mcpprovider.New()
	mcpProv.Start(ctx, mcpprovider.LoadServers(ctx, cfg.Tools.McpServers, stores.MCPServers))
	defer mcpProv.Stop()

	toolsProvider := tools.NewCompositeProvider(toolsReg, mcpProv)

	providerReg := buildProviders(cfg)
	if len(providerReg) == 0 {
		return fmt.Errorf("no LLM provider could be constructed from config")
	}

	blobRoot := os.Getenv("FAMILYASSISTANT_BLOB_ROOT")
	if blobRoot == "" {
		blobRoot = "./data/attachments"
	}
	blobStore, err := attachments.NewBlobStore(blobRoot)
	if err != nil {
		return fmt.Errorf("open attachment blob store: %w", err)
	}
	attachmentsReg := attachments.NewRegistry(stores.Attachments, blobStore)

	q := queue.New(stores.Tasks)
	h := core.New(cfg, stores, q, blobStore, toolsProvider)
	scheduler := automation.NewScheduleService(stores.Automations, q)

	globalSandboxHost := core.NewSandboxHost(h.Tools, attachmentsReg, h.Queue, &tools.ExecutionContext{})
	globalSandboxPolicy := core.BuildSandboxPolicy(policyEngine, h.Tools, "", nil, false)
	conditionScripts := sandbox.New(globalSandboxHost, globalSandboxPolicy)
	eventSvc := automation.NewEventService(h.Stores.Automations, h.Queue, conditionScripts)

	history := orchestrator.NewStoreHistoryStore(stores.Messages, "a2a", cfg.History.MaxHistoryMessages)
	turn := orchestrator.New(orchestrator.Config{
		Provider:      defaultProvider(providerReg),
		Model:         defaultProvider(providerReg).DefaultModel(),
		Tools:         h.Tools,
		ToolPolicy:    policyEngine,
		History:       history,
		MaxIterations: 20,
	})
	profiles := orchestrator.NewProfileResolver(cfg.Profiles)
	runner := orchestrator.NewRunner(turn, profiles)

	publicURL := fmt.Sprintf("http://%s:%d", cfg.A2A.Host, cfg.A2A.Port)
	a2aSvc := a2a.NewService(stores.A2ATasks, runner, cfg, publicURL)
	a2aServer := a2a.NewServer(&cfg.A2A, a2aSvc)

	webhookSource := events.NewWebhookSource("/webhooks/events")
	a2aServer.BuildMux().Handle(webhookSource.Path(), webhookSource)

	dispatcher := events.NewDispatcher(eventSvc.HandleEvent)
	dispatcher.Register(events.NewDocumentIndexingSource())
	dispatcher.Register(webhookSource)
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start event dispatcher: %w", err)
	}
	h.WithEvents(dispatcher)
	defer h.Shutdown(context.Background())

	wsBroadcaster := events.NewWSBroadcaster(dispatcher, cfg.A2A.AllowedOrigins)
	a2aServer.BuildMux().Handle("/events/ws", wsBroadcaster)

	if cfg.A2A.MetricsEnabled {
		a2aServer.BuildMux().Handle("/metrics", metrics.Handler())
	}

	worker := buildWorker(h, policyEngine, attachmentsReg, turn, scheduler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return a2aServer.Start(gctx) })

	slog.Info("familyassistant started", "a2a_addr", publicURL)
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// buildWorker registers the §6.1 durable task handlers: llm_callback runs
// one orchestrator turn on the conversation named by the payload,
// script_execution runs a sandboxed automation script body against the
// same tool surface a turn's LLM uses.
func buildWorker(
	h *core.Handles,
	policyEngine *tools.PolicyEngine,
	attachmentsReg *attachments.Registry,
	turn *orchestrator.Turn,
	scheduler *automation.ScheduleService,
) *queue.Worker {
	cfg := h.Config
	workerCfg := queue.DefaultConfig("familyassistant-worker-1")
	if cfg.Queue.LeaseDurationSec > 0 {
		workerCfg.LeaseDuration = time.Duration(cfg.Queue.LeaseDurationSec) * time.Second
	}
	if cfg.Queue.PollIntervalSec > 0 {
		workerCfg.PollInterval = time.Duration(cfg.Queue.PollIntervalSec) * time.Second
	}
	if cfg.Queue.MaxRetriesDefault > 0 {
		workerCfg.MaxRetriesDefault = cfg.Queue.MaxRetriesDefault
	}

	w := queue.NewWorker(h.Queue, h.Stores.Automations, workerCfg, scheduler.EnqueueWakeFunc())

	w.RegisterHandler(queue.TaskTypeWakeLLM, func(ctx context.Context, task *store.Task) error {
		var payload queue.WakeLLMPayload
		if err := queue.FromPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode wake_llm payload: %w", err)
		}
		prompt := payload.Prompt
		if prompt == "" {
			prompt = "(scheduled wake with no prompt)"
		}
		_, err := turn.Run(ctx, orchestrator.RunRequest{
			ConversationID: payload.ConversationID,
			UserMessage:    prompt,
		})
		return err
	})

	w.RegisterHandler(queue.TaskTypeScriptExecution, func(ctx context.Context, task *store.Task) error {
		var payload queue.ScriptExecutionPayload
		if err := queue.FromPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode script_execution payload: %w", err)
		}
		ec := &tools.ExecutionContext{ConversationID: payload.ConversationID}
		host := core.NewSandboxHost(h.Tools, attachmentsReg, h.Queue, ec)
		policy := core.BuildSandboxPolicy(policyEngine, h.Tools, "", nil, false)
		sb := sandbox.New(host, policy)
		runCtx := core.WithConversationID(ctx, payload.ConversationID)
		_, err := sb.Eval(runCtx, payload.Script, payload.Context)
		return err
	})

	return w
}
