// Cortex core daemon — watches the configured sources, reasons over each
// perceived event, executes or queues the resulting action plan, and serves
// the review API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cortexhq/cortex/pkg/actions"
	"github.com/cortexhq/cortex/pkg/agent"
	"github.com/cortexhq/cortex/pkg/api"
	"github.com/cortexhq/cortex/pkg/config"
	"github.com/cortexhq/cortex/pkg/events"
	"github.com/cortexhq/cortex/pkg/history"
	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/learning"
	"github.com/cortexhq/cortex/pkg/llm"
	"github.com/cortexhq/cortex/pkg/masking"
	"github.com/cortexhq/cortex/pkg/orchestrator"
	"github.com/cortexhq/cortex/pkg/perception"
	"github.com/cortexhq/cortex/pkg/planner"
	"github.com/cortexhq/cortex/pkg/queue"
	"github.com/cortexhq/cortex/pkg/secrets"
	"github.com/cortexhq/cortex/pkg/store"
	"github.com/cortexhq/cortex/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CORTEX_CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting cortex", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	account, err := cfg.EnabledAccount()
	if err != nil {
		slog.Error("No enabled account", "error", err)
		os.Exit(1)
	}

	// 2. Secrets and masking. Credentials resolve through the chain at use
	// time; they never live in the configuration.
	sec := secrets.NewChain(&secrets.EnvStore{Prefix: "CORTEX_"}, secrets.NewStaticStore(nil))
	masker := masking.NewMasker(cfg.Masking, slog.Default())

	// 3. Stores under the data directory
	queueStore, err := store.NewQueueStore(filepath.Join(cfg.DataDir, "queue"))
	if err != nil {
		slog.Error("Failed to open queue store", "error", err)
		os.Exit(1)
	}
	draftStore, err := store.NewDraftStore(filepath.Join(cfg.DataDir, "drafts"))
	if err != nil {
		slog.Error("Failed to open draft store", "error", err)
		os.Exit(1)
	}

	// 4. Source clients and external managers. The in-memory clients stand
	// in until real connectors are deployed alongside the daemon; they
	// exercise the full pipeline in local development.
	mailClient := integrations.NewFakeMailClient()
	var chatClient integrations.ChatClient
	if account.Chat != nil {
		chatClient = integrations.NewFakeChatClient()
	}
	var calendarClient integrations.CalendarClient
	if account.Calendar != nil {
		calendarClient = integrations.NewFakeCalendarClient()
	}
	notes := integrations.NewFakeNoteManager()
	tasks := integrations.NewFakeTaskManager()
	slog.Info("Source clients initialized (in-memory)", "account_id", account.ID)

	// 5. Learning engine with persistent state under the data directory
	feedbackProc, err := learning.NewFeedbackProcessor(learning.DefaultFeedbackConfig())
	if err != nil {
		slog.Error("Failed to create feedback processor", "error", err)
		os.Exit(1)
	}
	knowledge := learning.NewKnowledgeUpdater(notes, learning.DefaultKnowledgeConfig(), slog.Default())
	patterns, err := learning.NewPatternStore(
		learning.DefaultPatternStoreConfig(filepath.Join(cfg.DataDir, "patterns.json")))
	if err != nil {
		slog.Error("Failed to open pattern store", "error", err)
		os.Exit(1)
	}
	tracker, err := learning.NewProviderTracker(
		learning.DefaultProviderTrackerConfig(filepath.Join(cfg.DataDir, "providers.json")))
	if err != nil {
		slog.Error("Failed to open provider tracker", "error", err)
		os.Exit(1)
	}
	calibrator, err := learning.NewConfidenceCalibrator(
		learning.DefaultCalibratorConfig(filepath.Join(cfg.DataDir, "calibration.json")))
	if err != nil {
		slog.Error("Failed to open confidence calibrator", "error", err)
		os.Exit(1)
	}
	learner := learning.NewEngine(feedbackProc, knowledge, patterns, tracker, calibrator, slog.Default())
	slog.Info("Learning engine initialized", "data_dir", cfg.DataDir)

	// 6. LLM clients and router
	clients := make(map[string]llm.Client)
	for _, tier := range cfg.LLM.Tiers {
		if clients[tier.Provider] != nil {
			continue
		}
		apiKey, ok := sec.GetSecret(secrets.Key("llm", tier.Provider+"-api-key"))
		if !ok {
			slog.Error("Missing API key for LLM provider", "provider", tier.Provider)
			os.Exit(1)
		}
		var client llm.Client
		switch tier.Provider {
		case "anthropic":
			client, err = llm.NewAnthropicClientFromAPIKey(apiKey, tier.MaxTokens)
		case "openai":
			client, err = llm.NewOpenAIClientFromAPIKey(apiKey, tier.MaxTokens)
		default:
			slog.Error("Unknown LLM provider", "provider", tier.Provider)
			os.Exit(1)
		}
		if err != nil {
			slog.Error("Failed to create LLM client", "provider", tier.Provider, "error", err)
			os.Exit(1)
		}
		clients[tier.Provider] = client
	}
	router, err := llm.NewRouter(cfg.LLM.Tiers, clients, tracker,
		llm.RouterOptions{MinCalls: cfg.LLM.MinCalls, Optimizer: cfg.LLM.OptimizeFor}, slog.Default())
	if err != nil {
		slog.Error("Failed to create LLM router", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM router initialized", "tiers", len(cfg.LLM.Tiers), "optimize_for", cfg.LLM.OptimizeFor)

	// 7. Reasoning, action factory, and orchestrator
	reasoner := agent.NewReasoner(router, nil, agent.DefaultOptions(), slog.Default())
	filter := perception.NewPreFilter(perception.PreFilterConfig{})
	folders := actions.Folders{
		Archive:   config.DefaultFolderConfig().Archive,
		Trash:     config.DefaultFolderConfig().Trash,
		Reference: config.DefaultFolderConfig().Reference,
	}
	if account.Mail != nil {
		folders = actions.Folders{
			Archive:   account.Mail.Folders.Archive,
			Trash:     account.Mail.Folders.Trash,
			Reference: account.Mail.Folders.Reference,
		}
	}
	factory := &actions.Factory{
		Mail:     mailClient,
		Tasks:    tasks,
		Calendar: calendarClient,
		Drafts:   draftStore,
		Folders:  folders,
	}
	orch := orchestrator.New(orchestrator.DefaultOptions(), slog.Default())

	// 8. Realtime bus and channel manager
	bus := events.NewBus(slog.Default())
	verifier := events.StaticTokenVerifier{}
	if cfg.API.AuthTokenRef != "" {
		if token, ok := sec.GetSecret(cfg.API.AuthTokenRef); ok {
			verifier[token] = "owner"
		} else {
			slog.Warn("API auth token not found in any secret store; realtime clients cannot authenticate",
				"ref", cfg.API.AuthTokenRef)
		}
	} else {
		slog.Warn("No api.auth_token_ref configured; realtime clients cannot authenticate")
	}
	manager := events.NewChannelManager(bus, verifier, events.DefaultManagerOptions(), slog.Default())

	// 9. Session history (optional)
	hist, err := history.Open(ctx, cfg.DatabaseURL, slog.Default())
	if err != nil {
		slog.Error("Failed to connect session history", "error", err)
		os.Exit(1)
	}
	if hist != nil {
		defer hist.Close()
		slog.Info("Session history connected")
	} else {
		slog.Info("Session history disabled (no database_url)")
	}

	// 10. Pipeline, intake, and worker pool
	pipeline, err := queue.NewPipeline(queue.Pipeline{
		Filter:       filter,
		Reasoner:     reasoner,
		Factory:      factory,
		PlanOpts:     planner.DefaultOptions(),
		Orchestrator: orch,
		Queue:        queueStore,
		Learner:      learner,
		Broadcast:    manager,
		History:      hist,
	}, slog.Default())
	if err != nil {
		slog.Error("Failed to wire pipeline", "error", err)
		os.Exit(1)
	}
	intake := queue.NewIntake(cfg.Queue.IntakeCapacity, slog.Default())
	pool := queue.NewPool(cfg.Queue, intake, pipeline, slog.Default())
	pool.Start(ctx)

	// 11. Source watcher feeds the intake
	identity := ""
	if account.Mail != nil {
		identity = account.Mail.Username
	}
	watcher := perception.NewWatcher(perception.DefaultWatcherConfig(account.ID),
		mailClient, chatClient, calendarClient, identity, intake, slog.Default())
	watcher.Start(ctx)

	// 12. HTTP server (non-blocking)
	server, err := api.NewServer(api.ServerDeps{
		QueueStore:     queueStore,
		DraftStore:     draftStore,
		Learner:        learner,
		Recaller:       pipeline,
		WorkerPool:     pool,
		History:        hist,
		Manager:        manager,
		Masker:         masker,
		AllowedOrigins: cfg.API.AllowedOrigins,
		Logger:         slog.Default(),
	})
	if err != nil {
		slog.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.API.Listen)
		if err := server.Start(cfg.API.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Cortex started successfully",
		"account_id", account.ID,
		"workers", cfg.Queue.WorkerCount)

	// 13. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 14. Graceful shutdown: stop perceiving first, then drain the workers,
	// then close the HTTP surface.
	watcher.Stop()

	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, 30*time.Second)
	defer workerCancel()
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — in-flight events will resurface on the review queue")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
