package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kindredbots/kindred/internal/ai"
	"github.com/kindredbots/kindred/internal/authz"
	"github.com/kindredbots/kindred/internal/bus"
	"github.com/kindredbots/kindred/internal/config"
	"github.com/kindredbots/kindred/internal/convo"
	"github.com/kindredbots/kindred/internal/coordinator"
	"github.com/kindredbots/kindred/internal/delivery"
	"github.com/kindredbots/kindred/internal/discord"
	"github.com/kindredbots/kindred/internal/janitor"
	"github.com/kindredbots/kindred/internal/orchestrator"
	"github.com/kindredbots/kindred/internal/personality"
	"github.com/kindredbots/kindred/internal/reconcile"
	"github.com/kindredbots/kindred/internal/sched"
)

// runGateway composes all services and blocks until a shutdown signal.
func runGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	registry, err := personality.LoadRegistry(cfg.PersonalityFile)
	if err != nil {
		slog.Error("failed to load personalities", "error", err, "path", cfg.PersonalityFile)
		os.Exit(1)
	}
	defer registry.Close()
	if err := registry.Watch(); err != nil {
		slog.Warn("personality hot reload disabled", "error", err)
	}
	slog.Info("personalities loaded", "count", len(registry.All()))

	gateway, err := discord.New(cfg.Discord)
	if err != nil {
		slog.Error("failed to create discord gateway", "error", err)
		os.Exit(1)
	}

	scheduler := sched.NewTimer()
	coord := coordinator.New()
	state := convo.New(cfg.DataDir, scheduler, registry)
	reconciler := reconcile.New()
	platform := discord.NewPlatform(gateway.Session(), cfg.Discord.WebhookName)
	pipeline := delivery.NewPipeline(platform, time.Duration(cfg.Delivery.MinSendIntervalMS)*time.Millisecond)
	backend := ai.NewOpenAIBackend(cfg.Backend.APIKey, cfg.Backend.BaseURL, registry)
	gate := authz.NewConfigGate(cfg.Access.BlockedUsers, cfg.Access.NSFWChannels, registry)

	orch := orchestrator.New(orchestrator.Config{
		Registry:   registry,
		Coord:      coord,
		State:      state,
		Reconciler: reconciler,
		Pipeline:   pipeline,
		Backend:    backend,
		Gate:       gate,
		Blocklist:  gate,
		Replier:    discord.NewReplier(gateway.Session()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway.Route(
		func(msg bus.InboundMessage) { go orch.HandleMessage(ctx, msg) },
		orch.HandleDelete,
	)

	jan, err := janitor.New([]janitor.Task{
		{Name: "reconciler-sweep", Cron: cfg.Janitor.SweepCron, Run: reconciler.Sweep},
		{Name: "state-snapshot", Cron: cfg.Janitor.SnapshotCron, Run: state.SaveNow},
	})
	if err != nil {
		slog.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}
	go jan.Run(ctx)

	if err := gateway.Start(ctx); err != nil {
		slog.Error("failed to start discord gateway", "error", err)
		os.Exit(1)
	}

	slog.Info("kindred running", "version", Version, "data_dir", cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")
	cancel()
	if err := gateway.Stop(context.Background()); err != nil {
		slog.Warn("gateway stop failed", "error", err)
	}
	// Final snapshot so in-memory state survives the restart.
	state.SaveNow()
}
