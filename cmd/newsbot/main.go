package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akolotov/crhoy-bot/config"
	"github.com/akolotov/crhoy-bot/downloader"
	"github.com/akolotov/crhoy-bot/llm"
	"github.com/akolotov/crhoy-bot/llm/agent"
	"github.com/akolotov/crhoy-bot/messaging"
	"github.com/akolotov/crhoy-bot/notifier"
	"github.com/akolotov/crhoy-bot/ratelimiter"
	"github.com/akolotov/crhoy-bot/siteclient"
	"github.com/akolotov/crhoy-bot/store"
	"github.com/akolotov/crhoy-bot/synchronizer"
	"github.com/akolotov/crhoy-bot/trigger"
)

// indexBaseURL is the upstream site's day-index endpoint. Like the fixed
// site zone in the config package, this is a fact about crhoy.com, not a
// deployment knob.
const indexBaseURL = "https://www.crhoy.com"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded", "data_dir", cfg.DataDir, "zone", cfg.Zone.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("store opened", "database_url", cfg.Store.DatabaseURL)

	seeds, err := store.LoadSmartCategorySeed(seedPath())
	if err != nil {
		slog.Error("failed to load smart category seed", "error", err)
		os.Exit(1)
	}
	if err := st.SeedSmartCategories(ctx, seeds); err != nil {
		slog.Error("failed to seed smart categories", "error", err)
		os.Exit(1)
	}
	slog.Info("smart categories seeded", "count", len(seeds))

	limiter := ratelimiter.NewRegistry(ratelimiter.RegistryDefaults{})
	limiter.Configure(cfg.Agents.Basic.Model, cfg.Agents.Basic.RequestLimit, cfg.Agents.Basic.RequestLimitPeriodSec)
	limiter.Configure(cfg.Agents.Light.Model, cfg.Agents.Light.RequestLimit, cfg.Agents.Light.RequestLimitPeriodSec)

	transport, err := llm.NewGenaiTransport(ctx, cfg.Agents.APIKey, limiter)
	if err != nil {
		slog.Error("failed to create llm transport", "error", err)
		os.Exit(1)
	}
	audit := llm.NewAuditLogger(cfg.Agents.RawResponsesDir, cfg.Agents.KeepRawResponses)

	// Stage A/B (closed-set decisions against an existing catalog) run on
	// the light tier; Stage C/D/F/G (free-form generation) run on the
	// basic tier (see DESIGN.md's "Open Questions resolved").
	basicSupplementary := ""
	if cfg.Agents.Basic.RequiresSupplementary {
		basicSupplementary = cfg.Agents.SupplementaryModel
	}
	lightSupplementary := ""
	if cfg.Agents.Light.RequiresSupplementary {
		lightSupplementary = cfg.Agents.SupplementaryModel
	}

	downloaderCfg := downloader.Config{
		Zone:               cfg.Zone,
		DownloadInterval:   cfg.Downloader.DownloadInterval,
		DownloadsChunkSize: cfg.Downloader.DownloadsChunkSize,
		IgnoreCategories:   cfg.Downloader.IgnoreCategories,
		DataDir:            cfg.DataDir,
		SourceLang:         cfg.Downloader.SourceLang,
		TargetLang:         cfg.Downloader.TargetLang,
		HighRankThreshold:  cfg.Downloader.HighRankThreshold,

		Classifier: agent.ClassifierConfig(cfg.Agents.Light.Model, lightSupplementary, 0, 2048),
		Labeler:    agent.LabelerConfig(cfg.Agents.Light.Model, lightSupplementary, 0, 2048),
		Namer:      agent.NamerConfig(cfg.Agents.Basic.Model, basicSupplementary, 0.2, 2048),
		Finalizer:  agent.FinalizerConfig(cfg.Agents.Basic.Model, basicSupplementary, 0.2, 2048),
		Summarizer: agent.SummarizerConfig(cfg.Agents.Basic.Model, basicSupplementary, 0.2, 4096),
		Translator: agent.TranslatorConfig(cfg.Agents.Basic.Model, basicSupplementary, 0.2, 4096),
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	indexClient := siteclient.NewIndexClient(httpClient, indexBaseURL, cfg.Zone)
	bodyClient := siteclient.NewBodyClientWithClient(httpClient)

	sender, err := messaging.NewTelegramSender(cfg.Notifier.TelegramBotToken, cfg.Notifier.TelegramChannelID)
	if err != nil {
		slog.Error("failed to create telegram sender", "error", err)
		os.Exit(1)
	}

	trig, err := trigger.New(cfg.Zone, cfg.Notifier.TriggerTimes, cfg.Synchronizer.CheckUpdatesInterval)
	if err != nil {
		slog.Error("failed to create trigger service", "error", err)
		os.Exit(1)
	}

	sy := synchronizer.New(st, indexClient, synchronizer.Config{
		Zone:                 cfg.Zone,
		CheckUpdatesInterval: cfg.Synchronizer.CheckUpdatesInterval,
		DaysChunkSize:        cfg.Synchronizer.DaysChunkSize,
		IgnoreCategories:     cfg.Synchronizer.IgnoreCategories,
		FirstDay:             cfg.Synchronizer.FirstDay,
		DataDir:              cfg.DataDir,
		ProbeHost:            "www.crhoy.com",
		MaxRetries:           cfg.MaxRetries,
	})

	dl := downloader.New(st, bodyClient, transport, audit, trig, downloaderCfg)

	notif := notifier.New(st, sender, trig, notifier.Config{
		Zone:                  cfg.Zone,
		MaxInactivityInterval: cfg.Notifier.MaxInactivityInterval,
		DataDir:               cfg.DataDir,
		TargetLang:            cfg.Downloader.TargetLang,
		MaxRetries:            cfg.Notifier.MaxRetries,
		MessagesDelay:         cfg.Notifier.MessagesDelay,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var wg sync.WaitGroup
	runWorker(&wg, "synchronizer", func() error { return sy.Run(ctx) })
	runWorker(&wg, "downloader", func() error { return dl.Run(ctx) })
	runWorker(&wg, "notifier", func() error { return notif.Run(ctx) })

	slog.Info("newsbot started")
	wg.Wait()
	slog.Info("shutdown complete")
}

// runWorker starts fn in its own goroutine, logging its name on exit
// (error or clean return) — the single-process composition SPEC_FULL.md §5F
// describes, generalized from the teacher's one-bot-one-goroutine main to
// three long-lived workers sharing one cancellation signal.
func runWorker(wg *sync.WaitGroup, name string, fn func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(); err != nil {
			slog.Error("worker stopped with error", "worker", name, "error", err)
			return
		}
		slog.Info("worker stopped", "worker", name)
	}()
}

// seedPath locates the Smart-Category seed file shipped alongside the
// binary's source tree. Overridable via SMART_CATEGORY_SEED_PATH for
// deployments that package it elsewhere.
func seedPath() string {
	if v := os.Getenv("SMART_CATEGORY_SEED_PATH"); v != "" {
		return v
	}
	return "config/smart_categories.seed.yaml"
}
