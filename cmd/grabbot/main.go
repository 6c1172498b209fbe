package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/grabbot/internal/api"
	"github.com/iconidentify/grabbot/internal/api/handler"
	"github.com/iconidentify/grabbot/internal/config"
	"github.com/iconidentify/grabbot/internal/fetcher"
	"github.com/iconidentify/grabbot/internal/history"
	"github.com/iconidentify/grabbot/internal/logging"
	"github.com/iconidentify/grabbot/internal/metrics"
	"github.com/iconidentify/grabbot/internal/ratelimit"
	"github.com/iconidentify/grabbot/internal/retention"
	"github.com/iconidentify/grabbot/internal/service"
	"github.com/iconidentify/grabbot/internal/telegram"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("grabbot %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Bootstrap logger until the configured one is available
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	configured, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		logger.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	logger = configured
	slog.SetDefault(logger)

	logger.Info("starting grabbot",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := os.MkdirAll(cfg.Storage.DownloadsRoot, 0755); err != nil {
		logger.Error("failed to create downloads directory", "error", err)
		os.Exit(1)
	}

	var recorder metrics.Recorder

	limiter := ratelimit.New(ratelimit.Config{
		Window: cfg.RateLimit.Window,
		Limit:  cfg.RateLimit.Limit,
	})

	mediaFetcher := fetcher.New(
		fetcher.Config{
			Root:     cfg.Storage.DownloadsRoot,
			Deadline: cfg.Fetch.Deadline,
		},
		fetcher.NewYTDLP(cfg.Fetch, logger),
		logger,
	)

	var (
		historyStore  *history.Store
		historyWriter service.HistoryRecorder
		historyReader handler.HistoryReader
	)
	if cfg.History.Path != "" {
		historyStore, err = history.Open(cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history store", "path", cfg.History.Path, "error", err)
			os.Exit(1)
		}
		historyWriter = historyStore
		historyReader = historyStore
		logger.Info("request history enabled", "path", cfg.History.Path)
	}

	coordinator := service.NewCoordinator(
		service.CoordinatorConfig{
			MaxConcurrent:       cfg.Fetch.MaxConcurrent,
			DeleteAfterDelivery: cfg.Retention.DeleteAfterDelivery,
		},
		limiter,
		mediaFetcher,
		recorder,
		historyWriter,
		logger,
	)

	sweeper := retention.New(
		retention.Config{
			Root:     cfg.Storage.DownloadsRoot,
			Interval: cfg.Retention.Interval,
			MaxAge:   cfg.Retention.MaxAge,
			OnSweep: func(ctx context.Context, now time.Time) {
				if n := limiter.Compact(now); n > 0 {
					logger.Debug("compacted rate limiter", "users_dropped", n)
				}
				if historyStore == nil || cfg.History.Retention <= 0 {
					return
				}
				if n, err := historyStore.Prune(ctx, now.Add(-cfg.History.Retention)); err != nil {
					logger.Warn("failed to prune history", "error", err)
				} else if n > 0 {
					logger.Debug("pruned history", "entries", n)
				}
			},
		},
		recorder,
		logger,
	)
	sweeper.Start()

	router := api.NewRouter(
		handler.NewFetchHandler(coordinator, limiter, logger),
		handler.NewHistoryHandler(historyReader, logger),
		handler.NewHealthHandler(cfg.Storage.DownloadsRoot, limiter, coordinator),
		cfg.Server.APIKey,
		logger,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	botCtx, cancelBot := context.WithCancel(context.Background())
	botDone := make(chan struct{})
	var botAPI *tgbotapi.BotAPI

	if cfg.Telegram.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Error("failed to connect to telegram", "error", err)
			os.Exit(1)
		}
		botAPI.Debug = cfg.Telegram.Debug
		logger.Info("authorized on telegram", "username", botAPI.Self.UserName)

		retry := telegram.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Telegram.SendRetries + 1

		bot := telegram.NewBot(botAPI, coordinator, telegram.Config{
			CacheChatID: cfg.Telegram.CacheChatID,
			Retry:       retry,
		}, logger)

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := botAPI.GetUpdatesChan(u)

		go func() {
			defer close(botDone)
			bot.Run(botCtx, updates)
		}()
	} else {
		close(botDone)
		logger.Info("telegram disabled, serving HTTP API only")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	if botAPI != nil {
		botAPI.StopReceivingUpdates()
	}
	cancelBot()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	select {
	case <-botDone:
	case <-ctx.Done():
		logger.Error("telegram bot shutdown timed out")
	}

	if err := sweeper.Stop(10 * time.Second); err != nil {
		logger.Error("retention sweeper shutdown error", "error", err)
	}

	if historyStore != nil {
		if err := historyStore.Close(); err != nil {
			logger.Error("failed to close history store", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
