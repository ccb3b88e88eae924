package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Riyadh644/stockscout/internal/classifier"
	"github.com/Riyadh644/stockscout/internal/config"
	"github.com/Riyadh644/stockscout/internal/engine"
	"github.com/Riyadh644/stockscout/internal/logger"
	"github.com/Riyadh644/stockscout/internal/notify"
	"github.com/Riyadh644/stockscout/internal/predictor"
	"github.com/Riyadh644/stockscout/internal/provider"
	"github.com/Riyadh644/stockscout/internal/report"
	"github.com/Riyadh644/stockscout/internal/scheduler"
	"github.com/Riyadh644/stockscout/internal/sentiment"
	"github.com/Riyadh644/stockscout/internal/storage"
	"github.com/Riyadh644/stockscout/internal/tracker"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	quotes := provider.NewClient(cfg.Provider.ScannerURL, cfg.Provider.Timeout, provider.ClientConfig{
		Exchange:       cfg.Provider.Exchange,
		ScanLimit:      cfg.Provider.ScanLimit,
		MaxClose:       cfg.Provider.MaxClose,
		MinVolume:      cfg.Provider.MinVolume,
		MaxRetries:     cfg.Provider.MaxRetries,
		RetryDelayBase: cfg.Provider.RetryDelayBase,
		RatePerSecond:  cfg.Provider.RatePerSecond,
		MaxInFlight:    cfg.Provider.MaxInFlight,
	})

	scorer := predictor.NewHTTPScorer(cfg.Predictor.BaseURL, cfg.Predictor.Timeout)

	var sentimentClassifier sentiment.Classifier
	if cfg.Sentiment.Enabled {
		sentimentClassifier = sentiment.NewNewsClient(cfg.Sentiment.BaseURL, cfg.Sentiment.APIKey, cfg.Sentiment.Timeout)
		logger.Info("Sentiment enricher enabled")
	}

	notifyConfig := notify.Config{
		MaxMessageLen: cfg.Notify.MaxMessageLen,
		MaxRetries:    cfg.Notify.MaxRetries,
		RetryDelay:    cfg.Notify.RetryDelay,
	}
	var channel notify.Channel
	var telegramChannel *notify.TelegramChannel
	if cfg.Telegram.Enabled {
		telegramChannel, err = notify.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram channel: %v", err)
		}
		channel = telegramChannel
	} else {
		logger.Warn("Telegram disabled, alerts will only be logged")
		channel = notify.LogChannel{}
	}
	dispatcher := notify.NewDispatcher(channel, store, notifyConfig)

	eng := engine.New(quotes, scorer, sentimentClassifier, store, dispatcher, engine.Config{
		Classifier: classifier.Config{
			StrongThreshold:   cfg.Classifier.StrongThreshold,
			WatchThreshold:    cfg.Classifier.WatchThreshold,
			BreakoutChangePct: cfg.Classifier.BreakoutChangePct,
			VolumeMultiple:    cfg.Classifier.VolumeMultiple,
			VolumeBaseline:    classifier.Baseline(cfg.Classifier.VolumeBaseline),
			MaxPerTier:        cfg.Classifier.MaxPerTier,
		},
		MarketWeakPct:   cfg.Engine.MarketWeakPct,
		BenchmarkSymbol: cfg.Provider.BenchmarkSymbol,
		MaxInFlight:     cfg.Provider.MaxInFlight,
		BatchSize:       cfg.Provider.BatchSize,
		BatchCooldown:   cfg.Provider.BatchCooldown,
	})

	track := tracker.New(store, quotes, dispatcher)
	reports := report.New(store, quotes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if telegramChannel != nil {
		bot := notify.NewBot(telegramChannel, store, store, notify.BotHooks{
			RunCycle: eng.RunCycle,
			Report: func(ctx context.Context) (string, error) {
				return reports.Daily(ctx, time.Now())
			},
		}, notifyConfig)
		bot.Listen(ctx)
	}

	sched := scheduler.New()
	mustRegister(sched, "classify", cfg.Schedule.ClassifySpec, func() {
		if err := eng.RunCycle(ctx); err != nil && !errors.Is(err, engine.ErrCycleInProgress) {
			logger.Error("Classification cycle failed: %v", err)
		}
	})
	mustRegister(sched, "track", cfg.Schedule.TrackSpec, func() {
		if err := track.RunCycle(ctx); err != nil && !errors.Is(err, tracker.ErrCycleInProgress) {
			logger.Error("Tracking cycle failed: %v", err)
		}
	})
	mustRegister(sched, "report", cfg.Schedule.ReportSpec, func() {
		text, err := reports.Daily(ctx, time.Now())
		if err != nil {
			logger.Warn("Daily report skipped: %v", err)
			return
		}
		dispatcher.Broadcast(ctx, text)
	})
	sched.Start()
	defer sched.Stop()

	if cfg.Schedule.RunOnStart {
		logger.Info("Running initial classification cycle")
		go func() {
			if err := eng.RunCycle(ctx); err != nil {
				logger.Error("Initial cycle failed: %v", err)
			}
		}()
	}

	logger.Info("stockscout is running (classify: %s, track: %s)", cfg.Schedule.ClassifySpec, cfg.Schedule.TrackSpec)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping...")
	cancel()
}

func mustRegister(s *scheduler.Scheduler, name, spec string, task func()) {
	if err := s.Register(name, spec, task); err != nil {
		logger.Fatal("Failed to register %s task: %v", name, err)
	}
}
