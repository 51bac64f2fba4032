package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trendpulse/internal/credentials"
	"github.com/lueurxax/trendpulse/internal/enrich"
	"github.com/lueurxax/trendpulse/internal/fetcher"
	"github.com/lueurxax/trendpulse/internal/notify"
	"github.com/lueurxax/trendpulse/internal/platform/config"
	"github.com/lueurxax/trendpulse/internal/platform/observability"
	"github.com/lueurxax/trendpulse/internal/platform/ratelimit"
	"github.com/lueurxax/trendpulse/internal/scheduler"
	"github.com/lueurxax/trendpulse/internal/store"
)

func main() {
	// Setup logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	setLogLevel(cfg.LogLevel)

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	st := store.New(cfg.DataRoot, &logger)
	if err := st.Ping(); err != nil {
		logger.Fatal().Err(err).Str("data_root", cfg.DataRoot).Msg("Failed to prepare data root")
	}

	pool := credentials.NewPool(credentials.Sources{
		Multi:  cfg.Credentials,
		Single: cfg.Credential,
		Files:  cfg.CredentialFiles,
	}, cfg.CredentialCooldown, &logger)

	policy := ratelimit.NewFromEnv("snapshot", ratelimit.Options{
		BaseDelay:       cfg.RateLimitBaseDelay,
		Jitter:          cfg.RateLimitJitter,
		BackoffAttempts: cfg.RateLimitBackoffAttempts,
		SoftRange:       config.ParseRange(cfg.RateLimitSoftRange, [2]time.Duration{}),
		HardRange:       config.ParseRange(cfg.RateLimitHardRange, [2]time.Duration{}),
		CooldownWindow:  cfg.RateLimitCooldownWindow,
		SoftThreshold:   cfg.RateLimitSoftThreshold,
	})

	remote := fetcher.NewRemoteSource(cfg.SnapshotSourceURL, cfg.SnapshotTimeout, pool, &logger)

	var local fetcher.LocalSource
	if cs := fetcher.NewCommandSource(cfg.FallbackCommand, cfg.FallbackTimeout, &logger); cs != nil {
		local = cs
	} else {
		logger.Info().Msg("No local fallback command configured")
	}

	threshold := time.Duration(cfg.FallbackThresholdMinutes) * time.Minute
	f := fetcher.New(remote, local, policy, threshold, &logger)

	classifier := enrich.NewOpenAIClassifier(cfg, &logger)
	posts := enrich.NewStorePostSource(st)
	notifier := notify.Nop{}
	pipeline := enrich.NewPipeline(cfg, st, classifier, posts, notifier, &logger)

	sched := scheduler.New(scheduler.PipelineContext{
		Config:     cfg,
		Store:      st,
		Fetcher:    f,
		Policy:     policy,
		Enrichment: pipeline,
		Notifier:   notifier,
		Logger:     &logger,
	})

	// Start health server
	healthServer := observability.NewServer(st, cfg.HealthPort, &logger)

	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Health server error")
		}
	}()

	logger.Info().Str("app_env", cfg.AppEnv).Msg("Starting hot topics monitor")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Scheduler error")
	}

	logger.Info().Msg("Monitor stopped")
}

// setLogLevel sets the global log level based on the configuration.
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
