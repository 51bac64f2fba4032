package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/enrich"
	"github.com/lueurxax/trendpulse/internal/notify"
	"github.com/lueurxax/trendpulse/internal/platform/config"
	"github.com/lueurxax/trendpulse/internal/store"
)

// One-shot enrichment run for a single archive day. Useful for backfills and
// for forcing a re-classification outside the daily schedule.
func main() {
	date := flag.String("date", "", "Archive date to enrich (YYYY-MM-DD, default yesterday)")
	force := flag.Bool("force", false, "Re-process topics already refreshed today")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	target := *date
	if target == "" {
		target = time.Now().In(archive.SourceTZ).AddDate(0, 0, -1).Format(archive.DateLayout)
	}

	if _, parseErr := time.ParseInLocation(archive.DateLayout, target, archive.SourceTZ); parseErr != nil {
		logger.Fatal().Str("date", target).Msg("Invalid date, want YYYY-MM-DD")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	st := store.New(cfg.DataRoot, &logger)
	if err := st.Ping(); err != nil {
		logger.Fatal().Err(err).Str("data_root", cfg.DataRoot).Msg("Failed to prepare data root")
	}

	classifier := enrich.NewOpenAIClassifier(cfg, &logger)
	posts := enrich.NewStorePostSource(st)
	pipeline := enrich.NewPipeline(cfg, st, classifier, posts, notify.Nop{}, &logger)

	logger.Info().Str("date", target).Bool("force", *force).Msg("Starting enrichment run")

	if err := pipeline.Run(ctx, target, *force); err != nil {
		logger.Fatal().Err(err).Str("date", target).Msg("Enrichment run failed")
	}

	logger.Info().Str("date", target).Msg("Enrichment run finished")
}
