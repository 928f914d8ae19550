package main

import (
	"context"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netebla/Milky-Tarot/internal/backup"
	"github.com/netebla/Milky-Tarot/internal/bot"
	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/config"
	"github.com/netebla/Milky-Tarot/internal/database"
	"github.com/netebla/Milky-Tarot/internal/llm"
	"github.com/netebla/Milky-Tarot/internal/logger"
	"github.com/netebla/Milky-Tarot/internal/ops"
	"github.com/netebla/Milky-Tarot/internal/scheduler"
	"github.com/netebla/Milky-Tarot/internal/services"
)

// stdRNG delegates to math/rand/v2 (auto-seeded).
type stdRNG struct{}

func (stdRNG) Intn(n int) int { return rand.IntN(n) }

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve timezone")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Load the card catalogs
	dayDeck, err := cards.DayDeck()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load the daily deck")
	}
	adviceDeck, err := cards.AdviceDeck()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load the advice deck")
	}
	archetypes, err := cards.Archetypes()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load the year archetypes")
	}
	meanings, err := cards.Meanings()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load the card meanings")
	}

	// Set up services
	userService := services.NewUserService(db, loc)
	spreadService := services.NewSpreadService(db, dayDeck, adviceDeck, stdRNG{}, loc)

	llmClient := llm.NewClient(&http.Client{Timeout: cfg.LLMTimeout},
		cfg.GeminiAPIKey, llm.DefaultBaseURL, cfg.GeminiModel)
	reader := llm.NewReader(llmClient, meanings)

	// Set up the push scheduler
	sched := scheduler.New(loc)
	sched.Start()

	// Set up the bot
	b, sender, err := bot.New(cfg, userService, spreadService, sched, reader, dayDeck, archetypes)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bot")
	}
	if err := bot.RestorePushSchedules(context.Background(), userService, sched, sender); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore push schedules")
	}

	// Set up scheduled database backups
	if cfg.BackupEnabled() {
		s3Client, err := backup.NewS3Client(context.Background(),
			cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 client")
		}
		runner := backup.NewRunner(db, s3Client, cfg.S3Bucket, cfg.DatabasePath)
		if err := sched.AddJob(cfg.BackupCron, func() {
			// Run logs its own outcome.
			_ = runner.Run(context.Background())
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule database backups")
		}
		log.Info().Str("bucket", cfg.S3Bucket).Str("cron", cfg.BackupCron).Msg("Database backups scheduled")
	}

	// Set up and run the background stats updater
	statsUpdater := ops.NewStatsUpdater(userService)
	go statsUpdater.Run()

	// Serve /healthz and /metrics for the deploy environment
	opsSrv := &http.Server{
		Addr:    cfg.OpsAddr,
		Handler: ops.NewRouter(db),
	}
	go func() {
		log.Info().Str("addr", cfg.OpsAddr).Msg("Ops server starting")
		if err := opsSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Ops server failed")
		}
	}()

	go func() {
		log.Info().Str("username", b.Me.Username).Msg("Bot started")
		b.Start()
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")

	b.Stop()
	statsUpdater.Stop()
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Ops server forced to shutdown")
	}

	log.Info().Msg("Bot exiting")
}
