package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netebla/Milky-Tarot/internal/bot"
	"github.com/netebla/Milky-Tarot/internal/config"
	"github.com/netebla/Milky-Tarot/internal/database"
	"github.com/netebla/Milky-Tarot/internal/logger"
	"github.com/netebla/Milky-Tarot/internal/services"
	"github.com/netebla/Milky-Tarot/internal/yookassa"
)

// The payment bot runs as its own process against the same database as the
// main bot.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel)

	if cfg.PaymentBotToken == "" {
		log.Fatal().Msg("PAYMENT_BOT_TOKEN is not set")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve timezone")
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	userService := services.NewUserService(db, loc)
	paymentService := services.NewPaymentService(db)
	yk := yookassa.NewClient(&http.Client{Timeout: 20 * time.Second},
		yookassa.DefaultBaseURL, cfg.YookassaShopID, cfg.YookassaSecretKey, cfg.YookassaReturnURL)

	b, err := bot.NewPayBot(cfg, userService, paymentService, yk)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize payment bot")
	}

	go func() {
		log.Info().Str("username", b.Me.Username).Msg("Payment bot started")
		b.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")

	b.Stop()
	log.Info().Msg("Payment bot exiting")
}
