package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netebla/Milky-Tarot/internal/database"
	"github.com/netebla/Milky-Tarot/internal/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	dbPath := flag.String("db", defaultDBPath(), "path to the SQLite database file")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open database")
	}
	defer db.Close()

	switch *command {
	case "up":
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	case "status":
		if err := database.Status(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch migration status")
		}
	case "down":
		if err := database.Down(ctx, db, *target); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migrations")
		}
	default:
		log.Fatal().Str("command", *command).Msg("Unsupported command")
	}

	log.Info().Str("command", *command).Msg("Migration command completed")
}

func defaultDBPath() string {
	if p := os.Getenv("DATABASE_PATH"); p != "" {
		return p
	}
	return "./users.db"
}
