package ops

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netebla/Milky-Tarot/internal/metrics"
	"github.com/netebla/Milky-Tarot/internal/services"
)

// StatsUpdater periodically refreshes the user gauges exported on /metrics.
type StatsUpdater struct {
	userSvc  services.UserServiceProvider
	interval time.Duration
	ticker   *time.Ticker
	done     chan bool
}

// NewStatsUpdater creates a new StatsUpdater.
func NewStatsUpdater(userSvc services.UserServiceProvider) *StatsUpdater {
	return &StatsUpdater{
		userSvc:  userSvc,
		interval: time.Minute,
		done:     make(chan bool),
	}
}

// Run starts the periodic updates. Blocks until Stop is called.
func (su *StatsUpdater) Run() {
	log.Info().Msg("Starting background stats updater...")
	su.ticker = time.NewTicker(su.interval)
	defer su.ticker.Stop()

	// Run once immediately on start
	su.update()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stats updater.")
			return
		case <-su.ticker.C:
			su.update()
		}
	}
}

// Stop signals the updater to shut down.
func (su *StatsUpdater) Stop() {
	su.done <- true
}

func (su *StatsUpdater) update() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := su.userSvc.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh user stats")
		return
	}
	metrics.TotalUsers.Set(float64(stats.TotalUsers))
	metrics.ActiveToday.Set(float64(stats.ActiveToday))
	metrics.PushEnabledUsers.Set(float64(stats.PushEnabled))
}
