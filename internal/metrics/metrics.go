// Package metrics exposes the bot's Prometheus collectors. Everything is
// registered on the default registry and served by the ops HTTP server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Updates counts Telegram updates entering the handler chain.
	Updates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "updates_total",
		Help:      "Count of Telegram updates processed",
	})

	// Draws counts completed card draws by kind: day, advice, year_energy,
	// three_cards.
	Draws = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "draws_total",
		Help:      "Count of completed card draws",
	}, []string{"kind"})

	// LLMRequests counts Gemini calls by outcome: ok, error.
	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "llm_requests_total",
		Help:      "Count of LLM generation calls",
	}, []string{"outcome"})

	// PushSent counts daily push deliveries by outcome: ok, error.
	PushSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "push_sent_total",
		Help:      "Count of daily push notifications",
	}, []string{"outcome"})

	// BroadcastSent counts admin broadcast deliveries by outcome: ok, error.
	BroadcastSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "broadcast_sent_total",
		Help:      "Count of admin broadcast deliveries",
	}, []string{"outcome"})

	// Payments counts payment state transitions by status.
	Payments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "payments_total",
		Help:      "Count of payment status transitions",
	}, []string{"status"})

	// FishCredited counts fish credited to balances from succeeded payments.
	FishCredited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "fish_credited_total",
		Help:      "Total fish credited from succeeded payments",
	})

	// TotalUsers is the registered user count, refreshed by the stats updater.
	TotalUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "users_total",
		Help:      "Number of registered users",
	})

	// ActiveToday is the count of users active on the current bot day.
	ActiveToday = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "active_users_today",
		Help:      "Number of users active today",
	})

	// PushEnabledUsers is the count of users with the daily push turned on.
	PushEnabledUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "push_enabled_users",
		Help:      "Number of users with the daily push enabled",
	})

	// BackupResults counts scheduled database backups by outcome: ok, error.
	BackupResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tarot",
		Subsystem: "bot",
		Name:      "backup_results_total",
		Help:      "Count of scheduled backup outcomes",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		Updates,
		Draws,
		LLMRequests,
		PushSent,
		BroadcastSent,
		Payments,
		FishCredited,
		TotalUsers,
		ActiveToday,
		PushEnabledUsers,
		BackupResults,
	)
}
