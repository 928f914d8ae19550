// Package bot wires the Telegram handlers for the main tarot bot and the
// payment bot.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/config"
	"github.com/netebla/Milky-Tarot/internal/llm"
	"github.com/netebla/Milky-Tarot/internal/metrics"
	"github.com/netebla/Milky-Tarot/internal/models"
	"github.com/netebla/Milky-Tarot/internal/push"
	"github.com/netebla/Milky-Tarot/internal/scheduler"
	"github.com/netebla/Milky-Tarot/internal/services"
)

func newBot(token string) (*tele.Bot, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:     token,
		Poller:    &tele.LongPoller{Timeout: 10 * time.Second},
		ParseMode: tele.ModeHTML,
		OnError: func(err error, c tele.Context) {
			if c != nil && c.Sender() != nil {
				log.Error().Err(err).Int64("user_id", c.Sender().ID).Msg("Bot handler failed")
				return
			}
			log.Error().Err(err).Msg("Bot handler failed")
		},
	})
	if err != nil {
		return nil, err
	}
	b.Use(middleware.Recover())
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			metrics.Updates.Inc()
			return next(c)
		}
	})
	return b, nil
}

// New builds the main bot with every handler registered and returns it
// together with the push sender bound to it.
func New(cfg *config.Config, users services.UserServiceProvider, spreads services.SpreadServiceProvider,
	sched *scheduler.Scheduler, reader *llm.Reader, deck []cards.Card, archetypes map[string]string) (*tele.Bot, *push.Sender, error) {

	b, err := newBot(cfg.BotToken)
	if err != nil {
		return nil, nil, fmt.Errorf("create bot: %w", err)
	}

	sender := push.NewSender(b, users, spreads, deck, archetypes)
	h := &Handler{
		cfg:     cfg,
		users:   users,
		spreads: spreads,
		sched:   sched,
		sender:  sender,
		reader:  reader,
		pending: make(map[int64]struct{}),
	}
	h.register(b)
	return b, sender, nil
}

// RestorePushSchedules recreates every enabled user's push job, so a restart
// does not lose the daily pushes.
func RestorePushSchedules(ctx context.Context, users services.UserServiceProvider, sched *scheduler.Scheduler, sender *push.Sender) error {
	list, err := users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	restored := 0
	for _, u := range list {
		if !u.PushEnabled {
			continue
		}
		pushTime := u.PushTime
		if pushTime == "" {
			pushTime = models.DefaultPushTime
		}
		err := sched.ScheduleDailyPush(u.ID, pushTime, func(id int64) {
			sender.SendDailyCard(context.Background(), id)
		})
		if err != nil {
			log.Error().Err(err).Int64("user_id", u.ID).Str("push_time", pushTime).
				Msg("Failed to restore push schedule")
			continue
		}
		restored++
	}
	log.Info().Int("restored", restored).Msg("Push schedules restored")
	return nil
}
