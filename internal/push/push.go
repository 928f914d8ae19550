// Package push delivers the scheduled card-of-the-day messages and the
// admin-triggered "Energy of the Year" broadcast.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	tele "gopkg.in/telebot.v3"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/metrics"
	"github.com/netebla/Milky-Tarot/internal/models"
	"github.com/netebla/Milky-Tarot/internal/services"
)

// Messenger sends Telegram messages. Satisfied by *tele.Bot.
type Messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Sender delivers push messages outside of a live update context.
type Sender struct {
	bot        Messenger
	users      services.UserServiceProvider
	spreads    services.SpreadServiceProvider
	deck       []cards.Card
	archetypes map[string]string
	catalog    []string
	retryDelay time.Duration
	pacing     time.Duration
}

// NewSender creates a new Sender. The deck supplies card images and the
// year-energy catalog; archetypes maps card titles to the yearly reading
// text.
func NewSender(bot Messenger, users services.UserServiceProvider, spreads services.SpreadServiceProvider, deck []cards.Card, archetypes map[string]string) *Sender {
	return &Sender{
		bot:        bot,
		users:      users,
		spreads:    spreads,
		deck:       deck,
		archetypes: archetypes,
		catalog:    cards.Titles(deck),
		retryDelay: 2 * time.Second,
		pacing:     200 * time.Millisecond,
	}
}

// SendDailyCard sends the card of the day to one user. The draw goes through
// the same daily-card path as the menu button, so the push and the button
// always show the same card. Users who turned pushes off are skipped;
// delivery failures are logged, never fatal.
func (s *Sender) SendDailyCard(ctx context.Context, userID int64) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for push")
		}
		return
	}
	if !user.PushEnabled {
		return
	}

	card, err := s.spreads.DailyCard(ctx, userID)
	if err != nil {
		metrics.PushSent.WithLabelValues("error").Inc()
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to draw push card")
		return
	}

	caption := fmt.Sprintf("Карта дня: %s\n\n%s", card.Title, card.Description)
	photo := &tele.Photo{File: tele.FromURL(card.ImageURL()), Caption: caption}
	if err := s.send(ctx, tele.ChatID(userID), photo); err != nil {
		metrics.PushSent.WithLabelValues("error").Inc()
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to deliver push")
		return
	}
	metrics.PushSent.WithLabelValues("ok").Inc()
}

// SendYearEnergy selects the user's year card through the sticky selection
// path and delivers the archetype reading. A card assigned before a catalog
// change keeps its assignment even without an archetype text.
func (s *Sender) SendYearEnergy(ctx context.Context, userID int64) error {
	title, err := s.spreads.YearEnergyCard(ctx, userID, s.catalog)
	if err != nil {
		return err
	}

	text, ok := s.archetypes[title]
	if !ok {
		log.Warn().Int64("user_id", userID).Str("card", title).Msg("Stored year card has no archetype text")
		text = fmt.Sprintf("Твой архетип года — %s.", title)
	}
	body := "✨ Энергия года ✨\n\n" + text

	var msg interface{} = body
	if card, found := cards.Find(s.deck, title); found {
		msg = &tele.Photo{File: tele.FromURL(card.ImageURL()), Caption: body}
	}
	if err := s.send(ctx, tele.ChatID(userID), msg); err != nil {
		return err
	}
	metrics.Draws.WithLabelValues("year_energy").Inc()
	return nil
}

// BroadcastYearEnergy sends every registered user their "Energy of the Year"
// card. Assignments reuse the same selection as the user-facing flow, so a
// broadcast never changes an already drawn card. Delivery fans out over a
// worker pool, paced so the whole pool stays under the Telegram send rate
// limit; returns the sent and failed counts.
func (s *Sender) BroadcastYearEnergy(ctx context.Context, workers int) (int, int) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users for year energy broadcast")
		return 0, 0
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int64)
	var wg sync.WaitGroup
	var mu sync.Mutex
	sent, failed := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := s.SendYearEnergy(ctx, id); err != nil {
					log.Warn().Err(err).Int64("user_id", id).Msg("Failed to deliver year energy card")
					metrics.BroadcastSent.WithLabelValues("error").Inc()
					mu.Lock()
					failed++
					mu.Unlock()
				} else {
					metrics.BroadcastSent.WithLabelValues("ok").Inc()
					mu.Lock()
					sent++
					mu.Unlock()
				}
				time.Sleep(s.pacing)
			}
		}()
	}

	for _, u := range users {
		jobs <- u.ID
	}
	close(jobs)
	wg.Wait()

	log.Info().Int("sent", sent).Int("failed", failed).Msg("Year energy broadcast finished")
	return sent, failed
}

// send delivers one message, retrying once on transient failures. A user who
// blocked the bot is a permanent failure and is not retried.
func (s *Sender) send(ctx context.Context, to tele.Recipient, what interface{}) error {
	return retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay)), func(ctx context.Context) error {
		_, err := s.bot.Send(to, what)
		if err == nil {
			return nil
		}
		if errors.Is(err, tele.ErrBlockedByUser) {
			return err
		}
		return retry.RetryableError(err)
	})
}
