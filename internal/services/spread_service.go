package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/models"
)

// AdviceDailyLimit is how many advice cards a user may draw per bot day.
const AdviceDailyLimit = 2

// ThreeCardsCost is the fish price of the three-card spread.
const ThreeCardsCost = 150

// SpreadServiceProvider defines the interface for spread services.
type SpreadServiceProvider interface {
	DailyCard(ctx context.Context, userID int64) (cards.Card, error)
	AdviceCard(ctx context.Context, userID int64) (cards.Card, error)
	YearEnergyCard(ctx context.Context, userID int64, catalog []string) (string, error)
	ThreeCards(ctx context.Context, userID int64) ([]cards.Card, error)
	RefundThreeCards(ctx context.Context, userID int64) error
}

// SpreadService draws cards and keeps the per-user draw state.
type SpreadService struct {
	db         *sql.DB
	dayDeck    []cards.Card
	adviceDeck []cards.Card
	rng        RNG
	loc        *time.Location
	now        func() time.Time
}

// NewSpreadService creates a new SpreadService over the given decks.
func NewSpreadService(db *sql.DB, dayDeck, adviceDeck []cards.Card, rng RNG, loc *time.Location) *SpreadService {
	return &SpreadService{
		db:         db,
		dayDeck:    dayDeck,
		adviceDeck: adviceDeck,
		rng:        rng,
		loc:        loc,
		now:        time.Now,
	}
}

func (s *SpreadService) today() string {
	return s.now().In(s.loc).Format(DayFormat)
}

// DailyCard returns the user's card of the day. The first draw of a bot day
// picks a random card and stores it; every later call that day returns the
// stored card. A stored title that is no longer in the deck is treated as
// not drawn and replaced.
func (s *SpreadService) DailyCard(ctx context.Context, userID int64) (cards.Card, error) {
	if len(s.dayDeck) == 0 {
		return cards.Card{}, models.ErrEmptyCatalog
	}

	var lastCard, lastDate string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_card, last_card_date FROM users WHERE id = ?", userID).
		Scan(&lastCard, &lastDate)
	if errors.Is(err, sql.ErrNoRows) {
		return cards.Card{}, models.ErrUserNotFound
	}
	if err != nil {
		return cards.Card{}, err
	}

	today := s.today()
	if lastCard != "" && lastDate == today {
		if card, ok := cards.Find(s.dayDeck, lastCard); ok {
			return card, nil
		}
	}

	card := s.dayDeck[s.rng.Intn(len(s.dayDeck))]
	_, err = s.db.ExecContext(ctx,
		"UPDATE users SET last_card = ?, last_card_date = ?, draw_count = draw_count + 1 WHERE id = ?",
		card.Title, today, userID)
	if err != nil {
		return cards.Card{}, fmt.Errorf("store daily card: %w", err)
	}
	return card, nil
}

// AdviceCard draws a random advice card, enforcing the daily limit. The
// counter resets on the first draw of a new bot day; the limit check and the
// increment happen in one conditional update so concurrent draws cannot
// exceed the limit.
func (s *SpreadService) AdviceCard(ctx context.Context, userID int64) (cards.Card, error) {
	if len(s.adviceDeck) == 0 {
		return cards.Card{}, models.ErrEmptyCatalog
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&exists)
	if err != nil {
		return cards.Card{}, err
	}
	if exists == 0 {
		return cards.Card{}, models.ErrUserNotFound
	}

	today := s.today()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET daily_advice_count = CASE WHEN advice_last_date = ? THEN daily_advice_count + 1 ELSE 1 END,
		    advice_last_date = ?
		WHERE id = ? AND (advice_last_date <> ? OR daily_advice_count < ?)`,
		today, today, userID, today, AdviceDailyLimit)
	if err != nil {
		return cards.Card{}, fmt.Errorf("count advice draw: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cards.Card{}, err
	}
	if n == 0 {
		return cards.Card{}, models.ErrAdviceLimit
	}

	return s.adviceDeck[s.rng.Intn(len(s.adviceDeck))], nil
}

// YearEnergyCard returns the user's card for the "Energy of the Year"
// spread. The first call picks a card uniformly at random from catalog and
// persists it; every later call returns the stored value unchanged. The
// write is conditional on the column still being unset, so concurrent first
// calls settle on a single winner and the losers re-read the winning value.
// Transient storage failures are retried once with a short backoff.
func (s *SpreadService) YearEnergyCard(ctx context.Context, userID int64, catalog []string) (string, error) {
	if len(catalog) == 0 {
		return "", models.ErrEmptyCatalog
	}

	stored, err := s.readYearEnergyCard(ctx, userID)
	if err != nil {
		return "", err
	}
	if stored != "" {
		return stored, nil
	}

	chosen := catalog[s.rng.Intn(len(catalog))]

	var won bool
	err = withRetry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE users SET year_energy_card = ?
			WHERE id = ? AND (year_energy_card IS NULL OR year_energy_card = '')`,
			chosen, userID)
		if err != nil {
			return retry.RetryableError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return retry.RetryableError(err)
		}
		won = n == 1
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("assign year energy card: %w", err)
	}
	if won {
		return chosen, nil
	}

	// Lost the race: another request assigned the card between our read and
	// write. The stored value is the one that counts.
	stored, err = s.readYearEnergyCard(ctx, userID)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", fmt.Errorf("year energy card for user %d is unset after conditional write", userID)
	}
	log.Debug().Int64("user_id", userID).Str("card", stored).
		Msg("year energy card already assigned concurrently")
	return stored, nil
}

func (s *SpreadService) readYearEnergyCard(ctx context.Context, userID int64) (string, error) {
	var stored sql.NullString
	err := withRetry(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			"SELECT year_energy_card FROM users WHERE id = ?", userID)
		if err := row.Scan(&stored); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrUserNotFound
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", models.ErrUserNotFound
		}
		return "", fmt.Errorf("read year energy card: %w", err)
	}
	return stored.String, nil
}

// ThreeCards charges the spread price and draws three distinct cards from
// the day deck. The charge is a conditional update, so a balance never goes
// negative. Callers that fail to deliver the reading should refund with
// RefundThreeCards.
func (s *SpreadService) ThreeCards(ctx context.Context, userID int64) ([]cards.Card, error) {
	if len(s.dayDeck) < 3 {
		return nil, models.ErrEmptyCatalog
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, models.ErrUserNotFound
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET fish_balance = fish_balance - ? WHERE id = ? AND fish_balance >= ?",
		ThreeCardsCost, userID, ThreeCardsCost)
	if err != nil {
		return nil, fmt.Errorf("charge three-card spread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, models.ErrInsufficientFish
	}

	return s.draw(3), nil
}

// RefundThreeCards returns the spread price to the user, for when the
// reading could not be generated after a successful charge.
func (s *SpreadService) RefundThreeCards(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET fish_balance = fish_balance + ? WHERE id = ?",
		ThreeCardsCost, userID)
	return err
}

// draw picks n distinct cards via a partial Fisher-Yates shuffle.
func (s *SpreadService) draw(n int) []cards.Card {
	indices := make([]int, len(s.dayDeck))
	for i := range indices {
		indices[i] = i
	}
	for i := len(indices) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	drawn := make([]cards.Card, n)
	for i := range drawn {
		drawn[i] = s.dayDeck[indices[i]]
	}
	return drawn
}
