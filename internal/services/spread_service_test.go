package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/models"
)

func newSpreadService(t *testing.T, rng RNG) (*SpreadService, *UserService) {
	t.Helper()
	db := newTestDB(t)
	loc := moscow(t)
	return NewSpreadService(db, testDeck(), testDeck(), rng, loc), NewUserService(db, loc)
}

func catalogTitles() []string {
	return []string{"Солнце", "Луна", "Звезда"}
}

func TestYearEnergyCardAssignsOnce(t *testing.T) {
	svc, users := newSpreadService(t, fixedRNG{val: 1})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	first, err := svc.YearEnergyCard(ctx, 100, catalogTitles())
	require.NoError(t, err)
	assert.Contains(t, catalogTitles(), first)

	second, err := svc.YearEnergyCard(ctx, 100, catalogTitles())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestYearEnergyCardKeepsStoredValue(t *testing.T) {
	// Even with an RNG that would pick a different card, the stored value
	// wins and no further write happens.
	svc, users := newSpreadService(t, fixedRNG{val: 0})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	_, err = svc.db.Exec("UPDATE users SET year_energy_card = ? WHERE id = ?", "Луна", 100)
	require.NoError(t, err)

	for range 5 {
		got, err := svc.YearEnergyCard(ctx, 100, catalogTitles())
		require.NoError(t, err)
		assert.Equal(t, "Луна", got)
	}
}

func TestYearEnergyCardKeepsStaleValue(t *testing.T) {
	// A stored card that is no longer in the catalog is still returned
	// unchanged: assignments never re-roll.
	svc, users := newSpreadService(t, fixedRNG{val: 0})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	_, err = svc.db.Exec("UPDATE users SET year_energy_card = ? WHERE id = ?", "Выбывшая Карта", 100)
	require.NoError(t, err)

	got, err := svc.YearEnergyCard(ctx, 100, catalogTitles())
	require.NoError(t, err)
	assert.Equal(t, "Выбывшая Карта", got)
}

func TestYearEnergyCardEmptyCatalog(t *testing.T) {
	svc, users := newSpreadService(t, fixedRNG{val: 0})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	_, err = svc.YearEnergyCard(ctx, 100, nil)
	require.ErrorIs(t, err, models.ErrEmptyCatalog)

	// No write happened.
	user, err := users.GetUserByID(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, user.YearEnergyCard)
}

func TestYearEnergyCardUnknownUser(t *testing.T) {
	svc, _ := newSpreadService(t, fixedRNG{val: 0})

	_, err := svc.YearEnergyCard(context.Background(), 999, catalogTitles())
	require.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestYearEnergyCardConcurrentSingleWinner(t *testing.T) {
	db := newTestDB(t)
	loc := moscow(t)
	users := NewUserService(db, loc)
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	const workers = 16
	results := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		// Every worker gets its own RNG picking a different index, so a
		// broken implementation would persist different cards.
		svc := NewSpreadService(db, testDeck(), testDeck(), fixedRNG{val: i}, loc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.YearEnergyCard(ctx, 100, catalogTitles())
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}

	var stored string
	require.NoError(t, db.QueryRow(
		"SELECT year_energy_card FROM users WHERE id = ?", 100).Scan(&stored))
	assert.Equal(t, results[0], stored)
}

func TestDailyCardStickyWithinDay(t *testing.T) {
	svc, users := newSpreadService(t, &seqRNG{values: []int{0, 1, 2, 3}})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	first, err := svc.DailyCard(ctx, 100)
	require.NoError(t, err)

	second, err := svc.DailyCard(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, first.Title, second.Title)

	user, err := users.GetUserByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, user.DrawCount)
	assert.Equal(t, first.Title, user.LastCard)
}

func TestDailyCardRollsOverOnNewDay(t *testing.T) {
	svc, users := newSpreadService(t, &seqRNG{values: []int{0, 1}})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	day1 := time.Date(2026, 1, 10, 12, 0, 0, 0, svc.loc)
	svc.now = func() time.Time { return day1 }
	first, err := svc.DailyCard(ctx, 100)
	require.NoError(t, err)

	svc.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	second, err := svc.DailyCard(ctx, 100)
	require.NoError(t, err)
	assert.NotEqual(t, first.Title, second.Title)

	user, err := users.GetUserByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, user.DrawCount)
}

func TestDailyCardUnknownUser(t *testing.T) {
	svc, _ := newSpreadService(t, fixedRNG{val: 0})

	_, err := svc.DailyCard(context.Background(), 999)
	require.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestAdviceCardDailyLimit(t *testing.T) {
	svc, users := newSpreadService(t, &seqRNG{values: []int{0, 1, 2}})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	day1 := time.Date(2026, 1, 10, 12, 0, 0, 0, svc.loc)
	svc.now = func() time.Time { return day1 }

	for range AdviceDailyLimit {
		_, err := svc.AdviceCard(ctx, 100)
		require.NoError(t, err)
	}

	_, err = svc.AdviceCard(ctx, 100)
	require.ErrorIs(t, err, models.ErrAdviceLimit)

	// A new day resets the counter.
	svc.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	_, err = svc.AdviceCard(ctx, 100)
	require.NoError(t, err)
}

func TestAdviceCardUnknownUser(t *testing.T) {
	svc, _ := newSpreadService(t, fixedRNG{val: 0})

	_, err := svc.AdviceCard(context.Background(), 999)
	require.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestThreeCardsChargesAndDrawsDistinct(t *testing.T) {
	svc, users := newSpreadService(t, &seqRNG{values: []int{3, 2, 1, 0}})
	ctx := context.Background()
	_, err := users.EnsureUser(ctx, 100, "u", "")
	require.NoError(t, err)

	_, err = svc.ThreeCards(ctx, 100)
	require.ErrorIs(t, err, models.ErrInsufficientFish)

	_, err = users.AddFish(ctx, 100, ThreeCardsCost)
	require.NoError(t, err)

	drawn, err := svc.ThreeCards(ctx, 100)
	require.NoError(t, err)
	require.Len(t, drawn, 3)

	seen := map[string]bool{}
	for _, c := range drawn {
		assert.False(t, seen[c.Title], "card %s drawn twice", c.Title)
		seen[c.Title] = true
		_, ok := cards.Find(testDeck(), c.Title)
		assert.True(t, ok)
	}

	user, err := users.GetUserByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, user.FishBalance)

	require.NoError(t, svc.RefundThreeCards(ctx, 100))
	user, err = users.GetUserByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, ThreeCardsCost, user.FishBalance)
}
