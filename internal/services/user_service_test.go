package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netebla/Milky-Tarot/internal/models"
)

func TestEnsureUserCreatesAndRefreshes(t *testing.T) {
	svc := NewUserService(newTestDB(t), moscow(t))
	ctx := context.Background()

	user, err := svc.EnsureUser(ctx, 100, "milky_fan", "Аня")
	require.NoError(t, err)
	assert.Equal(t, int64(100), user.ID)
	assert.Equal(t, "milky_fan", user.Username)
	assert.Equal(t, "Аня", user.DisplayName)
	assert.Equal(t, models.DefaultPushTime, user.PushTime)
	assert.True(t, user.PushEnabled)
	assert.Zero(t, user.FishBalance)
	assert.Empty(t, user.YearEnergyCard)

	// Re-ensuring refreshes the profile but keeps the registration moment.
	again, err := svc.EnsureUser(ctx, 100, "renamed", "")
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Username)
	assert.Equal(t, "Аня", again.DisplayName)
	assert.Equal(t, user.RegisteredAt, again.RegisteredAt)
}

func TestGetUserByIDNotFound(t *testing.T) {
	svc := NewUserService(newTestDB(t), moscow(t))

	_, err := svc.GetUserByID(context.Background(), 999)
	require.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestListUsers(t *testing.T) {
	svc := NewUserService(newTestDB(t), moscow(t))
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := svc.EnsureUser(ctx, id, "", "")
		require.NoError(t, err)
	}

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestPushSettings(t *testing.T) {
	svc := NewUserService(newTestDB(t), moscow(t))
	ctx := context.Background()
	_, err := svc.EnsureUser(ctx, 100, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetPushTime(ctx, 100, "18:00"))
	require.NoError(t, svc.SetPushEnabled(ctx, 100, false))

	user, err := svc.GetUserByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "18:00", user.PushTime)
	assert.False(t, user.PushEnabled)

	require.ErrorIs(t, svc.SetPushTime(ctx, 999, "18:00"), models.ErrUserNotFound)
	require.ErrorIs(t, svc.SetPushEnabled(ctx, 999, true), models.ErrUserNotFound)
}

func TestAddFish(t *testing.T) {
	svc := NewUserService(newTestDB(t), moscow(t))
	ctx := context.Background()
	_, err := svc.EnsureUser(ctx, 100, "", "")
	require.NoError(t, err)

	balance, err := svc.AddFish(ctx, 100, 350)
	require.NoError(t, err)
	assert.Equal(t, 350, balance)

	balance, err = svc.AddFish(ctx, 100, 150)
	require.NoError(t, err)
	assert.Equal(t, 500, balance)

	_, err = svc.AddFish(ctx, 999, 10)
	require.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, moscow(t))
	ctx := context.Background()

	today := time.Date(2026, 1, 10, 12, 0, 0, 0, svc.loc)
	svc.now = func() time.Time { return today }

	for _, id := range []int64{1, 2, 3} {
		_, err := svc.EnsureUser(ctx, id, "", "")
		require.NoError(t, err)
	}
	// Two users active today, one active yesterday.
	yesterday := today.AddDate(0, 0, -1).Format(DayFormat)
	_, err := db.Exec("UPDATE users SET last_activity_date = ? WHERE id = ?", yesterday, 3)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE users SET draw_count = 5 WHERE id = ?", 1)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE users SET draw_count = 2 WHERE id = ?", 2)
	require.NoError(t, err)
	require.NoError(t, svc.SetPushEnabled(ctx, 3, false))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 2, stats.ActiveToday)
	assert.Equal(t, 7, stats.TotalDraws)
	assert.Equal(t, 2, stats.PushEnabled)
}

func TestTouchActivity(t *testing.T) {
	svc := NewUserService(newTestDB(t), moscow(t))
	ctx := context.Background()
	_, err := svc.EnsureUser(ctx, 100, "", "")
	require.NoError(t, err)

	today := time.Date(2026, 3, 1, 9, 0, 0, 0, svc.loc)
	svc.now = func() time.Time { return today }
	require.NoError(t, svc.TouchActivity(ctx, 100))

	user, err := svc.GetUserByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", user.LastActivityDate)
}
