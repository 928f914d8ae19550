package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/netebla/Milky-Tarot/internal/models"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	EnsureUser(ctx context.Context, id int64, username, displayName string) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	TouchActivity(ctx context.Context, id int64) error
	SetPushTime(ctx context.Context, id int64, pushTime string) error
	SetPushEnabled(ctx context.Context, id int64, enabled bool) error
	AddFish(ctx context.Context, id int64, amount int) (int, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// UserService provides business logic for user management.
type UserService struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

// NewUserService creates a new UserService. All calendar-day bookkeeping
// rolls over on midnight in loc.
func NewUserService(db *sql.DB, loc *time.Location) *UserService {
	return &UserService{db: db, loc: loc, now: time.Now}
}

func (s *UserService) today() string {
	return s.now().In(s.loc).Format(DayFormat)
}

const userColumns = `id, username, display_name, registered_at, push_time, push_enabled,
	last_card, last_card_date, last_activity_date, draw_count,
	daily_advice_count, advice_last_date, fish_balance, year_energy_card`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var (
		user         models.User
		registeredAt int64
		yearCard     sql.NullString
	)
	err := row.Scan(
		&user.ID, &user.Username, &user.DisplayName, &registeredAt,
		&user.PushTime, &user.PushEnabled,
		&user.LastCard, &user.LastCardDate, &user.LastActivityDate, &user.DrawCount,
		&user.DailyAdviceCount, &user.AdviceLastDate, &user.FishBalance, &yearCard,
	)
	if err != nil {
		return models.User{}, err
	}
	user.RegisteredAt = fromMillis(registeredAt)
	user.YearEnergyCard = yearCard.String
	return user, nil
}

// EnsureUser creates the user record on first contact and refreshes the
// Telegram profile fields on every later one. Returns the stored record.
func (s *UserService) EnsureUser(ctx context.Context, id int64, username, displayName string) (models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, registered_at, push_time, push_enabled, last_activity_date)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END`,
		id, username, displayName, toMillis(s.now()), models.DefaultPushTime, s.today(),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("ensure user %d: %w", id, err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a single user by their Telegram ID.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// ListUsers returns every registered user, ordered by registration moment.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY registered_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// TouchActivity marks the user as active on the current bot day.
func (s *UserService) TouchActivity(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_activity_date = ? WHERE id = ?", s.today(), id)
	return err
}

// SetPushTime stores the user's daily push time as HH:MM.
func (s *UserService) SetPushTime(ctx context.Context, id int64, pushTime string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET push_time = ? WHERE id = ?", pushTime, id)
	if err != nil {
		return err
	}
	return s.requireHit(res, id)
}

// SetPushEnabled toggles the daily push for the user.
func (s *UserService) SetPushEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET push_enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return err
	}
	return s.requireHit(res, id)
}

// AddFish credits amount to the user's balance and returns the new balance.
func (s *UserService) AddFish(ctx context.Context, id int64, amount int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET fish_balance = fish_balance + ? WHERE id = ?", amount, id)
	if err != nil {
		return 0, err
	}
	if err := s.requireHit(res, id); err != nil {
		return 0, err
	}

	var balance int
	err = s.db.QueryRowContext(ctx,
		"SELECT fish_balance FROM users WHERE id = ?", id).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Stats aggregates the numbers shown by the admin stats command and exported
// on /metrics.
func (s *UserService) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(draw_count), 0), COALESCE(SUM(push_enabled), 0) FROM users").
		Scan(&stats.TotalUsers, &stats.TotalDraws, &stats.PushEnabled)
	if err != nil {
		return models.Stats{}, err
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE last_activity_date = ?", s.today()).
		Scan(&stats.ActiveToday)
	if err != nil {
		return models.Stats{}, err
	}
	return stats, nil
}

func (s *UserService) requireHit(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrUserNotFound)
	}
	return nil
}
