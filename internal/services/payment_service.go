package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/netebla/Milky-Tarot/internal/models"
)

// PaymentServiceProvider defines the interface for payment services.
type PaymentServiceProvider interface {
	Create(ctx context.Context, p models.Payment) (models.Payment, error)
	GetByID(ctx context.Context, id int64) (models.Payment, error)
	UpdateStatus(ctx context.Context, id int64, status, method string) error
	Settle(ctx context.Context, id int64, method string) (bool, int, error)
}

// PaymentService stores payments and credits fish for the succeeded ones.
type PaymentService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(db *sql.DB) *PaymentService {
	return &PaymentService{db: db, now: time.Now}
}

// Create stores a freshly created provider payment and returns it with the
// local ID filled in.
func (s *PaymentService) Create(ctx context.Context, p models.Payment) (models.Payment, error) {
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = models.PaymentPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (user_id, yookassa_payment_id, amount_rub, fish_amount, status, method, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.YookassaID, p.AmountRub, p.FishAmount, p.Status, p.Method, p.Description,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return models.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return models.Payment{}, err
	}
	return p, nil
}

// GetByID retrieves a payment by its local ID.
func (s *PaymentService) GetByID(ctx context.Context, id int64) (models.Payment, error) {
	var (
		p       models.Payment
		created int64
		updated int64
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, yookassa_payment_id, amount_rub, fish_amount, status, method, description, created_at, updated_at
		FROM payments WHERE id = ?`, id)
	err := row.Scan(&p.ID, &p.UserID, &p.YookassaID, &p.AmountRub, &p.FishAmount,
		&p.Status, &p.Method, &p.Description, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Payment{}, models.ErrPaymentNotFound
		}
		return models.Payment{}, err
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// UpdateStatus records a provider status that does not credit anything
// (pending, canceled). Succeeded payments go through Settle instead.
func (s *PaymentService) UpdateStatus(ctx context.Context, id int64, status, method string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = ?, method = CASE WHEN ? <> '' THEN ? ELSE method END, updated_at = ?
		WHERE id = ?`,
		status, method, method, toMillis(s.now()), id)
	return err
}

// Settle marks the payment succeeded and credits its fish to the user's
// balance. The status flip is conditional, so when the background checker
// and a manual check race, only one of them credits; the other sees
// credited=false. Returns whether this call credited and the user's balance.
func (s *PaymentService) Settle(ctx context.Context, id int64, method string) (bool, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = ?, method = CASE WHEN ? <> '' THEN ? ELSE method END, updated_at = ?
		WHERE id = ? AND status <> ?`,
		models.PaymentSucceeded, method, method, toMillis(s.now()), id, models.PaymentSucceeded)
	if err != nil {
		return false, 0, fmt.Errorf("mark payment succeeded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}

	var userID int64
	var fishAmount int
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, fish_amount FROM payments WHERE id = ?", id).
		Scan(&userID, &fishAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, models.ErrPaymentNotFound
	}
	if err != nil {
		return false, 0, err
	}

	credited := n == 1
	if credited {
		if _, err = tx.ExecContext(ctx,
			"UPDATE users SET fish_balance = fish_balance + ? WHERE id = ?",
			fishAmount, userID); err != nil {
			return false, 0, fmt.Errorf("credit fish: %w", err)
		}
	}

	var balance int
	err = tx.QueryRowContext(ctx,
		"SELECT fish_balance FROM users WHERE id = ?", userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("payment %d: %w", id, models.ErrUserNotFound)
	}
	if err != nil {
		return false, 0, err
	}

	if err = tx.Commit(); err != nil {
		return false, 0, err
	}
	return credited, balance, nil
}
