// Package services holds the business logic of the bot, one service per
// area, all working against the shared SQLite database.
package services

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RNG abstracts random number generation for deterministic testing.
type RNG interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

// DayFormat is how bot-local calendar days are stored in the database.
const DayFormat = "2006-01-02"

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// withRetry runs op, retrying once with a short backoff. Ops must mark
// transient failures with retry.RetryableError; domain errors pass through
// untouched.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(150*time.Millisecond))
	return retry.Do(ctx, b, op)
}
