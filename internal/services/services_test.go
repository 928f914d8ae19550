package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netebla/Milky-Tarot/internal/cards"
	"github.com/netebla/Milky-Tarot/internal/database"
)

// fixedRNG always picks the same index.
type fixedRNG struct{ val int }

func (r fixedRNG) Intn(n int) int { return r.val % n }

// seqRNG returns values from a pre-set sequence.
type seqRNG struct {
	values []int
	idx    int
}

func (r *seqRNG) Intn(n int) int {
	v := r.values[r.idx%len(r.values)] % n
	r.idx++
	return v
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func testDeck() []cards.Card {
	return []cards.Card{
		{Title: "Солнце", Description: "Ясный день."},
		{Title: "Луна", Description: "Туманный день."},
		{Title: "Звезда", Description: "День надежды."},
		{Title: "Шут", Description: "День начала."},
	}
}

func moscow(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	return loc
}

func insertUser(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO users (id, username, registered_at) VALUES (?, ?, ?)",
		id, "tester", time.Now().UnixMilli())
	require.NoError(t, err)
}
