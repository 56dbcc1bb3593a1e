package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DTMBX/evident/internal/models"
)

// UsageDB handles database operations for per-user monthly usage counters,
// the durable store backing internal/quota's enforcement decisions.
type UsageDB struct {
	db *sql.DB
}

// NewUsageDB creates a new UsageDB bound to an open connection pool.
func NewUsageDB(db *sql.DB) *UsageDB {
	return &UsageDB{db: db}
}

func yearMonth(t time.Time) string {
	return t.Format("2006-01")
}

// Get retrieves the current month's counters for a user, returning a
// zeroed counter (never an error) if the month has no activity yet.
func (u *UsageDB) Get(ctx context.Context, userID string) (*models.UsageCounter, error) {
	ym := yearMonth(time.Now())
	counter := &models.UsageCounter{UserID: userID, YearMonth: ym}

	row := u.db.QueryRowContext(ctx, `
		SELECT pdf_documents_processed, videos_processed, video_hours, transcription_minutes, api_calls, cases_created
		FROM usage_counters WHERE user_id = $1 AND year_month = $2
	`, userID, ym)

	err := row.Scan(&counter.PDFDocumentsProcessed, &counter.VideosProcessed, &counter.VideoHours,
		&counter.TranscriptionMinutes, &counter.APICalls, &counter.CasesCreated)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load usage counters: %w", err)
	}
	return counter, nil
}

// Increment atomically bumps a single counter for the current month,
// creating the month's row on first use. amount is added as-is — integer
// counters pass whole numbers, VideoHours/TranscriptionMinutes pass floats.
func (u *UsageDB) Increment(ctx context.Context, userID string, counter models.CounterName, amount float64) error {
	ym := yearMonth(time.Now())
	column := string(counter)

	query := fmt.Sprintf(`
		INSERT INTO usage_counters (user_id, year_month, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, year_month) DO UPDATE SET %s = usage_counters.%s + $3
	`, column, column, column)

	_, err := u.db.ExecContext(ctx, query, userID, ym, amount)
	if err != nil {
		return fmt.Errorf("failed to increment usage counter %s: %w", column, err)
	}
	return nil
}
