// ABOUTME: SQLite implementation for run usage tracking
// ABOUTME: Counts runs per principal per calendar month for quota checks

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IncrementRunUsage adds one run for the principal in the period and returns the new total.
func (s *SQLiteStore) IncrementRunUsage(ctx context.Context, principal, period string) (int, error) {
	query := `
		INSERT INTO run_usage (principal, period, runs, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(principal, period) DO UPDATE SET
			runs = runs + 1,
			updated_at = excluded.updated_at
		RETURNING runs
	`

	var runs int
	err := s.db.QueryRowContext(ctx, query, principal, period, formatTime(time.Now())).Scan(&runs)
	if err != nil {
		return 0, fmt.Errorf("incrementing run usage: %w", err)
	}

	s.logger.Debug("recorded run usage", "principal", principal, "period", period, "runs", runs)
	return runs, nil
}

// GetRunUsage returns the number of runs recorded for the principal in the period.
// A principal with no recorded runs has zero usage.
func (s *SQLiteStore) GetRunUsage(ctx context.Context, principal, period string) (int, error) {
	var runs int
	err := s.db.QueryRowContext(ctx,
		`SELECT runs FROM run_usage WHERE principal = ? AND period = ?`, principal, period,
	).Scan(&runs)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying run usage: %w", err)
	}
	return runs, nil
}

// UsagePeriod returns the YYYY-MM period key for t.
func UsagePeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Ensure SQLiteStore implements UsageStore interface.
var _ UsageStore = (*SQLiteStore)(nil)
