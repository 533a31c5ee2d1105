package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertDailyOutcome records the end-of-day result. The (user, date,
// is_global) uniqueness makes repeated night evaluations idempotent.
func (s *Store) UpsertDailyOutcome(ctx context.Context, o *DailyOutcome) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO daily_outcomes (user_id, date, is_global, done, rescue_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date, is_global)
		DO UPDATE SET done = excluded.done, rescue_used = excluded.rescue_used`,
		o.UserID, o.Date, boolToInt(o.IsGlobal), boolToInt(o.Done), boolToInt(o.RescueUsed))
	if err != nil {
		return fmt.Errorf("upserting daily outcome: %w", err)
	}
	return nil
}

// GetDailyOutcome returns the global outcome row for a local date, or nil.
func (s *Store) GetDailyOutcome(ctx context.Context, userID, date string) (*DailyOutcome, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT user_id, date, is_global, done, rescue_used FROM daily_outcomes WHERE user_id = ? AND date = ? AND is_global = 1",
		userID, date)
	var o DailyOutcome
	var isGlobal, done, rescue int
	err := row.Scan(&o.UserID, &o.Date, &isGlobal, &done, &rescue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting daily outcome: %w", err)
	}
	o.IsGlobal = isGlobal == 1
	o.Done = done == 1
	o.RescueUsed = rescue == 1
	return &o, nil
}
