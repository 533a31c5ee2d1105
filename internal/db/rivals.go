package db

import (
	"context"
	"fmt"
)

// GetOrCreateRival returns the user's adversary counter, creating a level-1
// shadow on first use.
func (s *Store) GetOrCreateRival(ctx context.Context, userID, defaultName string) (*Rival, error) {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO rivals (user_id, name) VALUES (?, ?)", userID, defaultName)
	if err != nil {
		return nil, fmt.Errorf("creating rival: %w", err)
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT user_id, name, level, xp, last_updated FROM rivals WHERE user_id = ?", userID)
	var r Rival
	if err := row.Scan(&r.UserID, &r.Name, &r.Level, &r.XP, &r.LastUpdated); err != nil {
		return nil, fmt.Errorf("getting rival: %w", err)
	}
	return &r, nil
}

func (s *Store) SaveRival(ctx context.Context, r *Rival) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE rivals SET name = ?, level = ?, xp = ?, last_updated = ? WHERE user_id = ?",
		r.Name, r.Level, r.XP, r.LastUpdated, r.UserID)
	if err != nil {
		return fmt.Errorf("saving rival: %w", err)
	}
	return nil
}

// ListHabitStates returns the user's tracked habits.
func (s *Store) ListHabitStates(ctx context.Context, userID string) ([]HabitState, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, habit_tag, habit_name, tier, ema_p, last_zone,
			zone_streak_days, last_outcome_date, current_tier, exp
		FROM habit_states WHERE user_id = ? ORDER BY habit_tag ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing habit states: %w", err)
	}
	defer rows.Close()

	var out []HabitState
	for rows.Next() {
		var h HabitState
		if err := rows.Scan(&h.ID, &h.UserID, &h.HabitTag, &h.HabitName, &h.Tier,
			&h.EmaP, &h.LastZone, &h.ZoneStreakDays, &h.LastOutcomeDate,
			&h.CurrentTier, &h.Exp); err != nil {
			return nil, fmt.Errorf("scanning habit state: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpsertHabitState creates or replaces a habit row keyed by (user, tag).
func (s *Store) UpsertHabitState(ctx context.Context, h *HabitState) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO habit_states (user_id, habit_tag, habit_name, tier, ema_p,
			last_zone, zone_streak_days, last_outcome_date, current_tier, exp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, habit_tag) DO UPDATE SET
			habit_name = excluded.habit_name, tier = excluded.tier,
			ema_p = excluded.ema_p, last_zone = excluded.last_zone,
			zone_streak_days = excluded.zone_streak_days,
			last_outcome_date = excluded.last_outcome_date,
			current_tier = excluded.current_tier, exp = excluded.exp`,
		h.UserID, h.HabitTag, h.HabitName, h.Tier, h.EmaP,
		h.LastZone, h.ZoneStreakDays, h.LastOutcomeDate, h.CurrentTier, h.Exp)
	if err != nil {
		return fmt.Errorf("upserting habit state: %w", err)
	}
	return nil
}
