package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userColumns = `id, level, xp, gold, hp, max_hp, is_hollowed, hp_status,
	streak_count, COALESCE(last_active_at,''), push_enabled, push_timezone,
	push_morning, push_midday, push_night, penalty_pending, created_at`

// GetUser returns the user or nil when the row does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, nil
}

// GetOrCreateUser inserts a default row on first contact. Users are never
// destroyed.
func (s *Store) GetOrCreateUser(ctx context.Context, id, timezone string) (*User, error) {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (id, push_timezone) VALUES (?, ?)", id, timezone)
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", id, err)
	}
	return s.GetUser(ctx, id)
}

// SaveUser writes every mutable field back.
func (s *Store) SaveUser(ctx context.Context, u *User) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE users SET level = ?, xp = ?, gold = ?, hp = ?, max_hp = ?,
			is_hollowed = ?, hp_status = ?, streak_count = ?, last_active_at = ?,
			push_enabled = ?, push_timezone = ?, push_morning = ?, push_midday = ?,
			push_night = ?, penalty_pending = ?
		WHERE id = ?`,
		u.Level, u.XP, u.Gold, u.HP, u.MaxHP,
		boolToInt(u.IsHollowed), u.HPStatus, u.StreakCount, nullStr(u.LastActiveAt),
		boolToInt(u.PushEnabled), u.PushTimezone, u.PushMorning, u.PushMidday,
		u.PushNight, boolToInt(u.PenaltyPending), u.ID)
	if err != nil {
		return fmt.Errorf("saving user %s: %w", u.ID, err)
	}
	return nil
}

// ListUsers returns every user, for the push fan-out.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*User, error) {
	var u User
	var hollowed, pushEnabled, penalty int
	err := r.Scan(&u.ID, &u.Level, &u.XP, &u.Gold, &u.HP, &u.MaxHP, &hollowed, &u.HPStatus,
		&u.StreakCount, &u.LastActiveAt, &pushEnabled, &u.PushTimezone,
		&u.PushMorning, &u.PushMidday, &u.PushNight, &penalty, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.IsHollowed = hollowed == 1
	u.PushEnabled = pushEnabled == 1
	u.PenaltyPending = penalty == 1
	return &u, nil
}
