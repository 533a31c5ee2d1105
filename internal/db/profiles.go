package db

import (
	"context"
	"fmt"
)

// GetOrCreatePushProfile returns the per-user push profile, creating the
// default row on first use.
func (s *Store) GetOrCreatePushProfile(ctx context.Context, userID string) (*PushProfile, error) {
	_, err := s.q.ExecContext(ctx, "INSERT OR IGNORE INTO push_profiles (user_id) VALUES (?)", userID)
	if err != nil {
		return nil, fmt.Errorf("creating push profile: %w", err)
	}
	row := s.q.QueryRowContext(ctx, `
		SELECT user_id, morning_time, midday_time, night_time,
			last_morning_date, last_midday_date, last_night_date
		FROM push_profiles WHERE user_id = ?`, userID)
	var p PushProfile
	if err := row.Scan(&p.UserID, &p.MorningTime, &p.MiddayTime, &p.NightTime,
		&p.LastMorningDate, &p.LastMiddayDate, &p.LastNightDate); err != nil {
		return nil, fmt.Errorf("getting push profile: %w", err)
	}
	return &p, nil
}

// Push slots.
const (
	SlotMorning = "morning"
	SlotMidday  = "midday"
	SlotNight   = "night"
)

// StampPushSlot records that a slot fired on the given local date. The
// last-sent date only moves forward.
func (s *Store) StampPushSlot(ctx context.Context, userID, slot, localDate string) error {
	var col string
	switch slot {
	case SlotMorning:
		col = "last_morning_date"
	case SlotMidday:
		col = "last_midday_date"
	case SlotNight:
		col = "last_night_date"
	default:
		return fmt.Errorf("unknown push slot %q", slot)
	}
	_, err := s.q.ExecContext(ctx,
		"UPDATE push_profiles SET "+col+" = ? WHERE user_id = ? AND "+col+" < ?",
		localDate, userID, localDate)
	if err != nil {
		return fmt.Errorf("stamping %s slot: %w", slot, err)
	}
	return nil
}

// GetOrCreatePIDState returns the controller state for a user. The
// INSERT OR IGNORE serializes racing creators: the loser's insert is a no-op
// and the follow-up read observes the winner's row.
func (s *Store) GetOrCreatePIDState(ctx context.Context, userID string) (*PIDState, error) {
	_, err := s.q.ExecContext(ctx, "INSERT OR IGNORE INTO pid_states (user_id) VALUES (?)", userID)
	if err != nil {
		return nil, fmt.Errorf("creating pid state: %w", err)
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT user_id, integral, last_error, last_rescue_at FROM pid_states WHERE user_id = ?", userID)
	var p PIDState
	if err := row.Scan(&p.UserID, &p.Integral, &p.LastError, &p.LastRescueAt); err != nil {
		return nil, fmt.Errorf("getting pid state: %w", err)
	}
	return &p, nil
}

// SavePIDState persists the integral and last error after a controller step.
func (s *Store) SavePIDState(ctx context.Context, p *PIDState) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE pid_states SET integral = ?, last_error = ? WHERE user_id = ?",
		p.Integral, p.LastError, p.UserID)
	if err != nil {
		return fmt.Errorf("saving pid state: %w", err)
	}
	return nil
}

// StampRescue records when the churn rescue last fired for the user.
func (s *Store) StampRescue(ctx context.Context, userID, at string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE pid_states SET last_rescue_at = ? WHERE user_id = ?", at, userID)
	if err != nil {
		return fmt.Errorf("stamping rescue: %w", err)
	}
	return nil
}
