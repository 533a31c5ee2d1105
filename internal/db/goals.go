package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const goalColumns = `id, user_id, title, status, decomposition, created_at`

func (s *Store) InsertGoal(ctx context.Context, g *Goal) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO goals (id, user_id, title, status, decomposition, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		g.ID, g.UserID, g.Title, g.Status, g.Decomposition, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting goal: %w", err)
	}
	return nil
}

func (s *Store) GetGoal(ctx context.Context, id string) (*Goal, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+goalColumns+" FROM goals WHERE id = ?", id)
	var g Goal
	err := row.Scan(&g.ID, &g.UserID, &g.Title, &g.Status, &g.Decomposition, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting goal %s: %w", id, err)
	}
	return &g, nil
}

// ListActiveGoals returns the user's ACTIVE goals, oldest first.
func (s *Store) ListActiveGoals(ctx context.Context, userID string) ([]Goal, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+goalColumns+" FROM goals WHERE user_id = ? AND status = ? ORDER BY created_at ASC",
		userID, GoalActive)
	if err != nil {
		return nil, fmt.Errorf("listing goals: %w", err)
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.Status, &g.Decomposition, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) UpdateGoalStatus(ctx context.Context, id, status string) error {
	_, err := s.q.ExecContext(ctx, "UPDATE goals SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("updating goal %s: %w", id, err)
	}
	return nil
}
