package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const questColumns = `id, user_id, COALESCE(goal_id,''), title, description, tier,
	quest_type, status, xp_reward, scheduled_date, is_redemption, meta, created_at`

func (s *Store) InsertQuest(ctx context.Context, q *Quest) error {
	meta := q.Meta
	if meta == "" {
		meta = "{}"
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO quests (id, user_id, goal_id, title, description, tier,
			quest_type, status, xp_reward, scheduled_date, is_redemption, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, nullStr(q.GoalID), q.Title, q.Description, q.Tier,
		q.QuestType, q.Status, q.XPReward, q.ScheduledDate, boolToInt(q.IsRedemption),
		meta, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting quest: %w", err)
	}
	return nil
}

// GetQuest returns nil when the quest does not exist.
func (s *Store) GetQuest(ctx context.Context, id string) (*Quest, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+questColumns+" FROM quests WHERE id = ?", id)
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting quest %s: %w", id, err)
	}
	return q, nil
}

// ListTodayQuests returns the batch scheduled for a local date, in creation
// order. Quests inserted in one batch share a created_at, so the rowid breaks
// the tie by insertion order.
func (s *Store) ListTodayQuests(ctx context.Context, userID, localDate string) ([]Quest, error) {
	return s.scanQuests(ctx,
		"SELECT "+questColumns+" FROM quests WHERE user_id = ? AND scheduled_date = ? ORDER BY created_at ASC, rowid ASC",
		userID, localDate)
}

// ListActiveQuests returns all ACTIVE quests for a user.
func (s *Store) ListActiveQuests(ctx context.Context, userID string) ([]Quest, error) {
	return s.scanQuests(ctx,
		"SELECT "+questColumns+" FROM quests WHERE user_id = ? AND status = ? ORDER BY created_at ASC, rowid ASC",
		userID, StatusActive)
}

// ListTerminalQuests returns the most recent DONE/FAILED quests, newest first.
func (s *Store) ListTerminalQuests(ctx context.Context, userID string, limit int) ([]Quest, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.scanQuests(ctx,
		"SELECT "+questColumns+" FROM quests WHERE user_id = ? AND status IN (?, ?) ORDER BY created_at DESC, rowid DESC LIMIT ?",
		userID, StatusDone, StatusFailed, limit)
}

// ListCompletedSince returns DONE quests created on or after the given local date.
func (s *Store) ListCompletedSince(ctx context.Context, userID, sinceDate string) ([]Quest, error) {
	return s.scanQuests(ctx,
		"SELECT "+questColumns+" FROM quests WHERE user_id = ? AND status = ? AND date(created_at) >= ? ORDER BY created_at ASC, rowid ASC",
		userID, StatusDone, sinceDate)
}

// LastQuestForGoal returns the most recent quest attached to a goal, or nil.
func (s *Store) LastQuestForGoal(ctx context.Context, goalID string) (*Quest, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+questColumns+" FROM quests WHERE goal_id = ? ORDER BY created_at DESC LIMIT 1", goalID)
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last quest for goal %s: %w", goalID, err)
	}
	return q, nil
}

// UpdateQuestStatus sets a quest's status unconditionally.
func (s *Store) UpdateQuestStatus(ctx context.Context, id, status string) error {
	_, err := s.q.ExecContext(ctx, "UPDATE quests SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("updating quest %s status: %w", id, err)
	}
	return nil
}

// MarkQuestDone transitions PENDING/ACTIVE to DONE. Returns false when the
// quest was already terminal, so a concurrent second completion no-ops.
func (s *Store) MarkQuestDone(ctx context.Context, id string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE quests SET status = ? WHERE id = ? AND status IN (?, ?)",
		StatusDone, id, StatusActive, StatusPending)
	if err != nil {
		return false, fmt.Errorf("completing quest %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteTodayNonDone removes every quest on the given local date that is not
// DONE, returning how many were deleted.
func (s *Store) DeleteTodayNonDone(ctx context.Context, userID, localDate string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM quests WHERE user_id = ? AND scheduled_date = ? AND status != ?",
		userID, localDate, StatusDone)
	if err != nil {
		return 0, fmt.Errorf("deleting today's quests: %w", err)
	}
	return res.RowsAffected()
}

// AcceptAllPending flips PENDING quests to ACTIVE and returns the count.
func (s *Store) AcceptAllPending(ctx context.Context, userID string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE quests SET status = ? WHERE user_id = ? AND status = ?",
		StatusActive, userID, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("accepting pending quests: %w", err)
	}
	return res.RowsAffected()
}

// BulkAdjustSideQuests retiers every ACTIVE SIDE quest and resets its reward
// to the tier baseline. Returns the number of rows touched.
func (s *Store) BulkAdjustSideQuests(ctx context.Context, userID, tier string, baseXP int) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE quests SET tier = ?, xp_reward = ? WHERE user_id = ? AND status = ? AND quest_type = ?",
		tier, baseXP, userID, StatusActive, TypeSide)
	if err != nil {
		return 0, fmt.Errorf("bulk adjusting quests: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) scanQuests(ctx context.Context, query string, args ...any) ([]Quest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying quests: %w", err)
	}
	defer rows.Close()

	var out []Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning quest: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func scanQuest(r rowScanner) (*Quest, error) {
	var q Quest
	var redemption int
	err := r.Scan(&q.ID, &q.UserID, &q.GoalID, &q.Title, &q.Description, &q.Tier,
		&q.QuestType, &q.Status, &q.XPReward, &q.ScheduledDate, &redemption,
		&q.Meta, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.IsRedemption = redemption == 1
	return &q, nil
}
