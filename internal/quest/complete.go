package quest

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chris/questd/internal/db"
	"github.com/chris/questd/internal/flow"
	"github.com/chris/questd/internal/reward"
)

const (
	bossDamagePerQuest = 50
	redemptionHealHP   = 10
	criticalHPBelow    = 25
)

// CompleteResult pairs the completed quest with its payout.
type CompleteResult struct {
	Quest *db.Quest
	Loot  reward.Loot
}

// Complete transitions a PENDING/ACTIVE quest to DONE and applies all side
// effects in one transaction. Completing an already-DONE quest is a no-op
// that returns (nil, nil).
func (s *Service) Complete(ctx context.Context, questID string) (*CompleteResult, error) {
	now := s.clk.Now()

	var result *CompleteResult
	var graphNodeID string

	err := s.store.WithTx(ctx, func(tx *db.Store) error {
		q, err := tx.GetQuest(ctx, questID)
		if err != nil {
			return err
		}
		if q == nil {
			return ErrNotFound
		}

		transitioned, err := tx.MarkQuestDone(ctx, questID)
		if err != nil {
			return err
		}
		if !transitioned {
			// Already terminal; a concurrent completion won.
			return nil
		}
		q.Status = db.StatusDone

		u, err := tx.GetUser(ctx, q.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("quest %s has no user %s", questID, q.UserID)
		}

		recent, err := s.recentOutcomesTx(ctx, tx, q.UserID)
		if err != nil {
			return err
		}
		churn := flow.ClassifyChurn(now, parseInstant(u.LastActiveAt), recent)

		pid, err := tx.GetOrCreatePIDState(ctx, q.UserID)
		if err != nil {
			return err
		}

		// Run the difficulty controller over the outcome history and persist
		// its state; the integral and last error carry into the next call.
		decision := flow.Decide(flow.Input{
			CurrentTier: flow.Tier(q.Tier),
			Recent:      recent,
			Churn:       churn,
			LastRescue:  parseInstant(pid.LastRescueAt),
			Now:         now,
		}, flow.PID{Integral: pid.Integral, LastError: pid.LastError})
		if decision.PIDUpdated {
			pid.Integral = decision.PID.Integral
			pid.LastError = decision.PID.LastError
			if err := tx.SavePIDState(ctx, pid); err != nil {
				return err
			}
		}
		s.log.Debug("difficulty step", "user", q.UserID, "next_tier", decision.Tier, "tone", decision.Tone)

		loot := s.loot.Roll(flow.Tier(q.Tier), churn, parseInstant(pid.LastRescueAt), now)

		u.XP += loot.XP
		u.Gold += loot.Gold
		u.LastActiveAt = now.Format(time.RFC3339)

		if q.QuestType == db.TypeRedemption && u.IsHollowed {
			u.HP = redemptionHealHP
			if u.HP > u.MaxHP {
				u.HP = u.MaxHP
			}
			u.IsHollowed = false
			u.HPStatus = db.HPRecovering
		} else {
			u.HP += flow.HPRestore[flow.Tier(q.Tier)]
			if u.HP > u.MaxHP {
				u.HP = u.MaxHP
			}
			u.HPStatus = hpStatus(u.HP, u.HPStatus)
			u.IsHollowed = u.HP == 0
		}

		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}

		rival, err := tx.GetOrCreateRival(ctx, q.UserID, "Shadow "+q.UserID)
		if err != nil {
			return err
		}
		rival.XP -= bossDamagePerQuest
		if rival.XP < 0 {
			rival.XP = 0
		}
		rival.LastUpdated = now.Format(time.RFC3339)
		if err := tx.SaveRival(ctx, rival); err != nil {
			return err
		}

		if loot.RescueFired {
			if err := tx.StampRescue(ctx, q.UserID, now.Format(time.RFC3339)); err != nil {
				return err
			}
		}

		graphNodeID = gjson.Get(q.Meta, "graph_node_id").String()
		result = &CompleteResult{Quest: q, Loot: loot}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	// Memory side effects are best-effort and stay outside the transaction.
	s.emitCompletion(ctx, result, graphNodeID)
	return result, nil
}

func (s *Service) emitCompletion(ctx context.Context, res *CompleteResult, graphNodeID string) {
	q := res.Quest
	if graphNodeID != "" {
		if err := s.graph.AddRelationship(ctx, q.UserID, "COMPLETED", graphNodeID); err != nil {
			s.log.Warn("graph edge failed", "quest", q.ID, "node", graphNodeID, "err", err)
		}
	}
	meta := map[string]any{"quest_id": q.ID, "tier": q.Tier, "xp": res.Loot.XP}
	if err := s.graph.RecordEvent(ctx, q.UserID, "QUEST_COMPLETE", meta); err != nil {
		s.log.Warn("graph event failed", "quest", q.ID, "err", err)
	}
	line := fmt.Sprintf("完成任務「%s」（%s 級，+%d XP）", q.Title, q.Tier, res.Loot.XP)
	if err := s.vector.AddMemory(ctx, q.UserID, line); err != nil {
		s.log.Warn("vector memory failed", "quest", q.ID, "err", err)
	}
}

func (s *Service) recentOutcomesTx(ctx context.Context, tx *db.Store, userID string) ([]bool, error) {
	terminal, err := tx.ListTerminalQuests(ctx, userID, 5)
	if err != nil {
		return nil, err
	}
	out := make([]bool, 0, len(terminal))
	for _, q := range terminal {
		out = append(out, q.Status == db.StatusDone)
	}
	return out, nil
}

func hpStatus(hp int, prev string) string {
	switch {
	case hp <= 0:
		return db.HPHollowed
	case hp < criticalHPBelow:
		return db.HPCritical
	case prev == db.HPRecovering && hp < 50:
		return db.HPRecovering
	default:
		return db.HPHealthy
	}
}

// RerollResult reports what a reroll produced.
type RerollResult struct {
	Quests    []db.Quest
	Discarded int64
	Taunt     string
}

// Reroll charges the configured cost, throws away today's unfinished quests
// and generates a fresh batch. With too little gold it returns
// ErrInsufficientGold and mutates nothing.
func (s *Service) Reroll(ctx context.Context, userID string) (*RerollResult, error) {
	u, err := s.store.GetOrCreateUser(ctx, userID, s.cfg.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	today := s.localDate(u)

	var discarded int64
	err = s.store.WithTx(ctx, func(tx *db.Store) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.Gold < s.cfg.RerollCost {
			return ErrInsufficientGold
		}
		u.Gold -= s.cfg.RerollCost
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		discarded, err = tx.DeleteTodayNonDone(ctx, userID, today)
		return err
	})
	if err != nil {
		return nil, err
	}

	quests, err := s.GenerateDaily(ctx, userID, ContextDaily)
	if err != nil {
		return nil, err
	}

	res := &RerollResult{Quests: quests, Discarded: discarded}
	if discarded > 0 {
		res.Taunt = s.narr.RerollTaunt(ctx, int(discarded))
	}
	return res, nil
}
