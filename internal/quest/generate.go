package quest

import (
	"context"
	"sort"
	"time"

	"github.com/tidwall/sjson"

	"github.com/chris/questd/internal/clock"
	"github.com/chris/questd/internal/db"
	"github.com/chris/questd/internal/flow"
	"github.com/chris/questd/internal/memory"
	"github.com/chris/questd/internal/narrative"
)

const (
	serendipityChance = 0.20
	serendipityPrefix = "稀有｜"
	redemptionTitle   = "緊急修復任務"
)

// GenerateDaily builds today's quest batch for a user. Overrides short-circuit
// in order: hollowed recovery, boss challenge, then the normal DDA batch.
// Calling it when today's batch already exists returns the existing batch.
func (s *Service) GenerateDaily(ctx context.Context, userID string, tctx TimeContext) ([]db.Quest, error) {
	u, err := s.store.GetOrCreateUser(ctx, userID, s.cfg.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	today := s.localDate(u)

	existing, err := s.store.ListTodayQuests(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if len(existing) >= DailyQuestCount {
		return existing[:DailyQuestCount], nil
	}

	// Hollowed override: HP is gone, only a redemption quest can help.
	if len(existing) == 0 && (u.HP <= 0 || u.IsHollowed || u.HPStatus == db.HPHollowed) {
		q := db.Quest{
			ID:            newQuestID(),
			UserID:        userID,
			Title:         redemptionTitle,
			Description:   "HP 歸零。完成這個任務開始修復。",
			Tier:          string(flow.TierF),
			QuestType:     db.TypeRedemption,
			Status:        db.StatusActive,
			XPReward:      0,
			ScheduledDate: today,
			IsRedemption:  true,
			CreatedAt:     now.Format(time.RFC3339),
		}
		if err := s.store.InsertQuest(ctx, &q); err != nil {
			return nil, err
		}
		return []db.Quest{q}, nil
	}

	// Boss override: the rival has outgrown the user.
	if len(existing) == 0 && (tctx == ContextDaily || tctx == ContextMorning) {
		rival, err := s.store.GetOrCreateRival(ctx, userID, "Shadow "+userID)
		if err != nil {
			return nil, err
		}
		if rival.Level >= u.Level+2 {
			q := db.Quest{
				ID:            newQuestID(),
				UserID:        userID,
				Title:         "BOSS：" + rival.Name,
				Description:   s.narr.BossDescription(ctx, rival.Name, rival.Level),
				Tier:          string(flow.TierS),
				QuestType:     db.TypeMain,
				Status:        db.StatusActive,
				XPReward:      500,
				ScheduledDate: today,
				IsRedemption:  true,
				CreatedAt:     now.Format(time.RFC3339),
			}
			if err := s.store.InsertQuest(ctx, &q); err != nil {
				return nil, err
			}
			return []db.Quest{q}, nil
		}
	}

	// DDA sink: ease off after an unfinished day.
	targetTier := flow.TierD
	struggling := false
	yesterday := clockYesterday(now, u, s.cfg.DefaultTimezone)
	if outcome, err := s.store.GetDailyOutcome(ctx, userID, yesterday); err != nil {
		return nil, err
	} else if outcome != nil && !outcome.Done {
		targetTier = flow.TierE
		struggling = true
	}

	remaining := DailyQuestCount - len(existing)
	var batch []db.Quest

	// Graph injection: pull the best unlocked template, when there is room.
	if remaining >= 2 {
		if injected := s.injectTemplate(ctx, userID, today, now); injected != nil {
			batch = append(batch, *injected)
			remaining--
		}
	}

	specs := s.narr.QuestBatch(ctx, narrative.Envelope{
		UserID:     userID,
		TargetTier: targetTier,
		Struggling: struggling,
	}, remaining)

	if s.rollSerendipity() && len(specs) > 0 {
		specs[0].Title = serendipityPrefix + specs[0].Title
		if flow.BaseXP[specs[0].Tier] < flow.BaseXP[flow.TierC] {
			specs[0].Tier = flow.TierC
		}
		if specs[0].XP < 50 {
			specs[0].XP = 50
		}
	}

	for _, spec := range specs {
		batch = append(batch, db.Quest{
			ID:            newQuestID(),
			UserID:        userID,
			Title:         spec.Title,
			Description:   spec.Description,
			Tier:          string(spec.Tier),
			QuestType:     db.TypeSide,
			Status:        db.StatusActive,
			XPReward:      spec.XP,
			ScheduledDate: today,
			CreatedAt:     now.Format(time.RFC3339),
		})
	}

	err = s.store.WithTx(ctx, func(tx *db.Store) error {
		for i := range batch {
			if err := tx.InsertQuest(ctx, &batch[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := append(existing, batch...)
	if len(out) > DailyQuestCount {
		out = out[:DailyQuestCount]
	}
	return out, nil
}

// injectTemplate picks the top unlockable graph template, if any. Graph
// failures are logged and ignored.
func (s *Service) injectTemplate(ctx context.Context, userID, today string, now time.Time) *db.Quest {
	templates, err := s.graph.ListUnlockableTemplates(ctx, userID)
	if err != nil {
		s.log.Warn("graph unlockables lookup failed", "user", userID, "err", err)
		return nil
	}
	if len(templates) == 0 {
		return nil
	}
	top := pickTemplate(templates)

	meta, _ := sjson.Set("{}", "graph_node_id", top.ID)
	return &db.Quest{
		ID:            newQuestID(),
		UserID:        userID,
		Title:         top.Title,
		Tier:          string(flow.TierC),
		QuestType:     db.TypeMain,
		Status:        db.StatusActive,
		XPReward:      50,
		ScheduledDate: today,
		Meta:          meta,
		CreatedAt:     now.Format(time.RFC3339),
	}
}

// pickTemplate orders candidates BASE before CHAIN, then by fewer
// prerequisites, then by id.
func pickTemplate(ts []memory.Template) memory.Template {
	sorted := make([]memory.Template, len(ts))
	copy(sorted, ts)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Kind != b.Kind {
			return a.Kind == "BASE"
		}
		if a.Prereqs != b.Prereqs {
			return a.Prereqs < b.Prereqs
		}
		return a.ID < b.ID
	})
	return sorted[0]
}

func (s *Service) rollSerendipity() bool {
	if s.cfg.Deterministic || s.cfg.DisableSerendipity {
		return false
	}
	if s.cfg.ForceSerendipity {
		return true
	}
	return s.rng.Float64() < serendipityChance
}

func clockYesterday(now time.Time, u *db.User, defaultTZ string) string {
	return clock.InZone(now, u.PushTimezone, defaultTZ).AddDate(0, 0, -1).Format("2006-01-02")
}
