package executive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chris/questd/internal/clock"
	"github.com/chris/questd/internal/db"
	"github.com/chris/questd/internal/flow"
	"github.com/chris/questd/internal/logger"
	"github.com/chris/questd/internal/memory"
	"github.com/chris/questd/internal/narrative"
	"github.com/chris/questd/internal/quest"
)

const (
	staleQuestDays   = 2
	overwhelmCount   = 2
	checkmateDays    = 30
	stagnationDays   = 7
	overloadAbove    = 0.8
	bridgeQuestXP    = 20
	pushQuestBaseXP  = 500
	executiveRetreat = flow.TierE
)

// ActionKind names the single action an executive pass may take for a user.
type ActionKind string

const (
	ActionNone             ActionKind = "none"
	ActionDifficultyChange ActionKind = "DIFFICULTY_CHANGE"
	ActionPushQuest        ActionKind = "PUSH_QUEST"
	ActionBridgeGen        ActionKind = "BRIDGE_GEN"
)

type Action struct {
	Kind   ActionKind
	Reason string
	Count  int64  // quests touched, for difficulty changes
	Quest  string // created quest id, for push/bridge
}

// LoadSource supplies the external-overload signal in [0,1]. The calendar
// integration implements it; the default reports zero.
type LoadSource interface {
	ExternalLoad(ctx context.Context, userID string) (float64, error)
}

type zeroLoad struct{}

func (zeroLoad) ExternalLoad(context.Context, string) (float64, error) { return 0, nil }

func NoLoad() LoadSource { return zeroLoad{} }

// Loop is the hourly judgment pass: it looks for stale quests, stagnant
// goals, and external overload, and takes at most one corrective action per
// user per invocation.
type Loop struct {
	store     *db.Store
	quests    *quest.Service
	narr      *narrative.Service
	graph     memory.GraphPort
	load      LoadSource
	clk       clock.Clock
	log       *logger.Logger
	defaultTZ string
}

func New(store *db.Store, quests *quest.Service, narr *narrative.Service,
	graph memory.GraphPort, load LoadSource, clk clock.Clock, log *logger.Logger,
	defaultTZ string) *Loop {
	if graph == nil {
		graph = memory.NopGraph{}
	}
	if load == nil {
		load = zeroLoad{}
	}
	return &Loop{
		store:     store,
		quests:    quests,
		narr:      narr,
		graph:     graph,
		load:      load,
		clk:       clk,
		log:       log.With("component", "executive"),
		defaultTZ: defaultTZ,
	}
}

// RunAll performs one pass over every user. Per-user failures are isolated.
func (l *Loop) RunAll(ctx context.Context) {
	users, err := l.store.ListUsers(ctx)
	if err != nil {
		l.log.Error("listing users", "err", err)
		return
	}
	for _, u := range users {
		action, err := l.RunUser(ctx, u.ID)
		if err != nil {
			l.log.Error("executive pass failed", "user", u.ID, "err", err)
			continue
		}
		if action.Kind != ActionNone {
			l.log.Info("executive action", "user", u.ID, "kind", action.Kind, "reason", action.Reason)
		}
	}
}

// RunUser evaluates the rules in order and applies the first match.
func (l *Loop) RunUser(ctx context.Context, userID string) (Action, error) {
	now := l.clk.Now()

	// Overwhelm: too many quests rotting on the board.
	active, err := l.store.ListActiveQuests(ctx, userID)
	if err != nil {
		return Action{}, err
	}
	stale := 0
	for _, q := range active {
		created := parseInstant(q.CreatedAt)
		if !created.IsZero() && clock.WholeDaysBetween(created, now) > staleQuestDays {
			stale++
		}
	}
	if stale >= overwhelmCount {
		n, err := l.quests.BulkAdjustDifficulty(ctx, userID, executiveRetreat)
		if err != nil {
			return Action{}, err
		}
		l.emit(ctx, userID, string(ActionDifficultyChange), map[string]any{"reason": "OVERWHELM", "count": n})
		return Action{Kind: ActionDifficultyChange, Reason: "OVERWHELM", Count: n}, nil
	}

	// Goal health: checkmate, then stagnation, oldest goal first.
	goals, err := l.store.ListActiveGoals(ctx, userID)
	if err != nil {
		return Action{}, err
	}
	for _, g := range goals {
		last, err := l.store.LastQuestForGoal(ctx, g.ID)
		if err != nil {
			return Action{}, err
		}
		idle := checkmateDays + 1
		if last != nil {
			idle = clock.WholeDaysBetween(parseInstant(last.CreatedAt), now)
		}

		if idle > checkmateDays {
			q, err := l.pushQuest(ctx, userID, g, now)
			if err != nil {
				return Action{}, err
			}
			l.emit(ctx, userID, string(ActionPushQuest), map[string]any{"goal": g.ID, "quest": q.ID})
			return Action{Kind: ActionPushQuest, Reason: "CHECKMATE", Quest: q.ID}, nil
		}
		if idle > stagnationDays {
			q, err := l.bridgeQuest(ctx, userID, g, now)
			if err != nil {
				return Action{}, err
			}
			l.emit(ctx, userID, string(ActionBridgeGen), map[string]any{"goal": g.ID, "quest": q.ID})
			return Action{Kind: ActionBridgeGen, Reason: "STAGNATION", Quest: q.ID}, nil
		}
	}

	// Momentum check: reserved, currently takes no action.

	// Reality sync: external overload forces a retreat.
	load, err := l.load.ExternalLoad(ctx, userID)
	if err != nil {
		l.log.Warn("external load unavailable", "user", userID, "err", err)
		load = 0
	}
	if load > overloadAbove {
		n, err := l.quests.BulkAdjustDifficulty(ctx, userID, executiveRetreat)
		if err != nil {
			return Action{}, err
		}
		l.emit(ctx, userID, string(ActionDifficultyChange), map[string]any{"reason": "CALENDAR_SYNC", "count": n})
		return Action{Kind: ActionDifficultyChange, Reason: "CALENDAR_SYNC", Count: n}, nil
	}

	return Action{Kind: ActionNone}, nil
}

// pushQuest forces a checkmate: a tier-S redemption quest to reclaim a goal
// that has been ignored for over a month.
func (l *Loop) pushQuest(ctx context.Context, userID string, g db.Goal, now time.Time) (*db.Quest, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	q := &db.Quest{
		ID:            uuid.NewString(),
		UserID:        userID,
		GoalID:        g.ID,
		Title:         fmt.Sprintf("BOSS: Reclaim %s", g.Title),
		Description:   fmt.Sprintf("目標「%s」已經沉睡超過 %d 天。奪回它。", g.Title, checkmateDays),
		Tier:          string(flow.TierS),
		QuestType:     db.TypeRedemption,
		Status:        db.StatusActive,
		XPReward:      pushQuestBaseXP,
		ScheduledDate: l.localDateFor(u, now),
		IsRedemption:  true,
		CreatedAt:     now.Format(time.RFC3339),
	}
	if err := l.store.InsertQuest(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// bridgeQuest creates a tiny restart quest for a goal going stale.
func (l *Loop) bridgeQuest(ctx context.Context, userID string, g db.Goal, now time.Time) (*db.Quest, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	spec := l.narr.BridgeQuest(ctx, g.Title)
	q := &db.Quest{
		ID:            uuid.NewString(),
		UserID:        userID,
		GoalID:        g.ID,
		Title:         spec.Title,
		Description:   spec.Description,
		Tier:          string(flow.TierE),
		QuestType:     db.TypeSide,
		Status:        db.StatusActive,
		XPReward:      bridgeQuestXP,
		ScheduledDate: l.localDateFor(u, now),
		CreatedAt:     now.Format(time.RFC3339),
	}
	if err := l.store.InsertQuest(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (l *Loop) emit(ctx context.Context, userID, eventType string, meta map[string]any) {
	if err := l.graph.RecordEvent(ctx, userID, eventType, meta); err != nil {
		l.log.Warn("graph event failed", "user", userID, "type", eventType, "err", err)
	}
}

func (l *Loop) localDateFor(u *db.User, now time.Time) string {
	tz := ""
	if u != nil {
		tz = u.PushTimezone
	}
	return clock.LocalDate(now, tz, l.defaultTZ)
}

func parseInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
