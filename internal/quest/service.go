package quest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/chris/questd/internal/clock"
	"github.com/chris/questd/internal/db"
	"github.com/chris/questd/internal/flow"
	"github.com/chris/questd/internal/logger"
	"github.com/chris/questd/internal/memory"
	"github.com/chris/questd/internal/narrative"
	"github.com/chris/questd/internal/reward"
)

// DailyQuestCount caps the daily batch.
const DailyQuestCount = 3

// TimeContext tells generation which slot is asking.
type TimeContext string

const (
	ContextDaily   TimeContext = "daily"
	ContextMorning TimeContext = "morning"
	ContextMidday  TimeContext = "midday"
	ContextNight   TimeContext = "night"
)

var (
	// ErrNotFound means the quest id does not exist.
	ErrNotFound = errors.New("quest: not found")
	// ErrInsufficientGold means the user cannot afford the reroll.
	ErrInsufficientGold = errors.New("quest: insufficient gold")
)

// Config holds the behavior switches the lifecycle reads.
type Config struct {
	DefaultTimezone    string
	RerollCost         int // 0 when FREE_REROLL is set
	ForceSerendipity   bool
	DisableSerendipity bool
	Deterministic      bool // TESTING mode: no random rolls at all
}

// Service owns the daily quest lifecycle: generation, completion, reroll,
// and their side effects on the user's counters.
type Service struct {
	store  *db.Store
	narr   *narrative.Service
	loot   *reward.Engine
	graph  memory.GraphPort
	vector memory.VectorPort
	clk    clock.Clock
	log    *logger.Logger
	cfg    Config
	rng    *rand.Rand
}

func New(store *db.Store, narr *narrative.Service, loot *reward.Engine,
	graph memory.GraphPort, vector memory.VectorPort, clk clock.Clock,
	log *logger.Logger, cfg Config) *Service {
	if graph == nil {
		graph = memory.NopGraph{}
	}
	if vector == nil {
		vector = memory.NopVector{}
	}
	return &Service{
		store:  store,
		narr:   narr,
		loot:   loot,
		graph:  graph,
		vector: vector,
		clk:    clk,
		log:    log.With("component", "quest"),
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) localDate(u *db.User) string {
	return clock.LocalDate(s.clk.Now(), u.PushTimezone, s.cfg.DefaultTimezone)
}

// GetDaily returns today's batch, generating it under the caller's time
// context if none exists yet.
func (s *Service) GetDaily(ctx context.Context, userID string, tctx TimeContext) ([]db.Quest, error) {
	u, err := s.store.GetOrCreateUser(ctx, userID, s.cfg.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	quests, err := s.store.ListTodayQuests(ctx, userID, s.localDate(u))
	if err != nil {
		return nil, err
	}
	if len(quests) == 0 {
		return s.GenerateDaily(ctx, userID, tctx)
	}
	if len(quests) > DailyQuestCount {
		quests = quests[:DailyQuestCount]
	}
	return quests, nil
}

// AcceptAllPending flips every PENDING quest to ACTIVE.
func (s *Service) AcceptAllPending(ctx context.Context, userID string) (int64, error) {
	return s.store.AcceptAllPending(ctx, userID)
}

// BulkAdjustDifficulty retiers all ACTIVE side quests to the target tier with
// that tier's baseline reward. Used by the executive loop.
func (s *Service) BulkAdjustDifficulty(ctx context.Context, userID string, tier flow.Tier) (int64, error) {
	base, ok := flow.BaseXP[tier]
	if !ok {
		return 0, fmt.Errorf("quest: no baseline for tier %s", tier)
	}
	return s.store.BulkAdjustSideQuests(ctx, userID, string(tier), base)
}

// CompletedThisWeek returns DONE quests created since Monday of the current
// local week.
func (s *Service) CompletedThisWeek(ctx context.Context, userID string) ([]db.Quest, error) {
	u, err := s.store.GetOrCreateUser(ctx, userID, s.cfg.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	local := clock.InZone(s.clk.Now(), u.PushTimezone, s.cfg.DefaultTimezone)
	return s.store.ListCompletedSince(ctx, userID, clock.StartOfWeek(local))
}

func newQuestID() string {
	return uuid.NewString()
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
