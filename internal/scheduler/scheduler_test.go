package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chris/questd/internal/clock"
	"github.com/chris/questd/internal/db"
	"github.com/chris/questd/internal/logger"
	"github.com/chris/questd/internal/narrative"
	"github.com/chris/questd/internal/push"
	"github.com/chris/questd/internal/quest"
	"github.com/chris/questd/internal/reward"
)

type capturePort struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (p *capturePort) PushMessage(ctx context.Context, userID string, messages []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = map[string][]string{}
	}
	p.sent[userID] = append(p.sent[userID], messages...)
	return nil
}

func (p *capturePort) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[userID])
}

func (p *capturePort) joined(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.sent[userID], "\n")
}

type failPort struct {
	mu    sync.Mutex
	calls int
}

func (p *failPort) PushMessage(ctx context.Context, userID string, messages []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return errors.New("delivery down")
}

func (p *failPort) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// UTC 00:00 on 2025-06-02 is 08:00 in Asia/Taipei.
var tickNow = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *db.Store, *clock.Fake, *capturePort) {
	t.Helper()
	port := &capturePort{}
	s, store, clk := newTestSchedulerWith(t, port)
	return s, store, clk, port
}

func newTestSchedulerWith(t *testing.T, port push.Port) (*Scheduler, *db.Store, *clock.Fake) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clk := clock.NewFake(tickNow)
	qs := quest.New(store,
		narrative.New(nil, logger.Nop()),
		reward.NewEngine(true),
		nil, nil, clk, logger.Nop(),
		quest.Config{DefaultTimezone: "Asia/Taipei", Deterministic: true})

	s := New(store, qs, push.NewDispatcher(port, logger.Nop()),
		clk, logger.Nop(), Config{Interval: time.Second, DefaultTimezone: "Asia/Taipei"})
	return s, store, clk
}

func TestMorningSlotFiresOnceAtLocalTarget(t *testing.T) {
	ctx := context.Background()
	s, store, _, port := newTestScheduler(t)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}

	s.Tick(ctx)

	// Shop broadcast plus the morning briefing.
	if got := port.count("u1"); got != 2 {
		t.Fatalf("messages after first tick = %d, want 2", got)
	}
	if !strings.Contains(port.joined("u1"), "今日任務") {
		t.Fatalf("missing morning briefing in %q", port.joined("u1"))
	}
	quests, err := store.ListTodayQuests(ctx, "u1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(quests) != quest.DailyQuestCount {
		t.Fatalf("generated %d quests, want %d", len(quests), quest.DailyQuestCount)
	}

	p, err := store.GetOrCreatePushProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.LastMorningDate != "2025-06-02" {
		t.Fatalf("LastMorningDate = %q, want 2025-06-02", p.LastMorningDate)
	}

	// Second tick in the same minute must not re-fire.
	s.Tick(ctx)
	if got := port.count("u1"); got != 2 {
		t.Fatalf("messages after second tick = %d, want 2", got)
	}
}

func TestUserOverrideBeatsProfileTarget(t *testing.T) {
	ctx := context.Background()
	s, store, _, port := newTestScheduler(t)

	u, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei")
	if err != nil {
		t.Fatal(err)
	}
	u.PushMorning = "09:30" // not now
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	s.Tick(ctx)

	// Only the shop broadcast; morning waits for 09:30 local.
	if got := port.count("u1"); got != 1 {
		t.Fatalf("messages = %d, want 1 (shop only)", got)
	}
	p, _ := store.GetOrCreatePushProfile(ctx, "u1")
	if p.LastMorningDate != "" {
		t.Fatalf("LastMorningDate = %q, want empty", p.LastMorningDate)
	}
}

func TestMiddayReminderListsIncomplete(t *testing.T) {
	ctx := context.Background()
	s, store, clk, port := newTestScheduler(t)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}
	s.Tick(ctx) // morning at 08:00 local

	clk.Set(time.Date(2025, 6, 2, 4, 30, 0, 0, time.UTC)) // 12:30 Taipei
	s.Tick(ctx)

	if !strings.Contains(port.joined("u1"), "午間提醒") {
		t.Fatalf("missing midday reminder in %q", port.joined("u1"))
	}
	p, _ := store.GetOrCreatePushProfile(ctx, "u1")
	if p.LastMiddayDate != "2025-06-02" {
		t.Fatalf("LastMiddayDate = %q, want 2025-06-02", p.LastMiddayDate)
	}
}

func TestNightSlotSettlesTheDay(t *testing.T) {
	ctx := context.Background()
	s, store, clk, port := newTestScheduler(t)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}
	s.Tick(ctx) // generates three quests, none completed

	clk.Set(time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)) // 21:00 Taipei
	s.Tick(ctx)

	u, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.HP != 100-3*hpDrainPerMiss {
		t.Fatalf("HP = %d, want %d", u.HP, 100-3*hpDrainPerMiss)
	}
	if !u.PenaltyPending {
		t.Fatal("PenaltyPending not set")
	}
	if u.StreakCount != 0 {
		t.Fatalf("StreakCount = %d, want 0", u.StreakCount)
	}

	outcome, err := store.GetDailyOutcome(ctx, "u1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if outcome == nil || outcome.Done {
		t.Fatalf("outcome = %+v, want done=false", outcome)
	}

	rival, err := store.GetOrCreateRival(ctx, "u1", "x")
	if err != nil {
		t.Fatal(err)
	}
	if rival.XP != rivalNightXP {
		t.Fatalf("rival XP = %d, want %d", rival.XP, rivalNightXP)
	}

	if !strings.Contains(port.joined("u1"), "沒完成") {
		t.Fatalf("missing night summary in %q", port.joined("u1"))
	}
}

func TestNightSlotFullClearExtendsStreak(t *testing.T) {
	ctx := context.Background()
	s, store, clk, _ := newTestScheduler(t)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}
	s.Tick(ctx)

	quests, _ := store.ListTodayQuests(ctx, "u1", "2025-06-02")
	for _, q := range quests {
		if _, err := store.MarkQuestDone(ctx, q.ID); err != nil {
			t.Fatal(err)
		}
	}

	clk.Set(time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC))
	s.Tick(ctx)

	u, _ := store.GetUser(ctx, "u1")
	if u.StreakCount != 1 {
		t.Fatalf("StreakCount = %d, want 1", u.StreakCount)
	}
	if u.HP != 100 {
		t.Fatalf("HP = %d, want 100 (no drain on full clear)", u.HP)
	}
	if u.PenaltyPending {
		t.Fatal("PenaltyPending set on full clear")
	}
	outcome, _ := store.GetDailyOutcome(ctx, "u1", "2025-06-02")
	if outcome == nil || !outcome.Done {
		t.Fatalf("outcome = %+v, want done=true", outcome)
	}
}

func TestNightSlotQuestlessDayNoPenalty(t *testing.T) {
	ctx := context.Background()
	s, store, clk, port := newTestScheduler(t)

	u, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei")
	if err != nil {
		t.Fatal(err)
	}
	u.StreakCount = 4
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	// No morning tick: the day passes without any quests.
	clk.Set(time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)) // 21:00 Taipei
	s.Tick(ctx)

	quests, err := store.ListTodayQuests(ctx, "u1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(quests) != 0 {
		t.Fatalf("night settlement created %d quests on a quest-less day", len(quests))
	}

	after, _ := store.GetUser(ctx, "u1")
	if after.HP != 100 {
		t.Fatalf("HP = %d, want 100 (nothing to miss)", after.HP)
	}
	if after.PenaltyPending {
		t.Fatal("PenaltyPending set with no quests")
	}
	if after.StreakCount != 4 {
		t.Fatalf("StreakCount = %d, want 4 (untouched)", after.StreakCount)
	}
	if !strings.Contains(port.joined("u1"), "沒有任務紀錄") {
		t.Fatalf("missing quest-less summary in %q", port.joined("u1"))
	}
}

func TestMiddaySlotNeverFiresBossOverride(t *testing.T) {
	ctx := context.Background()
	s, store, clk, _ := newTestScheduler(t)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}
	rival, err := store.GetOrCreateRival(ctx, "u1", "Shadow u1")
	if err != nil {
		t.Fatal(err)
	}
	rival.Level = 8
	if err := store.SaveRival(ctx, rival); err != nil {
		t.Fatal(err)
	}

	// First contact with the day is the midday slot.
	clk.Set(time.Date(2025, 6, 2, 4, 30, 0, 0, time.UTC)) // 12:30 Taipei
	s.Tick(ctx)

	quests, err := store.ListTodayQuests(ctx, "u1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(quests) != quest.DailyQuestCount {
		t.Fatalf("generated %d quests, want %d", len(quests), quest.DailyQuestCount)
	}
	for _, q := range quests {
		if q.Tier == "S" || q.IsRedemption {
			t.Fatalf("boss override fired from the midday slot: %+v", q)
		}
	}
}

func TestMorningStampSurvivesSendFailure(t *testing.T) {
	ctx := context.Background()
	port := &failPort{}
	s, store, _ := newTestSchedulerWith(t, port)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}

	s.Tick(ctx) // shop broadcast + morning, both fail to deliver

	p, err := store.GetOrCreatePushProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.LastMorningDate != "2025-06-02" {
		t.Fatalf("LastMorningDate = %q, want stamped despite send failure", p.LastMorningDate)
	}

	before := port.count()
	s.Tick(ctx)
	if port.count() != before {
		t.Fatal("morning re-fired after a failed send")
	}
}

func TestShopRefreshOncePerUTCDay(t *testing.T) {
	ctx := context.Background()
	s, store, clk, _ := newTestScheduler(t)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}

	var calls int
	s.ShopRefresh = func(ctx context.Context) { calls++ }

	clk.Set(time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC))
	s.Tick(ctx)
	clk.Set(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	s.Tick(ctx)
	if calls != 1 {
		t.Fatalf("refresh calls same day = %d, want 1", calls)
	}

	clk.Set(time.Date(2025, 6, 3, 3, 0, 0, 0, time.UTC))
	s.Tick(ctx)
	if calls != 2 {
		t.Fatalf("refresh calls after day roll = %d, want 2", calls)
	}
}

func TestHabitEMAMovesWithOutcome(t *testing.T) {
	ctx := context.Background()
	s, store, clk, _ := newTestScheduler(t)

	if _, err := store.GetOrCreateUser(ctx, "u1", "Asia/Taipei"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertHabitState(ctx, &db.HabitState{
		UserID: "u1", HabitTag: "run", HabitName: "晨跑",
		EmaP: 0.8, LastZone: "GREEN", ZoneStreakDays: 4,
	}); err != nil {
		t.Fatal(err)
	}

	s.Tick(ctx) // morning, no completions

	clk.Set(time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC))
	s.Tick(ctx)

	habits, err := store.ListHabitStates(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(habits) != 1 {
		t.Fatalf("habit count = %d", len(habits))
	}
	h := habits[0]
	want := emaCarry * 0.8 // missed day pulls the EMA down
	if h.EmaP < want-1e-9 || h.EmaP > want+1e-9 {
		t.Fatalf("EmaP = %v, want %v", h.EmaP, want)
	}
	if h.LastZone != "YELLOW" || h.ZoneStreakDays != 1 {
		t.Fatalf("zone = %s streak = %d, want YELLOW 1", h.LastZone, h.ZoneStreakDays)
	}
	if h.LastOutcomeDate != "2025-06-02" {
		t.Fatalf("LastOutcomeDate = %q", h.LastOutcomeDate)
	}
}

func TestShouldSendPredicate(t *testing.T) {
	at := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	if !shouldSend(at, "08:00", "") {
		t.Fatal("fresh slot at target time should send")
	}
	if shouldSend(at, "08:00", "2025-06-02") {
		t.Fatal("already-stamped slot should not send")
	}
	if shouldSend(at, "08:01", "") {
		t.Fatal("off-target minute should not send")
	}
}
