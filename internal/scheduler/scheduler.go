package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chris/questd/internal/clock"
	"github.com/chris/questd/internal/db"
	"github.com/chris/questd/internal/flow"
	"github.com/chris/questd/internal/logger"
	"github.com/chris/questd/internal/push"
	"github.com/chris/questd/internal/quest"
)

const (
	minInterval = 30 * time.Second
	batchSize   = 10

	defaultMorning = "08:00"
	defaultMidday  = "12:30"
	defaultNight   = "21:00"

	hpDrainPerMiss = 5
	rivalNightXP   = 30

	emaCarry  = 0.7
	emaWeight = 0.3
)

type Config struct {
	Interval        time.Duration // clamped to >= 30s
	DefaultTimezone string
}

// Scheduler drives the push loop: one ticker, and per tick a bounded fan-out
// over all users deciding which slot, if any, fires for each.
type Scheduler struct {
	store    *db.Store
	quests   *quest.Service
	dispatch *push.Dispatcher
	clk      clock.Clock
	log      *logger.Logger
	cfg      Config

	// ShopRefresh runs once per UTC day before user processing. Optional.
	ShopRefresh func(ctx context.Context)

	tickMu       sync.Mutex // non-blocking: overlapping ticks skip
	lastShopDate string     // in-memory; a restart may re-fire the same day

	cancel context.CancelFunc
	done   chan struct{}
}

func New(store *db.Store, quests *quest.Service, dispatch *push.Dispatcher,
	clk clock.Clock, log *logger.Logger, cfg Config) *Scheduler {
	if cfg.Interval < minInterval {
		cfg.Interval = minInterval
	}
	return &Scheduler{
		store:    store,
		quests:   quests,
		dispatch: dispatch,
		clk:      clk,
		log:      log.With("component", "scheduler"),
		cfg:      cfg,
	}
}

// Start launches the ticker goroutine.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Tick(ctx)
			}
		}
	}()
	s.log.Info("scheduler started", "interval", s.cfg.Interval)
}

// Stop cancels the loop and waits for an in-flight tick to drain.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("scheduler stopped")
}

// Tick runs one scheduling pass. If a previous tick is still running it
// returns immediately.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		return
	}
	defer s.tickMu.Unlock()

	now := s.clk.Now()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.log.Error("listing users", "err", err)
		return
	}

	s.maybeRefreshShop(ctx, now, users)

	for start := 0; start < len(users); start += batchSize {
		end := start + batchSize
		if end > len(users) {
			end = len(users)
		}
		var wg sync.WaitGroup
		for _, u := range users[start:end] {
			if !u.PushEnabled {
				continue
			}
			wg.Add(1)
			go func(u db.User) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("tick panic", "user", u.ID, "panic", r)
					}
				}()
				if err := s.processUser(ctx, &u, now); err != nil {
					s.log.Error("processing user", "user", u.ID, "err", err)
				}
			}(u)
		}
		wg.Wait()
	}
}

// maybeRefreshShop fires the daily shop refresh once per real UTC day. The
// guard is in-memory only; after a restart the same day may fire again.
func (s *Scheduler) maybeRefreshShop(ctx context.Context, now time.Time, users []db.User) {
	today := now.UTC().Format("2006-01-02")
	if s.lastShopDate == today {
		return
	}
	s.lastShopDate = today

	if s.ShopRefresh != nil {
		s.ShopRefresh(ctx)
	}
	var ids []string
	for _, u := range users {
		if u.PushEnabled {
			ids = append(ids, u.ID)
		}
	}
	s.dispatch.Broadcast(ctx, ids, "補給站已更新，新的一天開始了。")
	s.log.Info("shop refreshed", "date", today, "users", len(ids))
}

// slotTargets resolves the three target times: user override, then profile,
// then hard defaults.
func slotTargets(u *db.User, p *db.PushProfile) (morning, midday, night string) {
	morning = firstNonEmpty(u.PushMorning, p.MorningTime, defaultMorning)
	midday = firstNonEmpty(u.PushMidday, p.MiddayTime, defaultMidday)
	night = firstNonEmpty(u.PushNight, p.NightTime, defaultNight)
	return
}

// shouldSend is the slot predicate: local wall time matches the target and
// the slot has not fired today.
func shouldSend(nowLocal time.Time, target, lastSentDate string) bool {
	return nowLocal.Format("15:04") == target && lastSentDate != nowLocal.Format("2006-01-02")
}

// processUser fires at most one slot for the user this tick.
func (s *Scheduler) processUser(ctx context.Context, u *db.User, now time.Time) error {
	nowLocal := clock.InZone(now, u.PushTimezone, s.cfg.DefaultTimezone)
	today := nowLocal.Format("2006-01-02")

	profile, err := s.store.GetOrCreatePushProfile(ctx, u.ID)
	if err != nil {
		return err
	}
	morning, midday, night := slotTargets(u, profile)

	switch {
	case shouldSend(nowLocal, morning, profile.LastMorningDate):
		return s.fireMorning(ctx, u, today)
	case shouldSend(nowLocal, midday, profile.LastMiddayDate):
		return s.fireMidday(ctx, u, today)
	case shouldSend(nowLocal, night, profile.LastNightDate):
		return s.fireNight(ctx, u, nowLocal, today)
	}
	return nil
}

func (s *Scheduler) fireMorning(ctx context.Context, u *db.User, today string) error {
	quests, err := s.quests.GenerateDaily(ctx, u.ID, quest.ContextMorning)
	if err != nil {
		return err
	}
	habits, err := s.store.ListHabitStates(ctx, u.ID)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("早安，今日任務：\n")
	for i, q := range quests {
		fmt.Fprintf(&b, "%d. [%s] %s（%s XP）\n", i+1, q.Tier, q.Title, humanize.Comma(int64(q.XPReward)))
	}
	for _, h := range habits {
		fmt.Fprintf(&b, "習慣 %s：%s 區，連續 %d 天\n", h.HabitName, h.LastZone, h.ZoneStreakDays)
	}

	yesterday := parseDate(today).AddDate(0, 0, -1).Format("2006-01-02")
	if outcome, err := s.store.GetDailyOutcome(ctx, u.ID, yesterday); err == nil &&
		outcome != nil && !outcome.Done {
		b.WriteString("昨天沒有全部完成，今天的難度已經調低。\n")
	}

	// Stamp before dispatch: delivery is fire-and-forget, so a send failure
	// must not re-fire the slot on the next tick.
	if err := s.store.StampPushSlot(ctx, u.ID, db.SlotMorning, today); err != nil {
		return err
	}
	s.dispatch.Send(ctx, u.ID, b.String())
	return nil
}

func (s *Scheduler) fireMidday(ctx context.Context, u *db.User, today string) error {
	quests, err := s.quests.GetDaily(ctx, u.ID, quest.ContextMidday)
	if err != nil {
		return err
	}
	var incomplete []db.Quest
	for _, q := range quests {
		if q.Status != db.StatusDone {
			incomplete = append(incomplete, q)
		}
	}

	if err := s.store.StampPushSlot(ctx, u.ID, db.SlotMidday, today); err != nil {
		return err
	}

	// The Fogg gate decides whether nagging is worth it: motivation decays
	// as the unfinished pile grows.
	friction := 0.1 * float64(1+len(incomplete))
	if len(incomplete) > 0 && flow.ShouldPrompt(0.9, friction, 1.0) {
		var b strings.Builder
		fmt.Fprintf(&b, "午間提醒：還有 %d 個任務未完成。\n", len(incomplete))
		for _, q := range incomplete {
			fmt.Fprintf(&b, "・[%s] %s\n", q.Tier, q.Title)
		}
		s.dispatch.Send(ctx, u.ID, b.String())
	}
	return nil
}

func (s *Scheduler) fireNight(ctx context.Context, u *db.User, nowLocal time.Time, today string) error {
	now := s.clk.Now()

	// Settlement only judges the batch that existed during the day; a
	// quest-less day must not spawn quests at 21:00 just to fail them.
	quests, err := s.store.ListTodayQuests(ctx, u.ID, today)
	if err != nil {
		return err
	}

	done := len(quests) > 0
	missed := 0
	for _, q := range quests {
		if q.Status != db.StatusDone {
			done = false
			missed++
		}
	}

	err = s.store.WithTx(ctx, func(tx *db.Store) error {
		cur, err := tx.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}

		// Nightly HP drain scales with what was left on the board.
		cur.HP -= hpDrainPerMiss * missed
		if cur.HP <= 0 {
			cur.HP = 0
			cur.IsHollowed = true
			cur.HPStatus = db.HPHollowed
		}

		if done {
			cur.StreakCount++
		} else if len(quests) > 0 {
			cur.StreakCount = 0
		}
		cur.PenaltyPending = len(quests) > 0 && !done

		if err := tx.SaveUser(ctx, cur); err != nil {
			return err
		}

		if err := tx.UpsertDailyOutcome(ctx, &db.DailyOutcome{
			UserID: u.ID, Date: today, IsGlobal: true, Done: done,
		}); err != nil {
			return err
		}

		// The rival trains every night.
		rival, err := tx.GetOrCreateRival(ctx, u.ID, "Shadow "+u.ID)
		if err != nil {
			return err
		}
		rival.XP += rivalNightXP
		for rival.XP >= rival.Level*100 {
			rival.XP -= rival.Level * 100
			rival.Level++
		}
		rival.LastUpdated = now.Format(time.RFC3339)
		if err := tx.SaveRival(ctx, rival); err != nil {
			return err
		}

		habits, err := tx.ListHabitStates(ctx, u.ID)
		if err != nil {
			return err
		}
		for i := range habits {
			h := &habits[i]
			if h.LastOutcomeDate == today {
				continue
			}
			observed := 0.0
			if done {
				observed = 1.0
			}
			h.EmaP = emaCarry*h.EmaP + emaWeight*observed
			zone := habitZone(h.EmaP)
			if zone == h.LastZone {
				h.ZoneStreakDays++
			} else {
				h.LastZone = zone
				h.ZoneStreakDays = 1
			}
			h.LastOutcomeDate = today
			if err := tx.UpsertHabitState(ctx, h); err != nil {
				return err
			}
		}

		if err := tx.StampPushSlot(ctx, u.ID, db.SlotNight, today); err != nil {
			return err
		}

		*u = *cur
		return nil
	})
	if err != nil {
		return err
	}

	var b strings.Builder
	if done {
		fmt.Fprintf(&b, "今日全部完成！連續 %d 天。\n", u.StreakCount)
	} else if len(quests) > 0 {
		fmt.Fprintf(&b, "今天留下 %d 個任務沒完成，HP -%d。\n", missed, hpDrainPerMiss*missed)
	} else {
		b.WriteString("今天沒有任務紀錄。\n")
	}

	if nowLocal.Weekday() == time.Sunday {
		if week, err := s.quests.CompletedThisWeek(ctx, u.ID); err == nil {
			fmt.Fprintf(&b, "本週共完成 %d 個任務。\n", len(week))
		}
	}

	s.dispatch.Send(ctx, u.ID, b.String())
	return nil
}

func habitZone(p float64) string {
	switch {
	case p >= 0.66:
		return "GREEN"
	case p >= 0.33:
		return "YELLOW"
	default:
		return "RED"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
