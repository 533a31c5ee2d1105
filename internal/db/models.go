package db

// Quest lifecycle statuses.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
	StatusPaused  = "PAUSED"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

// Quest types.
const (
	TypeMain       = "MAIN"
	TypeSide       = "SIDE"
	TypeRedemption = "REDEMPTION"
)

// HP statuses.
const (
	HPHealthy    = "HEALTHY"
	HPCritical   = "CRITICAL"
	HPRecovering = "RECOVERING"
	HPHollowed   = "HOLLOWED"
)

// Goal statuses.
const (
	GoalActive    = "ACTIVE"
	GoalCompleted = "COMPLETED"
	GoalArchived  = "ARCHIVED"
)

type User struct {
	ID             string `json:"id"`
	Level          int    `json:"level"`
	XP             int    `json:"xp"`
	Gold           int    `json:"gold"`
	HP             int    `json:"hp"`
	MaxHP          int    `json:"max_hp"`
	IsHollowed     bool   `json:"is_hollowed"`
	HPStatus       string `json:"hp_status"`
	StreakCount    int    `json:"streak_count"`
	LastActiveAt   string `json:"last_active_at,omitempty"` // RFC3339 UTC
	PushEnabled    bool   `json:"push_enabled"`
	PushTimezone   string `json:"push_timezone,omitempty"`
	PushMorning    string `json:"push_morning,omitempty"` // HH:MM override
	PushMidday     string `json:"push_midday,omitempty"`
	PushNight      string `json:"push_night,omitempty"`
	PenaltyPending bool   `json:"penalty_pending"`
	CreatedAt      string `json:"created_at"`
}

type PushProfile struct {
	UserID          string `json:"user_id"`
	MorningTime     string `json:"morning_time"`
	MiddayTime      string `json:"midday_time"`
	NightTime       string `json:"night_time"`
	LastMorningDate string `json:"last_morning_date,omitempty"`
	LastMiddayDate  string `json:"last_midday_date,omitempty"`
	LastNightDate   string `json:"last_night_date,omitempty"`
}

type PIDState struct {
	UserID       string  `json:"user_id"`
	Integral     float64 `json:"integral"`
	LastError    float64 `json:"last_error"`
	LastRescueAt string  `json:"last_rescue_at,omitempty"` // RFC3339 UTC
}

type Quest struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	GoalID        string `json:"goal_id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Tier          string `json:"tier"`
	QuestType     string `json:"quest_type"`
	Status        string `json:"status"`
	XPReward      int    `json:"xp_reward"`
	ScheduledDate string `json:"scheduled_date"` // local date YYYY-MM-DD
	IsRedemption  bool   `json:"is_redemption"`
	Meta          string `json:"meta,omitempty"` // JSON object
	CreatedAt     string `json:"created_at"`
}

type Goal struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	Decomposition string `json:"decomposition,omitempty"` // opaque LLM JSON
	CreatedAt     string `json:"created_at"`
}

type DailyOutcome struct {
	UserID     string `json:"user_id"`
	Date       string `json:"date"`
	IsGlobal   bool   `json:"is_global"`
	Done       bool   `json:"done"`
	RescueUsed bool   `json:"rescue_used"`
}

type HabitState struct {
	ID              int64   `json:"id"`
	UserID          string  `json:"user_id"`
	HabitTag        string  `json:"habit_tag"`
	HabitName       string  `json:"habit_name"`
	Tier            string  `json:"tier"`
	EmaP            float64 `json:"ema_p"`
	LastZone        string  `json:"last_zone"`
	ZoneStreakDays  int     `json:"zone_streak_days"`
	LastOutcomeDate string  `json:"last_outcome_date,omitempty"`
	CurrentTier     int     `json:"current_tier"`
	Exp             int     `json:"exp"`
}

type Rival struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Level       int    `json:"level"`
	XP          int    `json:"xp"`
	LastUpdated string `json:"last_updated,omitempty"`
}
