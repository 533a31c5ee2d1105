package flow

import "time"

// PID gains and limits for the difficulty loop.
const (
	targetWinRate = 0.7
	kp            = 0.5
	ki            = 0.1
	kd            = 0.2
	windupLimit   = 2.0

	easierThreshold = -0.3
	harderThreshold = 0.2

	rescueCooldown = 24 * time.Hour
)

type Tone string

const (
	ToneEncourage Tone = "encourage"
	ToneRelax     Tone = "relax"
	ToneChallenge Tone = "challenge"
	ToneRespect   Tone = "respect"
)

// PID is the persisted controller state for one user.
type PID struct {
	Integral  float64
	LastError float64
}

// Input is a read-only snapshot of everything the controller looks at.
type Input struct {
	CurrentTier Tier
	Recent      []bool // recent quest outcomes, true = done
	Churn       ChurnRisk
	StressScore float64
	LastRescue  time.Time // zero if a rescue never fired
	Now         time.Time
}

// Decision is the controller output for one call.
type Decision struct {
	Tier           Tier
	LootMultiplier float64
	Tone           Tone
	RescueFired    bool // caller must stamp the rescue timestamp
	PID            PID
	PIDUpdated     bool // caller must persist Decision.PID
}

// Decide picks the next difficulty tier. Overrides are checked in order:
// churn rescue, stress pacing, then the PID step. For a fixed PID state and
// input the result is deterministic.
func Decide(in Input, pid PID) Decision {
	if in.Churn == ChurnHigh {
		if in.LastRescue.IsZero() || in.Now.Sub(in.LastRescue) > rescueCooldown {
			return Decision{Tier: TierE, LootMultiplier: 2.0, Tone: ToneEncourage, RescueFired: true, PID: pid}
		}
		// Rate-limited: still ease off, no loot boost.
		return Decision{Tier: TierE, LootMultiplier: 1.0, Tone: ToneEncourage, PID: pid}
	}

	if in.StressScore > 0.8 {
		return Decision{Tier: TierD, LootMultiplier: 1.0, Tone: ToneRelax, PID: pid}
	}

	if len(in.Recent) == 0 {
		return Decision{Tier: in.CurrentTier, LootMultiplier: 1.0, Tone: ToneChallenge, PID: pid}
	}

	wins := 0
	for _, done := range in.Recent {
		if done {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(in.Recent))

	err := winRate - targetWinRate
	integral := clamp(pid.Integral+err, -windupLimit, windupLimit)
	derivative := err - pid.LastError
	output := kp*err + ki*integral + kd*derivative

	adjust := 0
	switch {
	case output < easierThreshold:
		adjust = -1
	case output > harderThreshold:
		adjust = 1
	}

	d := Decision{
		Tier:       Adjust(in.CurrentTier, adjust),
		PID:        PID{Integral: integral, LastError: err},
		PIDUpdated: true,
	}
	switch {
	case adjust < 0:
		d.LootMultiplier = 1.2
		d.Tone = ToneEncourage
	case adjust > 0:
		d.LootMultiplier = 1.0
		d.Tone = ToneRespect
	default:
		d.LootMultiplier = 1.0
		d.Tone = ToneChallenge
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
