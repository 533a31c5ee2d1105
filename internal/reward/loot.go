package reward

import (
	"math"
	"math/rand"
	"time"

	"github.com/chris/questd/internal/flow"
)

type Flavor string

const (
	FlavorJackpot       Flavor = "jackpot"
	FlavorLucky         Flavor = "lucky"
	FlavorStandard      Flavor = "standard"
	FlavorDisappointing Flavor = "disappointing"
)

const (
	jackpotChance     = 0.05
	jackpotMultiplier = 2.0
	multiplierCap     = 5.0
)

// Loot is the payout for a single quest completion.
type Loot struct {
	XP          int
	Gold        int
	RPE         int // reward prediction error: xp minus tier baseline
	Flavor      Flavor
	Tone        flow.Tone
	RescueFired bool // the churn rescue boost fired; caller stamps it
}

// Engine computes completion payouts. Deterministic mode pins the random
// roll at 1.0 and disables jackpots, for tests and TESTING installs.
type Engine struct {
	rng           *rand.Rand
	deterministic bool
}

func NewEngine(deterministic bool) *Engine {
	return &Engine{
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		deterministic: deterministic,
	}
}

// Roll computes the payout for completing a quest at questTier. The flow
// controller is consulted with an empty history purely to pick up any active
// override multiplier (churn rescue, stress pacing).
func (e *Engine) Roll(questTier flow.Tier, churn flow.ChurnRisk, lastRescue, now time.Time) Loot {
	baseXP, ok := flow.BaseXP[questTier]
	if !ok {
		baseXP = 0
	}

	decision := flow.Decide(flow.Input{
		CurrentTier: questTier,
		Churn:       churn,
		LastRescue:  lastRescue,
		Now:         now,
	}, flow.PID{})

	mult := decision.LootMultiplier
	if mult > multiplierCap {
		mult = multiplierCap
	}

	roll := 1.0
	jackpot := false
	if !e.deterministic {
		if e.rng.Float64() < jackpotChance {
			roll = jackpotMultiplier
			jackpot = true
		} else {
			roll = 0.8 + e.rng.Float64()*0.4
		}
	}

	xp := int(math.Floor(float64(baseXP) * mult * roll))
	if xp < 0 {
		xp = 0
	}
	rpe := xp - baseXP

	flavor := FlavorStandard
	switch {
	case jackpot:
		flavor = FlavorJackpot
	case float64(rpe) > 0.5*float64(baseXP):
		flavor = FlavorLucky
	case float64(rpe) < -0.1*float64(baseXP):
		flavor = FlavorDisappointing
	}

	return Loot{
		XP:          xp,
		Gold:        xp / flow.GoldDivisor,
		RPE:         rpe,
		Flavor:      flavor,
		Tone:        decision.Tone,
		RescueFired: decision.RescueFired,
	}
}
