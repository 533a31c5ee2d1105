package flow

// Tier is a quest difficulty rank. F is a sentinel used only for
// emergency-recovery quests and never produced by the controller.
type Tier string

const (
	TierF Tier = "F"
	TierE Tier = "E"
	TierD Tier = "D"
	TierC Tier = "C"
	TierB Tier = "B"
	TierA Tier = "A"
	TierS Tier = "S"
)

// ladder orders the adjustable tiers from easiest to hardest.
var ladder = []Tier{TierE, TierD, TierC, TierB, TierA, TierS}

// BaseXP is the baseline XP awarded per tier.
var BaseXP = map[Tier]int{
	TierE: 10,
	TierD: 20,
	TierC: 50,
	TierB: 100,
	TierA: 200,
	TierS: 500,
}

// HPRestore is how much HP a completion at each tier gives back.
var HPRestore = map[Tier]int{
	TierS: 25,
	TierA: 20,
	TierB: 18,
	TierC: 20,
	TierD: 10,
	TierE: 6,
	TierF: 3,
}

// GoldDivisor converts XP to gold.
const GoldDivisor = 10

func (t Tier) IsValid() bool {
	switch t {
	case TierE, TierD, TierC, TierB, TierA, TierS, TierF:
		return true
	}
	return false
}

func tierIndex(t Tier) int {
	for i, v := range ladder {
		if v == t {
			return i
		}
	}
	return -1
}

// Adjust moves a tier up or down the ladder, clamped at E and S.
// The F sentinel is treated as E for adjustment purposes.
func Adjust(t Tier, delta int) Tier {
	idx := tierIndex(t)
	if idx < 0 {
		idx = 0
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(ladder) {
		idx = len(ladder) - 1
	}
	return ladder[idx]
}
