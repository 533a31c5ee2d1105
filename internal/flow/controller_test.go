package flow

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDecideEmptyHistoryKeepsTier(t *testing.T) {
	d := Decide(Input{CurrentTier: TierC, Now: testNow}, PID{})
	if d.Tier != TierC {
		t.Errorf("expected tier C, got %s", d.Tier)
	}
	if d.Tone != ToneChallenge {
		t.Errorf("expected challenge tone, got %s", d.Tone)
	}
	if d.LootMultiplier != 1.0 {
		t.Errorf("expected multiplier 1.0, got %v", d.LootMultiplier)
	}
	if d.PIDUpdated {
		t.Error("empty history should not touch PID state")
	}
}

func TestDecideFrustrationEasesOff(t *testing.T) {
	// Three straight failures from tier A: win rate 0, error -0.7.
	pid := PID{}
	d := Decide(Input{
		CurrentTier: TierA,
		Recent:      []bool{false, false, false},
		Now:         testNow,
	}, pid)

	if d.Tier != TierB {
		t.Errorf("expected tier B, got %s", d.Tier)
	}
	if d.Tone != ToneEncourage {
		t.Errorf("expected encourage, got %s", d.Tone)
	}
	if d.LootMultiplier != 1.2 {
		t.Errorf("expected multiplier 1.2, got %v", d.LootMultiplier)
	}
	if !d.PIDUpdated {
		t.Fatal("expected PID update")
	}
	if d.PID.LastError != -0.7 {
		t.Errorf("expected last_error -0.7, got %v", d.PID.LastError)
	}
}

func TestDecideIntegralClampsAtWindupLimit(t *testing.T) {
	// Repeated failure calls accumulate -0.7 each; the third would reach
	// -2.1 and must clamp at -2.0.
	in := Input{CurrentTier: TierA, Recent: []bool{false, false, false}, Now: testNow}
	pid := PID{}
	for i := 0; i < 3; i++ {
		d := Decide(in, pid)
		pid = d.PID
	}
	if pid.Integral != -2.0 {
		t.Errorf("expected integral clamped to -2.0, got %v", pid.Integral)
	}
	if pid.LastError != -0.7 {
		t.Errorf("expected last_error -0.7, got %v", pid.LastError)
	}
}

func TestDecideBoredomRampsUp(t *testing.T) {
	// Five straight wins: error +0.3, output 0.24 > 0.2 -> +1 tier.
	d := Decide(Input{
		CurrentTier: TierC,
		Recent:      []bool{true, true, true, true, true},
		Now:         testNow,
	}, PID{})

	if d.Tier != TierB {
		t.Errorf("expected tier B, got %s", d.Tier)
	}
	if d.Tone != ToneRespect {
		t.Errorf("expected respect, got %s", d.Tone)
	}
	if d.LootMultiplier != 1.0 {
		t.Errorf("expected multiplier 1.0, got %v", d.LootMultiplier)
	}
}

func TestDecideBoundaryOutputsHold(t *testing.T) {
	// win rate 0.7 gives error 0, output 0: neither threshold crossed.
	recent := []bool{true, true, true, true, true, true, true, false, false, false}
	d := Decide(Input{CurrentTier: TierB, Recent: recent, Now: testNow}, PID{})
	if d.Tier != TierB {
		t.Errorf("expected tier unchanged at B, got %s", d.Tier)
	}
	if d.Tone != ToneChallenge {
		t.Errorf("expected challenge, got %s", d.Tone)
	}
}

func TestDecideChurnRescue(t *testing.T) {
	// Never rescued: full boost.
	d := Decide(Input{CurrentTier: TierB, Churn: ChurnHigh, Now: testNow}, PID{})
	if d.Tier != TierE || d.LootMultiplier != 2.0 || !d.RescueFired {
		t.Errorf("expected boosted E-tier rescue, got %+v", d)
	}

	// Rescued an hour ago: rate-limited, no boost.
	d = Decide(Input{
		CurrentTier: TierB,
		Churn:       ChurnHigh,
		LastRescue:  testNow.Add(-1 * time.Hour),
		Now:         testNow,
	}, PID{})
	if d.Tier != TierE || d.LootMultiplier != 1.0 || d.RescueFired {
		t.Errorf("expected rate-limited rescue, got %+v", d)
	}

	// Rescued 25h ago: cooldown expired, boost again.
	d = Decide(Input{
		CurrentTier: TierB,
		Churn:       ChurnHigh,
		LastRescue:  testNow.Add(-25 * time.Hour),
		Now:         testNow,
	}, PID{})
	if d.LootMultiplier != 2.0 || !d.RescueFired {
		t.Errorf("expected boost after cooldown, got %+v", d)
	}
}

func TestDecideStressForcesRelax(t *testing.T) {
	d := Decide(Input{
		CurrentTier: TierS,
		Recent:      []bool{true, true, true},
		StressScore: 0.9,
		Now:         testNow,
	}, PID{})
	if d.Tier != TierD || d.Tone != ToneRelax {
		t.Errorf("expected forced relax at D, got %+v", d)
	}
}

func TestAdjustClampsAtLadderEnds(t *testing.T) {
	if got := Adjust(TierE, -1); got != TierE {
		t.Errorf("expected E, got %s", got)
	}
	if got := Adjust(TierS, 1); got != TierS {
		t.Errorf("expected S, got %s", got)
	}
	if got := Adjust(TierF, 1); got != TierD {
		t.Errorf("F sentinel should adjust as E, got %s", got)
	}
}
