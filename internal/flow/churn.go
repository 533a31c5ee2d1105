package flow

import "time"

type ChurnRisk string

const (
	ChurnLow  ChurnRisk = "LOW"
	ChurnHigh ChurnRisk = "HIGH"
)

// ClassifyChurn predicts disengagement from a user's activity snapshot.
// recentTerminal holds the done/failed flags of the most recent terminal
// quests (up to 5), true meaning done.
func ClassifyChurn(now, lastActive time.Time, recentTerminal []bool) ChurnRisk {
	if !lastActive.IsZero() {
		if int(now.Sub(lastActive).Hours()/24) > 3 {
			return ChurnHigh
		}
	}
	if len(recentTerminal) >= 5 {
		allFailed := true
		for _, done := range recentTerminal {
			if done {
				allFailed = false
				break
			}
		}
		if allFailed {
			return ChurnHigh
		}
	}
	return ChurnLow
}
