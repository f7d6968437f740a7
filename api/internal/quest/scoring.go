package quest

import (
	"time"

	"reality-quest/api/internal/location"
	"reality-quest/api/internal/types"
)

const locationSuffix = " / location requirement not satisfied"

// Combine накладывает геопроверку на вердикт модели.
func Combine(ch types.Challenge, r types.JudgeResult, locationMessage string) types.FinalJudgement {
	failed := location.IsFailed(locationMessage)
	success := r.Success && !failed
	final := types.FinalJudgement{JudgeResult: r, LocationMessage: locationMessage}
	final.Success = success
	if success {
		final.ScoreAdded = ch.Points
	}
	if failed {
		final.Reason = r.Reason + locationSuffix
	}
	return final
}

// ApplyScore: успех прибавляет очки и серию, провал обнуляет серию.
func ApplyScore(s types.AppState, f types.FinalJudgement) types.AppState {
	if f.Success {
		s.Score += f.ScoreAdded
		s.Streak++
	} else {
		s.Streak = 0
	}
	return s
}

// PrependHistory: новая запись первой, не больше MaxHistory.
func PrependHistory(h []types.HistoryRecord, ch types.Challenge, f types.FinalJudgement, now time.Time) []types.HistoryRecord {
	rec := types.HistoryRecord{
		ChallengeTitle: ch.Title,
		Success:        f.Success,
		ScoreAdded:     f.ScoreAdded,
		Reason:         f.Reason,
		Timestamp:      now,
	}
	out := make([]types.HistoryRecord, 0, types.MaxHistory)
	out = append(out, rec)
	for _, r := range h {
		if len(out) == types.MaxHistory {
			break
		}
		out = append(out, r)
	}
	return out
}
