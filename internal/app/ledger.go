package app

import (
	"context"
	"maps"
	"sort"

	"golang.org/x/sync/singleflight"
	"live-quiz-service/internal/domain"
)

// ComputeScores folds the answer log into cumulative points per player.
// Every player with at least one recorded answer appears, with 0 if none were correct.
func ComputeScores(answers []domain.Answer) map[string]int {
	scores := make(map[string]int)
	for _, answer := range answers {
		scores[answer.Player] += awarded(answer)
	}
	return scores
}

func awarded(answer domain.Answer) int {
	if !answer.Correct {
		return 0
	}
	return answer.Points
}

// RankScores orders the ledger by score (desc), then name. Equal scores share a rank.
func RankScores(scores map[string]int) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(scores))
	for player, score := range scores {
		entries = append(entries, domain.LeaderboardEntry{Player: player, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Player < entries[j].Player
	})
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
	return entries
}

// Ledger serves scoreboard reads straight from the answer log.
type Ledger struct {
	answers AnswerLog
	sf      singleflight.Group
}

func NewLedger(answers AnswerLog) *Ledger {
	return &Ledger{answers: answers}
}

// Scores recomputes the ledger. Concurrent callers share one scan of the log.
func (l *Ledger) Scores(ctx context.Context) (map[string]int, error) {
	result, err, _ := l.sf.Do("scores", func() (interface{}, error) {
		answers, err := l.answers.ListAnswers(ctx)
		if err != nil {
			return nil, err
		}
		return ComputeScores(answers), nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(result.(map[string]int)), nil
}

// Leaderboard returns the ranked ledger, truncated to limit when limit > 0.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	scores, err := l.Scores(ctx)
	if err != nil {
		return nil, err
	}
	entries := RankScores(scores)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
