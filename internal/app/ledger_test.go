package app_test

import (
	"context"
	"reflect"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestComputeScoresIgnoresOrder(t *testing.T) {
	answers := []domain.Answer{
		{QuestionID: 1, Player: "A", Correct: true, Points: 10},
		{QuestionID: 1, Player: "B", Correct: false, Points: 0},
		{QuestionID: 2, Player: "B", Correct: true, Points: 20},
		{QuestionID: 2, Player: "A", Correct: false, Points: 20},
	}
	reversed := make([]domain.Answer, len(answers))
	for i, a := range answers {
		reversed[len(answers)-1-i] = a
	}

	want := map[string]int{"A": 10, "B": 20}
	if got := app.ComputeScores(answers); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected scores %v", got)
	}
	if got := app.ComputeScores(reversed); !reflect.DeepEqual(got, want) {
		t.Fatalf("order changed the result: %v", got)
	}
	if got := app.ComputeScores(nil); len(got) != 0 {
		t.Fatalf("expected empty ledger, got %v", got)
	}
}

func TestRankScoresSharesRanksOnTies(t *testing.T) {
	entries := app.RankScores(map[string]int{"Cleo": 10, "Ana": 30, "Ben": 10, "Dan": 0})

	want := []domain.LeaderboardEntry{
		{Rank: 1, Player: "Ana", Score: 30},
		{Rank: 2, Player: "Ben", Score: 10},
		{Rank: 2, Player: "Cleo", Score: 10},
		{Rank: 3, Player: "Dan", Score: 0},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("unexpected ranking %+v", entries)
	}
}

func TestLedgerReadsFromAnswerLog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	_ = store.AppendAnswer(ctx, domain.Answer{QuestionID: 1, Player: "A", Correct: true, Points: 10})
	_ = store.AppendAnswer(ctx, domain.Answer{QuestionID: 1, Player: "B", Correct: true, Points: 10})
	_ = store.AppendAnswer(ctx, domain.Answer{QuestionID: 2, Player: "B", Correct: true, Points: 20})
	ledger := app.NewLedger(store)

	top, err := ledger.Leaderboard(ctx, 1)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(top) != 1 || top[0].Player != "B" || top[0].Score != 30 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}

	scores, _ := ledger.Scores(ctx)
	scores["A"] = 1000
	again, _ := ledger.Scores(ctx)
	if again["A"] != 10 {
		t.Fatalf("callers must get their own copy, got %v", again)
	}

	_ = store.ClearPlayers(ctx)
	cleared, _ := ledger.Scores(ctx)
	if len(cleared) != 0 {
		t.Fatalf("expected empty ledger after clear, got %v", cleared)
	}
}
