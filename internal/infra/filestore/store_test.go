package filestore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestStorePlayersAndAnswersSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := New(dir, nil)
	if err := store.AppendPlayer(ctx, domain.Player{ID: "p1", Name: "Alice"}); err != nil {
		t.Fatalf("append player: %v", err)
	}
	if err := store.AppendAnswer(ctx, domain.Answer{QuestionID: 1, Player: "Alice", Answer: "Paris", Correct: true, Points: 10}); err != nil {
		t.Fatalf("append answer: %v", err)
	}

	reopened := New(dir, nil)
	players, err := reopened.ListPlayers(ctx)
	if err != nil || len(players) != 1 || players[0].Name != "Alice" {
		t.Fatalf("unexpected players %#v err=%v", players, err)
	}
	answers, err := reopened.ListAnswers(ctx)
	if err != nil || len(answers) != 1 || !answers[0].Correct {
		t.Fatalf("unexpected answers %#v err=%v", answers, err)
	}
}

func TestStoreClearPlayersEmptiesAnswers(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir(), nil)
	_ = store.AppendPlayer(ctx, domain.Player{ID: "p1", Name: "Alice"})
	_ = store.AppendAnswer(ctx, domain.Answer{QuestionID: 1, Player: "Alice", Answer: "Paris"})

	if err := store.ClearPlayers(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	players, _ := store.ListPlayers(ctx)
	answers, _ := store.ListAnswers(ctx)
	if len(players) != 0 || len(answers) != 0 {
		t.Fatalf("expected empty store, got %d players %d answers", len(players), len(answers))
	}
}

func TestStoreQuestionCRUD(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir(), nil)

	first, err := store.AddQuestion(ctx, question("Capital of France?", "Paris"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, _ := store.AddQuestion(ctx, question("Capital of Italy?", "Rome"))
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}

	second.Points = 30
	if err := store.UpdateQuestion(ctx, second); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.FindQuestion(ctx, second.ID)
	if err != nil || got.Points != 30 {
		t.Fatalf("expected updated points, got %+v err=%v", got, err)
	}

	if err := store.DeleteQuestion(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.FindQuestion(ctx, first.ID); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.UpdateQuestion(ctx, domain.Question{ID: 99}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	third, _ := store.AddQuestion(ctx, question("Capital of Spain?", "Madrid"))
	if third.ID != 3 {
		t.Fatalf("expected id 3, got %d", third.ID)
	}
}

func question(text, answer string) domain.Question {
	return domain.Question{
		Text:          text,
		Options:       []string{answer, "Berlin", "Lisbon"},
		CorrectAnswer: answer,
		Difficulty:    domain.DifficultyEasy,
		Points:        10,
	}
}

func TestStoreOversizedQuestionDoesNotBreakLog(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir(), nil)
	if _, err := store.AddQuestion(ctx, domain.Question{Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris", Points: 10}); err != nil {
		t.Fatalf("add: %v", err)
	}

	big := domain.Question{Text: strings.Repeat("?", 5<<20), Options: []string{"a", "b"}, CorrectAnswer: "a", Points: 1}
	if _, err := store.AddQuestion(ctx, big); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	questions, err := store.ListQuestions(ctx)
	if err != nil || len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d (err=%v)", len(questions), err)
	}
	added, err := store.AddQuestion(ctx, domain.Question{Text: "Capital of Italy?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "Rome", Points: 20})
	if err != nil || added.ID != 2 {
		t.Fatalf("expected id 2, got %d (err=%v)", added.ID, err)
	}
}
