package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) ofType(eventType string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// waitFor polls until at least n events of eventType were published.
func (r *recorder) waitFor(t *testing.T, eventType string, n int) []domain.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := r.ofType(eventType); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events, saw %v", n, eventType, r.types())
	return nil
}

type failingLog struct {
	*memory.RecordStore
}

func (f failingLog) AppendAnswer(context.Context, domain.Answer) error {
	return errors.New("disk full")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startCoordinator(t *testing.T, log app.AnswerLog, opts app.CoordinatorOptions) (*app.Coordinator, *recorder) {
	t.Helper()
	rec := &recorder{}
	coordinator := app.NewCoordinator(log, rec, quietLogger(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coordinator.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return coordinator, rec
}

func capitalOfFrance() domain.Question {
	return domain.Question{
		ID:            1,
		Text:          "Capital of France?",
		Options:       []string{"Paris", "Rome", "Berlin"},
		CorrectAnswer: "Paris",
		Difficulty:    domain.DifficultyEasy,
		Points:        10,
	}
}

func capitalOfItaly() domain.Question {
	return domain.Question{
		ID:            2,
		Text:          "Capital of Italy?",
		Options:       []string{"Paris", "Rome", "Madrid"},
		CorrectAnswer: "Rome",
		Difficulty:    domain.DifficultyHard,
		Points:        20,
	}
}
