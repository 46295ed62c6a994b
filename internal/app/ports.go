package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// AnswerLog is the append-only answer history the ledger is derived from.
type AnswerLog interface {
	ListAnswers(ctx context.Context) ([]domain.Answer, error)
	AppendAnswer(ctx context.Context, answer domain.Answer) error
}

// RecordStore abstracts how players, answers and questions are persisted (files, memory).
type RecordStore interface {
	AnswerLog

	ListPlayers(ctx context.Context) ([]domain.Player, error)
	AppendPlayer(ctx context.Context, player domain.Player) error
	// ClearPlayers removes every player and every recorded answer.
	ClearPlayers(ctx context.Context) error

	ListQuestions(ctx context.Context) ([]domain.Question, error)
	// AddQuestion assigns the next ID and appends the question.
	AddQuestion(ctx context.Context, question domain.Question) (domain.Question, error)
	FindQuestion(ctx context.Context, id int64) (domain.Question, error)
	UpdateQuestion(ctx context.Context, question domain.Question) error
	DeleteQuestion(ctx context.Context, id int64) error
}

// Broadcaster delivers events to viewers. Publish must not block on slow consumers.
type Broadcaster interface {
	Publish(event domain.Event)
}

// AnswerArchive mirrors scored answers into secondary storage.
type AnswerArchive interface {
	Archive(ctx context.Context, answers []domain.Answer) error
}

// Fanout publishes every event to each of its broadcasters in order.
type Fanout []Broadcaster

func (f Fanout) Publish(event domain.Event) {
	for _, b := range f {
		if b != nil {
			b.Publish(event)
		}
	}
}
