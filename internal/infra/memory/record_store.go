package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// RecordStore is an in-memory implementation of app.RecordStore (useful for tests/demos).
type RecordStore struct {
	mu        sync.RWMutex
	players   []domain.Player
	answers   []domain.Answer
	questions []domain.Question
}

func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// NewRecordStoreWithQuestions seeds the store, keeping the given IDs.
func NewRecordStoreWithQuestions(questions []domain.Question) *RecordStore {
	return &RecordStore{questions: append([]domain.Question(nil), questions...)}
}

func (s *RecordStore) ListPlayers(_ context.Context) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]domain.Player, 0, len(s.players)), s.players...), nil
}

func (s *RecordStore) AppendPlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = append(s.players, player)
	return nil
}

func (s *RecordStore) ClearPlayers(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = nil
	s.answers = nil
	return nil
}

func (s *RecordStore) ListAnswers(_ context.Context) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]domain.Answer, 0, len(s.answers)), s.answers...), nil
}

func (s *RecordStore) AppendAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answer)
	return nil
}

func (s *RecordStore) ListQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, cloneQuestion(q))
	}
	return out, nil
}

func (s *RecordStore) AddQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var highest int64
	for _, q := range s.questions {
		if q.ID > highest {
			highest = q.ID
		}
	}
	question = cloneQuestion(question)
	question.ID = highest + 1
	s.questions = append(s.questions, question)
	return cloneQuestion(question), nil
}

func (s *RecordStore) FindQuestion(_ context.Context, id int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions {
		if q.ID == id {
			return cloneQuestion(q), nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *RecordStore) UpdateQuestion(_ context.Context, question domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.questions {
		if s.questions[i].ID == question.ID {
			s.questions[i] = cloneQuestion(question)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (s *RecordStore) DeleteQuestion(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.questions {
		if s.questions[i].ID == id {
			s.questions = append(s.questions[:i], s.questions[i+1:]...)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}
