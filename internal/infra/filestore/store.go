package filestore

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"live-quiz-service/internal/domain"
)

const (
	PlayersFile   = "players.txt"
	AnswersFile   = "answers.txt"
	QuestionsFile = "questions.txt"
)

// Store keeps players, answers and questions in three logs under one directory.
// Files are created on first write.
type Store struct {
	players   *Log[domain.Player]
	answers   *Log[domain.Answer]
	questions *Log[domain.Question]

	// questionMu serialises ID assignment against edits.
	questionMu sync.Mutex
}

func New(dir string, logger *slog.Logger) *Store {
	return &Store{
		players:   NewLog[domain.Player](filepath.Join(dir, PlayersFile), logger),
		answers:   NewLog[domain.Answer](filepath.Join(dir, AnswersFile), logger),
		questions: NewLog[domain.Question](filepath.Join(dir, QuestionsFile), logger),
	}
}

func (s *Store) ListPlayers(_ context.Context) ([]domain.Player, error) {
	return s.players.ReadAll()
}

func (s *Store) AppendPlayer(_ context.Context, player domain.Player) error {
	return s.players.Append(player)
}

// ClearPlayers truncates the answer log first so a failure never leaves answers without players.
func (s *Store) ClearPlayers(_ context.Context) error {
	if err := s.answers.OverwriteAll(nil); err != nil {
		return err
	}
	return s.players.OverwriteAll(nil)
}

func (s *Store) ListAnswers(_ context.Context) ([]domain.Answer, error) {
	return s.answers.ReadAll()
}

func (s *Store) AppendAnswer(_ context.Context, answer domain.Answer) error {
	return s.answers.Append(answer)
}

func (s *Store) ListQuestions(_ context.Context) ([]domain.Question, error) {
	return s.questions.ReadAll()
}

func (s *Store) AddQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	s.questionMu.Lock()
	defer s.questionMu.Unlock()

	existing, err := s.questions.ReadAll()
	if err != nil {
		return domain.Question{}, err
	}
	question.ID = nextQuestionID(existing)
	if err := s.questions.Append(question); err != nil {
		return domain.Question{}, err
	}
	return question, nil
}

func (s *Store) FindQuestion(_ context.Context, id int64) (domain.Question, error) {
	questions, err := s.questions.ReadAll()
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.ID == id {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *Store) UpdateQuestion(_ context.Context, question domain.Question) error {
	s.questionMu.Lock()
	defer s.questionMu.Unlock()

	return s.questions.Rewrite(func(questions []domain.Question) ([]domain.Question, error) {
		for i := range questions {
			if questions[i].ID == question.ID {
				questions[i] = question
				return questions, nil
			}
		}
		return nil, domain.ErrQuestionNotFound
	})
}

func (s *Store) DeleteQuestion(_ context.Context, id int64) error {
	s.questionMu.Lock()
	defer s.questionMu.Unlock()

	return s.questions.Rewrite(func(questions []domain.Question) ([]domain.Question, error) {
		kept := questions[:0]
		found := false
		for _, q := range questions {
			if q.ID == id {
				found = true
				continue
			}
			kept = append(kept, q)
		}
		if !found {
			return nil, domain.ErrQuestionNotFound
		}
		return kept, nil
	})
}

func nextQuestionID(questions []domain.Question) int64 {
	var highest int64
	for _, q := range questions {
		if q.ID > highest {
			highest = q.ID
		}
	}
	return highest + 1
}
