package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// LedgerRebuilder refreshes the live ledger after the answer log changes outside a round.
type LedgerRebuilder interface {
	RebuildLedger(ctx context.Context) error
}

// QuizService contains the record-keeping use cases behind the REST surface.
type QuizService struct {
	store  RecordStore
	bus    Broadcaster
	ledger LedgerRebuilder
	logger *slog.Logger
	newID  func() string

	// joinMu makes the name lookup and append in RegisterPlayer one step.
	joinMu sync.Mutex
}

func NewQuizService(store RecordStore, bus Broadcaster, ledger LedgerRebuilder, logger *slog.Logger) *QuizService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizService{
		store:  store,
		bus:    bus,
		ledger: ledger,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

func (s *QuizService) Questions(ctx context.Context) ([]domain.Question, error) {
	return s.store.ListQuestions(ctx)
}

func (s *QuizService) Question(ctx context.Context, id int64) (domain.Question, error) {
	return s.store.FindQuestion(ctx, id)
}

// AddQuestion validates and stores a new question; the store assigns its ID.
func (s *QuizService) AddQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	q.ID = 0
	return s.store.AddQuestion(ctx, q)
}

// UpdateQuestion replaces a stored question. Answers already recorded keep their points.
func (s *QuizService) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == 0 {
		return domain.Question{}, fmt.Errorf("%w: question id is required", domain.ErrValidation)
	}
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

func (s *QuizService) DeleteQuestion(ctx context.Context, id int64) error {
	return s.store.DeleteQuestion(ctx, id)
}

func (s *QuizService) Players(ctx context.Context) ([]domain.Player, error) {
	return s.store.ListPlayers(ctx)
}

// Player looks a player up by ID or, failing that, by name.
func (s *QuizService) Player(ctx context.Context, key string) (domain.Player, error) {
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return domain.Player{}, err
	}
	for _, p := range players {
		if p.ID == key {
			return p, nil
		}
	}
	for _, p := range players {
		if p.Name == key {
			return p, nil
		}
	}
	return domain.Player{}, domain.ErrPlayerNotFound
}

// RegisterPlayer stores a joining player and announces them to every viewer.
// Joining again under a known name returns the existing record.
func (s *QuizService) RegisterPlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	player.Name = strings.TrimSpace(player.Name)
	player.ID = strings.TrimSpace(player.ID)
	if player.Name == "" {
		return domain.Player{}, fmt.Errorf("%w: player name is required", domain.ErrValidation)
	}

	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	existing, err := s.store.ListPlayers(ctx)
	if err != nil {
		return domain.Player{}, err
	}
	for _, p := range existing {
		if p.Name == player.Name {
			return p, nil
		}
	}

	if player.ID == "" {
		player.ID = s.newID()
	}
	if err := s.store.AppendPlayer(ctx, player); err != nil {
		return domain.Player{}, err
	}
	s.logger.Info("player registered", "player_id", player.ID, "name", player.Name)
	s.bus.Publish(domain.Event{Type: domain.EventNewPlayer, Payload: player, Timestamp: time.Now()})
	return player, nil
}

// ClearPlayers drops every player together with the answer log, then resets the live ledger.
func (s *QuizService) ClearPlayers(ctx context.Context) error {
	if err := s.store.ClearPlayers(ctx); err != nil {
		return err
	}
	s.logger.Info("players and answers cleared")
	if s.ledger != nil {
		if err := s.ledger.RebuildLedger(ctx); err != nil {
			s.logger.Warn("resetting live ledger", "error", err)
		}
	}
	return nil
}

func (s *QuizService) Answers(ctx context.Context) ([]domain.Answer, error) {
	return s.store.ListAnswers(ctx)
}
