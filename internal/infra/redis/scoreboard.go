package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// ScoreProjection mirrors the live ledger into Redis so scoreboards outside this
// process can read it. The answer log stays the source of truth; the projection
// is replaced wholesale on every update-scores event.
//
// Keys:
//
//	ZSET {prefix}:scores  member=player score=points
//	STRING {prefix}:round  id of the question on screen (expires after roundTTL)
type ScoreProjection struct {
	client   *redis.Client
	prefix   string
	roundTTL time.Duration
	logger   *slog.Logger
	events   chan domain.Event
}

func NewScoreProjection(client *redis.Client, prefix string, roundTTL time.Duration, logger *slog.Logger) *ScoreProjection {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "quiz"
	}
	return &ScoreProjection{
		client:   client,
		prefix:   prefix,
		roundTTL: roundTTL,
		logger:   logger,
		events:   make(chan domain.Event, 64),
	}
}

// Publish queues the events the projection cares about. It never blocks; when
// Redis falls behind the event is dropped and the next update-scores repairs it.
func (p *ScoreProjection) Publish(event domain.Event) {
	switch event.Type {
	case domain.EventUpdateScores, domain.EventBroadcastQuestion, domain.EventQuestionEnded:
	default:
		return
	}
	select {
	case p.events <- event:
	default:
		p.logger.Warn("score projection backlog full, dropping event", "type", event.Type)
	}
}

// Run applies queued events until ctx is cancelled.
func (p *ScoreProjection) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-p.events:
			if err := p.Apply(ctx, event); err != nil {
				p.logger.Error("updating score projection", "type", event.Type, "error", err)
			}
		}
	}
}

// Apply writes a single event to Redis.
func (p *ScoreProjection) Apply(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.EventUpdateScores:
		scores, ok := event.Payload.(map[string]int)
		if !ok {
			return fmt.Errorf("unexpected update-scores payload %T", event.Payload)
		}
		return p.Replace(ctx, scores)
	case domain.EventBroadcastQuestion:
		broadcast, ok := event.Payload.(domain.QuestionBroadcast)
		if !ok {
			return fmt.Errorf("unexpected broadcast-question payload %T", event.Payload)
		}
		return p.client.Set(ctx, p.roundKey(), broadcast.Question.ID, p.roundTTL).Err()
	case domain.EventQuestionEnded:
		return p.client.Del(ctx, p.roundKey()).Err()
	}
	return nil
}

// Replace swaps the whole sorted set in one MULTI block.
func (p *ScoreProjection) Replace(ctx context.Context, scores map[string]int) error {
	members := make([]redis.Z, 0, len(scores))
	for player, score := range scores {
		members = append(members, redis.Z{Score: float64(score), Member: player})
	}
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.scoresKey())
		if len(members) > 0 {
			pipe.ZAdd(ctx, p.scoresKey(), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing scores: %w", err)
	}
	return nil
}

// Top returns the n best players, ranked like the in-process ledger. n <= 0 returns everyone.
func (p *ScoreProjection) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	members, err := p.client.ZRevRangeWithScores(ctx, p.scoresKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading scores: %w", err)
	}
	scores := make(map[string]int, len(members))
	for _, m := range members {
		player, ok := m.Member.(string)
		if !ok {
			continue
		}
		scores[player] = int(m.Score)
	}
	entries := app.RankScores(scores)
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// ActiveQuestion reports the question currently on screen, if any.
func (p *ScoreProjection) ActiveQuestion(ctx context.Context) (int64, bool, error) {
	raw, err := p.client.Get(ctx, p.roundKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing active question: %w", err)
	}
	return id, true, nil
}

func (p *ScoreProjection) scoresKey() string {
	return p.prefix + ":scores"
}

func (p *ScoreProjection) roundKey() string {
	return p.prefix + ":round"
}
