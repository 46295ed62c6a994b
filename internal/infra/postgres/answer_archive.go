package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"live-quiz-service/internal/domain"
)

const insertAnswerSQL = `INSERT INTO quiz_answers (question_id, player, answer, correct, points, difficulty, answered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (question_id, player, answered_at) DO NOTHING`

// AnswerArchive keeps a queryable copy of every scored answer in Postgres.
// The answer log on disk stays authoritative; clearing players leaves the archive alone.
type AnswerArchive struct {
	pool *pgxpool.Pool
}

func NewAnswerArchive(pool *pgxpool.Pool) *AnswerArchive {
	return &AnswerArchive{pool: pool}
}

// Archive inserts one round's answers in a single batch. Re-archiving the same round is a no-op.
func (a *AnswerArchive) Archive(ctx context.Context, answers []domain.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ans := range answers {
		batch.Queue(insertAnswerSQL,
			ans.QuestionID, ans.Player, ans.Answer, ans.Correct, ans.Points, string(ans.Difficulty), ans.Timestamp)
	}

	results := a.pool.SendBatch(ctx, batch)
	for range answers {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("archive answer: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("archive answers: %w", err)
	}
	return nil
}

// TotalsByPlayer sums the points of correct archived answers per player.
func (a *AnswerArchive) TotalsByPlayer(ctx context.Context) (map[string]int, error) {
	rows, err := a.pool.Query(ctx, `SELECT player, COALESCE(SUM(points) FILTER (WHERE correct), 0)
FROM quiz_answers GROUP BY player`)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var (
			player string
			total  int64
		)
		if err := rows.Scan(&player, &total); err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		totals[player] = int(total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read totals: %w", err)
	}
	return totals, nil
}

// Count returns the number of archived answers.
func (a *AnswerArchive) Count(ctx context.Context) (int, error) {
	var n int64
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quiz_answers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return int(n), nil
}
