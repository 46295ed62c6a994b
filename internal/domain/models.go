package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty grades a question; it is carried onto every recorded answer.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// DefaultPoints is awarded for a correct answer when a question does not set its own value.
const DefaultPoints = 10

func (d Difficulty) valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// Question models a multiple choice question. JSON names follow the stored record format.
type Question struct {
	ID            int64      `json:"id"`
	Text          string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"answer,omitempty"`
	Difficulty    Difficulty `json:"difficulty,omitempty"`
	Points        int        `json:"points,omitempty"`
}

// Normalize fills in the default difficulty and points.
func (q Question) Normalize() Question {
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	if q.Points == 0 {
		q.Points = DefaultPoints
	}
	q.Options = append([]string(nil), q.Options...)
	return q
}

// Validate checks a normalized question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", ErrValidation)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: at least two options are required", ErrValidation)
	}
	if !q.HasOption(q.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer %q is not one of the options", ErrValidation, q.CorrectAnswer)
	}
	if !q.Difficulty.valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrValidation, q.Difficulty)
	}
	if q.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrValidation)
	}
	return nil
}

// Public returns a copy safe to show before the reveal.
func (q Question) Public() Question {
	q.Options = append([]string(nil), q.Options...)
	q.CorrectAnswer = ""
	return q
}

// HasOption reports whether answer is exactly one of the question's options.
func (q Question) HasOption(answer string) bool {
	for _, opt := range q.Options {
		if opt == answer {
			return true
		}
	}
	return false
}

// Player is a registered participant. Name is the scoring key.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubmittedAnswer is a player's pending choice for the active round.
type SubmittedAnswer struct {
	QuestionID int64  `json:"questionId"`
	Player     string `json:"player"`
	Answer     string `json:"answer"`
}

// Answer is the persisted, scored outcome of one submission.
type Answer struct {
	QuestionID int64      `json:"questionId"`
	Player     string     `json:"player"`
	Answer     string     `json:"answer"`
	Correct    bool       `json:"correct"`
	Points     int        `json:"points"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Phase is the lifecycle position of the active round.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseShown          Phase = "shown"
	PhaseTiming         Phase = "timing"
	PhaseAwaitingReveal Phase = "awaiting-reveal"
	PhaseRevealed       Phase = "revealed"
)

// LeaderboardEntry is one ranked row of the ledger.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	Player string `json:"player"`
	Score  int    `json:"score"`
}

// RoundSnapshot captures the coordinator state for late joiners and the REST surface.
type RoundSnapshot struct {
	Phase        Phase          `json:"phase"`
	Question     *Question      `json:"question,omitempty"`
	TimerSeconds int            `json:"timerSeconds"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	Submitted    []string       `json:"submitted"`
	Ready        []string       `json:"ready"`
	Connected    []string       `json:"connected"`
	Scores       map[string]int `json:"scores"`
}
