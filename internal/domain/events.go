package domain

import "time"

// Outbound event names, as seen by viewers.
const (
	EventBroadcastQuestion = "broadcast-question"
	EventAnswerSubmitted   = "answer-submitted"
	EventRevealCorrect     = "reveal-correct"
	EventUpdateScores      = "update-scores"
	EventRoundResults      = "round-results"
	EventQuestionEnded     = "question-ended"
	EventTimerEnded        = "timer-ended"
	EventAllPlayersReady   = "all-players-ready"
	EventNewPlayer         = "new-player"
	EventRoundState        = "round-state"
	EventError             = "error"
)

// Event is a single broadcast to every connected viewer.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QuestionBroadcast is the payload of broadcast-question.
type QuestionBroadcast struct {
	Question     Question `json:"question"`
	TimerSeconds int      `json:"timerSeconds"`
}

// RevealPayload is the payload of reveal-correct.
type RevealPayload struct {
	QuestionID    int64  `json:"questionId"`
	CorrectAnswer string `json:"answer"`
}
