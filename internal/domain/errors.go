package domain

import "errors"

var (
	// ErrValidation marks a malformed question, answer or player payload.
	ErrValidation = errors.New("invalid payload")
	// ErrNoActiveRound is returned when an action needs a current question and there is none.
	ErrNoActiveRound = errors.New("no active round")
	// ErrSubmissionsClosed is returned for answers arriving after the deadline or the reveal.
	ErrSubmissionsClosed = errors.New("submissions closed for this round")
	// ErrQuestionNotFound indicates an unknown question ID.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrPlayerNotFound indicates an unknown player.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrCoordinatorStopped is returned by Dispatch once the event loop has exited.
	ErrCoordinatorStopped = errors.New("round coordinator stopped")
)

// IsRejection reports whether err is one of the errors the round lifecycle treats as a silent no-op.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNoActiveRound) ||
		errors.Is(err, ErrSubmissionsClosed)
}
