package model

import "errors"

// Domain sentinel errors, mapped to HTTP codes at the handler layer.
var (
	// ErrUnauthorized indicates a missing or invalid learner identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates an absent session, test or submission.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSubmission indicates an answer referencing an unknown
	// question or carrying a payload that does not match the authored
	// question type. Finalize fails as a whole on this error.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrSessionSubmitted indicates an illegal transition on a session
	// that already reached its terminal state.
	ErrSessionSubmitted = errors.New("session already submitted")
)
