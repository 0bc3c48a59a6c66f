package errors

import (
	"errors"
)

// Failure taxonomy shared across the moderation pipeline.
var (
	// ErrScoringUnavailable means the classifier could not produce any result,
	// probabilistic or binary. Callers treat it as "no signal", never as spam.
	ErrScoringUnavailable = errors.New("scoring unavailable")

	// ErrInvalidField rejects a policy write for an unknown field or a value
	// that does not match the field's type.
	ErrInvalidField = errors.New("invalid policy field")

	// ErrEnforcementFailed wraps transport failures of punishment actions.
	ErrEnforcementFailed = errors.New("enforcement failed")

	// ErrPersistenceFailure wraps ledger/policy storage failures that survived
	// a retry.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrUnauthorized means the bot itself lacks chat privileges for an action.
	ErrUnauthorized = errors.New("unauthorized")
)
