package graph

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidInput marks a precondition violation such as empty input text.
// Operations failing this way are never retried.
var ErrInvalidInput = errors.New("input text cannot be empty")

// ErrRunNotFound is returned when a run id is unknown to the orchestrator.
var ErrRunNotFound = errors.New("pipeline run not found")

// TransientError wraps a rate-limit or transport failure from the remote
// model. It is retried up to the client's attempt budget; Attempts carries
// how many calls were made before the error surfaced.
type TransientError struct {
	Err         error
	RateLimited bool
	Attempts    int
}

func (e *TransientError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("rate limit exceeded after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("transient service error after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError marks a parsed response that violates a domain invariant,
// such as a relationship strength outside [1,10] or an embedding of the
// wrong dimension. It is surfaced, never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StoreWriteError records a persistence failure against one store. Sibling
// store writes are not rolled back; the orchestrator turns this into a
// StageError on the run.
type StoreWriteError struct {
	Store string
	Err   error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("write to %s store failed: %v", e.Store, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }
