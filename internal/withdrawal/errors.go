package withdrawal

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrMissingPixKey     = errors.New("missing pix key")
	ErrMissingReason     = errors.New("missing reason for denial")
	ErrMissingUser       = errors.New("missing user")
	ErrInvalidPagination = errors.New("invalid pagination")
	ErrNotFound          = errors.New("withdrawal not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPersistence       = errors.New("persistence error")

	// ErrIdempotencyConflict is returned when an idempotency key is reused
	// with a different request.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")
)

// TransitionError reports a rejected (status, event) pair. It matches
// ErrInvalidTransition under errors.Is.
type TransitionError struct {
	From  Status
	Event EventKind
	// Race is set when the guard passed on read but the conditional
	// write found the record already moved by another caller.
	Race bool
}

func (e *TransitionError) Error() string {
	if e.Race {
		return fmt.Sprintf("invalid transition: %s from %s (concurrent update)", e.Event, e.From)
	}
	return fmt.Sprintf("invalid transition: %s from %s", e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
