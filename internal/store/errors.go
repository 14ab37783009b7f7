package store

import (
	"errors"

	"payouts.hh/internal/withdrawal"
)

var (
	// ErrConflict is returned by UpdateIf when the stored status no longer
	// matches the expected one.
	ErrConflict = errors.New("status conflict")
	ErrNotFound = withdrawal.ErrNotFound
)
