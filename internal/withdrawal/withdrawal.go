package withdrawal

import (
	"strings"
	"time"
)

// DefaultListLimit is applied when a list filter leaves Limit at zero.
const DefaultListLimit = 10

// Withdrawal is a user request to move funds to an external destination.
// Amounts are in minor units.
type Withdrawal struct {
	ID              string
	UserID          string
	RequestedAmount int64
	FeeAmount       int64
	Amount          int64
	Status          Status
	IsPix           bool
	PixKeyID        *string
	Description     *string
	ReasonForDenial *string
	// IdempotencyKey is unique per user when set. A repeated create with the
	// same key and payload resolves to the stored withdrawal.
	IdempotencyKey  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Mutation computes the next version of a stored withdrawal. It must not
// perform I/O.
type Mutation func(Withdrawal) (Withdrawal, error)

type ListFilter struct {
	// Status is matched verbatim; an unknown value matches nothing.
	Status string
	UserID string
	Limit  int
	Offset int
}

// Timestamp normalises t to the precision kept by storage.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Apply runs ev against w and returns the updated copy. w is never modified.
func Apply(w Withdrawal, ev Event, now time.Time) (Withdrawal, error) {
	to, err := Transition(w.Status, ev)
	if err != nil {
		return w, err
	}

	next := w
	next.Status = to
	if to == StatusCancel {
		reason := strings.TrimSpace(ev.Reason)
		next.ReasonForDenial = &reason
	}

	updated := Timestamp(now)
	if !updated.After(w.UpdatedAt) {
		updated = w.UpdatedAt.Add(time.Microsecond)
	}
	if !updated.After(w.CreatedAt) {
		updated = w.CreatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = updated
	return next, nil
}

// Mutate binds ev and a clock into a Mutation.
func Mutate(ev Event, now func() time.Time) Mutation {
	return func(w Withdrawal) (Withdrawal, error) {
		return Apply(w, ev, now())
	}
}
