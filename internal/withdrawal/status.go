package withdrawal

import "strings"

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusDoneManual Status = "done_manual"
	StatusDone       Status = "done"
	StatusCancel     Status = "cancel"
)

var statuses = map[Status]struct{}{
	StatusPending:    {},
	StatusApproved:   {},
	StatusDoneManual: {},
	StatusDone:       {},
	StatusCancel:     {},
}

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(s))
	_, ok := statuses[st]
	return st, ok
}

func (s Status) Terminal() bool {
	return s == StatusDoneManual || s == StatusDone || s == StatusCancel
}

func (s Status) String() string {
	return string(s)
}

type EventKind string

const (
	EventApprove          EventKind = "approve"
	EventCancel           EventKind = "cancel"
	EventMarkPaidManually EventKind = "mark_paid_manually"
	// EventConfirmPayout is raised by the payment rail once an automatic
	// payout settles.
	EventConfirmPayout EventKind = "confirm_payout"
)

type Event struct {
	Kind   EventKind
	Reason string
}

func Approve() Event          { return Event{Kind: EventApprove} }
func MarkPaidManually() Event { return Event{Kind: EventMarkPaidManually} }
func ConfirmPayout() Event    { return Event{Kind: EventConfirmPayout} }

func Cancel(reason string) Event {
	return Event{Kind: EventCancel, Reason: reason}
}

// transitions is the complete guard table. A pair missing here is rejected.
var transitions = map[Status]map[EventKind]Status{
	StatusPending: {
		EventApprove: StatusApproved,
		EventCancel:  StatusCancel,
	},
	StatusApproved: {
		EventCancel:           StatusCancel,
		EventMarkPaidManually: StatusDoneManual,
		EventConfirmPayout:    StatusDone,
	},
}

// Transition returns the status reached by applying ev to from.
func Transition(from Status, ev Event) (Status, error) {
	if ev.Kind == EventCancel && strings.TrimSpace(ev.Reason) == "" {
		return from, ErrMissingReason
	}
	to, ok := transitions[from][ev.Kind]
	if !ok {
		return from, &TransitionError{From: from, Event: ev.Kind}
	}
	return to, nil
}
