package listing

import "errors"

// Event is an action that moves a listing through its lifecycle
type Event string

// Defining the review lifecycle events
const (
	EventSubmit     Event = "Submit"     // owner sends a draft to review
	EventApprove    Event = "Approve"    // admin publishes a pending listing
	EventReject     Event = "Reject"     // admin declines with a reason
	EventEdit       Event = "Edit"       // owner changes published content, forcing re-review
	EventSuspend    Event = "Suspend"    // admin takes a listing offline
	EventResubmit   Event = "Resubmit"   // owner sends a rejected listing back to review
	EventReactivate Event = "Reactivate" // admin restores a suspended listing
	EventArchive    Event = "Archive"    // owner retires the listing for good
)

// Actor identifies who is attempting a transition. Ownership of the listing
// itself is checked by the services; the table only cares about privilege
type Actor struct {
	ID    string
	Admin bool
}

var (
	// ErrForbidden is returned when the actor lacks the privilege for the event
	ErrForbidden = errors.New("actor is not allowed to perform this transition")
	// ErrInvalidTransition is returned when the event does not apply to the current status
	ErrInvalidTransition = errors.New("event does not apply to the current status")
	// ErrStale is returned when a conditional status update lost to a concurrent writer
	ErrStale = errors.New("listing status changed concurrently, re-fetch before retrying")
	// ErrNotFound is returned when no listing exists with the given id
	ErrNotFound = errors.New("no listing found with the given id")
)

type transition struct {
	Next      Status
	AdminOnly bool
}

// transitions is the single authoritative table for the lifecycle. Anything
// not listed here is an invalid transition, no matter who asks
var transitions = map[Status]map[Event]transition{
	StatusDraft: {
		EventSubmit:  {Next: StatusPending},
		EventArchive: {Next: StatusArchived},
	},
	StatusPending: {
		EventApprove: {Next: StatusActive, AdminOnly: true},
		EventReject:  {Next: StatusRejected, AdminOnly: true},
		EventArchive: {Next: StatusArchived},
	},
	StatusActive: {
		EventEdit:    {Next: StatusPending},
		EventSuspend: {Next: StatusSuspended, AdminOnly: true},
		EventArchive: {Next: StatusArchived},
	},
	StatusRejected: {
		EventResubmit: {Next: StatusPending},
		EventArchive:  {Next: StatusArchived},
	},
	StatusSuspended: {
		EventReactivate: {Next: StatusActive, AdminOnly: true},
		EventArchive:    {Next: StatusArchived},
	},
	// StatusArchived is terminal
}

// Next resolves the status after applying the event, or fails with
// ErrInvalidTransition/ErrForbidden without touching anything
func Next(current Status, ev Event, actor Actor) (Status, error) {
	events, ok := transitions[current]
	if !ok {
		return "", ErrInvalidTransition
	}
	t, ok := events[ev]
	if !ok {
		return "", ErrInvalidTransition
	}
	if t.AdminOnly && !actor.Admin {
		return "", ErrForbidden
	}
	return t.Next, nil
}
