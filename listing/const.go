package listing

// Status is the custom type to define where a listing sits in the review
// lifecycle. All reads of the lifecycle go through the transition table in
// transitions.go instead of per-screen comparisons
type Status string

// Define the valid statuses of a listing
// Draft -> Pending (owner submits)
// Pending -> Active/Rejected (admin decides)
// Active -> Pending (owner edits, content re-enters review)
// Active -> Suspended (admin)
// Rejected -> Pending (owner resubmits after editing)
// Suspended -> Active (admin reactivates)
// any -> Archived (owner, terminal)
const (
	StatusDraft     Status = "Draft"
	StatusPending   Status = "Pending"
	StatusActive    Status = "Active"
	StatusRejected  Status = "Rejected"
	StatusSuspended Status = "Suspended"
	StatusArchived  Status = "Archived"
)

// Statuses enumerates every defined status
var Statuses = []Status{
	StatusDraft,
	StatusPending,
	StatusActive,
	StatusRejected,
	StatusSuspended,
	StatusArchived,
}
