package subscription

// State is the custom type to define the current state of a subscription
type State string

// Defining different States for a Subscription
// Trial -> Active/Cancelled/Expired
// Active -> Cancelled/Suspended/Expired
// Cancelled -> Active (reactivation), quotas keep applying until PeriodEnd
// Expired -> Active (reactivation)
const (
	StateActive    State = "Active"
	StateTrial     State = "Trial"
	StateExpired   State = "Expired"
	StateCancelled State = "Cancelled"
	StateSuspended State = "Suspended"
)
