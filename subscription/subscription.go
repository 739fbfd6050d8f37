package subscription

import (
	"time"
)

// Subscription describes a business owner's plan membership. Exactly one
// subscription feeds the quota gate for an owner at any moment
type Subscription struct {
	ID            string     `json:"id" gorm:"primaryKey"`    // shortuuid
	CustomerID    string     `json:"customerId" gorm:"index"` // Corresponds to Customer.ID
	PlanID        string     `json:"planId"`                  // References a Plan from the catalog
	State         State      `json:"state"`                   // See const.go
	PeriodStart   time.Time  `json:"currentPeriodStart"`      // Start of the current billing period
	PeriodEnd     time.Time  `json:"currentPeriodEnd"`        // End of the current billing period; also the grace boundary after cancellation
	NextBillingAt time.Time  `json:"nextBillingDate"`         // Informational, mirrors PeriodEnd for recurring plans
	TrialEndsAt   *time.Time `json:"trialEndsAt,omitempty"`   // Set only for trials
	CancelledAt   *time.Time `json:"cancelledAt,omitempty"`   // Set on cancellation, cleared on reactivation
	CancelReason  string     `json:"cancelReason,omitempty"`  //
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Valid reports whether the subscription still grants its plan's quotas at the
// given instant. A cancelled subscription stays valid until the paid period
// ends, so cancelling never cuts published listings off mid-period
func (s *Subscription) Valid(at time.Time) bool {
	if s == nil {
		return false
	}
	switch s.State {
	case StateActive:
		return s.PeriodEnd.After(at)
	case StateTrial:
		return s.TrialEndsAt != nil && s.TrialEndsAt.After(at)
	case StateCancelled:
		return s.PeriodEnd.After(at)
	default:
		return false
	}
}
