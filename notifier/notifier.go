package notifier

import (
	"time"

	"github.com/zllovesuki/stayhub/listing"
)

// Event is emitted on every admin decision so an external notifier can reach
// the owner. Delivery/retry semantics belong to the consumer, not to us
type Event struct {
	ListingID  string         `json:"listingId"`
	OwnerID    string         `json:"ownerId"`
	NewStatus  listing.Status `json:"newStatus"`
	Reason     string         `json:"reason,omitempty"`
	ReviewedAt time.Time      `json:"reviewedAt"`
}

// Producer defines a producer sending review events via message broker
type Producer interface {
	Close()
	SendReviewEvent(e *Event) error
}
