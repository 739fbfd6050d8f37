package moderation

import "time"

// Action is the decision an admin took on a pending listing
type Action string

const (
	ActionApproved Action = "Approved"
	ActionRejected Action = "Rejected"
)

// Review is the audit record of an admin decision, shown in the console's
// review history
type Review struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ListingID string    `json:"listingId" gorm:"not null;index"`
	AdminID   string    `json:"adminId" gorm:"not null"`
	Action    Action    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
