package listing

import (
	"strings"
	"time"

	"github.com/zllovesuki/stayhub/quota"
)

// Kind is the type of content going through the approval workflow
type Kind string

// Defining the valid kinds of a Listing
const (
	KindPlace Kind = "Place"
	KindBlog  Kind = "Blog"
)

// QuotaKind maps a listing kind to the resource kind counted against the plan
func (k Kind) QuotaKind() quota.ResourceKind {
	if k == KindBlog {
		return quota.KindBlogs
	}
	return quota.KindPlaces
}

// Valid reports whether the kind is a defined one
func (k Kind) Valid() bool {
	return k == KindPlace || k == KindBlog
}

// Listing describes a place or a blog post on the marketplace. Both share the
// same review lifecycle, so they share the same record
type Listing struct {
	ID              string      `json:"id" gorm:"primaryKey"`         // UUID of the listing
	OwnerID         string      `json:"ownerId" gorm:"index"`         // Corresponds to Customer.ID of the business owner
	Kind            Kind        `json:"kind" gorm:"index"`            // Place or Blog
	Title           string      `json:"title"`                        // Shown to visitors once published
	Content         string      `json:"content"`                      // Description/body. Must meet the minimum length before submission
	Category        string      `json:"category"`                     // e.g. Hotel, Restaurant, Guide
	City            string      `json:"city"`                         // Location, for places
	Country         string      `json:"country"`                      //
	ContactInfo     ContactInfo `json:"contactInfo"`                  // Decoded once at the database boundary, defaults to empty on NULL
	Features        StringList  `json:"features"`                     // e.g. WiFi, Parking
	Images          StringList  `json:"images"`                       // Photo URLs, counted against the plan's photo quota
	PhotoCount      int         `json:"-" gorm:"index"`               // Denormalized len(Images) so photo usage is a SUM, not a full decode
	Featured        bool        `json:"featured"`                     // Set when the owner's plan includes featured placement
	Status          Status      `json:"status" gorm:"index"`          // See const.go for the valid statuses
	RejectionReason string      `json:"rejectionReason,omitempty"`    // Set only while Rejected, cleared on resubmission
	SubmittedAt     *time.Time  `json:"submittedAt,omitempty"`        // When the listing last entered Pending. Review queue is ordered on this
	PublishedAt     *time.Time  `json:"publishedAt,omitempty"`        // When the listing last entered Active
	ReviewedAt      *time.Time  `json:"reviewedAt,omitempty"`         // When an admin last decided on this listing
	LastModifiedAt  time.Time   `json:"lastModifiedAt"`               // When the owner last changed the content
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// MinContentLength is the minimum content length accepted at submission
const MinContentLength = 80

// ValidationError reports which field failed a submission precondition
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// ValidateForSubmission checks the minimum content requirements before a
// listing may enter review
func (l *Listing) ValidateForSubmission() error {
	if strings.TrimSpace(l.Title) == "" {
		return &ValidationError{
			Field:  "title",
			Reason: "title is required",
		}
	}
	if len(strings.TrimSpace(l.Content)) < MinContentLength {
		return &ValidationError{
			Field:  "content",
			Reason: "content is too short for review",
		}
	}
	return nil
}
