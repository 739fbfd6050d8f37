package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zllovesuki/stayhub/listing"
	"github.com/zllovesuki/stayhub/notifier"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the configuration for the moderation Manager
type ManagerOptions struct {
	ListingManager *listing.Manager
	Producer       notifier.Producer
	DB             *gorm.DB
	Logger         *zap.Logger
}

// Manager drives the approval queue: listing review, the approve/reject
// transitions, the audit trail, and owner notification events
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for the approval queue
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.ListingManager == nil {
		return nil, fmt.Errorf("nil ListingManager is invalid")
	}
	if option.Producer == nil {
		return nil, fmt.Errorf("nil Producer is invalid")
	}
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Review{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize moderation.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// ListOption filters the approval queue
type ListOption struct {
	All   bool
	Limit int
}

// List returns the queue, oldest submission first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]listing.Listing, error) {
	return m.ListingManager.ListForReview(ctx, listing.ReviewListOption{
		All:   opt.All,
		Limit: opt.Limit,
	})
}

// History returns the recorded decisions for a listing, newest first
func (m *Manager) History(ctx context.Context, listingID string) ([]Review, error) {
	results := make([]Review, 0, 1)
	result := m.DB.WithContext(ctx).
		Order("created_at desc").
		Find(&results, "listing_id = ?", listingID)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get review history")
	}
	return results, nil
}

// Approve publishes a pending listing. The transition is conditioned on the
// listing still being Pending, so of two concurrent admin decisions exactly
// one applies and the other observes listing.ErrStale
func (m *Manager) Approve(ctx context.Context, listingID string, actor listing.Actor) (*listing.Listing, error) {
	next, err := listing.Next(listing.StatusPending, listing.EventApprove, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated, err := m.ListingManager.CompareAndSwapStatus(ctx, listingID, listing.StatusPending, next, map[string]interface{}{
		"reviewed_at":      now,
		"published_at":     now,
		"rejection_reason": "",
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, updated, actor, ActionApproved, "")
	m.emit(updated, "")

	return updated, nil
}

// Reject declines a pending listing with a reason. A blank reason is a
// validation failure, not a transition
func (m *Manager) Reject(ctx context.Context, listingID string, reason string, actor listing.Actor) (*listing.Listing, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) == 0 {
		return nil, &listing.ValidationError{
			Field:  "reason",
			Reason: "a rejection reason is required",
		}
	}

	next, err := listing.Next(listing.StatusPending, listing.EventReject, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated, err := m.ListingManager.CompareAndSwapStatus(ctx, listingID, listing.StatusPending, next, map[string]interface{}{
		"reviewed_at":      now,
		"rejection_reason": reason,
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, updated, actor, ActionRejected, reason)
	m.emit(updated, reason)

	return updated, nil
}

// Suspend takes a published listing offline
func (m *Manager) Suspend(ctx context.Context, listingID string, actor listing.Actor) (*listing.Listing, error) {
	next, err := listing.Next(listing.StatusActive, listing.EventSuspend, actor)
	if err != nil {
		return nil, err
	}

	updated, err := m.ListingManager.CompareAndSwapStatus(ctx, listingID, listing.StatusActive, next, map[string]interface{}{
		"reviewed_at": time.Now(),
	})
	if err != nil {
		return nil, err
	}

	m.emit(updated, "")

	return updated, nil
}

// Reactivate restores a suspended listing
func (m *Manager) Reactivate(ctx context.Context, listingID string, actor listing.Actor) (*listing.Listing, error) {
	next, err := listing.Next(listing.StatusSuspended, listing.EventReactivate, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated, err := m.ListingManager.CompareAndSwapStatus(ctx, listingID, listing.StatusSuspended, next, map[string]interface{}{
		"reviewed_at":  now,
		"published_at": now,
	})
	if err != nil {
		return nil, err
	}

	m.emit(updated, "")

	return updated, nil
}

func (m *Manager) record(ctx context.Context, l *listing.Listing, actor listing.Actor, action Action, reason string) {
	result := m.DB.WithContext(ctx).Create(&Review{
		ListingID: l.ID,
		AdminID:   actor.ID,
		Action:    action,
		Reason:    reason,
	})
	if result.Error != nil {
		m.Logger.Error("Unable to record review decision",
			zap.String("ListingID", l.ID),
			zap.Error(result.Error),
		)
		// fail through: the transition already applied, history is best effort
	}
}

func (m *Manager) emit(l *listing.Listing, reason string) {
	reviewedAt := time.Now()
	if l.ReviewedAt != nil {
		reviewedAt = *l.ReviewedAt
	}
	if err := m.Producer.SendReviewEvent(&notifier.Event{
		ListingID:  l.ID,
		OwnerID:    l.OwnerID,
		NewStatus:  l.Status,
		Reason:     reason,
		ReviewedAt: reviewedAt,
	}); err != nil {
		m.Logger.Error("Unable to send review event",
			zap.String("ListingID", l.ID),
			zap.Error(err),
		)
		// fail through: as long as database state is consistent, the notifier can be replayed manually
	}
}
