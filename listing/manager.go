package listing

import (
	"context"
	"errors"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Listings
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for listings
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Listing{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize listing.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

func (m *Manager) Create(ctx context.Context, l *Listing) error {
	l.PhotoCount = len(l.Images)
	l.LastModifiedAt = time.Now()
	result := m.db.WithContext(ctx).Create(l)
	if result.Error != nil {
		m.logger.Error("Unable to create new listing in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create listing")
	}
	return nil
}

func (m *Manager) GetByID(ctx context.Context, id string) (*Listing, error) {
	l := Listing{}

	result := m.db.WithContext(ctx).First(&l, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get listing by id")
	}

	return &l, nil
}

// ListOption filters an owner's listings
type ListOption struct {
	OwnerID         string
	Kind            Kind
	IncludeArchived bool
	Before          time.Time
	Limit           int
}

func (m *Manager) List(ctx context.Context, opt ListOption) ([]Listing, error) {
	if len(opt.OwnerID) == 0 {
		return nil, extErrors.New("ListOption.OwnerID is required")
	}
	baseQuery := m.db.WithContext(ctx).Order("created_at desc").Where("owner_id = ?", opt.OwnerID)
	if !opt.IncludeArchived {
		baseQuery = baseQuery.Where("status <> ?", StatusArchived)
	}
	if len(opt.Kind) > 0 {
		baseQuery = baseQuery.Where("kind = ?", opt.Kind)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("created_at < ?", opt.Before)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Listing, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// ReviewListOption filters the review queue
type ReviewListOption struct {
	All   bool // include every status, not just Pending
	Limit int
}

// ListForReview returns listings for the admin queue, oldest submission
// first. First submitted, first reviewed
func (m *Manager) ListForReview(ctx context.Context, opt ReviewListOption) ([]Listing, error) {
	baseQuery := m.db.WithContext(ctx).Order("submitted_at asc")
	if !opt.All {
		baseQuery = baseQuery.Where("status = ?", StatusPending)
	} else {
		baseQuery = baseQuery.Where("status <> ?", StatusArchived)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Listing, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// CountByOwner counts an owner's listings of a kind, excluding the given
// statuses. Usage must be recomputed with this at every quota decision
func (m *Manager) CountByOwner(ctx context.Context, ownerID string, kind Kind, excludeStatuses []Status) (int64, error) {
	var count int64
	baseQuery := m.db.WithContext(ctx).Model(&Listing{}).
		Where("owner_id = ?", ownerID).
		Where("kind = ?", kind)
	if len(excludeStatuses) > 0 {
		baseQuery = baseQuery.Where("status NOT IN ?", excludeStatuses)
	}
	result := baseQuery.Count(&count)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return 0, extErrors.Wrap(result.Error, "Cannot count listings by owner")
	}
	return count, nil
}

// CountPhotosByOwner sums the photos across an owner's non-archived listings
func (m *Manager) CountPhotosByOwner(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	result := m.db.WithContext(ctx).Model(&Listing{}).
		Where("owner_id = ?", ownerID).
		Where("status <> ?", StatusArchived).
		Select("COALESCE(SUM(photo_count), 0)").
		Scan(&total)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return 0, extErrors.Wrap(result.Error, "Cannot count photos by owner")
	}
	return total, nil
}

// CompareAndSwapStatus transitions the listing's status only if it still is in
// the expected status, so two concurrent decisions never both apply. Extra
// columns are written in the same conditional update; either everything is
// persisted or nothing is. Returns ErrNotFound or ErrStale accordingly
func (m *Manager) CompareAndSwapStatus(ctx context.Context, id string, expected, next Status, extra map[string]interface{}) (*Listing, error) {
	changes := map[string]interface{}{
		"status":     next,
		"updated_at": time.Now(),
	}
	for column, value := range extra {
		changes[column] = value
	}

	var updated Listing
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Listing{}).
			Where("id = ? AND status = ?", id, expected).
			Updates(changes)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Listing{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStale
		}
		return tx.First(&updated, "id = ?", id).Error
	})

	switch {
	case err == nil:
		return &updated, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrStale):
		return nil, err
	default:
		m.logger.Error("Unable to transition listing status",
			zap.String("ListingID", id),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot transition listing status")
	}
}

// contentColumns are the owner-editable columns written by SaveContent.
// Status and submitted_at are included because an edit of published content
// demotes it to Pending in the same conditional update, and the re-review
// must queue behind everything submitted since (the queue orders on
// submitted_at), not at the original submission's position
var contentColumns = []string{
	"title", "content", "category", "city", "country",
	"contact_info", "features", "images", "photo_count",
	"status", "submitted_at", "last_modified_at", "updated_at",
}

// SaveContent persists owner edits, conditioned on the status the caller read.
// The status CAS closes the race between an owner edit and a concurrent admin
// decision on the same listing
func (m *Manager) SaveContent(ctx context.Context, desired *Listing, expected Status) (*Listing, error) {
	desired.PhotoCount = len(desired.Images)
	desired.LastModifiedAt = time.Now()
	desired.UpdatedAt = time.Now()

	var updated Listing
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Listing{}).
			Where("id = ? AND status = ?", desired.ID, expected).
			Select(contentColumns).
			Updates(desired)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Listing{}).Where("id = ?", desired.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStale
		}
		return tx.First(&updated, "id = ?", desired.ID).Error
	})

	switch {
	case err == nil:
		return &updated, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrStale):
		return nil, err
	default:
		m.logger.Error("Unable to save listing content",
			zap.String("ListingID", desired.ID),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot save listing content")
	}
}
