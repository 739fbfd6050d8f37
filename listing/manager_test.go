package listing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// an in-memory sqlite exists per connection
	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	m, err := NewManager(zap.NewNop(), db)
	require.NoError(t, err)
	return m
}

func seedListing(t *testing.T, m *Manager, owner string, kind Kind, status Status, photos int) *Listing {
	t.Helper()
	images := make(StringList, 0, photos)
	for i := 0; i < photos; i++ {
		images = append(images, "https://cdn.example.com/"+uuid.New().String()+".jpg")
	}
	l := &Listing{
		ID:      uuid.New().String(),
		OwnerID: owner,
		Kind:    kind,
		Title:   "Seaside Apartment",
		Content: "A bright two bedroom apartment a short walk from the beach, with a balcony facing the marina and room for four guests.",
		Images:  images,
		Status:  status,
	}
	require.NoError(t, m.Create(context.Background(), l))
	return l
}

func TestGetByIDMissing(t *testing.T) {
	m := testManager(t)

	found, err := m.GetByID(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCompareAndSwapStatus(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	l := seedListing(t, m, "owner-1", KindPlace, StatusPending, 0)

	now := time.Now()
	updated, err := m.CompareAndSwapStatus(ctx, l.ID, StatusPending, StatusActive, map[string]interface{}{
		"published_at": now,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)
	require.NotNil(t, updated.PublishedAt)

	// the second decision observes the first one and loses
	_, err = m.CompareAndSwapStatus(ctx, l.ID, StatusPending, StatusRejected, nil)
	assert.ErrorIs(t, err, ErrStale)

	// unknown id is not a conflict
	_, err = m.CompareAndSwapStatus(ctx, uuid.New().String(), StatusPending, StatusActive, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountByOwnerExcludesStatuses(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	seedListing(t, m, "owner-1", KindPlace, StatusActive, 0)
	seedListing(t, m, "owner-1", KindPlace, StatusDraft, 0)
	seedListing(t, m, "owner-1", KindPlace, StatusArchived, 0)
	seedListing(t, m, "owner-1", KindBlog, StatusActive, 0)
	seedListing(t, m, "owner-2", KindPlace, StatusActive, 0)

	count, err := m.CountByOwner(ctx, "owner-1", KindPlace, []Status{StatusArchived})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = m.CountByOwner(ctx, "owner-1", KindBlog, []Status{StatusArchived})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCountPhotosByOwner(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	seedListing(t, m, "owner-1", KindPlace, StatusActive, 3)
	seedListing(t, m, "owner-1", KindBlog, StatusDraft, 2)
	// archived photos no longer count against the quota
	seedListing(t, m, "owner-1", KindPlace, StatusArchived, 10)
	seedListing(t, m, "owner-2", KindPlace, StatusActive, 7)

	total, err := m.CountPhotosByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	total, err = m.CountPhotosByOwner(ctx, "owner-3")
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestSaveContentConditionedOnStatus(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	l := seedListing(t, m, "owner-1", KindPlace, StatusDraft, 1)

	l.Title = "Seaside Apartment, renovated"
	l.Images = append(l.Images, "https://cdn.example.com/new.jpg")
	updated, err := m.SaveContent(ctx, l, StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, "Seaside Apartment, renovated", updated.Title)
	assert.Equal(t, 2, updated.PhotoCount)
	assert.Len(t, updated.Images, 2)

	// an admin decision landed in between: the edit must not apply
	_, err = m.CompareAndSwapStatus(ctx, l.ID, StatusDraft, StatusArchived, nil)
	require.NoError(t, err)

	l.Title = "should not persist"
	_, err = m.SaveContent(ctx, l, StatusDraft)
	assert.ErrorIs(t, err, ErrStale)

	current, err := m.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Seaside Apartment, renovated", current.Title)
}

func TestEditActivePutsListingBackInReview(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	// published three days ago
	originalSubmission := time.Now().Add(-72 * time.Hour)
	l := seedListing(t, m, "owner-1", KindPlace, StatusActive, 0)
	_, err := m.CompareAndSwapStatus(ctx, l.ID, StatusActive, StatusActive, map[string]interface{}{
		"submitted_at": originalSubmission,
	})
	require.NoError(t, err)

	// someone else has been waiting in the queue for an hour
	waiting := seedListing(t, m, "owner-2", KindPlace, StatusDraft, 0)
	_, err = m.CompareAndSwapStatus(ctx, waiting.ID, StatusDraft, StatusPending, map[string]interface{}{
		"submitted_at": time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	// the owner edits the published listing, which sends it back to review
	// with a fresh submission time
	current, err := m.GetByID(ctx, l.ID)
	require.NoError(t, err)

	desired := *current
	desired.Title = "Seaside Apartment, renovated"
	desired.Status = StatusPending
	now := time.Now()
	desired.SubmittedAt = &now

	updated, err := m.SaveContent(ctx, &desired, StatusActive)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, "Seaside Apartment, renovated", updated.Title)
	require.NotNil(t, updated.SubmittedAt)
	assert.True(t, updated.SubmittedAt.After(originalSubmission))

	// the re-review queues behind the listing already waiting, not at the
	// three-day-old submission's position
	queue, err := m.ListForReview(ctx, ReviewListOption{})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, waiting.ID, queue[0].ID)
	assert.Equal(t, l.ID, queue[1].ID)
}

func TestListForReviewOrder(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	ids := make([]string, 0, 3)
	// submit out of order on purpose
	for _, offset := range []time.Duration{30 * time.Minute, 10 * time.Minute, 20 * time.Minute} {
		l := seedListing(t, m, "owner-1", KindPlace, StatusDraft, 0)
		submittedAt := base.Add(offset)
		_, err := m.CompareAndSwapStatus(ctx, l.ID, StatusDraft, StatusPending, map[string]interface{}{
			"submitted_at": submittedAt,
		})
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}
	// a draft should not be in the queue
	seedListing(t, m, "owner-1", KindPlace, StatusDraft, 0)

	queue, err := m.ListForReview(ctx, ReviewListOption{})
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, ids[1], queue[0].ID)
	assert.Equal(t, ids[2], queue[1].ID)
	assert.Equal(t, ids[0], queue[2].ID)
}

func TestListFilters(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	seedListing(t, m, "owner-1", KindPlace, StatusActive, 0)
	seedListing(t, m, "owner-1", KindBlog, StatusActive, 0)
	seedListing(t, m, "owner-1", KindPlace, StatusArchived, 0)

	_, err := m.List(ctx, ListOption{})
	assert.Error(t, err)

	all, err := m.List(ctx, ListOption{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	withArchived, err := m.List(ctx, ListOption{OwnerID: "owner-1", IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, withArchived, 3)

	blogs, err := m.List(ctx, ListOption{OwnerID: "owner-1", Kind: KindBlog})
	require.NoError(t, err)
	require.Len(t, blogs, 1)
	assert.Equal(t, KindBlog, blogs[0].Kind)
}
