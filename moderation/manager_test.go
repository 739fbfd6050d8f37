package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/zllovesuki/stayhub/listing"
	"github.com/zllovesuki/stayhub/notifier"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type capturingProducer struct {
	events []*notifier.Event
}

func (p *capturingProducer) Close() {}

func (p *capturingProducer) SendReviewEvent(e *notifier.Event) error {
	p.events = append(p.events, e)
	return nil
}

var admin = listing.Actor{ID: "admin-1", Admin: true}

func testFixture(t *testing.T) (*Manager, *listing.Manager, *capturingProducer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// an in-memory sqlite exists per connection
	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)

	listingManager, err := listing.NewManager(zap.NewNop(), db)
	require.NoError(t, err)

	producer := &capturingProducer{}
	m, err := NewManager(ManagerOptions{
		ListingManager: listingManager,
		Producer:       producer,
		DB:             db,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)

	return m, listingManager, producer
}

func seedPending(t *testing.T, lm *listing.Manager, owner string, submittedAt time.Time) *listing.Listing {
	t.Helper()
	l := &listing.Listing{
		ID:          uuid.New().String(),
		OwnerID:     owner,
		Kind:        listing.KindPlace,
		Title:       "Courtyard Guesthouse",
		Content:     "A quiet guesthouse around a shaded courtyard, ten minutes from the cathedral. Sleeps six across three rooms, with breakfast on request.",
		Status:      listing.StatusPending,
		SubmittedAt: &submittedAt,
	}
	require.NoError(t, lm.Create(context.Background(), l))
	return l
}

func TestApprove(t *testing.T) {
	m, lm, producer := testFixture(t)
	ctx := context.Background()

	l := seedPending(t, lm, "owner-1", time.Now())

	updated, err := m.Approve(ctx, l.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusActive, updated.Status)
	require.NotNil(t, updated.PublishedAt)
	require.NotNil(t, updated.ReviewedAt)

	require.Len(t, producer.events, 1)
	assert.Equal(t, l.ID, producer.events[0].ListingID)
	assert.Equal(t, "owner-1", producer.events[0].OwnerID)
	assert.Equal(t, listing.StatusActive, producer.events[0].NewStatus)
	assert.Empty(t, producer.events[0].Reason)

	history, err := m.History(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ActionApproved, history[0].Action)
	assert.Equal(t, "admin-1", history[0].AdminID)
}

func TestRejectRequiresReason(t *testing.T) {
	m, lm, producer := testFixture(t)
	ctx := context.Background()

	l := seedPending(t, lm, "owner-1", time.Now())

	_, err := m.Reject(ctx, l.ID, "   ", admin)
	require.Error(t, err)
	vErr, ok := err.(*listing.ValidationError)
	require.True(t, ok)
	assert.Equal(t, "reason", vErr.Field)
	assert.Empty(t, producer.events)

	updated, err := m.Reject(ctx, l.ID, "photos do not match the address", admin)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusRejected, updated.Status)
	assert.Equal(t, "photos do not match the address", updated.RejectionReason)

	require.Len(t, producer.events, 1)
	assert.Equal(t, "photos do not match the address", producer.events[0].Reason)
}

func TestConcurrentDecisions(t *testing.T) {
	m, lm, producer := testFixture(t)
	ctx := context.Background()

	l := seedPending(t, lm, "owner-1", time.Now())

	_, err := m.Approve(ctx, l.ID, admin)
	require.NoError(t, err)

	// the losing admin sees the conflict, and no second event goes out
	_, err = m.Reject(ctx, l.ID, "duplicate of an existing listing", listing.Actor{ID: "admin-2", Admin: true})
	assert.ErrorIs(t, err, listing.ErrStale)
	assert.Len(t, producer.events, 1)

	current, err := lm.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusActive, current.Status)
	assert.Empty(t, current.RejectionReason)
}

func TestNonAdminCannotDecide(t *testing.T) {
	m, lm, _ := testFixture(t)
	ctx := context.Background()

	l := seedPending(t, lm, "owner-1", time.Now())

	_, err := m.Approve(ctx, l.ID, listing.Actor{ID: "owner-1"})
	assert.ErrorIs(t, err, listing.ErrForbidden)

	current, err := lm.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPending, current.Status)
}

func TestQueueOldestFirst(t *testing.T) {
	m, lm, _ := testFixture(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	second := seedPending(t, lm, "owner-1", base.Add(20*time.Minute))
	first := seedPending(t, lm, "owner-2", base.Add(5*time.Minute))
	third := seedPending(t, lm, "owner-3", base.Add(40*time.Minute))

	queue, err := m.List(ctx, ListOption{})
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, first.ID, queue[0].ID)
	assert.Equal(t, second.ID, queue[1].ID)
	assert.Equal(t, third.ID, queue[2].ID)
}

func TestSuspendAndReactivate(t *testing.T) {
	m, lm, producer := testFixture(t)
	ctx := context.Background()

	l := seedPending(t, lm, "owner-1", time.Now())

	_, err := m.Approve(ctx, l.ID, admin)
	require.NoError(t, err)

	suspended, err := m.Suspend(ctx, l.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusSuspended, suspended.Status)

	// suspending twice is a conflict, not a no-op
	_, err = m.Suspend(ctx, l.ID, admin)
	assert.ErrorIs(t, err, listing.ErrStale)

	restored, err := m.Reactivate(ctx, l.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusActive, restored.Status)

	assert.Len(t, producer.events, 3)
}

func TestRejectionReasonClearedOnApproval(t *testing.T) {
	m, lm, _ := testFixture(t)
	ctx := context.Background()

	l := seedPending(t, lm, "owner-1", time.Now())

	_, err := m.Reject(ctx, l.ID, "incomplete contact details", admin)
	require.NoError(t, err)

	// the owner resubmits after fixing things up
	resubmitted := time.Now()
	_, err = lm.CompareAndSwapStatus(ctx, l.ID, listing.StatusRejected, listing.StatusPending, map[string]interface{}{
		"submitted_at":     resubmitted,
		"rejection_reason": "",
	})
	require.NoError(t, err)

	approved, err := m.Approve(ctx, l.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusActive, approved.Status)
	assert.Empty(t, approved.RejectionReason)

	history, err := m.History(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
