package subscription

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zllovesuki/stayhub/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testCatalog = `[
    {
        "name": "Starter",
        "description": "One property",
        "amountInCents": 900,
        "currency": "usd",
        "interval": "month",
        "trialDays": 14,
        "limits": {
            "maxPlaces": 1,
            "maxBlogs": 3,
            "maxPhotos": 20
        }
    },
    {
        "name": "Professional",
        "description": "A handful of properties",
        "amountInCents": 2900,
        "currency": "usd",
        "interval": "month",
        "trialDays": 14,
        "limits": {
            "maxPlaces": 5,
            "maxBlogs": 20,
            "maxPhotos": 150,
            "featuredListing": true
        }
    },
    {
        "name": "Legacy",
        "description": "No longer sold",
        "amountInCents": 500,
        "currency": "usd",
        "interval": "month",
        "limits": {
            "maxPlaces": 1,
            "maxBlogs": 1,
            "maxPhotos": 5
        },
        "retired": true
    }
]`

func testManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.json")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0644))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// an in-memory sqlite exists per connection
	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)

	m, err := NewManager(ManagerOptions{
		DB:             db,
		Logger:         zap.NewNop(),
		PathToPlanJSON: path,
	})
	require.NoError(t, err)
	return m
}

func planByName(t *testing.T, m *Manager, name string) Plan {
	t.Helper()
	for _, p := range m.ListDefinedPlans() {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("plan %s not in catalog", name)
	return Plan{}
}

func TestCreateAndEntitlements(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	starter := planByName(t, m, "Starter")
	sub, err := m.Create(ctx, CreateOption{
		CustomerID: "cus_1",
		Plan:       starter,
	})
	require.NoError(t, err)
	assert.Equal(t, StateActive, sub.State)
	assert.True(t, sub.PeriodEnd.After(time.Now()))

	limits, err := m.Entitlements(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 1, limits.MaxPlaces)
	assert.Equal(t, 20, limits.MaxPhotos)
	assert.Equal(t, 1, limits.For(quota.KindPlaces))

	// a second subscription while the first is valid is rejected
	_, err = m.Create(ctx, CreateOption{
		CustomerID: "cus_1",
		Plan:       starter,
	})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestNoSubscriptionFailsClosed(t *testing.T) {
	m := testManager(t)

	limits, err := m.Entitlements(context.Background(), "cus_none")
	require.NoError(t, err)
	assert.Equal(t, Limits{}, limits)
	assert.Equal(t, 0, limits.For(quota.KindPlaces))
	assert.False(t, limits.FeaturedListing)
}

func TestRetiredPlanNotPurchasable(t *testing.T) {
	m := testManager(t)

	legacy := planByName(t, m, "Legacy")
	_, err := m.Create(context.Background(), CreateOption{
		CustomerID: "cus_1",
		Plan:       legacy,
	})
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestTrial(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	pro := planByName(t, m, "Professional")
	sub, err := m.Create(ctx, CreateOption{
		CustomerID: "cus_1",
		Plan:       pro,
		Trial:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateTrial, sub.State)
	require.NotNil(t, sub.TrialEndsAt)

	limits, err := m.Entitlements(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 5, limits.MaxPlaces)

	extended, err := m.ExtendTrial(ctx, sub.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, extended.TrialEndsAt)
	assert.Equal(t, sub.TrialEndsAt.AddDate(0, 0, 7).Unix(), extended.TrialEndsAt.Unix())
	assert.Equal(t, *extended.TrialEndsAt, extended.NextBillingAt)
}

func TestExtendTrialOutsideTrial(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	starter := planByName(t, m, "Starter")
	sub, err := m.Create(ctx, CreateOption{
		CustomerID: "cus_1",
		Plan:       starter,
	})
	require.NoError(t, err)

	_, err = m.ExtendTrial(ctx, sub.ID, 7)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = m.ExtendTrial(ctx, sub.ID, -1)
	assert.Error(t, err)

	_, err = m.ExtendTrial(ctx, "nope", 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelKeepsGracePeriod(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	starter := planByName(t, m, "Starter")
	sub, err := m.Create(ctx, CreateOption{
		CustomerID: "cus_1",
		Plan:       starter,
	})
	require.NoError(t, err)

	cancelled, err := m.Cancel(ctx, sub.ID, "moving to a competitor")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, cancelled.State)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "moving to a competitor", cancelled.CancelReason)
	// PeriodEnd is untouched: that is the grace boundary
	assert.Equal(t, sub.PeriodEnd.Unix(), cancelled.PeriodEnd.Unix())

	// quotas remain at the plan's limits until the period runs out
	limits, err := m.Entitlements(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 1, limits.MaxPlaces)

	// but past the grace boundary the subscription no longer grants anything
	assert.False(t, cancelled.Valid(cancelled.PeriodEnd.Add(time.Minute)))

	// cancelling twice is a conflict
	_, err = m.Cancel(ctx, sub.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReactivate(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	starter := planByName(t, m, "Starter")
	sub, err := m.Create(ctx, CreateOption{
		CustomerID: "cus_1",
		Plan:       starter,
	})
	require.NoError(t, err)

	_, err = m.Reactivate(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = m.Cancel(ctx, sub.ID, "")
	require.NoError(t, err)

	restored, err := m.Reactivate(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, restored.State)
	assert.Nil(t, restored.CancelledAt)
	assert.Empty(t, restored.CancelReason)
	assert.True(t, restored.PeriodEnd.After(time.Now()))
}

func TestChangePlanIsSoft(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	pro := planByName(t, m, "Professional")
	sub, err := m.Create(ctx, CreateOption{
		CustomerID: "cus_1",
		Plan:       pro,
	})
	require.NoError(t, err)

	starter := planByName(t, m, "Starter")
	changed, err := m.ChangePlan(ctx, sub.ID, starter)
	require.NoError(t, err)
	assert.Equal(t, starter.ID, changed.PlanID)
	// the billing period carries over
	assert.Equal(t, sub.PeriodEnd.Unix(), changed.PeriodEnd.Unix())

	// a downgrade only shrinks the gate; existing listings are left alone
	limits, err := m.Entitlements(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 1, limits.MaxPlaces)

	legacy := planByName(t, m, "Legacy")
	_, err = m.ChangePlan(ctx, sub.ID, legacy)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}
