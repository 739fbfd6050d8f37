package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidState is returned when a lifecycle operation does not apply to
	// the subscription's current state (stale UI, concurrent change)
	ErrInvalidState = errors.New("operation does not apply to the subscription's current state")
	// ErrNotFound is returned when no subscription exists with the given id
	ErrNotFound = errors.New("no subscription found with the given id")
	// ErrPlanNotFound is returned when the referenced plan is not in the catalog
	ErrPlanNotFound = errors.New("no such plan is defined")
	// ErrAlreadySubscribed is returned when the customer already holds a valid subscription
	ErrAlreadySubscribed = errors.New("customer already has a valid subscription")
)

// ManagerOptions contains the configuration for the subscription Manager
type ManagerOptions struct {
	StripeClient   *client.API // optional; when nil, the plan catalog is not mirrored to the payment gateway (local dev, tests)
	DB             *gorm.DB
	Logger         *zap.Logger
	PathToPlanJSON string
}

// Manager handles the subscription records that feed the quota gate
type Manager struct {
	ManagerOptions
	planArray      []Plan
	planIDIndexMap map[string]int
}

// NewManager loads the plan catalog, mirrors it on Stripe when a client is
// configured, and prepares the subscriptions table
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.PathToPlanJSON) == 0 {
		return nil, fmt.Errorf("empty PathToPlanJSON is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
	}

	plans, err := loadPlansFromFile(option.PathToPlanJSON)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot populate defined Plans")
	}

	planMap := make(map[string]int)
	for index, p := range plans {
		if option.StripeClient != nil {
			if err := p.ensureExistence(context.Background(), option.StripeClient); err != nil {
				return nil, extErrors.Wrap(err, "Cannot ensure Plan existence on Stripe")
			}
		} else if len(p.ID) == 0 {
			// no gateway: the catalog key doubles as the plan ID
			p.ID = p.lookupKey()
		}
		planMap[p.ID] = index + 1
		plans[index] = p
	}

	return &Manager{
		ManagerOptions: option,
		planIDIndexMap: planMap,
		planArray:      plans,
	}, nil
}

// ListDefinedPlans returns every plan in the catalog
func (m *Manager) ListDefinedPlans() []Plan {
	return m.planArray
}

// GetDefinedPlanByID returns the catalog plan with the given ID
func (m *Manager) GetDefinedPlanByID(planID string) (Plan, bool) {
	index := m.planIDIndexMap[planID]
	if index == 0 {
		return Plan{}, false
	}
	return m.planArray[index-1], true
}

// CreateOption describes a new plan selection by a customer
type CreateOption struct {
	CustomerID string
	Plan       Plan
	Trial      bool
}

// Create starts a new subscription on the given plan. Fails with
// ErrAlreadySubscribed when the customer still holds a valid one
func (m *Manager) Create(ctx context.Context, opt CreateOption) (*Subscription, error) {
	if len(opt.CustomerID) == 0 {
		return nil, fmt.Errorf("CreateOption.CustomerID is required")
	}
	if len(opt.Plan.ID) == 0 {
		return nil, fmt.Errorf("CreateOption.Plan needs to be a defined Plan")
	}
	if opt.Plan.Retired {
		return nil, ErrPlanNotFound
	}

	now := time.Now()
	existing, err := m.GetCurrent(ctx, opt.CustomerID)
	if err != nil {
		return nil, err
	}
	if existing.Valid(now) {
		return nil, ErrAlreadySubscribed
	}

	sub := &Subscription{
		ID:          shortuuid.New(),
		CustomerID:  opt.CustomerID,
		PlanID:      opt.Plan.ID,
		State:       StateActive,
		PeriodStart: now,
		PeriodEnd:   opt.Plan.nextPeriodEnd(now),
	}
	sub.NextBillingAt = sub.PeriodEnd
	if opt.Trial && opt.Plan.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, opt.Plan.TrialDays)
		sub.State = StateTrial
		sub.TrialEndsAt = &trialEnd
		sub.PeriodEnd = trialEnd
		sub.NextBillingAt = trialEnd
	}

	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return sub, nil
}

// GetByID returns the subscription with the given id, or nil if none exists
func (m *Manager) GetByID(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	result := m.DB.WithContext(ctx).First(&sub, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by id")
	}
	return &sub, nil
}

// GetCurrent returns the customer's most recent subscription, or nil
func (m *Manager) GetCurrent(ctx context.Context, customerID string) (*Subscription, error) {
	var sub Subscription
	result := m.DB.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc").
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get current subscription")
	}
	return &sub, nil
}

// Entitlements resolves the plan limits currently granted to the customer,
// re-evaluated from the database on every call. No valid subscription (or a
// lapsed grace period) yields the zero Limits, so the quota gate fails closed
func (m *Manager) Entitlements(ctx context.Context, customerID string) (Limits, error) {
	sub, err := m.GetCurrent(ctx, customerID)
	if err != nil {
		return Limits{}, err
	}
	if !sub.Valid(time.Now()) {
		return Limits{}, nil
	}
	plan, ok := m.GetDefinedPlanByID(sub.PlanID)
	if !ok {
		m.Logger.Warn("Subscription references a plan missing from the catalog",
			zap.String("SubscriptionID", sub.ID),
			zap.String("PlanID", sub.PlanID),
		)
		return Limits{}, nil
	}
	return plan.Limits, nil
}

// swapState applies changes only when the subscription still is in one of the
// expected states. Same compare-and-swap discipline as listing status updates
func (m *Manager) swapState(ctx context.Context, id string, expected []State, changes map[string]interface{}) (*Subscription, error) {
	changes["updated_at"] = time.Now()

	var updated Subscription
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Subscription{}).
			Where("id = ? AND state IN ?", id, expected).
			Updates(changes)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Subscription{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrInvalidState
		}
		return tx.First(&updated, "id = ?", id).Error
	})

	switch {
	case err == nil:
		return &updated, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState):
		return nil, err
	default:
		m.Logger.Error("Unable to update subscription state",
			zap.String("SubscriptionID", id),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot update subscription state")
	}
}

// Cancel marks the subscription cancelled but leaves PeriodEnd untouched:
// quotas remain enforced at the current plan's limits until the period ends
func (m *Manager) Cancel(ctx context.Context, id string, reason string) (*Subscription, error) {
	return m.swapState(ctx, id, []State{StateActive, StateTrial}, map[string]interface{}{
		"state":         StateCancelled,
		"cancelled_at":  time.Now(),
		"cancel_reason": reason,
	})
}

// Reactivate restores a cancelled or expired subscription with a fresh
// billing period starting now
func (m *Manager) Reactivate(ctx context.Context, id string) (*Subscription, error) {
	sub, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	plan, ok := m.GetDefinedPlanByID(sub.PlanID)
	if !ok {
		return nil, ErrPlanNotFound
	}

	now := time.Now()
	return m.swapState(ctx, id, []State{StateCancelled, StateExpired}, map[string]interface{}{
		"state":           StateActive,
		"cancelled_at":    nil,
		"cancel_reason":   "",
		"period_start":    now,
		"period_end":      plan.nextPeriodEnd(now),
		"next_billing_at": plan.nextPeriodEnd(now),
	})
}

// ExtendTrial pushes the trial and period end out by the given number of days.
// Only valid while the subscription is in trial
func (m *Manager) ExtendTrial(ctx context.Context, id string, days int) (*Subscription, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive")
	}
	sub, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	if sub.State != StateTrial || sub.TrialEndsAt == nil {
		return nil, ErrInvalidState
	}

	trialEnd := sub.TrialEndsAt.AddDate(0, 0, days)
	return m.swapState(ctx, id, []State{StateTrial}, map[string]interface{}{
		"trial_ends_at":   trialEnd,
		"period_end":      sub.PeriodEnd.AddDate(0, 0, days),
		"next_billing_at": trialEnd,
	})
}

// ChangePlan swaps the plan in place. Listings already over the new plan's
// limits are left untouched; the quota gate simply blocks further creation
// until usage drops below the new maximum
func (m *Manager) ChangePlan(ctx context.Context, id string, newPlan Plan) (*Subscription, error) {
	if len(newPlan.ID) == 0 {
		return nil, fmt.Errorf("newPlan needs to be a defined Plan")
	}
	if newPlan.Retired {
		return nil, ErrPlanNotFound
	}
	return m.swapState(ctx, id, []State{StateActive, StateTrial}, map[string]interface{}{
		"plan_id": newPlan.ID,
	})
}
