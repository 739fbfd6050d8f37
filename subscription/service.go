package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zllovesuki/stayhub/auth"
	resp "github.com/zllovesuki/stayhub/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	SubscriptionManager *Manager
	Logger              *zap.Logger
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) listPlans(w http.ResponseWriter, r *http.Request) {
	plans := make([]Plan, 0, 4)
	for _, p := range s.SubscriptionManager.ListDefinedPlans() {
		if p.Retired {
			continue
		}
		plans = append(plans, p)
	}
	resp.WriteResponse(w, r, plans)
}

func (s *Service) getCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	sub, err := s.SubscriptionManager.GetCurrent(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to query current subscription",
			zap.String("CustomerID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get current subscription"))
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No subscription found"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

// SelectPlanRequest is the request to start a subscription on a plan
type SelectPlanRequest struct {
	PlanID string `json:"planId" validate:"required"`
	Trial  bool   `json:"trial"`
}

func (s *Service) selectPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("CustomerID", claims.ID))

	var req SelectPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages("planId is required"))
		return
	}

	plan, ok := s.SubscriptionManager.GetDefinedPlanByID(req.PlanID)
	if !ok || plan.Retired {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No such plan is defined"))
		return
	}

	sub, err := s.SubscriptionManager.Create(ctx, CreateOption{
		CustomerID: claims.ID,
		Plan:       plan,
		Trial:      req.Trial,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySubscribed) {
			resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("A valid subscription already exists"))
			return
		}
		logger.Error("Unable to create subscription",
			zap.String("PlanID", req.PlanID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to start subscription"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

// loadOwned fetches the subscription and enforces that the caller owns it.
// Admins may act on any subscription
func (s *Service) loadOwned(w http.ResponseWriter, r *http.Request) *Subscription {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subID := chi.URLParam(r, "id")

	sub, err := s.SubscriptionManager.GetByID(ctx, subID)
	if err != nil {
		s.Logger.Error("Unable to query subscription",
			zap.String("SubscriptionID", subID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the subscription"))
		return nil
	}
	if sub == nil || (sub.CustomerID != claims.ID && claims.Role != auth.RoleAdmin) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
		return nil
	}
	return sub
}

// CancelRequest carries the optional reason given by the owner
type CancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Service) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub := s.loadOwned(w, r)
	if sub == nil {
		return
	}

	var req CancelRequest
	if r.Body != nil {
		// reason is optional, a missing body is fine
		json.NewDecoder(r.Body).Decode(&req)
	}

	updated, err := s.SubscriptionManager.Cancel(ctx, sub.ID, req.Reason)
	if err != nil {
		s.writeLifecycleError(w, r, sub.ID, "cancel", err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

func (s *Service) reactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub := s.loadOwned(w, r)
	if sub == nil {
		return
	}

	updated, err := s.SubscriptionManager.Reactivate(ctx, sub.ID)
	if err != nil {
		s.writeLifecycleError(w, r, sub.ID, "reactivate", err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

// ChangePlanRequest is the request to move the subscription to another plan
type ChangePlanRequest struct {
	PlanID string `json:"planId" validate:"required"`
}

func (s *Service) changePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub := s.loadOwned(w, r)
	if sub == nil {
		return
	}

	var req ChangePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages("planId is required"))
		return
	}

	plan, ok := s.SubscriptionManager.GetDefinedPlanByID(req.PlanID)
	if !ok || plan.Retired {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No such plan is defined"))
		return
	}

	updated, err := s.SubscriptionManager.ChangePlan(ctx, sub.ID, plan)
	if err != nil {
		s.writeLifecycleError(w, r, sub.ID, "change plan on", err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

// ExtendTrialRequest is the admin request to lengthen a trial
type ExtendTrialRequest struct {
	Days int `json:"days" validate:"required,gt=0"`
}

func (s *Service) extendTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	if claims.Role != auth.RoleAdmin {
		resp.WriteError(w, r, resp.ErrForbidden().AddMessages("Only administrators may extend trials"))
		return
	}

	sub := s.loadOwned(w, r)
	if sub == nil {
		return
	}

	var req ExtendTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages("days must be a positive number"))
		return
	}

	updated, err := s.SubscriptionManager.ExtendTrial(ctx, sub.ID, req.Days)
	if err != nil {
		s.writeLifecycleError(w, r, sub.ID, "extend trial on", err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

func (s *Service) writeLifecycleError(w http.ResponseWriter, r *http.Request, subID, verb string, err error) {
	switch {
	case errors.Is(err, ErrInvalidState):
		resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Cannot "+verb+" the subscription in its current state"))
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
	case errors.Is(err, ErrPlanNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No such plan is defined"))
	default:
		s.Logger.Error("Unable to update subscription",
			zap.String("SubscriptionID", subID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update subscription"))
	}
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/plans", s.listPlans)
	r.Get("/", s.getCurrent)
	r.Post("/", s.selectPlan)
	r.Post("/{id}/cancel", s.cancel)
	r.Post("/{id}/reactivate", s.reactivate)
	r.Post("/{id}/changePlan", s.changePlan)
	r.Post("/{id}/extendTrial", s.extendTrial)

	return r
}
