package moderation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zllovesuki/stayhub/auth"
	"github.com/zllovesuki/stayhub/listing"
	resp "github.com/zllovesuki/stayhub/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	ModerationManager *Manager
	Logger            *zap.Logger
}

// Service is the admin approval console API router. Routes must be mounted
// behind auth.AdminOnly
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the moderation API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.ModerationManager == nil {
		return nil, fmt.Errorf("nil ModerationManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) listQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all := r.URL.Query().Get("all") != ""

	results, err := s.ModerationManager.List(ctx, ListOption{
		All:   all,
		Limit: 50,
	})
	if err != nil {
		s.Logger.Error("Unable to list review queue",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the review queue"))
		return
	}

	resp.WriteResponse(w, r, results)
}

func (s *Service) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")

	results, err := s.ModerationManager.History(ctx, listingID)
	if err != nil {
		s.Logger.Error("Unable to list review history",
			zap.String("ListingID", listingID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the review history"))
		return
	}

	resp.WriteResponse(w, r, results)
}

func (s *Service) actor(r *http.Request) listing.Actor {
	claims := r.Context().Value(auth.Context).(*auth.Claims)
	return listing.Actor{
		ID:    claims.ID,
		Admin: claims.Role == auth.RoleAdmin,
	}
}

func (s *Service) approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")

	updated, err := s.ModerationManager.Approve(ctx, listingID, s.actor(r))
	if err != nil {
		s.writeDecisionError(w, r, listingID, err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

// RejectRequest carries the mandatory rejection reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Service) reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	updated, err := s.ModerationManager.Reject(ctx, listingID, req.Reason, s.actor(r))
	if err != nil {
		s.writeDecisionError(w, r, listingID, err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

func (s *Service) suspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")

	updated, err := s.ModerationManager.Suspend(ctx, listingID, s.actor(r))
	if err != nil {
		s.writeDecisionError(w, r, listingID, err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

func (s *Service) reactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")

	updated, err := s.ModerationManager.Reactivate(ctx, listingID, s.actor(r))
	if err != nil {
		s.writeDecisionError(w, r, listingID, err)
		return
	}

	resp.WriteResponse(w, r, updated)
}

func (s *Service) writeDecisionError(w http.ResponseWriter, r *http.Request, listingID string, err error) {
	var validationErr *listing.ValidationError
	switch {
	case errors.As(err, &validationErr):
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(validationErr.Error()))
	case errors.Is(err, listing.ErrForbidden):
		resp.WriteError(w, r, resp.ErrForbidden())
	case errors.Is(err, listing.ErrInvalidTransition), errors.Is(err, listing.ErrStale):
		resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Listing is no longer awaiting this decision"))
	case errors.Is(err, listing.ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
	default:
		s.Logger.Error("Unable to apply review decision",
			zap.String("ListingID", listingID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to apply review decision"))
	}
}

// Router will return the routes under moderation API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listQueue)
	r.Get("/{id}/history", s.listHistory)
	r.Post("/{id}/approve", s.approve)
	r.Post("/{id}/reject", s.reject)
	r.Post("/{id}/suspend", s.suspend)
	r.Post("/{id}/reactivate", s.reactivate)

	return r
}
