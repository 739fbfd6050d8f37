package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zllovesuki/stayhub/auth"
	"github.com/zllovesuki/stayhub/quota"
	resp "github.com/zllovesuki/stayhub/response"
	"github.com/zllovesuki/stayhub/subscription"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// usageExcludedStatuses are statuses that no longer occupy a quota slot
var usageExcludedStatuses = []Status{StatusArchived}

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	ListingManager      *Manager
	SubscriptionManager *subscription.Manager
	Logger              *zap.Logger
}

// Service is the owner-facing listing API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the listing API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.ListingManager == nil {
		return nil, fmt.Errorf("nil ListingManager is invalid")
	}
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

// CreateRequest is the payload to create a new draft listing
type CreateRequest struct {
	Kind        Kind        `json:"kind" validate:"required"`
	Title       string      `json:"title" validate:"required"`
	Content     string      `json:"content"`
	Category    string      `json:"category"`
	City        string      `json:"city"`
	Country     string      `json:"country"`
	ContactInfo ContactInfo `json:"contactInfo"`
	Features    []string    `json:"features"`
	Images      []string    `json:"images"`
}

// UpdateRequest is the payload to change a listing's content. Editing
// published content sends it back to review
type UpdateRequest struct {
	Title       *string      `json:"title"`
	Content     *string      `json:"content"`
	Category    *string      `json:"category"`
	City        *string      `json:"city"`
	Country     *string      `json:"country"`
	ContactInfo *ContactInfo `json:"contactInfo"`
	Features    *[]string    `json:"features"`
	Images      *[]string    `json:"images"`
}

// checkKindQuota re-reads the owner's usage and gates the creation of one
// more listing of the kind. Usage is always recomputed here: a count fetched
// earlier in the request may already be stale under multi-tab usage
func (s *Service) checkKindQuota(r *http.Request, limits subscription.Limits, ownerID string, kind Kind) *resp.Error {
	count, err := s.ListingManager.CountByOwner(r.Context(), ownerID, kind, usageExcludedStatuses)
	if err != nil {
		return resp.ErrUnexpected().AddMessages("Cannot compute current usage")
	}
	usage := quota.Usage{
		Current: int(count),
		Max:     limits.For(kind.QuotaKind()),
	}
	if quotaErr := quota.Check(kind.QuotaKind(), usage, 1); quotaErr != nil {
		return resp.ErrQuotaExceeded().
			AddMessages(quotaErr.Error()).
			WithResult(map[string]interface{}{
				"kind":  kind.QuotaKind(),
				"usage": usage,
			})
	}
	return nil
}

// checkPhotoQuota gates adding n more photos across the owner's listings
func (s *Service) checkPhotoQuota(r *http.Request, limits subscription.Limits, ownerID string, n int) *resp.Error {
	if n <= 0 {
		return nil
	}
	count, err := s.ListingManager.CountPhotosByOwner(r.Context(), ownerID)
	if err != nil {
		return resp.ErrUnexpected().AddMessages("Cannot compute current usage")
	}
	usage := quota.Usage{
		Current: int(count),
		Max:     limits.MaxPhotos,
	}
	if quotaErr := quota.Check(quota.KindPhotos, usage, n); quotaErr != nil {
		return resp.ErrQuotaExceeded().
			AddMessages(quotaErr.Error()).
			WithResult(map[string]interface{}{
				"kind":  quota.KindPhotos,
				"usage": usage,
			})
	}
	return nil
}

func (s *Service) newListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("OwnerID", claims.ID))

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages("kind and title are required"))
		return
	}
	if !req.Kind.Valid() {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages("Unknown listing kind"))
		return
	}

	limits, err := s.SubscriptionManager.Entitlements(ctx, claims.ID)
	if err != nil {
		logger.Error("Unable to resolve entitlements",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create listing"))
		return
	}

	if respErr := s.checkKindQuota(r, limits, claims.ID, req.Kind); respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	if respErr := s.checkPhotoQuota(r, limits, claims.ID, len(req.Images)); respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}

	l := Listing{
		ID:          uuid.New().String(),
		OwnerID:     claims.ID,
		Kind:        req.Kind,
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		City:        req.City,
		Country:     req.Country,
		ContactInfo: req.ContactInfo,
		Features:    req.Features,
		Images:      req.Images,
		Featured:    limits.FeaturedListing,
		Status:      StatusDraft,
	}

	if err := s.ListingManager.Create(ctx, &l); err != nil {
		logger.Error("Unable to create listing",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create listing"))
		return
	}

	resp.WriteResponse(w, r, l)
}

func (s *Service) listListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	all := r.URL.Query().Get("all") != ""
	before := r.URL.Query().Get("before")

	var parsedTime time.Time
	if before != "" {
		var err error
		parsedTime, err = time.Parse(time.RFC3339Nano, before)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid before param"))
			return
		}
	}

	opt := ListOption{
		OwnerID:         claims.ID,
		Kind:            Kind(r.URL.Query().Get("kind")),
		IncludeArchived: all,
		Before:          parsedTime,
		Limit:           20,
	}
	results, err := s.ListingManager.List(ctx, opt)
	if err != nil {
		s.Logger.Error("Unable to list listings by owner id",
			zap.String("OwnerID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of listings"))
		return
	}

	resp.WriteResponse(w, r, results)
}

// loadOwned fetches the listing and enforces ownership. A listing belonging
// to someone else is indistinguishable from a missing one
func (s *Service) loadOwned(w http.ResponseWriter, r *http.Request) *Listing {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	listingID := chi.URLParam(r, "id")

	l, err := s.ListingManager.GetByID(ctx, listingID)
	if err != nil {
		s.Logger.Error("Unable to query listing",
			zap.String("ListingID", listingID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the listing"))
		return nil
	}
	if l == nil || l.OwnerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		return nil
	}
	return l
}

func (s *Service) getListing(w http.ResponseWriter, r *http.Request) {
	l := s.loadOwned(w, r)
	if l == nil {
		return
	}
	resp.WriteResponse(w, r, l)
}

func (s *Service) updateListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	current := s.loadOwned(w, r)
	if current == nil {
		return
	}

	logger := s.Logger.With(
		zap.String("OwnerID", claims.ID),
		zap.String("ListingID", current.ID),
	)

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	desired := *current
	if req.Title != nil {
		desired.Title = *req.Title
	}
	if req.Content != nil {
		desired.Content = *req.Content
	}
	if req.Category != nil {
		desired.Category = *req.Category
	}
	if req.City != nil {
		desired.City = *req.City
	}
	if req.Country != nil {
		desired.Country = *req.Country
	}
	if req.ContactInfo != nil {
		desired.ContactInfo = *req.ContactInfo
	}
	if req.Features != nil {
		desired.Features = *req.Features
	}
	if req.Images != nil {
		desired.Images = *req.Images
	}

	if added := len(desired.Images) - len(current.Images); added > 0 {
		limits, err := s.SubscriptionManager.Entitlements(ctx, claims.ID)
		if err != nil {
			logger.Error("Unable to resolve entitlements",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update listing"))
			return
		}
		if respErr := s.checkPhotoQuota(r, limits, claims.ID, added); respErr != nil {
			resp.WriteError(w, r, respErr)
			return
		}
	}

	// published content goes back to review before the edit is publicly
	// visible; other editable statuses keep their position in the lifecycle
	switch current.Status {
	case StatusDraft, StatusPending, StatusRejected:
	case StatusActive:
		next, err := Next(current.Status, EventEdit, Actor{ID: claims.ID})
		if err != nil {
			resp.WriteError(w, r, resp.ErrInvalidState())
			return
		}
		desired.Status = next
		now := time.Now()
		desired.SubmittedAt = &now
	default:
		resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Listing cannot be edited in its current status"))
		return
	}

	updated, err := s.ListingManager.SaveContent(ctx, &desired, current.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrStale):
			resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Listing changed concurrently, re-fetch and try again"))
		case errors.Is(err, ErrNotFound):
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		default:
			logger.Error("Unable to update listing",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update listing"))
		}
		return
	}

	resp.WriteResponse(w, r, updated)
}

func (s *Service) submitListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	current := s.loadOwned(w, r)
	if current == nil {
		return
	}

	logger := s.Logger.With(
		zap.String("OwnerID", claims.ID),
		zap.String("ListingID", current.ID),
	)

	var ev Event
	switch current.Status {
	case StatusDraft:
		ev = EventSubmit
	case StatusRejected:
		ev = EventResubmit
		// resubmission without addressing the rejection is bounced back
		if current.ReviewedAt != nil && !current.LastModifiedAt.After(*current.ReviewedAt) {
			resp.WriteError(w, r, resp.ErrValidation().AddMessages("Edit the listing before resubmitting"))
			return
		}
	default:
		resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Listing is not awaiting submission"))
		return
	}

	if err := current.ValidateForSubmission(); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
		return
	}

	next, err := Next(current.Status, ev, Actor{ID: claims.ID})
	if err != nil {
		resp.WriteError(w, r, resp.ErrInvalidState())
		return
	}

	updated, err := s.ListingManager.CompareAndSwapStatus(ctx, current.ID, current.Status, next, map[string]interface{}{
		"submitted_at":     time.Now(),
		"rejection_reason": "",
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrStale):
			resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Listing changed concurrently, re-fetch and try again"))
		case errors.Is(err, ErrNotFound):
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		default:
			logger.Error("Unable to submit listing",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to submit listing"))
		}
		return
	}

	resp.WriteResponse(w, r, updated)
}

func (s *Service) archiveListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	current := s.loadOwned(w, r)
	if current == nil {
		return
	}

	next, err := Next(current.Status, EventArchive, Actor{ID: claims.ID})
	if err != nil {
		resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Listing is already archived"))
		return
	}

	updated, err := s.ListingManager.CompareAndSwapStatus(ctx, current.ID, current.Status, next, nil)
	if err != nil {
		switch {
		case errors.Is(err, ErrStale):
			resp.WriteError(w, r, resp.ErrInvalidState().AddMessages("Listing changed concurrently, re-fetch and try again"))
		case errors.Is(err, ErrNotFound):
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find listing with specific ID"))
		default:
			s.Logger.Error("Unable to archive listing",
				zap.String("ListingID", current.ID),
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to archive listing"))
		}
		return
	}

	resp.WriteResponse(w, r, updated)
}

// UsageSummary is what the owner dashboard renders as quota meters
type UsageSummary struct {
	Places quota.Usage `json:"places"`
	Blogs  quota.Usage `json:"blogs"`
	Photos quota.Usage `json:"photos"`

	PlacesPercent int `json:"placesPercent"`
	BlogsPercent  int `json:"blogsPercent"`
	PhotosPercent int `json:"photosPercent"`
}

func (s *Service) getUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	limits, err := s.SubscriptionManager.Entitlements(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to resolve entitlements",
			zap.String("OwnerID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute usage"))
		return
	}

	places, placesErr := s.ListingManager.CountByOwner(ctx, claims.ID, KindPlace, usageExcludedStatuses)
	blogs, blogsErr := s.ListingManager.CountByOwner(ctx, claims.ID, KindBlog, usageExcludedStatuses)
	photos, photosErr := s.ListingManager.CountPhotosByOwner(ctx, claims.ID)
	for _, countErr := range []error{placesErr, blogsErr, photosErr} {
		if countErr != nil {
			s.Logger.Error("Unable to compute usage",
				zap.String("OwnerID", claims.ID),
				zap.Error(countErr),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot compute usage"))
			return
		}
	}

	summary := UsageSummary{
		Places: quota.Usage{Current: int(places), Max: limits.MaxPlaces},
		Blogs:  quota.Usage{Current: int(blogs), Max: limits.MaxBlogs},
		Photos: quota.Usage{Current: int(photos), Max: limits.MaxPhotos},
	}
	summary.PlacesPercent = summary.Places.Percentage()
	summary.BlogsPercent = summary.Blogs.Percentage()
	summary.PhotosPercent = summary.Photos.Percentage()

	resp.WriteResponse(w, r, summary)
}

// Router will return the routes under listing API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listListings)
	r.Post("/", s.newListing)
	r.Get("/usage", s.getUsage)
	r.Get("/{id}", s.getListing)
	r.Patch("/{id}", s.updateListing)
	r.Post("/{id}/submit", s.submitListing)
	r.Delete("/{id}", s.archiveListing)

	return r
}
