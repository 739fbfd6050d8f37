package customer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/zllovesuki/stayhub/auth"
	resp "github.com/zllovesuki/stayhub/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Options contains the configuration for Service router
type Options struct {
	Auth            *auth.Auth
	CustomerManager *Manager
	Logger          *zap.Logger
	AdminEmails     []string // addresses granted the Admin role at first login
}

// Service is the customer API router
type Service struct {
	Options
	adminEmails map[string]bool
}

// LoginRequest is the model of user request for login pin
type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// NewService will create an instance of the customer API router
func NewService(option Options) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.CustomerManager == nil {
		return nil, fmt.Errorf("nil CustomerManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	admins := make(map[string]bool)
	for _, email := range option.AdminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if len(email) > 0 {
			admins[email] = true
		}
	}
	return &Service{
		Options:     option,
		adminEmails: admins,
	}, nil
}

func (s *Service) roleFor(email string) auth.Role {
	if s.adminEmails[strings.ToLower(email)] {
		return auth.RoleAdmin
	}
	return auth.RoleOwner
}

func (s *Service) requestLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger := s.Logger.With(zap.String("email", req.Email))

	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Auth.Request(r.Context(), req.Email, req.Email); err != nil {
		logger.Error("Unable to send login PIN",
			zap.Error(err),
		)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type tokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Service) issueTokens(w http.ResponseWriter, cust *Customer) error {
	claims := auth.Claims{
		ID:    cust.ID,
		Email: cust.Email,
		Role:  cust.Role,
	}
	jwtToken, err := s.Auth.CreateTokenFromClaims(claims)
	if err != nil {
		return err
	}
	refreshToken, err := s.Auth.CreateRefreshTokenFromClaims(claims)
	if err != nil {
		return err
	}

	w.Header().Add("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(tokenPair{
		Token:        jwtToken,
		RefreshToken: refreshToken,
	})
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")

	logger := s.Logger.With(zap.String("email", email))

	valid, err := s.Auth.Verify(r.Context(), email, token)
	if err != nil {
		logger.Error("Unable to verify login PIN",
			zap.Error(err),
		)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !valid {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	// "upsert" a customer
	cust, err := s.CustomerManager.GetByEmail(ctx, email)
	if err != nil {
		logger.Error("Unable to create Customer",
			zap.Error(err),
		)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if cust == nil {
		// new customer! yay
		cust, err = s.CustomerManager.NewCustomer(ctx, email, s.roleFor(email))
		if err != nil {
			logger.Error("Unable to create Customer",
				zap.Error(err),
			)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := s.issueTokens(w, cust); err != nil {
		logger.Error("Unable to generate token",
			zap.Error(err),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

// RefreshRequest carries the long-lived token exchanged for a fresh pair
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	claim, err := s.Auth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		s.Logger.Error("Unable to verify refresh token",
			zap.Error(err),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if claim == nil {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	cust, err := s.CustomerManager.GetByID(ctx, claim.ID)
	if err != nil {
		s.Logger.Error("Unable to query Customer",
			zap.Error(err),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if cust == nil {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	if err := s.issueTokens(w, cust); err != nil {
		s.Logger.Error("Unable to generate token",
			zap.Error(err),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

// getProfile returns the authenticated customer's own record
func (s *Service) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	cust, err := s.CustomerManager.GetByID(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to query Customer",
			zap.String("CustomerID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if cust == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}

	resp.WriteResponse(w, r, cust)
}

// Router will return the routes under customer API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.requestLogin)
	r.Post("/refresh", s.handleRefresh)
	r.Get("/{uid}/{token}", s.handleLogin)

	return r
}

// AuthenticatedRouter returns the routes requiring a valid bearer
func (s *Service) AuthenticatedRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.getProfile)

	return r
}
