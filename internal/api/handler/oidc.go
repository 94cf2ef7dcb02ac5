package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/api/middleware"
	"github.com/bcnelson/webscenario-manager/internal/auth"
	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// LoginProvider is the part of auth.OIDCProvider the login flow needs.
type LoginProvider interface {
	AuthCodeURL(login *auth.LoginState) string
	Exchange(ctx context.Context, code string, login *auth.LoginState) (*auth.ExchangeResult, error)
}

// OIDCHandler runs the authorization code flow and hands the verified ID
// token back to the caller for use as a bearer credential.
type OIDCHandler struct {
	provider LoginProvider
	logins   *auth.LoginStates
}

// NewOIDCHandler creates a new OIDCHandler.
func NewOIDCHandler(provider LoginProvider, logins *auth.LoginStates) *OIDCHandler {
	return &OIDCHandler{provider: provider, logins: logins}
}

// TokenResponse is returned by a successful callback.
type TokenResponse struct {
	IDToken   string    `json:"id_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
}

// Login redirects to the provider with a freshly sealed login state.
func (h *OIDCHandler) Login(w http.ResponseWriter, r *http.Request) {
	login, err := h.logins.Begin(w)
	if err != nil {
		middleware.LoggerFromContext(r.Context()).Error("starting OIDC login", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to initiate login")
		return
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(login), http.StatusSeeOther)
}

// Callback completes the login and returns the ID token as JSON.
func (h *OIDCHandler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContext(r.Context())
	query := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	if errParam := query.Get("error"); errParam != "" {
		errDesc := query.Get("error_description")
		if errDesc == "" {
			errDesc = errParam
		}
		logger.Warn("OIDC provider returned error", zap.String("error", errParam), zap.String("description", errDesc))
		respondStandardError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, errDesc, "", nil)
		return
	}

	code := query.Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "no authorization code received")
		return
	}

	login, err := h.logins.Finish(w, r, query.Get("state"))
	if err != nil {
		logger.Warn("OIDC login state rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid state parameter")
		return
	}

	result, err := h.provider.Exchange(r.Context(), code, login)
	if err != nil {
		logger.Warn("OIDC token exchange failed", zap.Error(err))
		respondStandardError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "failed to complete authentication", "", nil)
		return
	}

	logger.Info("OIDC login", zap.String("subject", result.Claims.Subject), zap.String("email", result.Claims.Email))
	respondJSON(w, http.StatusOK, &TokenResponse{
		IDToken:   result.RawIDToken,
		TokenType: "Bearer",
		ExpiresAt: result.Expiry,
		Subject:   result.Claims.Subject,
		Email:     result.Claims.Email,
	})
}
