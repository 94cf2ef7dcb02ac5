package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/auth"
	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/storage"
)

type contextKey string

const (
	APIKeyContextKey contextKey = "api_key"
	ClaimsContextKey contextKey = "oidc_claims"
)

// TokenVerifier verifies OIDC ID tokens presented as bearer credentials.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawIDToken string) (*auth.OIDCClaims, error)
}

// Auth creates authentication middleware. Requests carry either an API key
// or, when tokens is non-nil, an OIDC ID token as a bearer credential.
func Auth(store storage.Storage, bootstrapKey string, tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			credential, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, "invalid authorization header format")
				return
			}
			if credential == "" {
				unauthorized(w, "empty API key")
				return
			}

			ctx := r.Context()
			logger := LoggerFromContext(ctx)

			keyCount, err := store.CountAPIKeys(ctx)
			if err != nil {
				logger.Error("counting API keys", zap.Error(err))
				internalError(w)
				return
			}

			// The bootstrap key only works until the first real key exists.
			if keyCount == 0 && bootstrapKey != "" {
				if subtle.ConstantTimeCompare([]byte(credential), []byte(bootstrapKey)) == 1 {
					ctx = context.WithValue(ctx, APIKeyContextKey, &domain.APIKey{
						ID:   "bootstrap",
						Name: "Bootstrap Key",
					})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			storedKey, err := store.GetAPIKeyByHash(ctx, hashAPIKey(credential))
			switch {
			case err == nil:
				go func() {
					if err := store.UpdateAPIKeyLastUsed(context.Background(), storedKey.ID); err != nil {
						logger.Warn("updating API key last use", zap.String("key_id", storedKey.ID), zap.Error(err))
					}
				}()
				ctx = context.WithValue(ctx, APIKeyContextKey, storedKey)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			case !errors.Is(err, domain.ErrNotFound):
				logger.Error("looking up API key", zap.Error(err))
				internalError(w)
				return
			}

			if tokens == nil {
				unauthorized(w, "invalid API key")
				return
			}
			claims, err := tokens.VerifyIDToken(ctx, credential)
			if err != nil {
				logger.Debug("rejected bearer token", zap.Error(err))
				unauthorized(w, "invalid credentials")
				return
			}
			ctx = context.WithValue(ctx, ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}

// hashAPIKey creates a SHA-256 hash of the API key.
// We use SHA-256 for fast lookups since API keys are already high-entropy random strings.
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// GetAPIKeyFromContext retrieves the API key from the request context.
func GetAPIKeyFromContext(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*domain.APIKey)
	return key
}

// GetClaimsFromContext retrieves the OIDC claims of a token-authenticated
// request.
func GetClaimsFromContext(ctx context.Context) *auth.OIDCClaims {
	claims, _ := ctx.Value(ClaimsContextKey).(*auth.OIDCClaims)
	return claims
}
