package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/auth"
	"github.com/bcnelson/webscenario-manager/internal/domain"
	"github.com/bcnelson/webscenario-manager/internal/storage/memory"
)

type fakeVerifier struct {
	token string
}

func (f *fakeVerifier) VerifyIDToken(ctx context.Context, raw string) (*auth.OIDCClaims, error) {
	if raw != f.token {
		return nil, errors.New("bad token")
	}
	return &auth.OIDCClaims{Subject: "user-1", Email: "ops@example.com"}, nil
}

func TestAuth(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if err := store.CreateAPIKey(ctx, &domain.APIKey{
		ID:        "key-1",
		Name:      "CI",
		KeyHash:   hashAPIKey("wsm_valid"),
		KeyPrefix: "wsm_vali",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		verifier   TokenVerifier
		wantStatus int
		wantKey    string
		wantSub    string
	}{
		{"missing header", "", nil, http.StatusUnauthorized, "", ""},
		{"wrong scheme", "Basic abc", nil, http.StatusUnauthorized, "", ""},
		{"empty credential", "Bearer ", nil, http.StatusUnauthorized, "", ""},
		{"valid API key", "Bearer wsm_valid", nil, http.StatusOK, "key-1", ""},
		{"unknown key without OIDC", "Bearer header.payload.sig", nil, http.StatusUnauthorized, "", ""},
		{"valid ID token", "Bearer header.payload.sig", &fakeVerifier{token: "header.payload.sig"}, http.StatusOK, "", "user-1"},
		{"invalid ID token", "Bearer forged", &fakeVerifier{token: "header.payload.sig"}, http.StatusUnauthorized, "", ""},
		{"bootstrap key after keys exist", "Bearer bootstrap", nil, http.StatusUnauthorized, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey, gotSub string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if key := GetAPIKeyFromContext(r.Context()); key != nil {
					gotKey = key.ID
				}
				if claims := GetClaimsFromContext(r.Context()); claims != nil {
					gotSub = claims.Subject
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/hosts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			Auth(store, "bootstrap", tt.verifier)(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if gotKey != tt.wantKey {
				t.Errorf("Expected key %q in context, got %q", tt.wantKey, gotKey)
			}
			if gotSub != tt.wantSub {
				t.Errorf("Expected subject %q in context, got %q", tt.wantSub, gotSub)
			}
		})
	}
}

func TestAuth_BootstrapKey(t *testing.T) {
	store := memory.New()
	var gotKey *domain.APIKey
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = GetAPIKeyFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hosts", nil)
	req.Header.Set("Authorization", "Bearer bootstrap")
	rr := httptest.NewRecorder()
	Auth(store, "bootstrap", nil)(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if gotKey == nil || gotKey.ID != "bootstrap" {
		t.Errorf("Expected bootstrap key in context, got %+v", gotKey)
	}
}

func TestLoggerFromContext_Default(t *testing.T) {
	if LoggerFromContext(context.Background()) == nil {
		t.Error("Expected a no-op logger outside the middleware")
	}
}

func TestLogging_RecordsStatus(t *testing.T) {
	var sawLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawLogger = r.Context().Value(loggerContextKey).(*zap.Logger)
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	Logging(zap.NewNop())(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusTeapot {
		t.Errorf("Expected handler status to pass through, got %d", rr.Code)
	}
	if !sawLogger {
		t.Error("Expected request logger in context")
	}
}
