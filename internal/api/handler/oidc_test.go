package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/webscenario-manager/internal/auth"
)

type fakeLoginProvider struct {
	started *auth.LoginState
	got     *auth.LoginState
}

func (f *fakeLoginProvider) AuthCodeURL(login *auth.LoginState) string {
	f.started = login
	return "https://issuer.example.com/authorize?state=" + url.QueryEscape(login.State)
}

func (f *fakeLoginProvider) Exchange(ctx context.Context, code string, login *auth.LoginState) (*auth.ExchangeResult, error) {
	f.got = login
	if code != "good-code" {
		return nil, errors.New("bad code")
	}
	return &auth.ExchangeResult{
		Claims:     &auth.OIDCClaims{Subject: "user-1", Email: "ops@example.com"},
		RawIDToken: "header.payload.sig",
		Expiry:     time.Now().Add(time.Hour),
	}, nil
}

// login runs the login step and returns the state and the cookies to carry.
func login(t *testing.T, h *OIDCHandler) (string, []*http.Cookie) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected redirect, got %d", rr.Code)
	}
	location, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Invalid redirect: %v", err)
	}
	return location.Query().Get("state"), rr.Result().Cookies()
}

func TestOIDCCallback(t *testing.T) {
	logins, err := auth.NewLoginStates([]byte(strings.Repeat("k", 32)), false)
	if err != nil {
		t.Fatalf("NewLoginStates failed: %v", err)
	}

	tests := []struct {
		name       string
		query      func(state string) string
		wantStatus int
	}{
		{"success", func(state string) string { return "code=good-code&state=" + state }, http.StatusOK},
		{"provider error", func(state string) string { return "error=access_denied" }, http.StatusUnauthorized},
		{"missing code", func(state string) string { return "state=" + state }, http.StatusBadRequest},
		{"wrong state", func(state string) string { return "code=good-code&state=forged" }, http.StatusBadRequest},
		{"exchange failure", func(state string) string { return "code=bad-code&state=" + state }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeLoginProvider{}
			h := NewOIDCHandler(provider, logins)
			state, cookies := login(t, h)

			req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+tt.query(state), nil)
			for _, c := range cookies {
				req.AddCookie(c)
			}
			rr := httptest.NewRecorder()
			h.Callback(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp TokenResponse
			_ = json.Unmarshal(rr.Body.Bytes(), &resp)
			if resp.IDToken != "header.payload.sig" || resp.Email != "ops@example.com" {
				t.Errorf("Unexpected token response: %+v", resp)
			}
			if provider.got == nil || provider.got.Nonce != provider.started.Nonce ||
				provider.got.Verifier == "" || provider.got.Verifier != provider.started.Verifier {
				t.Errorf("Expected the nonce and verifier of the login to reach the exchange, started %+v, got %+v",
					provider.started, provider.got)
			}
		})
	}
}
