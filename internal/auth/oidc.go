package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider wraps the OIDC provider and OAuth2 config.
type OIDCProvider struct {
	oauth2Config   *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	allowedDomains []string
}

// OIDCClaims represents the claims from an ID token.
type OIDCClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce,omitempty"`
}

// NewOIDCProvider creates a new OIDC provider with discovery.
func NewOIDCProvider(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string, scopes, allowedDomains []string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &OIDCProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier:       provider.Verifier(&oidc.Config{ClientID: clientID}),
		allowedDomains: allowedDomains,
	}, nil
}

// AuthCodeURL returns the provider URL that starts login, carrying its state,
// nonce and PKCE challenge.
func (p *OIDCProvider) AuthCodeURL(login *LoginState) string {
	return p.oauth2Config.AuthCodeURL(login.State,
		oidc.Nonce(login.Nonce),
		oauth2.S256ChallengeOption(login.Verifier))
}

// ExchangeResult contains the result of an authorization code exchange.
// RawIDToken is what API clients present as a bearer token afterwards.
type ExchangeResult struct {
	Claims     *OIDCClaims
	RawIDToken string
	Expiry     time.Time
}

// Exchange redeems the authorization code of login and validates the ID token
// it yields.
func (p *OIDCProvider) Exchange(ctx context.Context, code string, login *LoginState) (*ExchangeResult, error) {
	token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(login.Verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if !ConstantTimeCompare(idToken.Nonce, login.Nonce) {
		return nil, fmt.Errorf("nonce mismatch")
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if err := p.ValidateClaims(&claims); err != nil {
		return nil, err
	}

	return &ExchangeResult{
		Claims:     &claims,
		RawIDToken: rawIDToken,
		Expiry:     idToken.Expiry,
	}, nil
}

// VerifyIDToken checks the signature, audience and expiry of a raw ID token
// presented as a bearer credential and applies the domain restriction.
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (*OIDCClaims, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if err := p.ValidateClaims(&claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// ValidateClaims checks if the claims meet requirements (e.g., domain restriction).
func (p *OIDCProvider) ValidateClaims(claims *OIDCClaims) error {
	return CheckEmailDomain(claims.Email, p.allowedDomains)
}

// CheckEmailDomain requires a well-formed email and, when allowedDomains is
// non-empty, one of those domains.
func CheckEmailDomain(email string, allowedDomains []string) error {
	if email == "" {
		return fmt.Errorf("email claim is required")
	}

	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return fmt.Errorf("invalid email format")
	}
	if len(allowedDomains) == 0 {
		return nil
	}

	domain = strings.ToLower(domain)
	for _, d := range allowedDomains {
		if strings.ToLower(d) == domain {
			return nil
		}
	}
	return fmt.Errorf("email domain %s is not allowed", domain)
}

// GenerateSecureString generates a cryptographically secure random string.
func GenerateSecureString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
