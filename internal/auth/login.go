package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	// LoginCookieName carries the sealed LoginState between /auth/login and
	// /auth/callback.
	LoginCookieName = "wsm_login"
	// LoginTTL is how long a started login can be completed.
	LoginTTL = 5 * time.Minute
)

// ErrLoginState is returned when a callback does not belong to a login this
// server started, or the login took too long.
var ErrLoginState = errors.New("invalid login state")

// LoginState is what the callback needs to finish a login: the state echoed
// by the provider, the nonce expected in the ID token and the PKCE verifier
// for the code exchange.
type LoginState struct {
	State    string    `json:"s"`
	Nonce    string    `json:"n"`
	Verifier string    `json:"v"`
	Expires  time.Time `json:"e"`
}

// LoginStates seals LoginState into an AES-GCM encrypted cookie so the server
// keeps no per-login data.
type LoginStates struct {
	aead   cipher.AEAD
	secure bool
	now    func() time.Time
}

// NewLoginStates creates a LoginStates sealing with a 32 byte key. secure
// marks the cookie HTTPS only.
func NewLoginStates(key []byte, secure bool) (*LoginStates, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("login state key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &LoginStates{aead: aead, secure: secure, now: time.Now}, nil
}

// Begin starts a login and sets the cookie that Finish reads back.
func (ls *LoginStates) Begin(w http.ResponseWriter) (*LoginState, error) {
	state, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	nonce, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	login := &LoginState{
		State:    state,
		Nonce:    nonce,
		Verifier: oauth2.GenerateVerifier(),
		Expires:  ls.now().Add(LoginTTL),
	}

	sealed, err := ls.seal(login)
	if err != nil {
		return nil, err
	}
	ls.setCookie(w, sealed, int(LoginTTL/time.Second))
	return login, nil
}

// Finish returns the login started by Begin if state matches it. The cookie
// is cleared whatever the outcome.
func (ls *LoginStates) Finish(w http.ResponseWriter, r *http.Request, state string) (*LoginState, error) {
	ls.setCookie(w, "", -1)

	cookie, err := r.Cookie(LoginCookieName)
	if err != nil {
		return nil, fmt.Errorf("%w: no login cookie", ErrLoginState)
	}
	login, err := ls.open(cookie.Value)
	if err != nil {
		return nil, err
	}
	if ls.now().After(login.Expires) {
		return nil, fmt.Errorf("%w: login expired", ErrLoginState)
	}
	if !ConstantTimeCompare(login.State, state) {
		return nil, fmt.Errorf("%w: state mismatch", ErrLoginState)
	}
	return login, nil
}

// seal encrypts login with the cookie name as additional data, so the value
// cannot be replayed in another cookie.
func (ls *LoginStates) seal(login *LoginState) (string, error) {
	plaintext, err := json.Marshal(login)
	if err != nil {
		return "", fmt.Errorf("encoding login state: %w", err)
	}
	nonce := make([]byte, ls.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating cookie nonce: %w", err)
	}
	sealed := ls.aead.Seal(nonce, nonce, plaintext, []byte(LoginCookieName))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (ls *LoginStates) open(value string) (*LoginState, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(sealed) < ls.aead.NonceSize() {
		return nil, fmt.Errorf("%w: malformed cookie", ErrLoginState)
	}
	nonce, ciphertext := sealed[:ls.aead.NonceSize()], sealed[ls.aead.NonceSize():]
	plaintext, err := ls.aead.Open(nil, nonce, ciphertext, []byte(LoginCookieName))
	if err != nil {
		return nil, fmt.Errorf("%w: cookie does not decrypt", ErrLoginState)
	}
	var login LoginState
	if err := json.Unmarshal(plaintext, &login); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginState, err)
	}
	return &login, nil
}

func (ls *LoginStates) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     LoginCookieName,
		Value:    value,
		Path:     "/auth/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   ls.secure,
	})
}
