package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"eve-market-watch/internal/db"
)

// Token validity buffer. A token within this window of its expiry is
// refreshed instead of used.
const expiryBuffer = 120 * time.Second

// ErrUnknownAccount is returned when a character has no stored credential.
var ErrUnknownAccount = errors.New("auth: unknown account")

// ErrInvalidCredential is returned when the login server rejects the
// stored refresh token.
var ErrInvalidCredential = errors.New("auth: invalid credential")

// UserStore is the slice of the persistence layer the provider needs.
type UserStore interface {
	FindUser(characterID int32) (*db.User, error)
	SaveUser(u *db.User) error
}

// TokenProvider issues access tokens for stored users, caching them on the
// user row with an expiry buffer.
type TokenProvider struct {
	store UserStore
	sso   *SSOConfig
}

// NewTokenProvider creates a provider over the given store and SSO config.
func NewTokenProvider(store UserStore, sso *SSOConfig) *TokenProvider {
	return &TokenProvider{store: store, sso: sso}
}

// AccessToken returns a valid access token for the character, refreshing
// and persisting it when the cached one is missing or near expiry.
func (p *TokenProvider) AccessToken(characterID int32) (string, error) {
	u, err := p.store.FindUser(characterID)
	if err != nil {
		return "", fmt.Errorf("find user %d: %w", characterID, err)
	}
	if u == nil {
		return "", fmt.Errorf("character %d: %w", characterID, ErrUnknownAccount)
	}

	if u.AccessToken != "" && time.Now().Before(u.TokenExpiry.Add(-expiryBuffer)) {
		return u.AccessToken, nil
	}

	tok, err := p.sso.RefreshToken(u.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh for %d: %v: %w", characterID, err, ErrInvalidCredential)
	}

	u.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		u.RefreshToken = tok.RefreshToken
	}
	u.TokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := p.store.SaveUser(u); err != nil {
		return "", fmt.Errorf("save user %d: %w", characterID, err)
	}
	return u.AccessToken, nil
}

// TokenCache caches a single access token for one fixed refresh credential.
// The mail dispatcher uses it for the outbound account, which is not a
// stored user.
type TokenCache struct {
	sso          *SSOConfig
	refreshToken string

	mu      sync.Mutex
	access  string
	expires time.Time
}

// NewTokenCache creates a cache around one refresh token.
func NewTokenCache(sso *SSOConfig, refreshToken string) *TokenCache {
	return &TokenCache{sso: sso, refreshToken: refreshToken}
}

// Token returns a valid access token, refreshing when near expiry.
func (t *TokenCache) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.access != "" && time.Now().Before(t.expires.Add(-expiryBuffer)) {
		return t.access, nil
	}

	tok, err := t.sso.RefreshToken(t.refreshToken)
	if err != nil {
		return "", fmt.Errorf("outbound account refresh: %v: %w", err, ErrInvalidCredential)
	}
	t.access = tok.AccessToken
	if tok.RefreshToken != "" {
		t.refreshToken = tok.RefreshToken
	}
	t.expires = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return t.access, nil
}
