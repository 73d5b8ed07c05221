// Package credential holds the authenticated session of the attendance
// client. A Store is injected into every component that calls the backend;
// nothing reads credentials from global state.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classroll/attendance/internal/apierr"
)

// Credential is the bearer credential obtained at login.
type Credential struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"userId"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the credential can be presented at time now.
func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

type tokenClaims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// FromToken derives a Credential from a JWT access token. The signature is
// not verified here; the backend remains the authority.
func FromToken(token string) (Credential, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Credential{}, fmt.Errorf("decode token: %w", err)
	}
	c := Credential{Token: token, UserID: claims.UserID, Role: claims.Role}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c, nil
}

// ErrNotFound is returned by Load when nothing is stored.
var ErrNotFound = errors.New("no stored credential")

// Store persists the current credential between calls.
type Store interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

var nowFunc = time.Now // mockable

// Current loads the credential and checks it, mapping every failure to
// apierr.ErrUnauthenticated.
func Current(ctx context.Context, s Store) (Credential, error) {
	if s == nil {
		return Credential{}, apierr.ErrUnauthenticated
	}
	c, err := s.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credential{}, apierr.ErrUnauthenticated
		}
		return Credential{}, fmt.Errorf("%w: %v", apierr.ErrUnauthenticated, err)
	}
	if !c.Valid(nowFunc()) {
		return Credential{}, apierr.ErrUnauthenticated
	}
	return c, nil
}

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	cur *Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored credential.
func (m *MemoryStore) Load(context.Context) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return Credential{}, ErrNotFound
	}
	return *m.cur, nil
}

// Save replaces the stored credential.
func (m *MemoryStore) Save(_ context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = &c
	return nil
}

// Clear forgets the credential.
func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = nil
	return nil
}
