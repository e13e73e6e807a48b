package llmclient

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionToken is the credential one run uses for every intermediary call.
// Acquired once, cached in memory for the run, invalidated on an
// authentication failure. Never persisted; never logged in full.
type SessionToken struct {
	Value      string
	Subject    string
	AcquiredAt time.Time
	ExpiresAt  time.Time // zero when the token carries no readable expiry
}

// Prefix returns the loggable short form of the token value.
func (t *SessionToken) Prefix() string {
	if len(t.Value) <= 8 {
		return t.Value
	}
	return t.Value[:8]
}

// expired reports whether a locally readable expiry has already passed.
// Tokens without one never expire locally; only a 401 invalidates them.
func (t *SessionToken) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// peekExpiry reads the exp claim from a JWT without verifying the signature.
// The intermediary owns validity; this is only an optimization that skips a
// guaranteed 401. Non-JWT tokens yield a zero time.
func peekExpiry(value string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(value, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// tokenCache holds at most one session token per run.
type tokenCache struct {
	mu    sync.Mutex
	token *SessionToken
}

func (c *tokenCache) get(now time.Time) *SessionToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil || c.token.expired(now) {
		return nil
	}
	return c.token
}

func (c *tokenCache) set(t *SessionToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = t
}

func (c *tokenCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}
