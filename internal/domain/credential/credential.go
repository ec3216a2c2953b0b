// Package credential models ephemeral credentials handed to an OS secret
// store for the lifetime of one session. A credential's secret is owned
// exclusively by its session: it is wiped on every exit path and never read
// after disposal.
package credential

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// StoreKind selects which class of OS secret-store entry a credential maps to.
type StoreKind string

const (
	// KindDomain marks a domain-qualified credential.
	KindDomain StoreKind = "domain"
	// KindGeneric marks a generic (local-user) credential.
	KindGeneric StoreKind = "generic"
)

func (k StoreKind) String() string { return string(k) }

// ErrSecretDisposed is returned when secret material is read after disposal.
var ErrSecretDisposed = errors.New("credential secret already disposed")

// Credential is an ephemeral username/secret pair scoped to one target host.
// Expiry is mutable: the vault coordinator extends it while its session's
// completion is uncertain and restores the configured TTL once confirmed.
type Credential struct {
	mu sync.Mutex

	username   string
	secret     []byte
	targetHost string
	kind       StoreKind

	baseTTL   time.Duration
	expiresAt time.Time
	disposed  bool
}

// New constructs a credential expiring baseTTL from now. The TTL must not be
// negative.
func New(username string, secret []byte, targetHost string, kind StoreKind, baseTTL time.Duration, now time.Time) (*Credential, error) {
	if baseTTL < 0 {
		return nil, fmt.Errorf("credential TTL must not be negative, got %s", baseTTL)
	}
	if targetHost == "" {
		return nil, errors.New("credential target host is required")
	}

	s := make([]byte, len(secret))
	copy(s, secret)

	return &Credential{
		username:   username,
		secret:     s,
		targetHost: targetHost,
		kind:       kind,
		baseTTL:    baseTTL,
		expiresAt:  now.Add(baseTTL),
	}, nil
}

// Username returns the credential's user name.
func (c *Credential) Username() string { return c.username }

// TargetHost returns the host the credential is scoped to.
func (c *Credential) TargetHost() string { return c.targetHost }

// Kind returns the secret-store kind.
func (c *Credential) Kind() StoreKind { return c.kind }

// BaseTTL returns the originally configured TTL.
func (c *Credential) BaseTTL() time.Duration { return c.baseTTL }

// Secret returns a copy of the secret material. It fails once the credential
// has been disposed; callers must never cache the result beyond the current
// store write.
func (c *Credential) Secret() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil, ErrSecretDisposed
	}
	s := make([]byte, len(c.secret))
	copy(s, c.secret)
	return s, nil
}

// ExpiresAt returns the current expiry instant.
func (c *Credential) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

// Extend pushes the expiry forward by delta. The expiry only ever grows;
// non-positive deltas are ignored.
func (c *Credential) Extend(delta time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if delta > 0 {
		c.expiresAt = c.expiresAt.Add(delta)
	}
	return c.expiresAt
}

// Reset restores the originally configured TTL measured from now, discarding
// any accumulated extensions.
func (c *Credential) Reset(now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expiresAt = now.Add(c.baseTTL)
	return c.expiresAt
}

// Wipe zeroes the secret material and marks the credential disposed. It is
// idempotent.
func (c *Credential) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.secret {
		c.secret[i] = 0
	}
	c.secret = nil
	c.disposed = true
}

// Disposed reports whether the secret has been wiped.
func (c *Credential) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}
