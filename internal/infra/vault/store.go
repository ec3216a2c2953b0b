// Package vault coordinates ephemeral credentials in an OS-level secret
// store: registration, adaptive TTL extension while session completion is
// uncertain, TTL reset on confirmation, and immediate withdrawal.
package vault

import (
	"context"
	"time"

	"github.com/remsec/connwarden/internal/domain/credential"
)

// Record is what a secret store persists for one credential. Stores key
// records by target host + kind; two sessions writing the same key
// intentionally collide.
type Record struct {
	TargetHost string
	Kind       credential.StoreKind
	Username   string
	Secret     []byte
	ExpiresAt  time.Time
}

// SecretStore is the OS secret-store port. Writes upsert; deletes are
// idempotent.
type SecretStore interface {
	Write(ctx context.Context, rec Record) error
	Delete(ctx context.Context, targetHost string, kind credential.StoreKind) error
}
