package vault

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/remsec/connwarden/internal/config"
	"github.com/remsec/connwarden/internal/domain/credential"
	"github.com/remsec/connwarden/pkg/common/logger"
)

// failingStore rejects every operation, for exercising the best-effort
// contract.
type failingStore struct{ err error }

func (s failingStore) Write(ctx context.Context, rec Record) error { return s.err }

func (s failingStore) Delete(ctx context.Context, targetHost string, kind credential.StoreKind) error {
	return s.err
}

// countingStore wraps a MemoryStore and counts writes.
type countingStore struct {
	*MemoryStore
	mu     sync.Mutex
	writes int
}

func (s *countingStore) Write(ctx context.Context, rec Record) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.MemoryStore.Write(ctx, rec)
}

func (s *countingStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func newTestCoordinator(store SecretStore, baseTTL time.Duration) *Coordinator {
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	return NewCoordinator(store, baseTTL, nil, noop.NewTracerProvider().Tracer(""), log)
}

func newTestCredential(t *testing.T, baseTTL time.Duration) *credential.Credential {
	t.Helper()
	cred, err := credential.New("alice", []byte("s3cret"), "srv01", credential.KindGeneric, baseTTL, time.Now().UTC())
	require.NoError(t, err)
	return cred
}

func TestIncrementDerivation(t *testing.T) {
	tests := []struct {
		name    string
		baseTTL time.Duration
		want    time.Duration
	}{
		{"even seconds halve", 10 * time.Second, 5 * time.Second},
		{"odd seconds round up", 3 * time.Second, 2 * time.Second},
		{"sub-second rounds up to a second", 500 * time.Millisecond, time.Second},
		{"zero falls back to a second", 0, time.Second},
		{"negative falls back to a second", -time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(NewMemoryStore(), tt.baseTTL)
			assert.Equal(t, tt.want, c.Increment())
		})
	}
}

func TestNewCoordinatorFromConfig(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	cfg := config.Vault{TTL: 10 * time.Second, WriteOps: 5, WriteBurst: 2}

	c := NewCoordinatorFromConfig(NewMemoryStore(), cfg, noop.NewTracerProvider().Tracer(""), log)
	assert.Equal(t, 5*time.Second, c.Increment())
}

func TestRegisterWritesRecord(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCoordinator(store, 10*time.Second)
	cred := newTestCredential(t, 10*time.Second)

	c.Register(context.Background(), cred)

	rec, ok := store.Get("srv01", credential.KindGeneric)
	require.True(t, ok)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, []byte("s3cret"), rec.Secret)
	assert.Equal(t, cred.ExpiresAt(), rec.ExpiresAt)
}

func TestRegisterFailureIsNonFatal(t *testing.T) {
	c := newTestCoordinator(failingStore{err: errors.New("store down")}, 10*time.Second)
	cred := newTestCredential(t, 10*time.Second)

	// Must not panic or wipe the credential; the session proceeds unvaulted.
	c.Register(context.Background(), cred)
	assert.False(t, cred.Disposed())
}

func TestRegisterNilCredential(t *testing.T) {
	c := newTestCoordinator(NewMemoryStore(), 10*time.Second)
	c.Register(context.Background(), nil)
}

func TestExtendTTL(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	c := newTestCoordinator(store, 10*time.Second)
	cred := newTestCredential(t, 10*time.Second)
	c.Register(context.Background(), cred)

	before := cred.ExpiresAt()
	c.ExtendTTL(context.Background(), cred)

	assert.Equal(t, before.Add(c.Increment()), cred.ExpiresAt())
	assert.Equal(t, 2, store.writeCount())

	rec, ok := store.Get("srv01", credential.KindGeneric)
	require.True(t, ok)
	assert.Equal(t, cred.ExpiresAt(), rec.ExpiresAt)
}

func TestExtendTTLIgnoresNilAndDisposed(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	c := newTestCoordinator(store, 10*time.Second)

	c.ExtendTTL(context.Background(), nil)

	cred := newTestCredential(t, 10*time.Second)
	cred.Wipe()
	c.ExtendTTL(context.Background(), cred)

	assert.Equal(t, 0, store.writeCount())
}

func TestExtendTTLStoreFailureStillExtends(t *testing.T) {
	c := newTestCoordinator(failingStore{err: errors.New("store down")}, 10*time.Second)
	cred := newTestCredential(t, 10*time.Second)

	before := cred.ExpiresAt()
	c.ExtendTTL(context.Background(), cred)
	assert.True(t, cred.ExpiresAt().After(before))
}

func TestResetTTLDiscardsExtensions(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCoordinator(store, 10*time.Second)
	cred := newTestCredential(t, 10*time.Second)
	c.Register(context.Background(), cred)

	c.ExtendTTL(context.Background(), cred)
	c.ExtendTTL(context.Background(), cred)

	c.ResetTTL(context.Background(), cred)

	remaining := time.Until(cred.ExpiresAt())
	assert.LessOrEqual(t, remaining, 10*time.Second)
	assert.Greater(t, remaining, 9*time.Second)
}

func TestWithdraw(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCoordinator(store, 10*time.Second)
	cred := newTestCredential(t, 10*time.Second)
	c.Register(context.Background(), cred)
	require.Equal(t, 1, store.Len())

	c.Withdraw(context.Background(), cred)

	assert.Equal(t, 0, store.Len())
	assert.True(t, cred.Disposed())

	// Idempotent, including after disposal.
	c.Withdraw(context.Background(), cred)
	c.Withdraw(context.Background(), nil)
}

func TestWithdrawStoreFailureStillWipes(t *testing.T) {
	c := newTestCoordinator(failingStore{err: errors.New("store down")}, 10*time.Second)
	cred := newTestCredential(t, 10*time.Second)

	c.Withdraw(context.Background(), cred)
	assert.True(t, cred.Disposed())
}
