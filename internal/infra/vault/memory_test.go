package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remsec/connwarden/internal/domain/credential"
)

func TestMemoryStoreWriteAndGet(t *testing.T) {
	store := NewMemoryStore()

	rec := Record{
		TargetHost: "srv01",
		Kind:       credential.KindGeneric,
		Username:   "alice",
		Secret:     []byte("s3cret"),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	require.NoError(t, store.Write(context.Background(), rec))

	got, ok := store.Get("srv01", credential.KindGeneric)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	// Kind is part of the key.
	_, ok = store.Get("srv01", credential.KindDomain)
	assert.False(t, ok)
}

func TestMemoryStoreUpsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := Record{TargetHost: "srv01", Kind: credential.KindGeneric, Username: "alice", ExpiresAt: time.Now().Add(time.Minute)}
	second := first
	second.Username = "bob"

	require.NoError(t, store.Write(ctx, first))
	require.NoError(t, store.Write(ctx, second))
	assert.Equal(t, 1, store.Len())

	got, ok := store.Get("srv01", credential.KindGeneric)
	require.True(t, ok)
	assert.Equal(t, "bob", got.Username)
}

func TestMemoryStoreExpiredRecordsPruned(t *testing.T) {
	store := NewMemoryStore()

	rec := Record{
		TargetHost: "srv01",
		Kind:       credential.KindGeneric,
		ExpiresAt:  time.Now().Add(-time.Second),
	}
	require.NoError(t, store.Write(context.Background(), rec))
	require.Equal(t, 1, store.Len())

	_, ok := store.Get("srv01", credential.KindGeneric)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := Record{TargetHost: "srv01", Kind: credential.KindDomain, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Write(ctx, rec))
	require.NoError(t, store.Delete(ctx, "srv01", credential.KindDomain))
	assert.Equal(t, 0, store.Len())

	// Deleting an absent record is not an error.
	assert.NoError(t, store.Delete(ctx, "srv01", credential.KindDomain))
}
