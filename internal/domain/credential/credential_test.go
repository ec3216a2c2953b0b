package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		targetHost string
		baseTTL    time.Duration
		wantErr    bool
	}{
		{"valid", "srv01", 10 * time.Second, false},
		{"zero ttl allowed", "srv01", 0, false},
		{"negative ttl rejected", "srv01", -time.Second, true},
		{"missing host rejected", "", 10 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := New("alice", []byte("s3cret"), tt.targetHost, KindGeneric, tt.baseTTL, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, now.Add(tt.baseTTL), cred.ExpiresAt())
		})
	}
}

func TestSecretIsCopied(t *testing.T) {
	src := []byte("s3cret")
	cred, err := New("alice", src, "srv01", KindGeneric, time.Second, time.Now().UTC())
	require.NoError(t, err)

	// Mutating the caller's slice must not reach the credential.
	src[0] = 'X'
	got, err := cred.Secret()
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), got)

	// Mutating the returned copy must not reach the credential either.
	got[0] = 'Y'
	again, err := cred.Secret()
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), again)
}

func TestExtendOnlyGrows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cred, err := New("alice", []byte("s3cret"), "srv01", KindGeneric, 10*time.Second, now)
	require.NoError(t, err)

	first := cred.Extend(5 * time.Second)
	assert.Equal(t, now.Add(15*time.Second), first)

	// Non-positive deltas never shrink the expiry.
	assert.Equal(t, first, cred.Extend(0))
	assert.Equal(t, first, cred.Extend(-time.Hour))

	second := cred.Extend(5 * time.Second)
	assert.True(t, second.After(first))
}

func TestResetDiscardsExtensions(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cred, err := New("alice", []byte("s3cret"), "srv01", KindDomain, 10*time.Second, start)
	require.NoError(t, err)

	cred.Extend(time.Hour)

	later := start.Add(30 * time.Second)
	assert.Equal(t, later.Add(10*time.Second), cred.Reset(later))
}

func TestWipe(t *testing.T) {
	cred, err := New("alice", []byte("s3cret"), "srv01", KindGeneric, time.Second, time.Now().UTC())
	require.NoError(t, err)

	assert.False(t, cred.Disposed())
	cred.Wipe()
	assert.True(t, cred.Disposed())

	_, err = cred.Secret()
	assert.ErrorIs(t, err, ErrSecretDisposed)

	// Idempotent.
	cred.Wipe()
	assert.True(t, cred.Disposed())
}
