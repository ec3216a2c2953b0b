package vault

import (
	"context"
	"sync"
	"time"

	"github.com/remsec/connwarden/internal/domain/credential"
)

var _ SecretStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory SecretStore for tests and non-Windows hosts.
// Expired records are pruned lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[storeKey]Record
}

type storeKey struct {
	host string
	kind credential.StoreKind
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[storeKey]Record)}
}

// Write upserts the record under its target+kind key.
func (s *MemoryStore) Write(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[storeKey{host: rec.TargetHost, kind: rec.Kind}] = rec
	return nil
}

// Delete removes the record if present.
func (s *MemoryStore) Delete(ctx context.Context, targetHost string, kind credential.StoreKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, storeKey{host: targetHost, kind: kind})
	return nil
}

// Get returns the live record for the key, pruning it when expired.
func (s *MemoryStore) Get(targetHost string, kind credential.StoreKind) (Record, bool) {
	key := storeKey{host: targetHost, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(s.records, key)
		return Record{}, false
	}
	return rec, true
}

// Len reports the number of stored records, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
