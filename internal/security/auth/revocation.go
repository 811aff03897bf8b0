package auth

import (
	"context"
	"time"

	"github.com/endlessblink/Gear-Pool/pkg/cache"
)

// RevocationStore remembers logged-out token ids until they expire.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocationStore keeps revoked ids in a process-local TTL cache.
type MemoryRevocationStore struct {
	revoked *cache.Cache[string, struct{}]
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: cache.New[string, struct{}]()}
}

func (m *MemoryRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl > 0 {
		m.revoked.Set(tokenID, struct{}{}, ttl)
	}
	return nil
}

func (m *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, ok := m.revoked.Get(tokenID)
	return ok, nil
}
