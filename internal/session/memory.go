package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MemoryStore is a single-process Store used when Redis is disabled.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Create(_ context.Context, userID uuid.UUID, tokenID string, ttl time.Duration) error {
	s.cache.Set(key(userID, tokenID), time.Now().UTC(), ttl)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, userID uuid.UUID, tokenID string) (bool, error) {
	_, ok := s.cache.Get(key(userID, tokenID))
	return ok, nil
}

func (s *MemoryStore) Revoke(_ context.Context, userID uuid.UUID, tokenID string) error {
	s.cache.Delete(key(userID, tokenID))
	return nil
}

func (s *MemoryStore) RevokeAll(_ context.Context, userID uuid.UUID) error {
	prefix := userPrefix(userID)
	for k := range s.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Delete(k)
		}
	}
	return nil
}
