package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	"EffortLab/pkg/cache"
)

// CacheSessionStore keeps session state in a cache.Service (Redis, layered
// or in-memory). The per-session lock is a TryLock key with its own TTL so
// a crashed holder cannot wedge the session.
type CacheSessionStore struct {
	cache   cache.Service
	ttl     time.Duration
	lockTTL time.Duration
}

func NewCacheSessionStore(c cache.Service, ttl, lockTTL time.Duration) *CacheSessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &CacheSessionStore{cache: c, ttl: ttl, lockTTL: lockTTL}
}

var _ repository.SessionStore = (*CacheSessionStore)(nil)

func (s *CacheSessionStore) Get(ctx context.Context, id string) (*models.SessionState, error) {
	var st models.SessionState
	if err := s.cache.Get(ctx, sessionKey(id), &st); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%s: %w", id, repository.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &st, nil
}

// Put stores s and refreshes its TTL.
func (s *CacheSessionStore) Put(ctx context.Context, st *models.SessionState) error {
	if err := s.cache.Set(ctx, sessionKey(st.ID), st, s.ttl); err != nil {
		return fmt.Errorf("put session %s: %w", st.ID, err)
	}
	return nil
}

// Lock fails fast with ErrSessionBusy when another request holds the session.
func (s *CacheSessionStore) Lock(ctx context.Context, id string) (func(), error) {
	key := cache.Key("session", id, "lock")
	ok, err := s.cache.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, repository.ErrSessionBusy)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.cache.Unlock(ctx, key)
	}, nil
}

func sessionKey(id string) string { return cache.Key("session", id) }
