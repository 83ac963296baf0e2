package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/domain/subscription"
	"github.com/mockupforge/mockupforge/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu            sync.RWMutex
	assets        map[string]asset.Asset
	subscriptions map[string]subscription.Subscription
}

var _ storage.AssetStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		assets:        make(map[string]asset.Asset),
		subscriptions: make(map[string]subscription.Subscription),
	}
}

func (s *Store) CreateAsset(_ context.Context, a asset.Asset) (asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) GetAsset(_ context.Context, id string) (asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return asset.Asset{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListRecentAssets(_ context.Context, limit int) ([]asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]asset.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteAsset(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	delete(s.assets, id)
	return a.StoragePath, nil
}

func (s *Store) UpsertSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub.UpdatedAt = time.Now().UTC()
	s.subscriptions[sub.CustomerID] = sub
	return sub, nil
}

func (s *Store) GetSubscription(_ context.Context, customerID string) (subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[customerID]
	if !ok {
		return subscription.Subscription{}, storage.ErrNotFound
	}
	return sub, nil
}
