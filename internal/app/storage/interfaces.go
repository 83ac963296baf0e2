// Package storage defines the persistence interfaces implemented by the
// memory and postgres backends.
package storage

import (
	"context"
	"errors"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/domain/subscription"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// AssetStore persists asset records.
type AssetStore interface {
	// CreateAsset inserts the asset and returns it with its assigned id.
	CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error)
	GetAsset(ctx context.Context, id string) (asset.Asset, error)
	// ListRecentAssets returns up to limit assets, newest first.
	ListRecentAssets(ctx context.Context, limit int) ([]asset.Asset, error)
	// DeleteAsset removes the row as a single atomic unit and returns the
	// storage path the row held, which may be empty. ErrNotFound when the
	// row does not exist.
	DeleteAsset(ctx context.Context, id string) (string, error)
}

// SubscriptionStore persists subscription records keyed on customer id.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error)
	GetSubscription(ctx context.Context, customerID string) (subscription.Subscription, error)
}
