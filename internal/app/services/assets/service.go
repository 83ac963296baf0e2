// Package assets manages the registry of mirrored images: persistence,
// listing for the admin gallery, and deletion across both the database and
// remote storage.
package assets

import (
	"context"
	"fmt"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/storage"
	"github.com/mockupforge/mockupforge/pkg/logger"
)

// DefaultListLimit bounds admin gallery queries.
const DefaultListLimit = 200

// StorageDeleter removes an object from remote storage. Deletion there is
// best effort: the registry row is the source of truth.
type StorageDeleter interface {
	Delete(ctx context.Context, path string) error
}

// StorageOutcome is what happened to the mirrored object when its registry
// row was deleted.
type StorageOutcome string

const (
	// StorageDeleted means the mirrored object was removed from storage.
	StorageDeleted StorageOutcome = "deleted"
	// StorageOrphaned means the object remains in storage unreferenced,
	// either because the remote delete failed or no deleter is configured.
	StorageOrphaned StorageOutcome = "orphaned"
	// StorageNone means the asset had no mirrored object.
	StorageNone StorageOutcome = "none"
)

// Service is the asset registry.
type Service struct {
	store   storage.AssetStore
	deleter StorageDeleter
	log     *logger.Logger
}

// New constructs an assets service. deleter may be nil when no remote
// storage is configured.
func New(store storage.AssetStore, deleter StorageDeleter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assets")
	}
	return &Service{store: store, deleter: deleter, log: log}
}

// Record persists a new asset. A storage URL without a storage path is
// rejected: a link with no addressable object behind it cannot be deleted
// later. DisplayURL is computed here, once, so reads never re-derive it.
func (s *Service) Record(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	if a.SourceURL == "" {
		return asset.Asset{}, fmt.Errorf("source url required")
	}
	if a.StorageURL != "" && a.StoragePath == "" {
		return asset.Asset{}, fmt.Errorf("storage url present without storage path")
	}
	a.DisplayURL = a.ResolveDisplayURL()

	created, err := s.store.CreateAsset(ctx, a)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("persist asset: %w", err)
	}
	s.log.WithField("asset_id", created.ID).Debug("asset recorded")
	return created, nil
}

// Get returns one asset by id.
func (s *Service) Get(ctx context.Context, id string) (asset.Asset, error) {
	return s.store.GetAsset(ctx, id)
}

// ListRecent returns up to limit assets, newest first. Zero or negative
// limits fall back to DefaultListLimit, and requests above it are capped.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]asset.Asset, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.store.ListRecentAssets(ctx, limit)
}

// Delete removes the registry row, then attempts to remove the mirrored
// object from remote storage. A storage failure after the row is gone is
// logged and swallowed: the asset no longer exists as far as callers are
// concerned, and the orphaned object is harmless. The returned outcome
// reports the mirrored object's fate for callers that audit deletes.
func (s *Service) Delete(ctx context.Context, id string) (StorageOutcome, error) {
	storagePath, err := s.store.DeleteAsset(ctx, id)
	if err != nil {
		return "", err
	}

	outcome := StorageNone
	if storagePath != "" {
		outcome = StorageOrphaned
		if s.deleter != nil {
			if err := s.deleter.Delete(ctx, storagePath); err != nil {
				s.log.WithError(err).WithField("path", storagePath).Warn("remote delete failed, object orphaned")
			} else {
				outcome = StorageDeleted
			}
		}
	}

	s.log.WithField("asset_id", id).WithField("storage", string(outcome)).Info("asset deleted")
	return outcome, nil
}
