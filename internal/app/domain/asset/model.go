// Package asset defines the persisted record of a generated image.
package asset

import "time"

// Asset describes one generated image: where it came from, where its
// mirrored copy lives, and the URL consumers should use. StoragePath and
// StorageURL are empty when mirroring failed and only the source URL was
// recorded. StorageURL present implies StoragePath present: a shared link is
// only meaningful when the underlying object is addressable.
type Asset struct {
	ID          string
	Prompt      string
	SourceURL   string
	StoragePath string
	StorageURL  string
	// DisplayURL is computed once at insert time (StorageURL if present,
	// else SourceURL) and stored verbatim for backward-compatible reads.
	DisplayURL string
	CreatedAt  time.Time
}

// ResolveDisplayURL returns the externally visible URL for the asset.
func (a Asset) ResolveDisplayURL() string {
	if a.StorageURL != "" {
		return a.StorageURL
	}
	return a.SourceURL
}
