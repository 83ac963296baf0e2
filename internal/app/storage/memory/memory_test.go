package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/domain/subscription"
	"github.com/mockupforge/mockupforge/internal/app/storage"
)

func TestAssetLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateAsset(ctx, asset.Asset{SourceURL: "https://src.example/1", StoragePath: "/p/1.png"})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Errorf("created = %+v", created)
	}

	got, err := store.GetAsset(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if got.SourceURL != "https://src.example/1" {
		t.Errorf("got = %+v", got)
	}

	path, err := store.DeleteAsset(ctx, created.ID)
	if err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if path != "/p/1.png" {
		t.Errorf("deleted path = %q", path)
	}

	if _, err := store.GetAsset(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAsset after delete = %v", err)
	}
	if _, err := store.DeleteAsset(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteAsset twice = %v", err)
	}
}

func TestListRecentAssetsOrdersNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := store.CreateAsset(ctx, asset.Asset{
			SourceURL: fmt.Sprintf("https://src.example/%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateAsset: %v", err)
		}
	}

	listed, err := store.ListRecentAssets(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecentAssets: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("len = %d, want 3", len(listed))
	}
	if listed[0].SourceURL != "https://src.example/3" || listed[2].SourceURL != "https://src.example/1" {
		t.Errorf("order = %q .. %q", listed[0].SourceURL, listed[2].SourceURL)
	}
}

func TestSubscriptionUpsert(t *testing.T) {
	store := New()
	ctx := context.Background()

	credits := 200
	_, err := store.UpsertSubscription(ctx, subscription.Subscription{CustomerID: "42", Plan: "starter", Credits: &credits})
	if err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}

	newCredits := 1000
	_, err = store.UpsertSubscription(ctx, subscription.Subscription{CustomerID: "42", Plan: "creator", Credits: &newCredits})
	if err != nil {
		t.Fatalf("UpsertSubscription update: %v", err)
	}

	got, err := store.GetSubscription(ctx, "42")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.Plan != "creator" || *got.Credits != 1000 {
		t.Errorf("got = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("updated_at not set")
	}

	if _, err := store.GetSubscription(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing subscription = %v", err)
	}
}
