package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/domain/subscription"
	"github.com/mockupforge/mockupforge/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCreateAssetAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generated_images")).
		WithArgs(sqlmock.AnyArg(), "prompt", "https://src.example/1", sqlmock.AnyArg(), sqlmock.AnyArg(), "https://share.example/1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.CreateAsset(context.Background(), asset.Asset{
		Prompt:      "prompt",
		SourceURL:   "https://src.example/1",
		StoragePath: "/p/1.png",
		StorageURL:  "https://share.example/1",
		DisplayURL:  "https://share.example/1",
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if created.ID == "" {
		t.Error("no id assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetAssetMapsNullColumns(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "prompt", "source_url", "storage_path", "storage_url", "display_url", "created_at"}).
		AddRow("a1", "p", "https://src.example/1", nil, nil, "https://src.example/1", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, prompt, source_url, storage_path, storage_url, display_url, created_at")).
		WithArgs("a1").
		WillReturnRows(rows)

	got, err := store.GetAsset(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if got.StoragePath != "" || got.StorageURL != "" {
		t.Errorf("null storage columns mapped to %q / %q", got.StoragePath, got.StorageURL)
	}
	if got.DisplayURL != "https://src.example/1" {
		t.Errorf("display url = %q", got.DisplayURL)
	}
}

func TestGetAssetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, prompt, source_url")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetAsset(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAssetLocksRowInTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT storage_path FROM generated_images WHERE id = $1 FOR UPDATE")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_path"}).AddRow("/p/1.png"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM generated_images WHERE id = $1")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	path, err := store.DeleteAsset(context.Background(), "a1")
	if err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if path != "/p/1.png" {
		t.Errorf("path = %q", path)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteAssetMissingRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT storage_path FROM generated_images")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"storage_path"}))
	mock.ExpectRollback()

	_, err := store.DeleteAsset(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertSubscription(t *testing.T) {
	store, mock := newMockStore(t)

	credits := 1000
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (shopify_customer_id)")).
		WithArgs("42", "a@example.com", "creator", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := store.UpsertSubscription(context.Background(), subscription.Subscription{
		CustomerID:  "42",
		Email:       "a@example.com",
		Plan:        "creator",
		Credits:     &credits,
		RenewalDate: time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}
	if saved.UpdatedAt.IsZero() {
		t.Error("updated_at not stamped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetSubscriptionUnlimitedCredits(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"shopify_customer_id", "email", "plan", "credits", "renewal_date", "updated_at"}).
		AddRow("7", "p@example.com", "pro", nil, now.AddDate(0, 1, 0), now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT shopify_customer_id, email, plan, credits")).
		WithArgs("7").
		WillReturnRows(rows)

	got, err := store.GetSubscription(context.Background(), "7")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.Credits != nil {
		t.Errorf("credits = %v, want nil for unlimited", got.Credits)
	}
}
