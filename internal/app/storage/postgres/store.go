// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/domain/subscription"
	"github.com/mockupforge/mockupforge/internal/app/storage"
	"github.com/mockupforge/mockupforge/internal/app/storage/postgres/migrations"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.AssetStore = (*Store)(nil)
var _ storage.SubscriptionStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the database, applies pool settings, and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// assetRow mirrors the generated_images table. The storage columns are
// nullable: a row recorded through the lenient mirror path has only the
// source URL.
type assetRow struct {
	ID          string         `db:"id"`
	Prompt      string         `db:"prompt"`
	SourceURL   string         `db:"source_url"`
	StoragePath sql.NullString `db:"storage_path"`
	StorageURL  sql.NullString `db:"storage_url"`
	DisplayURL  string         `db:"display_url"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r assetRow) toDomain() asset.Asset {
	return asset.Asset{
		ID:          r.ID,
		Prompt:      r.Prompt,
		SourceURL:   r.SourceURL,
		StoragePath: r.StoragePath.String,
		StorageURL:  r.StorageURL.String,
		DisplayURL:  r.DisplayURL,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// --- AssetStore -------------------------------------------------------------

func (s *Store) CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generated_images (id, prompt, source_url, storage_path, storage_url, display_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Prompt, a.SourceURL, toNullString(a.StoragePath), toNullString(a.StorageURL), a.DisplayURL, a.CreatedAt)
	if err != nil {
		return asset.Asset{}, err
	}
	return a, nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (asset.Asset, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, prompt, source_url, storage_path, storage_url, display_url, created_at
		FROM generated_images
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return asset.Asset{}, storage.ErrNotFound
	}
	if err != nil {
		return asset.Asset{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListRecentAssets(ctx context.Context, limit int) ([]asset.Asset, error) {
	var rows []assetRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, prompt, source_url, storage_path, storage_url, display_url, created_at
		FROM generated_images
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	result := make([]asset.Asset, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// DeleteAsset removes the row inside a transaction, locking it first so the
// returned storage path matches what was deleted even under concurrent calls.
func (s *Store) DeleteAsset(ctx context.Context, id string) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var storagePath sql.NullString
	err = tx.GetContext(ctx, &storagePath, `
		SELECT storage_path FROM generated_images WHERE id = $1 FOR UPDATE
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM generated_images WHERE id = $1`, id); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return storagePath.String, nil
}

// --- SubscriptionStore ------------------------------------------------------

type subscriptionRow struct {
	CustomerID  string        `db:"shopify_customer_id"`
	Email       string        `db:"email"`
	Plan        string        `db:"plan"`
	Credits     sql.NullInt64 `db:"credits"`
	RenewalDate time.Time     `db:"renewal_date"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

func (r subscriptionRow) toDomain() subscription.Subscription {
	sub := subscription.Subscription{
		CustomerID:  r.CustomerID,
		Email:       r.Email,
		Plan:        r.Plan,
		RenewalDate: r.RenewalDate.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.Credits.Valid {
		credits := int(r.Credits.Int64)
		sub.Credits = &credits
	}
	return sub
}

func (s *Store) UpsertSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	sub.UpdatedAt = time.Now().UTC()

	var credits sql.NullInt64
	if sub.Credits != nil {
		credits = sql.NullInt64{Int64: int64(*sub.Credits), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (shopify_customer_id, email, plan, credits, renewal_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (shopify_customer_id)
		DO UPDATE SET email = $2, plan = $3, credits = $4, renewal_date = $5, updated_at = $6
	`, sub.CustomerID, sub.Email, sub.Plan, credits, sub.RenewalDate, sub.UpdatedAt)
	if err != nil {
		return subscription.Subscription{}, err
	}
	return sub, nil
}

func (s *Store) GetSubscription(ctx context.Context, customerID string) (subscription.Subscription, error) {
	var row subscriptionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT shopify_customer_id, email, plan, credits, renewal_date, updated_at
		FROM subscriptions
		WHERE shopify_customer_id = $1
	`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Subscription{}, storage.ErrNotFound
	}
	if err != nil {
		return subscription.Subscription{}, err
	}
	return row.toDomain(), nil
}
