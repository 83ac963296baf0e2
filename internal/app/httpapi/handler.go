// Package httpapi exposes the REST surface: generation, uploads, the
// download proxy, the admin gallery, and the commerce webhook.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/services/assets"
	"github.com/mockupforge/mockupforge/internal/app/services/generation"
	"github.com/mockupforge/mockupforge/internal/app/services/subscriptions"
	"github.com/mockupforge/mockupforge/internal/app/storage"
	"github.com/mockupforge/mockupforge/internal/generator"
	"github.com/mockupforge/mockupforge/internal/mirror"
	"github.com/mockupforge/mockupforge/internal/webhook"
	"github.com/mockupforge/mockupforge/pkg/logger"
)

const (
	maxUploadBytes  = 32 << 20
	maxWebhookBytes = 1 << 20

	shopifyHmacHeader = "X-Shopify-Hmac-Sha256"
)

// GenerationService runs the produce-mirror-record pipeline.
type GenerationService interface {
	Generate(ctx context.Context, req generator.Request) ([]generation.Item, error)
}

// AssetService is the registry surface the handlers need.
type AssetService interface {
	Record(ctx context.Context, a asset.Asset) (asset.Asset, error)
	Get(ctx context.Context, id string) (asset.Asset, error)
	ListRecent(ctx context.Context, limit int) ([]asset.Asset, error)
	Delete(ctx context.Context, id string) (assets.StorageOutcome, error)
}

// SubscriptionService applies order webhooks.
type SubscriptionService interface {
	ProcessOrder(ctx context.Context, payload []byte) (subscriptions.Outcome, error)
}

// Storer uploads caller-supplied bytes into storage and resolves a link.
type Storer interface {
	Store(ctx context.Context, data []byte, ext string, opts mirror.Options) (mirror.Result, error)
}

// TemporaryLinker mints short-lived direct-content links, used by the
// download proxy so the streamed bytes come from storage, not a share page.
type TemporaryLinker interface {
	TemporaryLink(ctx context.Context, path string) (string, error)
}

// Services bundles the application services the handler dispatches to.
// Storer and Linker may be nil when no remote storage is configured; the
// endpoints needing them respond 503.
type Services struct {
	Generation    GenerationService
	Assets        AssetService
	Subscriptions SubscriptionService
	Storer        Storer
	Linker        TemporaryLinker
}

// Options adjust handler behavior.
type Options struct {
	// WebhookSecret verifies inbound commerce webhooks. Empty disables the
	// webhook route (requests get 503 rather than skipping verification).
	WebhookSecret string
	// AdminMiddleware wraps the admin routes when set.
	AdminMiddleware func(http.Handler) http.Handler
	// RateLimit wraps the generation and upload routes when set. Webhooks
	// and the download proxy are left alone so bursty but legitimate
	// traffic is not throttled.
	RateLimit func(http.Handler) http.Handler
	// AuditPath, when set, appends admin actions to a JSONL file in
	// addition to the in-memory tail.
	AuditPath string
	// HTTPClient serves the download proxy's outbound fetches.
	HTTPClient *http.Client
}

type handler struct {
	services Services
	opts     Options
	client   *http.Client
	audit    *auditLog
	log      *logger.Logger
}

// NewHandler returns the API router.
func NewHandler(services Services, opts Options, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	sink, err := newFileAuditSink(opts.AuditPath)
	if err != nil {
		log.WithError(err).Warn("audit sink unavailable, keeping in-memory log only")
	}
	h := &handler{services: services, opts: opts, client: client, audit: newAuditLog(0, sink), log: log}

	limited := func(next http.Handler) http.Handler {
		if opts.RateLimit == nil {
			return next
		}
		return opts.RateLimit(next)
	}

	r := mux.NewRouter()
	r.HandleFunc("/ping", h.ping).Methods(http.MethodGet)
	r.Handle("/generate-artwork", limited(http.HandlerFunc(h.generateArtwork))).Methods(http.MethodPost)
	r.Handle("/upload", limited(http.HandlerFunc(h.upload))).Methods(http.MethodPost)
	r.HandleFunc("/download/{id}", h.download).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/orders-create", h.ordersWebhook).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/viewer", h.adminViewer).Methods(http.MethodGet)
	admin.HandleFunc("/delete/{id}", h.adminDelete).Methods(http.MethodPost)
	admin.HandleFunc("/audit", h.adminAudit).Methods(http.MethodGet)
	if opts.AdminMiddleware != nil {
		admin.Use(mux.MiddlewareFunc(opts.AdminMiddleware))
	}

	return r
}

func (h *handler) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) generateArtwork(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt      string `json:"prompt"`
		Count       int    `json:"n"`
		AspectRatio string `json:"aspectRatio"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(strings.TrimSpace(payload.Prompt)) < 5 {
		writeError(w, http.StatusBadRequest, errors.New("prompt must be at least 5 characters"))
		return
	}

	items, err := h.services.Generation.Generate(r.Context(), generator.Request{
		Prompt:      payload.Prompt,
		Count:       payload.Count,
		AspectRatio: payload.AspectRatio,
	})
	if err != nil {
		h.log.WithError(err).Error("generation failed")
		writeError(w, http.StatusBadGateway, errors.New("image generation failed"))
		return
	}

	// mockupUrl and imageId mirror the original single-image response shape
	// so existing clients keep working.
	resp := map[string]interface{}{"items": items}
	if len(items) > 0 {
		resp["mockupUrl"] = items[0].DisplayURL
		resp["imageId"] = items[0].AssetID
	}
	writeJSON(w, http.StatusOK, resp)
}

// upload accepts the legacy multipart form. With a prompt the artwork acts as
// the generation reference image; without one it is stored and recorded as-is.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("artwork")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("multipart field 'artwork' required"))
		return
	}
	defer file.Close()

	data, err := readUpload(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if prompt := strings.TrimSpace(r.FormValue("prompt")); prompt != "" {
		if len(prompt) < 5 {
			writeError(w, http.StatusBadRequest, errors.New("prompt must be at least 5 characters"))
			return
		}
		items, err := h.services.Generation.Generate(r.Context(), generator.Request{
			Prompt:        prompt,
			Reference:     bytes.NewReader(data),
			ReferenceName: header.Filename,
		})
		if err != nil {
			h.log.WithError(err).Error("reference generation failed")
			writeError(w, http.StatusBadGateway, errors.New("image generation failed"))
			return
		}
		resp := map[string]interface{}{"items": items}
		if len(items) > 0 {
			resp["mockupUrl"] = items[0].DisplayURL
			resp["imageId"] = items[0].AssetID
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if h.services.Storer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("storage not configured"))
		return
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	res, err := h.services.Storer.Store(r.Context(), data, ext, mirror.Options{
		Subfolder:  "uploads",
		FilePrefix: "upload",
	})
	if err != nil {
		h.log.WithError(err).Error("upload to storage failed")
		writeError(w, http.StatusBadGateway, errors.New("upload failed"))
		return
	}

	// Uploads have no external origin; the storage link doubles as the
	// source so the registry invariants hold.
	recorded, err := h.services.Assets.Record(r.Context(), asset.Asset{
		Prompt:      "upload: " + header.Filename,
		SourceURL:   res.StorageURL,
		StoragePath: res.StoragePath,
		StorageURL:  res.StorageURL,
	})
	if err != nil {
		h.log.WithError(err).Error("recording upload failed")
		writeError(w, http.StatusInternalServerError, errors.New("upload failed"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"imageId": recorded.ID,
		"url":     recorded.DisplayURL,
	})
}

func readUpload(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	if len(data) > maxUploadBytes {
		return nil, errors.New("upload too large")
	}
	return data, nil
}

// download streams the asset's content with attachment headers. The bytes
// come from a fresh temporary link when the asset is mirrored, so the proxy
// serves file content rather than a share landing page.
func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	a, err := h.services.Assets.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, errors.New("image not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	contentURL := a.DisplayURL
	if a.StoragePath != "" && h.services.Linker != nil {
		link, err := h.services.Linker.TemporaryLink(r.Context(), a.StoragePath)
		if err != nil {
			h.log.WithError(err).WithField("asset_id", id).Warn("temporary link failed, proxying display url")
		} else {
			contentURL = link
		}
	}
	if contentURL == "" {
		writeError(w, http.StatusNotFound, errors.New("no content available"))
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, contentURL, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, errors.New("fetch content failed"))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, fmt.Errorf("upstream returned %d", resp.StatusCode))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName(a)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.WithError(err).WithField("asset_id", id).Debug("download stream interrupted")
	}
}

func downloadName(a asset.Asset) string {
	if a.StoragePath != "" {
		return path.Base(a.StoragePath)
	}
	return a.ID + ".png"
}

// ordersWebhook verifies the signature over the exact raw request bytes
// before anything parses them.
func (h *handler) ordersWebhook(w http.ResponseWriter, r *http.Request) {
	if h.opts.WebhookSecret == "" {
		writeError(w, http.StatusServiceUnavailable, errors.New("webhook secret not configured"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("read body failed"))
		return
	}
	r.Body.Close()

	if !webhook.Verify(body, r.Header.Get(shopifyHmacHeader), h.opts.WebhookSecret) {
		h.log.Warn("webhook signature verification failed")
		writeError(w, http.StatusUnauthorized, errors.New("invalid signature"))
		return
	}

	outcome, err := h.services.Subscriptions.ProcessOrder(r.Context(), body)
	if err != nil {
		h.log.WithError(err).Error("order processing failed")
		writeError(w, http.StatusInternalServerError, errors.New("processing failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"processed": outcome.Processed})
}

func (h *handler) adminDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	status := http.StatusNoContent
	outcome, err := h.services.Assets.Delete(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case err != nil:
		status = http.StatusInternalServerError
	}
	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		Action:     "delete",
		AssetID:    id,
		Status:     status,
		Storage:    string(outcome),
		RemoteAddr: r.RemoteAddr,
	})

	switch status {
	case http.StatusNotFound:
		writeError(w, status, errors.New("image not found"))
	case http.StatusInternalServerError:
		writeError(w, status, err)
	default:
		w.WriteHeader(status)
	}
}

func (h *handler) adminAudit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.audit.list())
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
