// Package mirror copies remote assets into the storage provider so their
// availability no longer depends on the original host. The generator's URLs
// may be ephemeral or rate-limited; a mirrored copy with a durable public
// link is what gets persisted and served.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mockupforge/mockupforge/internal/dropbox"
	"github.com/mockupforge/mockupforge/pkg/logger"
)

// FetchError reports that the source asset was unreachable after all
// retries.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("mirror: fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Error reports an unrecoverable mirroring failure past the fetch stage.
type Error struct {
	SourceURL string
	Err       error
}

func (e *Error) Error() string {
	if e.SourceURL == "" {
		return fmt.Sprintf("mirror: %v", e.Err)
	}
	return fmt.Sprintf("mirror: %s: %v", e.SourceURL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Storage is the subset of the storage client the mirror needs.
type Storage interface {
	Upload(ctx context.Context, data []byte, destPath string, opts dropbox.UploadOptions) (dropbox.UploadResult, error)
	CreateSharedLink(ctx context.Context, path string) (dropbox.SharedLink, error)
	TemporaryLink(ctx context.Context, path string) (string, error)
}

// Result is a mirrored asset's storage location. DisplayURL is always
// resolvable: the storage URL when mirroring succeeded, otherwise the
// original source URL.
type Result struct {
	StoragePath string
	StorageURL  string
	DisplayURL  string
}

// Options adjust a single mirror operation.
type Options struct {
	// Subfolder is an optional path segment under the date folder.
	Subfolder string
	// FilePrefix names the stored file; defaults to "img".
	FilePrefix string
}

// linkStrategy is one way of producing a public URL for a stored object.
// Strategies are consulted in order; each is tried only when the previous
// one failed with a failure kind it declares recoverable.
type linkStrategy struct {
	name     string
	create   func(ctx context.Context, path string) (string, error)
	recovers func(err error) bool
}

// Mirror fetches remote assets and uploads them to storage.
type Mirror struct {
	storage    Storage
	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time

	retries        int
	attemptTimeout time.Duration
	backoff        time.Duration
	maxBytes       int64
}

// New constructs a mirror with the default retry policy: 2 retries, 30s per
// attempt, linear 300ms backoff.
func New(storage Storage, client *http.Client, log *logger.Logger) *Mirror {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.NewDefault("mirror")
	}
	return &Mirror{
		storage:        storage,
		httpClient:     client,
		log:            log,
		now:            time.Now,
		retries:        2,
		attemptTimeout: 30 * time.Second,
		backoff:        300 * time.Millisecond,
		maxBytes:       32 << 20,
	}
}

// Mirror copies the asset at sourceURL into storage and resolves a public
// URL for it. It returns a FetchError when the source is unreachable after
// retries and an Error for any storage-side failure that no fallback link
// strategy recovers.
func (m *Mirror) Mirror(ctx context.Context, sourceURL string, opts Options) (Result, error) {
	data, err := m.fetch(ctx, sourceURL)
	if err != nil {
		return Result{}, err
	}

	now := m.now()
	dest := buildPath(now, opts.Subfolder, uniqueName(opts.FilePrefix, ".png", now))

	uploaded, err := m.storage.Upload(ctx, data, dest, dropbox.UploadOptions{
		Mode:       "add",
		Autorename: true,
		Mute:       true,
	})
	if err != nil {
		return Result{}, &Error{SourceURL: sourceURL, Err: err}
	}

	url, err := m.resolveLink(ctx, uploaded.PathLower)
	if err != nil {
		return Result{}, &Error{SourceURL: sourceURL, Err: err}
	}

	m.log.WithField("source_url", sourceURL).
		WithField("storage_path", uploaded.PathLower).
		Info("asset mirrored")
	return Result{StoragePath: uploaded.PathLower, StorageURL: url, DisplayURL: url}, nil
}

// Store uploads caller-supplied bytes (no fetch stage) and resolves a
// public URL through the same naming scheme and link fallback chain as
// Mirror. ext includes the leading dot and defaults to ".png".
func (m *Mirror) Store(ctx context.Context, data []byte, ext string, opts Options) (Result, error) {
	if len(data) == 0 {
		return Result{}, &Error{Err: errors.New("empty payload")}
	}
	if ext == "" {
		ext = ".png"
	}

	now := m.now()
	dest := buildPath(now, opts.Subfolder, uniqueName(opts.FilePrefix, ext, now))

	uploaded, err := m.storage.Upload(ctx, data, dest, dropbox.UploadOptions{
		Mode:       "add",
		Autorename: true,
		Mute:       true,
	})
	if err != nil {
		return Result{}, &Error{Err: err}
	}

	url, err := m.resolveLink(ctx, uploaded.PathLower)
	if err != nil {
		return Result{}, &Error{Err: err}
	}
	return Result{StoragePath: uploaded.PathLower, StorageURL: url, DisplayURL: url}, nil
}

// MirrorOrFallback never fails: any error is logged and a Result carrying
// the original source URL as the display URL is returned. Used where
// mirroring is best-effort durability, not a hard dependency of the
// user-visible response.
func (m *Mirror) MirrorOrFallback(ctx context.Context, sourceURL string, opts Options) Result {
	res, err := m.Mirror(ctx, sourceURL, opts)
	if err != nil {
		m.log.WithError(err).WithField("source_url", sourceURL).Warn("mirroring failed; keeping source URL")
		return Result{DisplayURL: sourceURL}
	}
	return res
}

// resolveLink walks the link strategies in preference order: a permanent
// shared link first, then a temporary link if sharing is rejected for
// missing permission. Unrecoverable failures are not retried with a
// fallback.
func (m *Mirror) resolveLink(ctx context.Context, path string) (string, error) {
	strategies := []linkStrategy{
		{
			name: "shared_link",
			create: func(ctx context.Context, path string) (string, error) {
				link, err := m.storage.CreateSharedLink(ctx, path)
				return link.URL, err
			},
		},
		{
			name:   "temporary_link",
			create: m.storage.TemporaryLink,
			recovers: func(err error) bool {
				var shareErr *dropbox.SharingError
				return errors.As(err, &shareErr) && shareErr.MissingScope()
			},
		},
	}

	var lastErr error
	for _, s := range strategies {
		if lastErr != nil && (s.recovers == nil || !s.recovers(lastErr)) {
			break
		}
		if lastErr != nil {
			m.log.WithError(lastErr).WithField("strategy", s.name).Debug("falling back to next link strategy")
		}
		url, err := s.create(ctx, path)
		if err == nil {
			return url, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// fetch downloads sourceURL into memory with bounded retries and a capped
// per-attempt timeout.
func (m *Mirror) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	attempts := m.retries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{URL: sourceURL, Attempts: i, Err: ctx.Err()}
			case <-time.After(m.backoff * time.Duration(i)):
			}
		}

		data, err := m.fetchOnce(ctx, sourceURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, &FetchError{URL: sourceURL, Attempts: attempts, Err: lastErr}
}

func (m *Mirror) fetchOnce(ctx context.Context, sourceURL string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
