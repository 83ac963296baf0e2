// Package dropbox implements the storage provider client used to mirror
// generated assets: authenticated uploads, shared and temporary links, and
// deletes, with token refresh handled by the TokenBroker.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mockupforge/mockupforge/pkg/logger"
)

// UploadError reports a rejected upload.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("dropbox: upload failed (%d): %s", e.Status, e.Body)
}

// SharingError reports a rejected shared-link operation.
type SharingError struct {
	Status int
	Body   string
}

func (e *SharingError) Error() string {
	return fmt.Sprintf("dropbox: sharing failed (%d): %s", e.Status, e.Body)
}

// MissingScope reports whether link creation was rejected because the app
// lacks the sharing permission, in which case a temporary link is a viable
// fallback.
func (e *SharingError) MissingScope() bool {
	return strings.Contains(e.Body, "required scope 'sharing.write'") ||
		strings.Contains(e.Body, "create_shared_link")
}

// DeleteError reports a rejected delete.
type DeleteError struct {
	Status int
	Body   string
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("dropbox: delete failed (%d): %s", e.Status, e.Body)
}

// FolderStatus is the outcome of EnsureFolder.
type FolderStatus string

const (
	// FolderCreated means the folder was created by this call.
	FolderCreated FolderStatus = "created"
	// FolderAlreadyExists means the provider reported a conflict; the folder
	// was already present, which EnsureFolder treats as success.
	FolderAlreadyExists FolderStatus = "already_exists"
)

// LinkStatus is the outcome of CreateSharedLink.
type LinkStatus string

const (
	// LinkCreated means a new shared link was created by this call.
	LinkCreated LinkStatus = "created"
	// LinkAlreadyShared means the provider reported the path as already
	// shared and an existing link was returned.
	LinkAlreadyShared LinkStatus = "already_shared"
)

// SharedLink is a public link for a stored object.
type SharedLink struct {
	URL    string
	Status LinkStatus
}

// UploadOptions control upload conflict behaviour.
type UploadOptions struct {
	Mode       string
	Autorename bool
	Mute       bool
}

// UploadResult describes a stored object.
type UploadResult struct {
	ID        string
	PathLower string
	Size      int64
}

// Config configures a storage client.
type Config struct {
	// Root is the namespace prefix every path is rooted under.
	Root string
	// RPCBaseURL and ContentBaseURL override the provider endpoints, mainly
	// for tests.
	RPCBaseURL     string
	ContentBaseURL string
}

// Client performs authenticated operations against the storage API.
type Client struct {
	broker     *TokenBroker
	httpClient *http.Client
	root       string
	rpcURL     string
	contentURL string
	log        *logger.Logger
}

// New constructs a storage client backed by the given token broker.
func New(cfg Config, broker *TokenBroker, client *http.Client, log *logger.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("dropbox")
	}
	root := cfg.Root
	if root == "" {
		root = "/GG-Generator"
	}
	rpcURL := cfg.RPCBaseURL
	if rpcURL == "" {
		rpcURL = "https://api.dropboxapi.com/2"
	}
	contentURL := cfg.ContentBaseURL
	if contentURL == "" {
		contentURL = "https://content.dropboxapi.com/2"
	}
	return &Client{
		broker:     broker,
		httpClient: client,
		root:       root,
		rpcURL:     rpcURL,
		contentURL: contentURL,
		log:        log,
	}
}

// normalizePath roots p under the configured namespace prefix. A path already
// carrying the prefix is returned as is; every other path gets the prefix
// prepended after a leading separator is ensured. Dropbox paths are
// case-insensitive and the API reports stored paths as path_lower, so the
// prefix check must ignore case or stored paths would be re-rooted.
func (c *Client) normalizePath(p string) string {
	clean := p
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	if c.root == "/" || strings.HasPrefix(strings.ToLower(clean), strings.ToLower(c.root)) {
		return clean
	}
	root := strings.TrimSuffix(c.root, "/")
	return root + clean
}

// EnsureFolder creates the folder if needed. A provider conflict (the folder
// already exists) is success, not failure.
func (c *Client) EnsureFolder(ctx context.Context, folderPath string) (FolderStatus, error) {
	path := c.normalizePath(folderPath)
	resp, err := c.rpc(ctx, "/files/create_folder_v2", map[string]interface{}{
		"path":       path,
		"autorename": false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return FolderAlreadyExists, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dropbox: ensure folder %s failed (%d): %s", path, resp.StatusCode, readBody(resp))
	}
	return FolderCreated, nil
}

// Upload stores data at destPath under the namespace root.
func (c *Client) Upload(ctx context.Context, data []byte, destPath string, opts UploadOptions) (UploadResult, error) {
	token, err := c.broker.Token(ctx)
	if err != nil {
		return UploadResult{}, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = "add"
	}
	path := c.normalizePath(destPath)
	arg, err := json.Marshal(map[string]interface{}{
		"path":            path,
		"mode":            mode,
		"autorename":      opts.Autorename,
		"mute":            opts.Mute,
		"strict_conflict": false,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("dropbox: encode upload arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return UploadResult{}, fmt.Errorf("dropbox: build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("dropbox: upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UploadResult{}, &UploadError{Status: resp.StatusCode, Body: readBody(resp)}
	}

	var meta struct {
		ID        string `json:"id"`
		PathLower string `json:"path_lower"`
		Size      int64  `json:"size"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&meta); err != nil {
		return UploadResult{}, fmt.Errorf("dropbox: decode upload response: %w", err)
	}

	c.log.WithField("path", meta.PathLower).WithField("size", meta.Size).Debug("object uploaded")
	return UploadResult{ID: meta.ID, PathLower: meta.PathLower, Size: meta.Size}, nil
}

// CreateSharedLink returns a public link for path. If the provider reports
// the path as already shared, the first existing link is returned with
// LinkAlreadyShared status instead of an error.
func (c *Client) CreateSharedLink(ctx context.Context, path string) (SharedLink, error) {
	resp, err := c.rpc(ctx, "/sharing/create_shared_link_with_settings", map[string]interface{}{
		"path": path,
		"settings": map[string]string{
			"requested_visibility": "public",
		},
	})
	if err != nil {
		return SharedLink{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		// Already shared. List existing links and reuse the first.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return c.firstSharedLink(ctx, path)
	}
	if resp.StatusCode != http.StatusOK {
		return SharedLink{}, &SharingError{Status: resp.StatusCode, Body: readBody(resp)}
	}

	var link struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&link); err != nil {
		return SharedLink{}, fmt.Errorf("dropbox: decode shared link response: %w", err)
	}
	return SharedLink{URL: link.URL, Status: LinkCreated}, nil
}

func (c *Client) firstSharedLink(ctx context.Context, path string) (SharedLink, error) {
	resp, err := c.rpc(ctx, "/sharing/list_shared_links", map[string]interface{}{
		"path":        path,
		"direct_only": true,
	})
	if err != nil {
		return SharedLink{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SharedLink{}, &SharingError{Status: resp.StatusCode, Body: readBody(resp)}
	}

	var payload struct {
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return SharedLink{}, fmt.Errorf("dropbox: decode shared links: %w", err)
	}
	if len(payload.Links) == 0 {
		return SharedLink{}, &SharingError{Status: http.StatusConflict, Body: "path reported shared but no links listed"}
	}
	return SharedLink{URL: payload.Links[0].URL, Status: LinkAlreadyShared}, nil
}

// TemporaryLink returns a short-lived direct URL for path.
func (c *Client) TemporaryLink(ctx context.Context, path string) (string, error) {
	resp, err := c.rpc(ctx, "/files/get_temporary_link", map[string]interface{}{
		"path": path,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &SharingError{Status: resp.StatusCode, Body: readBody(resp)}
	}

	var payload struct {
		Link string `json:"link"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("dropbox: decode temporary link: %w", err)
	}
	return payload.Link, nil
}

// Delete removes the object at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.rpc(ctx, "/files/delete_v2", map[string]interface{}{
		"path": c.normalizePath(path),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DeleteError{Status: resp.StatusCode, Body: readBody(resp)}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

// rpc posts a JSON body to an RPC-style endpoint with a fresh bearer token.
// The caller owns the response body.
func (c *Client) rpc(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	token, err := c.broker.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("dropbox: encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("dropbox: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dropbox: %s request: %w", endpoint, err)
	}
	return resp, nil
}

func readBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
