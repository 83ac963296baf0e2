// Package generator calls the external image generation API. The model is an
// opaque remote capability: given a prompt and an optional reference image it
// returns an ordered list of image URLs or a provider error.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mockupforge/mockupforge/pkg/logger"
)

const (
	defaultModel       = "image-01"
	defaultAspectRatio = "1:1"
	maxImageCount      = 6
)

// Request describes one generation call.
type Request struct {
	Prompt string
	// Reference optionally supplies a subject reference image.
	Reference io.Reader
	// ReferenceName is the filename reported for the reference part.
	ReferenceName string
	// AspectRatio defaults to 1:1.
	AspectRatio string
	// Count is clamped to [1, 6]; zero means 1.
	Count int
}

// Config configures the generator client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client is an image generation API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	log        *logger.Logger
}

// New constructs a generator client.
func New(cfg Config, client *http.Client, log *logger.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("generator")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.minimax.io"
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		log:        log,
	}
}

// Generate requests Count images for the prompt and returns their URLs in
// provider order.
func (c *Client) Generate(ctx context.Context, req Request) ([]string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("generator: prompt is required")
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > maxImageCount {
		count = maxImageCount
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = defaultAspectRatio
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"model":            c.model,
		"prompt":           req.Prompt,
		"aspect_ratio":     aspect,
		"response_format":  "url",
		"n":                strconv.Itoa(count),
		"prompt_optimizer": "true",
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("generator: write form field %s: %w", name, err)
		}
	}
	if req.Reference != nil {
		name := req.ReferenceName
		if name == "" {
			name = "reference.png"
		}
		part, err := form.CreateFormFile("subject_reference[0]", name)
		if err != nil {
			return nil, fmt.Errorf("generator: create reference part: %w", err)
		}
		if _, err := io.Copy(part, req.Reference); err != nil {
			return nil, fmt.Errorf("generator: copy reference image: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("generator: finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/image_generation", &body)
	if err != nil {
		return nil, fmt.Errorf("generator: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generator: request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Data struct {
			ImageURLs []string `json:"image_urls"`
		} `json:"data"`
		BaseResp struct {
			StatusCode int    `json:"status_code"`
			Message    string `json:"status_msg"`
		} `json:"base_resp"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("generator: read response: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("generator: decode response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || len(payload.Data.ImageURLs) == 0 {
		msg := payload.BaseResp.Message
		if msg == "" {
			msg = "image generation failed"
		}
		return nil, fmt.Errorf("generator: %s (HTTP %d)", msg, resp.StatusCode)
	}

	c.log.WithField("count", len(payload.Data.ImageURLs)).Debug("images generated")
	return payload.Data.ImageURLs, nil
}
