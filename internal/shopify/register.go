// Package shopify holds the small admin API client used to register the
// orders webhook at startup.
package shopify

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

const apiVersion = "2025-07"

// Config configures the admin API client.
type Config struct {
	// ShopDomain is the myshopify domain, e.g. "example.myshopify.com".
	ShopDomain string
	// AccessToken is the admin API access token.
	AccessToken string
}

// Client talks to the commerce platform's admin API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        *logger.Logger
}

// New constructs an admin API client.
func New(cfg Config, client *http.Client, log *logger.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("shopify")
	}
	domain := strings.TrimRight(cfg.ShopDomain, "/")
	return &Client{
		httpClient: client,
		baseURL:    fmt.Sprintf("https://%s/admin/api/%s", domain, apiVersion),
		token:      cfg.AccessToken,
		log:        log,
	}
}

type webhookRecord struct {
	ID      int64  `json:"id"`
	Topic   string `json:"topic"`
	Address string `json:"address"`
}

// RegisterOrderWebhook idempotently subscribes address to orders/create.
// An existing subscription for the same address is left alone.
func (c *Client) RegisterOrderWebhook(ctx context.Context, address string) error {
	existing, err := c.listWebhooks(ctx, "orders/create")
	if err != nil {
		return err
	}
	for _, hook := range existing {
		if hook.Address == address {
			c.log.WithField("webhook_id", hook.ID).Debug("orders webhook already registered")
			return nil
		}
	}

	payload := map[string]interface{}{
		"webhook": map[string]string{
			"topic":   "orders/create",
			"address": address,
			"format":  "json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("shopify: encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/webhooks.json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shopify: register webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("shopify: register webhook failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	c.log.WithField("address", address).Info("orders webhook registered")
	return nil
}

func (c *Client) listWebhooks(ctx context.Context, topic string) ([]webhookRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/webhooks.json?topic="+topic, nil)
	if err != nil {
		return nil, fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify: list webhooks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("shopify: list webhooks failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload struct {
		Webhooks []webhookRecord `json:"webhooks"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("shopify: decode webhooks: %w", err)
	}
	return payload.Webhooks, nil
}
