package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mockupforge/mockupforge/pkg/logger"
)

const (
	// defaultTokenLifetime is assumed when the provider omits expires_in.
	defaultTokenLifetime = 59 * time.Minute
	// refreshSkew refreshes tokens this long before their actual expiry.
	refreshSkew = 60 * time.Second
)

// ErrNoCredentials indicates that neither a static access token nor a
// refresh token was configured.
var ErrNoCredentials = errors.New("dropbox: no access token or refresh token configured")

// AuthRefreshError reports a failed token exchange with the provider.
type AuthRefreshError struct {
	Status int
	Body   string
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("dropbox: token refresh failed (%d): %s", e.Status, e.Body)
}

// Credential is the cached bearer credential for the storage API. It is owned
// by the TokenBroker and mutated only by the refresh exchange.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
	Refreshable bool
}

// TokenBrokerConfig configures a TokenBroker.
type TokenBrokerConfig struct {
	AppKey       string
	AppSecret    string
	AccessToken  string
	RefreshToken string
	// TokenEndpoint overrides the provider token endpoint, mainly for tests.
	TokenEndpoint string
	// OnRefresh, when set, observes each refresh exchange outcome.
	OnRefresh func(ok bool)
}

// TokenBroker obtains and caches a bearer token for the storage API,
// refreshing it before expiry. Concurrent callers during a refresh share a
// single in-flight exchange.
type TokenBroker struct {
	client       *http.Client
	endpoint     string
	appKey       string
	appSecret    string
	refreshToken string
	onRefresh    func(ok bool)
	log          *logger.Logger
	now          func() time.Time

	mu    sync.Mutex
	cred  Credential
	group singleflight.Group
}

// NewTokenBroker constructs a broker. A configured refresh token takes
// precedence over a static access token.
func NewTokenBroker(cfg TokenBrokerConfig, client *http.Client, log *logger.Logger) *TokenBroker {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("dropbox-token")
	}
	endpoint := cfg.TokenEndpoint
	if endpoint == "" {
		endpoint = "https://api.dropboxapi.com/oauth2/token"
	}
	return &TokenBroker{
		client:       client,
		endpoint:     endpoint,
		appKey:       cfg.AppKey,
		appSecret:    cfg.AppSecret,
		refreshToken: cfg.RefreshToken,
		onRefresh:    cfg.OnRefresh,
		log:          log,
		now:          time.Now,
		cred: Credential{
			AccessToken: cfg.AccessToken,
			Refreshable: cfg.RefreshToken != "",
		},
	}
}

// Token returns a valid access token, refreshing the cached credential when
// it is within refreshSkew of expiry. With a static token configured the
// cached value is returned unconditionally.
func (b *TokenBroker) Token(ctx context.Context) (string, error) {
	b.mu.Lock()
	cred := b.cred
	b.mu.Unlock()

	if !cred.Refreshable {
		if cred.AccessToken == "" {
			return "", ErrNoCredentials
		}
		return cred.AccessToken, nil
	}

	if cred.AccessToken != "" && !cred.ExpiresAt.IsZero() && cred.ExpiresAt.Sub(b.now()) > refreshSkew {
		return cred.AccessToken, nil
	}

	token, err, _ := b.group.Do("refresh", func() (interface{}, error) {
		// Re-check under the flight: another caller may have refreshed just
		// before this one joined.
		b.mu.Lock()
		cached := b.cred
		b.mu.Unlock()
		if cached.AccessToken != "" && !cached.ExpiresAt.IsZero() && cached.ExpiresAt.Sub(b.now()) > refreshSkew {
			return cached.AccessToken, nil
		}
		return b.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (b *TokenBroker) refresh(ctx context.Context) (token string, err error) {
	if b.onRefresh != nil {
		defer func() { b.onRefresh(err == nil) }()
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", b.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("dropbox: build refresh request: %w", err)
	}
	req.SetBasicAuth(b.appKey, b.appSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dropbox: refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &AuthRefreshError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("dropbox: decode refresh response: %w", err)
	}

	lifetime := defaultTokenLifetime
	if payload.ExpiresIn > 0 {
		lifetime = time.Duration(payload.ExpiresIn) * time.Second
	}

	b.mu.Lock()
	b.cred.AccessToken = payload.AccessToken
	b.cred.ExpiresAt = b.now().Add(lifetime)
	b.mu.Unlock()

	b.log.Debug("access token refreshed")
	return payload.AccessToken, nil
}
