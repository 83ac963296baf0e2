package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenStaticCredential(t *testing.T) {
	broker := NewTokenBroker(TokenBrokerConfig{AccessToken: "static-token"}, nil, nil)

	for i := 0; i < 2; i++ {
		token, err := broker.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if token != "static-token" {
			t.Fatalf("token = %q, want static-token", token)
		}
	}
}

func TestTokenNoCredentials(t *testing.T) {
	broker := NewTokenBroker(TokenBrokerConfig{}, nil, nil)

	_, err := broker.Token(context.Background())
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}

func TestTokenRefreshExchange(t *testing.T) {
	var refreshes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "app-key" || pass != "app-secret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fresh-token",
			"expires_in":   14400,
		})
	}))
	defer srv.Close()

	broker := NewTokenBroker(TokenBrokerConfig{
		AppKey:        "app-key",
		AppSecret:     "app-secret",
		RefreshToken:  "refresh-1",
		TokenEndpoint: srv.URL,
	}, srv.Client(), nil)

	token, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "fresh-token" {
		t.Fatalf("token = %q, want fresh-token", token)
	}

	// Second call hits the cache while the token is far from expiry.
	if _, err := broker.Token(context.Background()); err != nil {
		t.Fatalf("Token (cached): %v", err)
	}
	if n := atomic.LoadInt32(&refreshes); n != 1 {
		t.Fatalf("refreshes = %d, want 1", n)
	}
}

func TestTokenRefreshSharedAcrossCallers(t *testing.T) {
	var refreshes int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "shared-token", "expires_in": 3600})
	}))
	defer srv.Close()

	broker := NewTokenBroker(TokenBrokerConfig{
		AppKey:        "k",
		AppSecret:     "s",
		RefreshToken:  "r",
		TokenEndpoint: srv.URL,
	}, srv.Client(), nil)

	const callers = 5
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = broker.Token(context.Background())
		}(i)
	}

	// Give every caller time to join the in-flight refresh, then let the
	// exchange complete.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "shared-token" {
			t.Fatalf("caller %d token = %q", i, tokens[i])
		}
	}
	if n := atomic.LoadInt32(&refreshes); n != 1 {
		t.Fatalf("refreshes = %d, want exactly 1", n)
	}
}

func TestTokenRefreshExpiryTriggersNewExchange(t *testing.T) {
	var refreshes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&refreshes, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	broker := NewTokenBroker(TokenBrokerConfig{
		AppKey:        "k",
		AppSecret:     "s",
		RefreshToken:  "r",
		TokenEndpoint: srv.URL,
	}, srv.Client(), nil)

	current := time.Now()
	broker.now = func() time.Time { return current }

	if _, err := broker.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}

	// Within the refresh skew of expiry the broker must exchange again.
	current = current.Add(3600*time.Second - 30*time.Second)
	token, err := broker.Token(context.Background())
	if err != nil {
		t.Fatalf("Token near expiry: %v", err)
	}
	if token != "token-2" {
		t.Fatalf("token = %q, want token-2", token)
	}
	if n := atomic.LoadInt32(&refreshes); n != 2 {
		t.Fatalf("refreshes = %d, want 2", n)
	}
}

func TestTokenRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	var observed []bool
	broker := NewTokenBroker(TokenBrokerConfig{
		AppKey:        "k",
		AppSecret:     "s",
		RefreshToken:  "r",
		TokenEndpoint: srv.URL,
		OnRefresh:     func(ok bool) { observed = append(observed, ok) },
	}, srv.Client(), nil)

	_, err := broker.Token(context.Background())
	var authErr *AuthRefreshError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthRefreshError", err)
	}
	if authErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d", authErr.Status)
	}
	if len(observed) != 1 || observed[0] {
		t.Errorf("observed refreshes = %v, want one failure", observed)
	}
}
