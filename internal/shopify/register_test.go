package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockupforge/mockupforge/pkg/logger"
)

func testClient(srv *httptest.Server) *Client {
	return &Client{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		token:      "shpat-test",
		log:        logger.NewDefault("shopify-test"),
	}
}

func TestRegisterOrderWebhookCreates(t *testing.T) {
	var created map[string]map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat-test", r.Header.Get("X-Shopify-Access-Token"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "orders/create", r.URL.Query().Get("topic"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"webhooks": []interface{}{}})
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"webhook": map[string]interface{}{"id": 1}})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	err := testClient(srv).RegisterOrderWebhook(context.Background(), "https://api.example.com/webhooks/orders-create")
	require.NoError(t, err)

	hook := created["webhook"]
	assert.Equal(t, "orders/create", hook["topic"])
	assert.Equal(t, "https://api.example.com/webhooks/orders-create", hook["address"])
	assert.Equal(t, "json", hook["format"])
}

func TestRegisterOrderWebhookAlreadyRegistered(t *testing.T) {
	posted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posted = true
			w.WriteHeader(http.StatusCreated)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"webhooks": []map[string]interface{}{
			{"id": 99, "topic": "orders/create", "address": "https://api.example.com/webhooks/orders-create"},
		}})
	}))
	defer srv.Close()

	err := testClient(srv).RegisterOrderWebhook(context.Background(), "https://api.example.com/webhooks/orders-create")
	require.NoError(t, err)
	assert.False(t, posted, "webhook re-created despite existing subscription")
}

func TestRegisterOrderWebhookCreateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"webhooks": []interface{}{}})
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"address":["is invalid"]}}`))
	}))
	defer srv.Close()

	err := testClient(srv).RegisterOrderWebhook(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
