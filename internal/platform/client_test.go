package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient points a Client at a local test server by rewriting the shop
// host through a custom transport.
func testClient(srv *httptest.Server) *Client {
	c := NewClient("example.myshopify.com")
	c.HTTPClient = &http.Client{
		Transport: &rewriteTransport{target: srv.Listener.Addr().String()},
	}
	return c
}

type rewriteTransport struct {
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.target
	return http.DefaultTransport.RoundTrip(req)
}

func TestAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/oauth/access_token", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client_credentials", body["grant_type"])
		assert.Equal(t, "key", body["client_id"])

		json.NewEncoder(w).Encode(map[string]string{"access_token": "shpat_abc"})
	}))
	defer srv.Close()

	got, err := testClient(srv).AccessToken(context.Background(), "key", "secret", "read_orders")
	require.NoError(t, err)
	assert.Equal(t, "shpat_abc", got)
}

func TestAccessTokenErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv).AccessToken(context.Background(), "key", "secret", "read_orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestRegisterWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/"+DefaultAPIVersion+"/graphql.json", r.URL.Path)
		assert.Equal(t, "shpat_abc", r.Header.Get("X-Shopify-Access-Token"))

		var body struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, strings.Contains(body.Query, "webhookSubscriptionCreate"))
		assert.Equal(t, "ORDERS_PAID", body.Variables["topic"])

		w.Write([]byte(`{"data":{"webhookSubscriptionCreate":{"webhookSubscription":{"id":"gid://shopify/WebhookSubscription/1"},"userErrors":[]}}}`))
	}))
	defer srv.Close()

	id, err := testClient(srv).RegisterWebhook(context.Background(), "shpat_abc", "https://example.com/webhooks/orders_paid")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/WebhookSubscription/1", id)
}

func TestRegisterWebhookUserErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":{"webhookSubscriptionCreate":{"webhookSubscription":null,"userErrors":[{"field":["callbackUrl"],"message":"Address is invalid"}]}}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).RegisterWebhook(context.Background(), "shpat_abc", "notaurl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Address is invalid")
}
