// Package platform is a thin client for the commerce platform's Admin API,
// used by the bootstrap CLI to obtain an access token and register the
// orders_paid webhook subscription.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultAPIVersion pins the Admin API version used for GraphQL calls.
const DefaultAPIVersion = "2026-01"

// Client talks to one shop's Admin API.
type Client struct {
	Shop       string // e.g. example.myshopify.com
	APIVersion string
	HTTPClient *http.Client
}

// NewClient creates a client for a shop with the default API version.
func NewClient(shop string) *Client {
	return &Client{
		Shop:       shop,
		APIVersion: DefaultAPIVersion,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// AccessToken exchanges client credentials for an Admin API access token.
func (c *Client) AccessToken(ctx context.Context, clientID, clientSecret, scopes string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     clientID,
		"client_secret": clientSecret,
		"grant_type":    "client_credentials",
		"scope":         scopes,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("https://%s/admin/oauth/access_token", c.Shop)
	body, err := c.post(ctx, url, "", payload)
	if err != nil {
		return "", err
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("decode access token response: %w", err)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("no access_token in response: %s", body)
	}
	return res.AccessToken, nil
}

const webhookCreateMutation = `
mutation webhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    webhookSubscription {
      id
    }
    userErrors {
      field
      message
    }
  }
}`

// RegisterWebhook subscribes the ORDERS_PAID topic to callbackURL and
// returns the subscription id.
func (c *Client) RegisterWebhook(ctx context.Context, accessToken, callbackURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"query": webhookCreateMutation,
		"variables": map[string]any{
			"topic": "ORDERS_PAID",
			"webhookSubscription": map[string]string{
				"callbackUrl": callbackURL,
				"format":      "JSON",
			},
		},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.Shop, c.APIVersion)
	body, err := c.post(ctx, url, accessToken, payload)
	if err != nil {
		return "", err
	}

	var res struct {
		Data struct {
			WebhookSubscriptionCreate struct {
				WebhookSubscription *struct {
					ID string `json:"id"`
				} `json:"webhookSubscription"`
				UserErrors []struct {
					Field   []string `json:"field"`
					Message string   `json:"message"`
				} `json:"userErrors"`
			} `json:"webhookSubscriptionCreate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("decode webhook response: %w", err)
	}

	create := res.Data.WebhookSubscriptionCreate
	if len(create.UserErrors) > 0 {
		return "", fmt.Errorf("webhook registration rejected: %s", create.UserErrors[0].Message)
	}
	if create.WebhookSubscription == nil {
		return "", fmt.Errorf("no subscription in response: %s", body)
	}
	return create.WebhookSubscription.ID, nil
}

func (c *Client) post(ctx context.Context, url, accessToken string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("X-Shopify-Access-Token", accessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin api %s: status %d: %s", url, resp.StatusCode, body)
	}
	return body, nil
}
