package signature

import (
	"net/url"
	"testing"
)

func TestVerifyWebhook(t *testing.T) {
	secret := "test-webhook-secret"
	body := []byte(`{"id":1001,"email":"a@example.com"}`)
	validSig := ComputeWebhookSignature(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		want      bool
	}{
		{
			name:      "valid signature",
			body:      body,
			signature: validSig,
			secret:    secret,
			want:      true,
		},
		{
			name:      "tampered body",
			body:      []byte(`{"id":1001,"email":"b@example.com"}`),
			signature: validSig,
			secret:    secret,
			want:      false,
		},
		{
			name:      "wrong secret",
			body:      body,
			signature: validSig,
			secret:    "other-secret",
			want:      false,
		},
		{
			name:      "missing signature",
			body:      body,
			signature: "",
			secret:    secret,
			want:      false,
		},
		{
			name:      "empty secret",
			body:      body,
			signature: validSig,
			secret:    "",
			want:      false,
		},
		{
			name:      "garbage signature",
			body:      body,
			signature: "not-base64-at-all",
			secret:    secret,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyWebhook(tt.body, tt.signature, tt.secret); got != tt.want {
				t.Errorf("VerifyWebhook() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyWebhookRawBodyContract(t *testing.T) {
	secret := "s"
	// Signature over the wire bytes must not match a re-serialized
	// equivalent payload with different whitespace.
	wire := []byte(`{"id": 1, "email": "a@example.com"}`)
	reserialized := []byte(`{"id":1,"email":"a@example.com"}`)

	sig := ComputeWebhookSignature(wire, secret)
	if !VerifyWebhook(wire, sig, secret) {
		t.Fatal("signature over wire bytes should verify")
	}
	if VerifyWebhook(reserialized, sig, secret) {
		t.Fatal("signature must be bound to the exact raw bytes")
	}
}

func TestVerifyProxyRequest(t *testing.T) {
	secret := "proxy-secret"

	sign := func(params url.Values) string {
		return ComputeProxySignature(params, secret)
	}

	tests := []struct {
		name   string
		params func() url.Values
		secret string
		want   bool
	}{
		{
			name: "valid under signature field",
			params: func() url.Values {
				p := url.Values{"order_id": {"1001"}, "logged_in_customer_id": {"5"}}
				p.Set("signature", sign(p))
				return p
			},
			secret: secret,
			want:   true,
		},
		{
			name: "valid under hmac field",
			params: func() url.Values {
				p := url.Values{"order_id": {"1001"}, "logged_in_customer_id": {"5"}}
				p.Set("hmac", sign(p))
				return p
			},
			secret: secret,
			want:   true,
		},
		{
			name: "multi-value params comma-joined",
			params: func() url.Values {
				p := url.Values{"ids": {"1", "2", "3"}, "order_id": {"1001"}}
				p.Set("signature", sign(p))
				return p
			},
			secret: secret,
			want:   true,
		},
		{
			name: "no signature field",
			params: func() url.Values {
				return url.Values{"order_id": {"1001"}}
			},
			secret: secret,
			want:   false,
		},
		{
			name: "forged signature",
			params: func() url.Values {
				p := url.Values{"order_id": {"1001"}}
				p.Set("signature", "0000000000000000000000000000000000000000000000000000000000000000")
				return p
			},
			secret: secret,
			want:   false,
		},
		{
			name: "tampered parameter after signing",
			params: func() url.Values {
				p := url.Values{"order_id": {"1001"}, "logged_in_customer_id": {"5"}}
				p.Set("signature", sign(p))
				p.Set("order_id", "9999")
				return p
			},
			secret: secret,
			want:   false,
		},
		{
			name: "wrong secret",
			params: func() url.Values {
				p := url.Values{"order_id": {"1001"}}
				p.Set("signature", sign(p))
				return p
			},
			secret: "other",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyProxyRequest(tt.params(), tt.secret); got != tt.want {
				t.Errorf("VerifyProxyRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeOrdering(t *testing.T) {
	// Keys must be sorted and pairs concatenated with no separator, so these
	// two insert orders sign identically.
	a := url.Values{}
	a.Set("b", "2")
	a.Set("a", "1")
	a.Set("c", "3")

	b := url.Values{}
	b.Set("c", "3")
	b.Set("a", "1")
	b.Set("b", "2")

	if canonicalize(a) != canonicalize(b) {
		t.Errorf("canonicalize not order-independent: %q vs %q", canonicalize(a), canonicalize(b))
	}
	if got, want := canonicalize(a), "a=1b=2c=3"; got != want {
		t.Errorf("canonicalize() = %q, want %q", got, want)
	}
}
