// Package signature verifies HMAC signatures on the two inbound trust
// boundaries: platform webhook deliveries (HMAC-SHA256 over the raw body,
// base64) and app-proxy requests (HMAC-SHA256 over the canonicalized query
// string, hex).
//
// Both verifiers are pure functions and use constant-time comparison
// (crypto/subtle) to prevent timing attacks. They return false on any
// mismatch, including an absent signature, and never reveal why.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// VerifyWebhook checks the signature header of a webhook delivery against
// the exact raw request body. The body must be the untouched byte stream
// received over the wire; verifying a re-serialized payload breaks the
// guarantee.
func VerifyWebhook(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected := ComputeWebhookSignature(body, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// ComputeWebhookSignature returns the base64-encoded HMAC-SHA256 digest of
// body. Exported for request signing in tests and tooling.
func ComputeWebhookSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Historically the platform has sent the proxy signature under either of
// two field names.
var proxySignatureFields = []string{"signature", "hmac"}

// VerifyProxyRequest checks the signature of an app-proxy request against
// the canonicalized remaining query parameters. Returns false if no
// signature field is present.
func VerifyProxyRequest(params url.Values, secret string) bool {
	provided := ""
	for _, field := range proxySignatureFields {
		if v := params.Get(field); v != "" && provided == "" {
			provided = v
		}
	}
	if provided == "" {
		return false
	}

	expected := ComputeProxySignature(params, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// ComputeProxySignature returns the hex-encoded HMAC-SHA256 digest of the
// canonical base string for params, with any signature fields excluded.
func ComputeProxySignature(params url.Values, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalize(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalize builds the signature base string: signature fields removed,
// keys sorted lexicographically, each rendered as key=value with multi-value
// parameters comma-joined, and the pairs concatenated with no separator.
func canonicalize(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if isSignatureField(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(params[k], ","))
	}
	return b.String()
}

func isSignatureField(key string) bool {
	for _, field := range proxySignatureFields {
		if key == field {
			return true
		}
	}
	return false
}
