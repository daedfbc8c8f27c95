package authorization

import (
	"fmt"
	"strings"

	"github.com/privy-io/privy-go/pkg/canonicaljson"
)

// PayloadVersion is the fixed version tag carried in every signature payload.
// The verifier rejects signatures computed over any other version.
const PayloadVersion = 1

// Header names the signing scheme reserves on the wire. Only headers starting
// with HeaderPrefix participate in the signature payload; everything else on
// the live request is irrelevant to the verifier.
const (
	HeaderPrefix                 = "privy-"
	HeaderAppID                  = "privy-app-id"
	HeaderAuthorizationSignature = "privy-authorization-signature"
	HeaderIdempotencyKey         = "privy-idempotency-key"
)

// KeyMaterialPrefix is the labeling convention some credential exports attach
// to authorization private keys. It is stripped before decoding.
const KeyMaterialPrefix = "wallet-auth:"

// SignaturePayload is the structured subset of a request that signatures are
// computed over. It is a pure function of the request: no timestamps, nonces
// or other per-invocation state, so the server-side verifier can rebuild the
// identical bytes from the request it receives.
type SignaturePayload struct {
	Version int               `json:"version"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    map[string]any    `json:"body"`
	Headers map[string]string `json:"headers"`
}

// NewSignaturePayload builds the payload for a request signed on behalf of
// appID. A nil body becomes the empty-object sentinel.
func NewSignaturePayload(method, url string, body map[string]any, appID string) *SignaturePayload {
	return &SignaturePayload{
		Version: PayloadVersion,
		Method:  strings.ToUpper(method),
		URL:     url,
		Body:    body,
		Headers: map[string]string{HeaderAppID: appID},
	}
}

// AppID returns the application identifier carried in the payload headers.
func (p *SignaturePayload) AppID() string {
	return p.Headers[HeaderAppID]
}

// Canonical serializes the payload into its RFC 8785 form. Structurally equal
// payloads canonicalize to identical bytes regardless of map iteration order.
func (p *SignaturePayload) Canonical() ([]byte, error) {
	body := any(p.Body)
	if p.Body == nil {
		body = map[string]any{}
	}
	headers := map[string]any{}
	for name, value := range p.Headers {
		headers[strings.ToLower(name)] = value
	}

	out, err := canonicaljson.Marshal(map[string]any{
		"version": p.Version,
		"method":  strings.ToUpper(p.Method),
		"url":     p.URL,
		"body":    body,
		"headers": headers,
	})
	if err != nil {
		return nil, fmt.Errorf("authorization: failed to canonicalize signature payload: %w", err)
	}
	return out, nil
}
