package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/privy-io/privy-go/pkg/authorization"
)

// signedMethods are the mutating HTTP methods that carry an authorization
// signature. Reads are never signed.
var signedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// SigningTransport is an http.RoundTripper that attaches authorization
// signatures to outgoing mutating requests. It reads the request body to
// build the signature payload and restores it before the request is sent,
// so handlers downstream (including retries via GetBody) see the body
// untouched. Requests with no signing strategies configured pass through
// unmodified.
type SigningTransport struct {
	// Base performs the actual round trip. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper

	// Context supplies the signing strategies. A nil or empty context
	// disables signing.
	Context *authorization.Context

	// AppID, when set, is written to the privy-app-id header of every
	// signed request before the signature is computed, so the payload
	// always carries the mandatory identity header. When empty, the
	// caller must set the header itself (Client.Do does).
	AppID string

	// Logger logs signing activity at debug level. Defaults to a no-op
	// logger.
	Logger *zap.Logger
}

func (t *SigningTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *SigningTransport) logger() *zap.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return zap.NewNop()
}

// RoundTrip signs req when it is a mutating request and signing strategies
// are configured, then delegates to the base transport. Signing failures
// abort the round trip; the request is never sent partially signed.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Context == nil || !t.Context.HasSigningMethods() || !signedMethods[strings.ToUpper(req.Method)] {
		return t.base().RoundTrip(req)
	}
	if t.AppID != "" {
		req.Header.Set(authorization.HeaderAppID, t.AppID)
	}

	body, err := readAndRestoreBody(req)
	if err != nil {
		return nil, err
	}

	payload := &authorization.SignaturePayload{
		Version: authorization.PayloadVersion,
		Method:  req.Method,
		URL:     req.URL.String(),
		Body:    parseBody(body),
		Headers: collectSignedHeaders(req.Header),
	}

	signatures, err := t.Context.GenerateSignaturesForPayload(payload)
	if err != nil {
		return nil, err
	}

	req.Header.Set(authorization.HeaderAuthorizationSignature, strings.Join(signatures, ","))
	t.logger().Debug("attached authorization signatures",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("count", len(signatures)),
	)

	return t.base().RoundTrip(req)
}

// readAndRestoreBody drains req.Body and immediately reinstalls an equivalent
// body on the request. The restore happens before any signing work so the
// request stays sendable on every exit path.
func readAndRestoreBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	return data, nil
}

// parseBody decodes the request body into the payload body object. Empty
// bodies and bodies that are not JSON objects canonicalize as the empty
// object, matching what the server-side verifier reconstructs for them.
func parseBody(data []byte) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}

	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}

// collectSignedHeaders picks out the privy-* request headers that participate
// in the signature payload. Names are lowercased; the signature header itself
// is excluded since it cannot sign over its own value.
func collectSignedHeaders(header http.Header) map[string]string {
	signed := make(map[string]string)
	for name, values := range header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, authorization.HeaderPrefix) {
			continue
		}
		if lower == authorization.HeaderAuthorizationSignature {
			continue
		}
		if len(values) > 0 {
			signed[lower] = values[0]
		}
	}
	return signed
}
