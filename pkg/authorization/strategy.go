package authorization

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// SignatureResult is the output of one signing strategy: a base64-encoded
// signature and, when the strategy knows it, the public key of the signer.
type SignatureResult struct {
	Signature       string `json:"signature"`
	SignerPublicKey string `json:"signer_public_key,omitempty"`
}

// SignFunc is the contract for custom signing logic hosted outside the SDK,
// for example in a KMS or HSM. It receives the same four request attributes
// the built-in strategies sign over and returns the computed signature. The
// engine does not verify the returned signature cryptographically and does
// not impose a timeout; callers needing bounded latency must wrap their own.
type SignFunc func(method, url string, body map[string]any, appID string) (*SignatureResult, error)

type strategyKind int

const (
	strategyAuthorizationKey strategyKind = iota
	strategyUserJWT
	strategySignFunc
	strategyPrecomputed
)

func (k strategyKind) String() string {
	switch k {
	case strategyAuthorizationKey:
		return "authorization_key"
	case strategyUserJWT:
		return "user_jwt"
	case strategySignFunc:
		return "custom_sign_function"
	case strategyPrecomputed:
		return "precomputed_signature"
	default:
		return "unknown"
	}
}

// signingStrategy is a tagged variant: exactly the fields for its kind are
// set, and sign dispatches on the kind. Strategies are immutable once added
// to a builder.
type signingStrategy struct {
	kind strategyKind

	// strategyAuthorizationKey: base64 PKCS#8 DER, label prefix already
	// stripped by the builder. Parsed on every sign; never logged.
	authorizationKey string

	// strategyUserJWT
	userJWT string

	// strategySignFunc
	signFunc SignFunc

	// strategyPrecomputed
	precomputed SignatureResult
}

// sign produces this strategy's signature for the payload. canonical holds
// the payload's RFC 8785 bytes, computed once per request by the context.
func (s *signingStrategy) sign(payload *SignaturePayload, canonical []byte) (*SignatureResult, error) {
	switch s.kind {
	case strategyAuthorizationKey:
		return signWithAuthorizationKey(s.authorizationKey, canonical)

	case strategyUserJWT:
		return nil, ErrNotImplemented

	case strategySignFunc:
		result, err := s.signFunc(payload.Method, payload.URL, payload.Body, payload.AppID())
		if err != nil {
			return nil, err
		}
		if result == nil || result.Signature == "" {
			return nil, ErrInvalidSignerResult
		}
		return result, nil

	case strategyPrecomputed:
		result := s.precomputed
		return &result, nil

	default:
		return nil, fmt.Errorf("authorization: unknown strategy kind %d", s.kind)
	}
}

// signWithAuthorizationKey computes an ECDSA P-256 signature over the
// canonical payload bytes: base64 PKCS#8 key material, SHA-256 digest,
// ASN.1 DER signature, base64 output. The result carries no public key.
func signWithAuthorizationKey(keyMaterial string, canonical []byte) (*SignatureResult, error) {
	key, err := ParseAuthorizationKey(keyMaterial)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(canonical)
	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("authorization: ECDSA signing failed: %w", err)
	}

	return &SignatureResult{
		Signature: base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// ParseAuthorizationKey decodes authorization key material into a P-256
// private key. The optional "wallet-auth:" label prefix is stripped, the
// remainder base64-decoded and parsed as a PKCS#8 DER EC key.
func ParseAuthorizationKey(keyMaterial string) (*ecdsa.PrivateKey, error) {
	material := StripKeyMaterialPrefix(keyMaterial)

	der, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", ErrInvalidKeyMaterial)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: not a PKCS#8 private key", ErrInvalidKeyMaterial)
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an EC key", ErrInvalidKeyMaterial)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: curve must be P-256", ErrInvalidKeyMaterial)
	}
	return key, nil
}

// StripKeyMaterialPrefix removes the "wallet-auth:" labeling prefix from key
// material if present. Prefixed and bare forms decode to the same key.
func StripKeyMaterialPrefix(keyMaterial string) string {
	if len(keyMaterial) >= len(KeyMaterialPrefix) && keyMaterial[:len(KeyMaterialPrefix)] == KeyMaterialPrefix {
		return keyMaterial[len(KeyMaterialPrefix):]
	}
	return keyMaterial
}
