package authorization

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// VerifySignature reports whether signature (base64 ASN.1 DER) is a valid
// ECDSA P-256 signature over the canonical form of payload. This mirrors the
// server-side verifier and is mainly useful for testing signing setups
// before pointing them at the API.
func VerifySignature(publicKey *ecdsa.PublicKey, payload *SignaturePayload, signature string) (bool, error) {
	canonical, err := payload.Canonical()
	if err != nil {
		return false, err
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("authorization: signature is not valid base64: %w", err)
	}

	digest := sha256.Sum256(canonical)
	return ecdsa.VerifyASN1(publicKey, digest[:], sig), nil
}

// ParseVerificationKey decodes a base64 DER (SubjectPublicKeyInfo) P-256
// public key, the format returned alongside precomputed signatures.
func ParseVerificationKey(publicKey string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("authorization: public key is not valid base64: %w", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("authorization: failed to parse public key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("authorization: public key is not an EC key")
	}
	return key, nil
}
