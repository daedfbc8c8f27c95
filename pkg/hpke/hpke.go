// Package hpke implements the single-shot base mode of RFC 9180 hybrid
// public key encryption for the fixed cipher suite the Privy API uses:
// DHKEM(P-256, HKDF-SHA256), HKDF-SHA256 and ChaCha20-Poly1305. It is used
// to encrypt sensitive material, such as exported wallet keys, to a
// recipient-held P-256 key. The protocol layer is cloudflare/circl; this
// package adds the base64 raw/DER key formats the API exchanges.
package hpke

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/cloudflare/circl/hpke"
)

var (
	suite     = hpke.NewSuite(hpke.KEM_P256_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)
	kemScheme = hpke.KEM_P256_HKDF_SHA256.Scheme()
)

// pubKeyLen is the length of an uncompressed P-256 point.
const pubKeyLen = 65

// SealResult is the output of Seal: the encapsulated ephemeral key and the
// ciphertext, both base64-encoded for transport in JSON payloads.
type SealResult struct {
	EncapsulatedKey string `json:"encapsulated_key"`
	Ciphertext      string `json:"ciphertext"`
}

// KeyPair is a freshly generated recipient key pair in the base64 DER
// formats the API exchanges: SubjectPublicKeyInfo for the public half and
// PKCS#8 for the private half.
type KeyPair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// Seal encrypts message to the recipient public key. publicKey is base64,
// holding either a raw uncompressed P-256 point or a DER SubjectPublicKeyInfo
// structure. Each call draws a fresh ephemeral key, so sealing the same
// message twice yields different outputs.
func Seal(publicKey string, message []byte) (*SealResult, error) {
	pk, err := parsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	pkR, err := kemScheme.UnmarshalBinaryPublicKey(pk.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpke: invalid recipient public key: %w", err)
	}

	sender, err := suite.NewSender(pkR, nil)
	if err != nil {
		return nil, fmt.Errorf("hpke: failed to create sender: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("hpke: encapsulation failed: %w", err)
	}
	ciphertext, err := sealer.Seal(message, nil)
	if err != nil {
		return nil, fmt.Errorf("hpke: encryption failed: %w", err)
	}

	return &SealResult{
		EncapsulatedKey: base64.StdEncoding.EncodeToString(enc),
		Ciphertext:      base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open decrypts a sealed message with the recipient private key. privateKey
// is base64 DER, either PKCS#8 or SEC1. encapsulatedKey and ciphertext are
// the base64 outputs of Seal.
func Open(privateKey, encapsulatedKey, ciphertext string) ([]byte, error) {
	sk, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	skR, err := kemScheme.UnmarshalBinaryPrivateKey(sk.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpke: invalid recipient private key: %w", err)
	}

	enc, err := base64.StdEncoding.DecodeString(encapsulatedKey)
	if err != nil {
		return nil, fmt.Errorf("hpke: encapsulated key is not valid base64: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("hpke: ciphertext is not valid base64: %w", err)
	}

	receiver, err := suite.NewReceiver(skR, nil)
	if err != nil {
		return nil, fmt.Errorf("hpke: failed to create receiver: %w", err)
	}
	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("hpke: invalid encapsulated key: %w", err)
	}
	plaintext, err := opener.Open(ct, nil)
	if err != nil {
		return nil, fmt.Errorf("hpke: decryption failed: %w", err)
	}
	return plaintext, nil
}

// GenerateKeyPair creates a new P-256 recipient key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("hpke: failed to generate key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(key.PublicKey())
	if err != nil {
		return nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pubDER),
		PrivateKey: base64.StdEncoding.EncodeToString(privDER),
	}, nil
}

func parsePublicKey(publicKey string) (*ecdh.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("hpke: public key is not valid base64: %w", err)
	}

	if len(raw) == pubKeyLen && raw[0] == 0x04 {
		key, err := ecdh.P256().NewPublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("hpke: invalid public key point: %w", err)
		}
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("hpke: public key is neither a raw P-256 point nor DER: %w", err)
	}
	switch k := parsed.(type) {
	case *ecdsa.PublicKey:
		return k.ECDH()
	case *ecdh.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("hpke: public key is not a P-256 key")
	}
}

func parsePrivateKey(privateKey string) (*ecdh.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("hpke: private key is not valid base64: %w", err)
	}

	if parsed, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k := parsed.(type) {
		case *ecdsa.PrivateKey:
			return k.ECDH()
		case *ecdh.PrivateKey:
			return k, nil
		}
		return nil, fmt.Errorf("hpke: private key is not a P-256 key")
	}

	ecKey, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("hpke: failed to parse private key: %w", err)
	}
	return ecKey.ECDH()
}
