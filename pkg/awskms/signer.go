// Package awskms adapts an AWS KMS asymmetric key into a custom sign
// function for the authorization engine, so the signing key never leaves the
// KMS. The key must be an ECC_NIST_P256 sign/verify key; KMS signatures with
// SigningAlgorithmSpecEcdsaSha256 are already ASN.1 DER, the format the
// authorization payload verifier expects.
package awskms

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/privy-io/privy-go/pkg/authorization"
)

// KMSAPI is the subset of the KMS client the signer uses.
type KMSAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// Signer signs authorization payloads with a KMS-held P-256 key.
type Signer struct {
	client KMSAPI
	keyID  string
	logger *zap.Logger

	mu        sync.Mutex
	publicKey string
}

// NewSigner creates a signer for the given KMS key ID, ARN or alias.
func NewSigner(client KMSAPI, keyID string, logger *zap.Logger) (*Signer, error) {
	if client == nil {
		return nil, errors.New("kms client is required")
	}
	if keyID == "" {
		return nil, errors.New("key ID is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signer{client: client, keyID: keyID, logger: logger}, nil
}

// NewSignerFromDefaultConfig creates a signer using the ambient AWS
// credential chain (environment, shared config, instance role).
func NewSignerFromDefaultConfig(ctx context.Context, keyID string, logger *zap.Logger) (*Signer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return NewSigner(kms.NewFromConfig(cfg), keyID, logger)
}

// SignFunc returns the adapter to plug into an authorization context builder
// via SetSignFunc. Each invocation performs one KMS Sign call; ctx bounds all
// of them.
func (s *Signer) SignFunc(ctx context.Context) authorization.SignFunc {
	return func(method, url string, body map[string]any, appID string) (*authorization.SignatureResult, error) {
		payload := authorization.NewSignaturePayload(method, url, body, appID)
		canonical, err := payload.Canonical()
		if err != nil {
			return nil, err
		}

		digest := sha256.Sum256(canonical)
		out, err := s.client.Sign(ctx, &kms.SignInput{
			KeyId:            aws.String(s.keyID),
			Message:          digest[:],
			SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
			MessageType:      types.MessageTypeDigest,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "KMS signing failed for key %s", s.keyID)
		}

		publicKey, err := s.PublicKey(ctx)
		if err != nil {
			s.logger.Warn("failed to fetch KMS public key; returning signature without it",
				zap.String("key_id", s.keyID),
				zap.Error(err),
			)
			publicKey = ""
		}

		return &authorization.SignatureResult{
			Signature:       base64.StdEncoding.EncodeToString(out.Signature),
			SignerPublicKey: publicKey,
		}, nil
	}
}

// PublicKey returns the key's base64 DER (SubjectPublicKeyInfo) public key,
// fetched from KMS once and cached for the signer's lifetime.
func (s *Signer) PublicKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publicKey != "" {
		return s.publicKey, nil
	}

	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(s.keyID),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get public key for key %s", s.keyID)
	}
	if out.KeySpec != types.KeySpecEccNistP256 {
		return "", errors.Errorf("key %s has spec %s, want %s", s.keyID, out.KeySpec, types.KeySpecEccNistP256)
	}

	s.publicKey = base64.StdEncoding.EncodeToString(out.PublicKey)
	return s.publicKey, nil
}
