package authorization

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateKeyMaterial returns a fresh P-256 key in the SDK's base64 PKCS#8
// wire format plus its public counterpart for verification.
func generateKeyMaterial(t *testing.T) (string, *ecdsa.PublicKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(der), &key.PublicKey
}

// testJWT builds a structurally valid (unverifiable) compact JWT.
func testJWT(t *testing.T) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"did:privy:user-123"}`))
	sig := base64.RawURLEncoding.EncodeToString([]byte("unverified"))
	return header + "." + claims + "." + sig
}

func TestBuilderWithAuthorizationKeys(t *testing.T) {
	key1, pub1 := generateKeyMaterial(t)
	key2, pub2 := generateKeyMaterial(t)

	ctx, err := NewBuilder().
		AddAuthorizationKey(key1).
		AddAuthorizationKey(key2).
		Build()
	require.NoError(t, err)
	assert.True(t, ctx.HasSigningMethods())

	body := map[string]any{"to": "0xabc", "value": "1"}
	signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/v1/wallets/w1/rpc", body, "test_app")
	require.NoError(t, err)
	require.Len(t, signatures, 2)

	payload := NewSignaturePayload("POST", "https://api.privy.io/v1/wallets/w1/rpc", body, "test_app")
	for i, pub := range []*ecdsa.PublicKey{pub1, pub2} {
		ok, err := VerifySignature(pub, payload, signatures[i])
		require.NoError(t, err)
		assert.True(t, ok, "signature %d should verify", i)
	}
}

func TestBuilderStripsWalletAuthPrefix(t *testing.T) {
	key, pub := generateKeyMaterial(t)

	prefixed, err := NewBuilder().AddAuthorizationKey(KeyMaterialPrefix + key).Build()
	require.NoError(t, err)
	bare, err := NewBuilder().AddAuthorizationKey(key).Build()
	require.NoError(t, err)

	body := map[string]any{"value": "1"}
	payload := NewSignaturePayload("POST", "https://api.privy.io/v1/test", body, "test_app")

	// ECDSA signatures are randomized, so equality is checked by verifying
	// both under the same public key rather than comparing bytes.
	for _, ctx := range []*Context{prefixed, bare} {
		signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/v1/test", body, "test_app")
		require.NoError(t, err)
		require.Len(t, signatures, 1)

		ok, err := VerifySignature(pub, payload, signatures[0])
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestGenerateSignaturesWithSignFunc(t *testing.T) {
	ctx, err := NewBuilder().
		SetSignFunc(func(method, url string, body map[string]any, appID string) (*SignatureResult, error) {
			return &SignatureResult{Signature: fmt.Sprintf("sig_%s_%s", method, appID)}, nil
		}).
		Build()
	require.NoError(t, err)

	signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/test", map[string]any{}, "test_app")
	require.NoError(t, err)
	require.Len(t, signatures, 1)
	assert.Equal(t, "sig_POST_test_app", signatures[0])
}

func TestGenerateSignaturesWithPrecomputed(t *testing.T) {
	ctx, err := NewBuilder().
		AddSignature("precomputed_sig1", "pubkey1").
		AddSignature("precomputed_sig2", "").
		Build()
	require.NoError(t, err)

	signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/test", map[string]any{}, "test_app")
	require.NoError(t, err)
	assert.Equal(t, []string{"precomputed_sig1", "precomputed_sig2"}, signatures)
}

func TestGenerateSignaturesUserJWTNotImplemented(t *testing.T) {
	ctx, err := NewBuilder().AddUserJWT(testJWT(t)).Build()
	require.NoError(t, err)
	assert.True(t, ctx.HasSigningMethods())

	signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/test", map[string]any{}, "test_app")
	require.Error(t, err)
	assert.Nil(t, signatures)
	assert.ErrorIs(t, err, ErrNotImplemented)

	var sigErr *SigningError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, 0, sigErr.StrategyIndex)
}

func TestBuilderRejectsMalformedJWT(t *testing.T) {
	_, err := NewBuilder().AddUserJWT("not-a-jwt").Build()
	require.Error(t, err)

	_, err = NewBuilder().AddUserJWT("").Build()
	require.Error(t, err)
}

func TestEmptyContext(t *testing.T) {
	ctx, err := NewBuilder().Build()
	require.NoError(t, err)

	assert.False(t, ctx.HasSigningMethods())

	signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/test", map[string]any{}, "test_app")
	require.NoError(t, err)
	assert.Empty(t, signatures)
}

func TestStrategyOrderingPreserved(t *testing.T) {
	key, pub := generateKeyMaterial(t)

	ctx, err := NewBuilder().
		AddAuthorizationKey(key).
		SetSignFunc(func(method, url string, body map[string]any, appID string) (*SignatureResult, error) {
			return &SignatureResult{Signature: "custom_sig"}, nil
		}).
		AddSignature("precomputed_sig", "").
		Build()
	require.NoError(t, err)

	body := map[string]any{"value": "1"}
	signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/test", body, "test_app")
	require.NoError(t, err)
	require.Len(t, signatures, 3)

	payload := NewSignaturePayload("POST", "https://api.privy.io/test", body, "test_app")
	ok, err := VerifySignature(pub, payload, signatures[0])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "custom_sig", signatures[1])
	assert.Equal(t, "precomputed_sig", signatures[2])
}

func TestAllOrNothingAggregation(t *testing.T) {
	ctx, err := NewBuilder().
		AddSignature("sig_0", "").
		SetSignFunc(func(method, url string, body map[string]any, appID string) (*SignatureResult, error) {
			return nil, errors.New("remote signer unavailable")
		}).
		AddSignature("sig_2", "").
		Build()
	require.NoError(t, err)

	signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/test", map[string]any{}, "test_app")
	assert.Nil(t, signatures)
	require.Error(t, err)

	var sigErr *SigningError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, 1, sigErr.StrategyIndex)
	assert.Contains(t, err.Error(), "remote signer unavailable")
}

func TestSignFuncInvalidResult(t *testing.T) {
	tests := []struct {
		name string
		fn   SignFunc
	}{
		{
			name: "nil result",
			fn: func(method, url string, body map[string]any, appID string) (*SignatureResult, error) {
				return nil, nil
			},
		},
		{
			name: "empty signature",
			fn: func(method, url string, body map[string]any, appID string) (*SignatureResult, error) {
				return &SignatureResult{}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := NewBuilder().SetSignFunc(tt.fn).Build()
			require.NoError(t, err)

			_, err = ctx.GenerateSignatures("POST", "https://api.privy.io/test", map[string]any{}, "test_app")
			assert.ErrorIs(t, err, ErrInvalidSignerResult)
		})
	}
}

func TestInvalidKeyMaterialSurfacesAtSigning(t *testing.T) {
	ctx, err := NewBuilder().AddAuthorizationKey("!!not base64!!").Build()
	require.NoError(t, err)

	_, err = ctx.GenerateSignatures("POST", "https://api.privy.io/test", map[string]any{}, "test_app")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	var sigErr *SigningError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, 0, sigErr.StrategyIndex)
}

func TestBuilderRejectsEmptyInputs(t *testing.T) {
	_, err := NewBuilder().AddAuthorizationKey("").Build()
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	_, err = NewBuilder().SetSignFunc(nil).Build()
	assert.Error(t, err)

	_, err = NewBuilder().AddSignature("", "pub").Build()
	assert.Error(t, err)
}

func TestSignatureIsPayloadSensitive(t *testing.T) {
	key, pub := generateKeyMaterial(t)
	ctx, err := NewBuilder().AddAuthorizationKey(key).Build()
	require.NoError(t, err)

	body := map[string]any{"to": "0xAAA", "value": "1000"}
	signatures, err := ctx.GenerateSignatures("POST", "https://api.example/v1/wallets/w1/transactions", body, "app_1")
	require.NoError(t, err)
	require.Len(t, signatures, 1)

	tests := []struct {
		name    string
		payload *SignaturePayload
	}{
		{"different body", NewSignaturePayload("POST", "https://api.example/v1/wallets/w1/transactions",
			map[string]any{"to": "0xAAA", "value": "1001"}, "app_1")},
		{"different method", NewSignaturePayload("PUT", "https://api.example/v1/wallets/w1/transactions", body, "app_1")},
		{"different url", NewSignaturePayload("POST", "https://api.example/v1/wallets/w2/transactions", body, "app_1")},
		{"different app id", NewSignaturePayload("POST", "https://api.example/v1/wallets/w1/transactions", body, "app_2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifySignature(pub, tt.payload, signatures[0])
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

// End-to-end check against the documented canonical payload shape.
func TestEndToEndSignatureVerifies(t *testing.T) {
	key, pub := generateKeyMaterial(t)
	ctx, err := NewBuilder().AddAuthorizationKey(key).Build()
	require.NoError(t, err)

	body := map[string]any{"to": "0xAAA", "value": "1000"}
	signatures, err := ctx.GenerateSignatures("POST", "https://api.example/v1/wallets/w1/transactions", body, "app_1")
	require.NoError(t, err)
	require.Len(t, signatures, 1)

	payload := NewSignaturePayload("POST", "https://api.example/v1/wallets/w1/transactions", body, "app_1")
	canonical, err := payload.Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"body":{"to":"0xAAA","value":"1000"},"headers":{"privy-app-id":"app_1"},"method":"POST","url":"https://api.example/v1/wallets/w1/transactions","version":1}`,
		string(canonical))

	ok, err := VerifySignature(pub, payload, signatures[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

// A built context is read-only and must tolerate many in-flight requests.
func TestContextConcurrentUse(t *testing.T) {
	key, _ := generateKeyMaterial(t)
	ctx, err := NewBuilder().
		AddAuthorizationKey(key).
		AddSignature("precomputed", "").
		Build()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body := map[string]any{"n": fmt.Sprintf("%d", n)}
			signatures, err := ctx.GenerateSignatures("POST", "https://api.privy.io/test", body, "test_app")
			assert.NoError(t, err)
			assert.Len(t, signatures, 2)
		}(i)
	}
	wg.Wait()
}

func TestParseAuthorizationKeyErrors(t *testing.T) {
	validKey, _ := generateKeyMaterial(t)

	tests := []struct {
		name     string
		material string
	}{
		{"not base64", "%%%"},
		{"base64 but not DER", base64.StdEncoding.EncodeToString([]byte("hello"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAuthorizationKey(tt.material)
			assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
		})
	}

	t.Run("wrong curve", func(t *testing.T) {
		key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		der, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)

		_, err = ParseAuthorizationKey(base64.StdEncoding.EncodeToString(der))
		assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
	})

	t.Run("prefixed and bare decode identically", func(t *testing.T) {
		bare, err := ParseAuthorizationKey(validKey)
		require.NoError(t, err)
		prefixed, err := ParseAuthorizationKey(KeyMaterialPrefix + validKey)
		require.NoError(t, err)
		assert.Equal(t, 0, bare.D.Cmp(prefixed.D))
	})
}
