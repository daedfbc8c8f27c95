package authorization

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

// Builder accumulates signing strategies and freezes them into a Context.
// Strategy order is preserved: signatures appear in the output in the order
// strategies were added. The builder is intended for sequential use during
// configuration and is not safe for concurrent mutation.
type Builder struct {
	strategies []signingStrategy
	logger     *zap.Logger
	err        error
}

// NewBuilder returns an empty Builder. Build on an untouched builder yields
// a valid empty context (signing not required).
func NewBuilder() *Builder {
	return &Builder{}
}

// WithLogger sets the logger the built context logs signing activity to.
// Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// AddAuthorizationKey adds an authorization private key strategy. The key is
// a base64-encoded PKCS#8 P-256 private key, optionally carrying the
// "wallet-auth:" label prefix, which is stripped here so prefixed and bare
// forms behave identically. The material is decoded when signing; a
// malformed key surfaces as ErrInvalidKeyMaterial from GenerateSignatures.
func (b *Builder) AddAuthorizationKey(privateKey string) *Builder {
	if privateKey == "" {
		b.fail(fmt.Errorf("%w: empty key material", ErrInvalidKeyMaterial))
		return b
	}
	b.strategies = append(b.strategies, signingStrategy{
		kind:             strategyAuthorizationKey,
		authorizationKey: StripKeyMaterialPrefix(privateKey),
	})
	return b
}

// AddUserJWT adds a user JWT strategy. The token must be a structurally
// valid JWT; it is parsed here without signature verification so garbage
// tokens are rejected at configuration time. Generating signatures with this
// strategy present always fails with ErrNotImplemented, since the exchange
// of a user JWT for a short-lived signing key is not implemented.
func (b *Builder) AddUserJWT(token string) *Builder {
	if token == "" {
		b.fail(fmt.Errorf("authorization: empty user JWT"))
		return b
	}
	if _, err := jwt.ParseInsecure([]byte(token)); err != nil {
		b.fail(fmt.Errorf("authorization: malformed user JWT: %w", err))
		return b
	}
	b.strategies = append(b.strategies, signingStrategy{
		kind:    strategyUserJWT,
		userJWT: token,
	})
	return b
}

// SetSignFunc adds a custom sign function strategy, for signing logic that
// lives in a separate service such as a KMS or HSM.
func (b *Builder) SetSignFunc(fn SignFunc) *Builder {
	if fn == nil {
		b.fail(fmt.Errorf("authorization: custom sign function must not be nil"))
		return b
	}
	b.strategies = append(b.strategies, signingStrategy{
		kind:     strategySignFunc,
		signFunc: fn,
	})
	return b
}

// AddSignature adds a precomputed signature strategy. The stored signature
// is returned verbatim for every request; callers are responsible for
// recomputing it per request. signerPublicKey may be empty.
func (b *Builder) AddSignature(signature, signerPublicKey string) *Builder {
	if signature == "" {
		b.fail(fmt.Errorf("authorization: precomputed signature must not be empty"))
		return b
	}
	b.strategies = append(b.strategies, signingStrategy{
		kind: strategyPrecomputed,
		precomputed: SignatureResult{
			Signature:       signature,
			SignerPublicKey: signerPublicKey,
		},
	})
	return b
}

// Build freezes the accumulated strategies into an immutable Context. The
// first configuration error recorded by any Add/Set call is returned here,
// so chained construction stays fluent. The builder may be reused after
// Build; the returned context holds its own copy of the strategy list.
func (b *Builder) Build() (*Context, error) {
	if b.err != nil {
		return nil, b.err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	strategies := make([]signingStrategy, len(b.strategies))
	copy(strategies, b.strategies)

	return &Context{
		strategies: strategies,
		logger:     logger,
	}, nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
