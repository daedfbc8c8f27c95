// Package authorization computes the request authorization signatures the
// Privy API requires on mutating endpoints. A Context holds an ordered set
// of signing strategies (authorization private keys, a custom sign function,
// precomputed signatures, user JWTs) and produces one base64 signature per
// strategy over the canonical form of each request. Contexts are built once
// with a Builder and are safe for concurrent use across in-flight requests.
package authorization

import (
	"go.uber.org/zap"
)

// Context is an immutable, ordered collection of signing strategies. Build
// one with a Builder at startup and reuse it for every request; it carries
// no mutable state.
type Context struct {
	strategies []signingStrategy
	logger     *zap.Logger
}

// HasSigningMethods reports whether any signing strategies are configured.
// An empty context means signing is not required, not that signing failed;
// callers use this to skip signature generation entirely.
func (c *Context) HasSigningMethods() bool {
	return len(c.strategies) > 0
}

// GenerateSignatures computes one signature per configured strategy over the
// canonical payload for the given request, in the order strategies were
// added. appID is attached as the mandatory privy-app-id payload header.
//
// Generation is all-or-nothing: if any strategy fails the whole call fails
// with a *SigningError identifying the failing strategy, and no partial
// signature list is returned. An empty context yields an empty slice and no
// error.
func (c *Context) GenerateSignatures(method, url string, body map[string]any, appID string) ([]string, error) {
	return c.GenerateSignaturesForPayload(NewSignaturePayload(method, url, body, appID))
}

// GenerateSignaturesForPayload is the lower-level entry point used by the
// signing transport, which carries additional privy-* request headers in the
// payload beyond the app ID.
func (c *Context) GenerateSignaturesForPayload(payload *SignaturePayload) ([]string, error) {
	if len(c.strategies) == 0 {
		return []string{}, nil
	}

	canonical, err := payload.Canonical()
	if err != nil {
		return nil, err
	}

	signatures := make([]string, 0, len(c.strategies))
	for i := range c.strategies {
		strategy := &c.strategies[i]

		result, err := strategy.sign(payload, canonical)
		if err != nil {
			c.logger.Debug("signing strategy failed",
				zap.Int("strategy_index", i),
				zap.String("strategy_kind", strategy.kind.String()),
				zap.String("method", payload.Method),
				zap.String("url", payload.URL),
			)
			return nil, &SigningError{StrategyIndex: i, Err: err}
		}
		signatures = append(signatures, result.Signature)
	}

	c.logger.Debug("generated request signatures",
		zap.String("method", payload.Method),
		zap.String("url", payload.URL),
		zap.Int("count", len(signatures)),
	)
	return signatures, nil
}
