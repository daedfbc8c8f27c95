package authorization

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyMaterial indicates an authorization key that could not be
	// base64-decoded or parsed as a P-256 private key.
	ErrInvalidKeyMaterial = errors.New("authorization: invalid key material")

	// ErrInvalidSignerResult indicates a custom sign function returned a nil
	// result or an empty signature.
	ErrInvalidSignerResult = errors.New("authorization: custom sign function returned an invalid result")

	// ErrNotImplemented is returned when signing is attempted with a user JWT
	// strategy. Exchanging a user JWT for a signing key requires a network
	// round trip that is not implemented; use an authorization key or a
	// custom sign function instead.
	ErrNotImplemented = errors.New("authorization: user JWT signing is not implemented; use an authorization key or a custom sign function instead")
)

// SigningError reports which strategy in a context failed to produce a
// signature. A verifier expecting N signatures cannot consume a partial set,
// so one SigningError aborts the whole generation call.
type SigningError struct {
	// StrategyIndex is the zero-based position of the failing strategy in
	// the order strategies were added to the builder.
	StrategyIndex int
	Err           error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("authorization: strategy %d failed to sign: %v", e.StrategyIndex, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}
