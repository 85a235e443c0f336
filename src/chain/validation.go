package chain

import (
	"fmt"

	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
)

// Authorizer decides whether the proposer of b may extend tip. Each consensus
// strategy supplies its own.
type Authorizer interface {
	Authorize(b *Block, tip *Block, vs *validators.ValidatorSet) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(b *Block, tip *Block, vs *validators.ValidatorSet) error

// Authorize ...
func (f AuthorizerFunc) Authorize(b *Block, tip *Block, vs *validators.ValidatorSet) error {
	return f(b, tip, vs)
}

// ValidateBlock checks that b is a valid successor of tip. The checks run in
// order and the first failure is returned as a *ValidationError: height,
// previous hash, content hash, semantic gate, proposer signature, and finally
// the authorizer. A nil gate or authorizer is skipped.
func ValidateBlock(b *Block,
	tip *Block,
	vs *validators.ValidatorSet,
	gate graph.Gate,
	authorizer Authorizer) error {

	if b.Height() != tip.Height()+1 {
		return newValidationError(HeightMismatch, b,
			fmt.Errorf("expected height %d, got %d", tip.Height()+1, b.Height()))
	}

	if expected := PreviousHashOf(&tip.Header); b.Header.PreviousHash != expected {
		return newValidationError(PreviousHashMismatch, b,
			fmt.Errorf("expected previous hash %s, got %s", expected, b.Header.PreviousHash))
	}

	if err := checkContent(b); err != nil {
		return err
	}

	if gate != nil {
		if violations := gate.Validate(&b.Graph); len(violations) > 0 {
			verr := newValidationError(SemanticValidationFailed, b, graph.ViolationsError(violations))
			verr.Violations = violations
			return verr
		}
	}

	if err := checkSignature(b, vs); err != nil {
		return err
	}

	if authorizer != nil {
		if err := authorizer.Authorize(b, tip, vs); err != nil {
			return newValidationError(UnauthorizedProposer, b, err)
		}
	}

	return nil
}

func checkContent(b *Block) error {
	if err := b.Graph.Validate(); err != nil {
		return newValidationError(HashMismatch, b, err)
	}
	return checkDigest(b, graph.Canonicalize(&b.Graph))
}

func checkDigest(b *Block, digest graph.Digest) error {
	if digest != b.Header.ContentHash {
		return newValidationError(HashMismatch, b,
			fmt.Errorf("content hash %s does not match graph digest %s", b.Header.ContentHash, digest))
	}
	return nil
}

// checkSignature verifies the proposer signature against the key registered
// in vs. An unregistered proposer has no key to verify against.
func checkSignature(b *Block, vs *validators.ValidatorSet) error {
	if !vs.Contains(b.Header.ProposerID) {
		return newValidationError(SignatureInvalid, b,
			fmt.Errorf("proposer %s is not a registered validator", b.Header.ProposerID))
	}
	ok, err := b.Verify()
	if err != nil {
		return newValidationError(SignatureInvalid, b, err)
	}
	if !ok {
		return newValidationError(SignatureInvalid, b, fmt.Errorf("bad signature"))
	}
	return nil
}
