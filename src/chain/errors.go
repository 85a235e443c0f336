package chain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/graph"
)

// ValidationKind says which check a block failed.
type ValidationKind uint32

const (
	// HeightMismatch means the block does not extend the tip.
	HeightMismatch ValidationKind = iota
	// PreviousHashMismatch means the block does not link to the tip.
	PreviousHashMismatch
	// HashMismatch means the content hash does not match the graph.
	HashMismatch
	// SemanticValidationFailed means the semantic gate rejected the graph.
	SemanticValidationFailed
	// SignatureInvalid means the proposer signature does not verify.
	SignatureInvalid
	// UnauthorizedProposer means the proposer may not propose this block.
	UnauthorizedProposer
)

func (k ValidationKind) String() string {
	switch k {
	case HeightMismatch:
		return "HeightMismatch"
	case PreviousHashMismatch:
		return "PreviousHashMismatch"
	case HashMismatch:
		return "HashMismatch"
	case SemanticValidationFailed:
		return "SemanticValidationFailed"
	case SignatureInvalid:
		return "SignatureInvalid"
	case UnauthorizedProposer:
		return "UnauthorizedProposer"
	default:
		return "Unknown"
	}
}

// ValidationError reports why a candidate block was rejected.
type ValidationError struct {
	Kind          ValidationKind
	Height        uint64
	CandidateHash graph.Digest
	Violations    []graph.Violation
	Err           error
}

func newValidationError(kind ValidationKind, b *Block, err error) *ValidationError {
	return &ValidationError{
		Kind:          kind,
		Height:        b.Height(),
		CandidateHash: b.Hash(),
		Err:           err,
	}
}

// Error ...
func (e *ValidationError) Error() string {
	return fmt.Sprintf("block %d (%s): %s: %v", e.Height, e.CandidateHash, e.Kind, e.Err)
}

// Cause returns the underlying error.
func (e *ValidationError) Cause() error {
	return e.Err
}

// IsValidation checks that err is a *ValidationError of the given kind. Errors
// wrapped with github.com/pkg/errors are unwrapped first.
func IsValidation(err error, kind ValidationKind) bool {
	if err == nil {
		return false
	}
	for {
		if verr, ok := err.(*ValidationError); ok {
			return verr.Kind == kind
		}
		wrapped, ok := err.(interface{ Cause() error })
		if !ok {
			return false
		}
		next := wrapped.Cause()
		if next == nil || next == err {
			return false
		}
		err = next
	}
}

// ForkError reports two branches that validator weight cannot decide
// between.
type ForkError struct {
	Height       uint64
	LocalWeight  uint64
	RemoteWeight uint64
}

// Error ...
func (e *ForkError) Error() string {
	return fmt.Sprintf("unresolved fork at height %d: local weight %d, remote weight %d",
		e.Height, e.LocalWeight, e.RemoteWeight)
}

// IsFork ...
func IsFork(err error) bool {
	_, ok := errors.Cause(err).(*ForkError)
	return ok
}
