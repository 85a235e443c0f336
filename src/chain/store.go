package chain

import "github.com/provchain/semchain/src/validators"

// Store persists blocks by height and the validator sets that become
// effective at given heights.
type Store interface {
	// GetBlock returns the block at a height.
	GetBlock(height uint64) (*Block, error)
	// SetBlock stores the block following the last one.
	SetBlock(block *Block) error
	// LastHeight returns the height of the last stored block, or an Empty
	// StoreErr.
	LastHeight() (uint64, error)
	// TruncateFrom removes the blocks at height and above.
	TruncateFrom(height uint64) error
	// GetValidatorSet returns the validator set effective at a height, that
	// is the last one set at or below it.
	GetValidatorSet(height uint64) (*validators.ValidatorSet, error)
	// SetValidatorSet records a validator set effective from a height.
	SetValidatorSet(height uint64, vs *validators.ValidatorSet) error
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
