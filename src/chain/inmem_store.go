package chain

import (
	"fmt"
	"sync"

	cm "github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/validators"
)

// InmemStore implements the Store interface in memory. Nothing survives a
// restart.
type InmemStore struct {
	sync.RWMutex

	blocks        []*Block // index == height
	validatorSets *validatorSetHistory
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		blocks:        []*Block{},
		validatorSets: newValidatorSetHistory(),
	}
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(height uint64) (*Block, error) {
	s.RLock()
	defer s.RUnlock()

	if height >= uint64(len(s.blocks)) {
		return nil, cm.NewStoreErr("Block", cm.KeyNotFound, string(blockKey(height)))
	}
	return s.blocks[height], nil
}

// SetBlock implements the Store interface. Heights must be contiguous.
func (s *InmemStore) SetBlock(block *Block) error {
	s.Lock()
	defer s.Unlock()

	next := uint64(len(s.blocks))
	switch {
	case block.Height() < next:
		return cm.NewStoreErr("Block", cm.KeyAlreadyExists, string(blockKey(block.Height())))
	case block.Height() > next:
		return cm.NewStoreErr("Block", cm.SkippedIndex, string(blockKey(block.Height())))
	}

	s.blocks = append(s.blocks, block)
	return nil
}

// LastHeight implements the Store interface.
func (s *InmemStore) LastHeight() (uint64, error) {
	s.RLock()
	defer s.RUnlock()

	if len(s.blocks) == 0 {
		return 0, cm.NewStoreErr("Block", cm.Empty, "")
	}
	return uint64(len(s.blocks) - 1), nil
}

// TruncateFrom implements the Store interface.
func (s *InmemStore) TruncateFrom(height uint64) error {
	s.Lock()
	defer s.Unlock()

	if height >= uint64(len(s.blocks)) {
		return cm.NewStoreErr("Block", cm.PassedIndex, fmt.Sprintf("%d", height))
	}
	s.blocks = s.blocks[:height]
	s.validatorSets.dropFrom(height + 1)
	return nil
}

// GetValidatorSet implements the Store interface.
func (s *InmemStore) GetValidatorSet(height uint64) (*validators.ValidatorSet, error) {
	s.RLock()
	defer s.RUnlock()

	return s.validatorSets.get(height)
}

// SetValidatorSet implements the Store interface.
func (s *InmemStore) SetValidatorSet(height uint64, vs *validators.ValidatorSet) error {
	s.Lock()
	defer s.Unlock()

	s.validatorSets.set(height, vs)
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
