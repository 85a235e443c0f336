package chain

import (
	"fmt"
	"sort"

	cm "github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/validators"
)

// validatorSetHistory indexes validator sets by the height from which they
// are effective.
type validatorSetHistory struct {
	sets    map[uint64]*validators.ValidatorSet
	heights []uint64 // sorted
}

func newValidatorSetHistory() *validatorSetHistory {
	return &validatorSetHistory{
		sets: make(map[uint64]*validators.ValidatorSet),
	}
}

func (h *validatorSetHistory) set(height uint64, vs *validators.ValidatorSet) {
	if _, ok := h.sets[height]; !ok {
		h.heights = append(h.heights, height)
		sort.Slice(h.heights, func(i, j int) bool { return h.heights[i] < h.heights[j] })
	}
	h.sets[height] = vs
}

// get returns the set registered at the greatest height not above height.
func (h *validatorSetHistory) get(height uint64) (*validators.ValidatorSet, error) {
	i := sort.Search(len(h.heights), func(i int) bool { return h.heights[i] > height })
	if i == 0 {
		return nil, cm.NewStoreErr("ValidatorSet", cm.NoValidatorSet, fmt.Sprintf("%d", height))
	}
	return h.sets[h.heights[i-1]], nil
}

// dropFrom forgets the sets registered at height and above.
func (h *validatorSetHistory) dropFrom(height uint64) []uint64 {
	dropped := []uint64{}
	kept := h.heights[:0]
	for _, k := range h.heights {
		if k >= height {
			delete(h.sets, k)
			dropped = append(dropped, k)
			continue
		}
		kept = append(kept, k)
	}
	h.heights = kept
	return dropped
}
