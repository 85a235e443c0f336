package inmem

import (
	"fmt"
	"sync"

	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/node/state"
	"github.com/provchain/semchain/src/proxy"
)

// StoreHandler implements ProxyHandler by loading every committed graph into
// a StatementStore under the block's graph name.
type StoreHandler struct {
	sync.Mutex
	store       graph.StatementStore
	stateHashes []graph.Digest // by height
	committed   int
	state       state.State
}

// NewStoreHandler ...
func NewStoreHandler(store graph.StatementStore) *StoreHandler {
	return &StoreHandler{store: store}
}

// CommitHandler inserts the block's graph into the store. Blocks must be
// committed from genesis on. A block at a height
// that was already committed replaces it and every graph above it, which
// happens when a non-final authority branch is replaced.
func (h *StoreHandler) CommitHandler(block *chain.Block) (proxy.CommitResponse, error) {
	h.Lock()
	defer h.Unlock()

	height := block.Height()
	if height > uint64(len(h.stateHashes)) {
		return proxy.CommitResponse{}, fmt.Errorf("block %d committed before block %d", height, len(h.stateHashes))
	}
	if height < uint64(len(h.stateHashes)) {
		for r := height; r < uint64(len(h.stateHashes)); r++ {
			if err := h.store.DeleteGraph(chain.GraphName(r)); err != nil {
				return proxy.CommitResponse{}, err
			}
		}
		h.stateHashes = h.stateHashes[:height]
	}

	if err := h.store.InsertGraph(block.Graph.Name, block.Graph.Statements); err != nil {
		return proxy.CommitResponse{}, err
	}

	prev := graph.ZeroDigest
	if n := len(h.stateHashes); n > 0 {
		prev = h.stateHashes[n-1]
	}
	h.stateHashes = append(h.stateHashes, proxy.NextStateHash(prev, block))
	h.committed++

	return proxy.CommitResponse{
		StateHash: h.stateHashes[len(h.stateHashes)-1],
		Inserted:  block.Graph.Len(),
	}, nil
}

// StateChangeHandler records the node state.
func (h *StoreHandler) StateChangeHandler(s state.State) error {
	h.Lock()
	defer h.Unlock()
	h.state = s
	return nil
}

// Store returns the underlying StatementStore.
func (h *StoreHandler) Store() graph.StatementStore {
	return h.store
}

// StateHash returns the state hash after the last commit.
func (h *StoreHandler) StateHash() graph.Digest {
	h.Lock()
	defer h.Unlock()
	if len(h.stateHashes) == 0 {
		return graph.ZeroDigest
	}
	return h.stateHashes[len(h.stateHashes)-1]
}

// Height returns the height of the last committed block.
func (h *StoreHandler) Height() uint64 {
	h.Lock()
	defer h.Unlock()
	if len(h.stateHashes) == 0 {
		return 0
	}
	return uint64(len(h.stateHashes) - 1)
}

// Committed returns the number of blocks committed so far.
func (h *StoreHandler) Committed() int {
	h.Lock()
	defer h.Unlock()
	return h.committed
}

// State returns the last state reported by the node.
func (h *StoreHandler) State() state.State {
	h.Lock()
	defer h.Unlock()
	return h.state
}
