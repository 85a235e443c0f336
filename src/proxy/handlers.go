package proxy

import (
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/node/state"
)

// ProxyHandler encapsulates callbacks to be called by the InmemProxy. This is
// the true contact surface between semchain and the application. The
// application must implement these handlers to process committed blocks and
// node state changes.
type ProxyHandler interface {
	// CommitHandler is called when the node commits a block to the application
	CommitHandler(block *chain.Block) (response CommitResponse, err error)

	// StateChangeHandler is called by the node to notify that it entered a
	// certain state
	StateChangeHandler(state.State) error
}
