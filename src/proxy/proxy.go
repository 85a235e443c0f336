package proxy

import (
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/graph"
)

// AppProxy is the interface the node uses to talk to the application.
type AppProxy interface {
	// SubmitCh carries statements submitted by the application.
	SubmitCh() chan []graph.Statement
	// CommitBlock is called once per committed block, in height order.
	CommitBlock(block *chain.Block) (CommitResponse, error)
}
