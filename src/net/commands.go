package net

import (
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/graph"
)

// ConsensusRequest carries a batch of consensus messages, in the order they
// were produced. Their signatures are inside the messages; FromID is only
// informative.
type ConsensusRequest struct {
	FromID   uint32
	Messages []*consensus.Message
}

// ConsensusResponse acknowledges a ConsensusRequest. Height lets the sender
// notice that it is behind.
type ConsensusResponse struct {
	FromID          uint32
	Success         bool
	Height          uint64
	FinalizedHeight uint64
}

// SyncRequest is used to retrieve committed blocks starting at FromHeight.
// Limit is the maximum number of blocks to include in the response.
type SyncRequest struct {
	FromID     uint32
	FromHeight uint64
	Limit      int
}

// SyncResponse returns the requested blocks, in height order, and the height
// of the responder's chain.
type SyncResponse struct {
	FromID          uint32
	Blocks          []*chain.Block
	Height          uint64
	FinalizedHeight uint64
}

// SubmitRequest forwards statements to be included in a future block.
type SubmitRequest struct {
	FromID     uint32
	Statements []graph.Statement
}

// SubmitResponse reports how many of the statements were added to the pool.
type SubmitResponse struct {
	FromID   uint32
	Accepted int
}
