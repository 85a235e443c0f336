package proxy

import (
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/crypto"
	"github.com/provchain/semchain/src/graph"
)

// CommitResponse is returned by the application after a commit. StateHash
// summarizes the application state after applying the block.
type CommitResponse struct {
	StateHash graph.Digest
	Inserted  int
}

// CommitCallback ...
type CommitCallback func(block *chain.Block) (CommitResponse, error)

// NextStateHash chains the content hash of block onto the previous state hash.
// Two applications that committed the same blocks in the same order have the
// same state hash.
func NextStateHash(prev graph.Digest, block *chain.Block) graph.Digest {
	var next graph.Digest
	copy(next[:], crypto.SimpleHashFromTwoHashes(prev.Bytes(), block.Header.ContentHash.Bytes()))
	return next
}

// DummyCommitCallback is used for testing
func DummyCommitCallback(block *chain.Block) (CommitResponse, error) {
	return CommitResponse{
		StateHash: NextStateHash(graph.ZeroDigest, block),
		Inserted:  block.Graph.Len(),
	}, nil
}
