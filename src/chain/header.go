package chain

import (
	"bytes"
	"fmt"

	"github.com/provchain/semchain/src/crypto"
	"github.com/provchain/semchain/src/graph"
	"github.com/ugorji/go/codec"
)

// BlockHeader is the signed part of a block.
type BlockHeader struct {
	Height       uint64
	ContentHash  graph.Digest
	PreviousHash graph.Digest
	Timestamp    int64 // unix nanoseconds
	ProposerID   string
	Signature    string
}

// SigningBytes is the JSON encoding of the header with an empty signature.
func (h *BlockHeader) SigningBytes() ([]byte, error) {
	unsigned := *h
	unsigned.Signature = ""

	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, new(codec.JsonHandle))
	if err := enc.Encode(&unsigned); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Hash identifies the header. It covers every field except the signature.
func (h *BlockHeader) Hash() (graph.Digest, error) {
	signBytes, err := h.SigningBytes()
	if err != nil {
		return graph.Digest{}, err
	}
	return graph.DigestFromBytes(crypto.SHA256(signBytes))
}

// PreviousHashOf is the value the child of h must carry as PreviousHash. It
// binds the parent's content to its height and timestamp, so that a header
// cannot be reused with different metadata.
func PreviousHashOf(h *BlockHeader) graph.Digest {
	meta := crypto.SHA256([]byte(fmt.Sprintf("%d-%d", h.Height, h.Timestamp)))
	d, _ := graph.DigestFromBytes(crypto.SimpleHashFromTwoHashes(h.ContentHash.Bytes(), meta))
	return d
}
