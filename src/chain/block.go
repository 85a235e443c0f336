package chain

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"github.com/ugorji/go/codec"
)

// GraphName returns the name given to the graph of the block at height.
func GraphName(height uint64) string {
	return fmt.Sprintf("urn:semchain:block:%d", height)
}

// Certificate holds the commit votes that finalized a block under byzantine
// agreement.
type Certificate struct {
	View       uint64
	Signatures map[string]string // [validator hex] => signature
}

// Signers returns the public keys of the certificate, sorted.
func (c *Certificate) Signers() []string {
	res := make([]string, 0, len(c.Signatures))
	for pk := range c.Signatures {
		res = append(res, pk)
	}
	sort.Strings(res)
	return res
}

// Block is a header and the graph it commits to.
type Block struct {
	Header      BlockHeader
	Graph       graph.NamedGraph
	Certificate *Certificate
}

// NewGenesisBlock creates the block at height 0. Its previous hash is the
// zero digest and it carries no proposer.
func NewGenesisBlock(statements []graph.Statement, timestamp time.Time) (*Block, error) {
	ng, err := graph.NewNamedGraph(GraphName(0), statements)
	if err != nil {
		return nil, err
	}

	return &Block{
		Header: BlockHeader{
			Height:       0,
			ContentHash:  graph.Canonicalize(ng),
			PreviousHash: graph.ZeroDigest,
			Timestamp:    timestamp.UnixNano(),
		},
		Graph: *ng,
	}, nil
}

// ProposeBlock builds and signs the successor of tip.
func ProposeBlock(statements []graph.Statement,
	tip *Block,
	timestamp time.Time,
	signer *validators.Signer) (*Block, error) {

	height := tip.Height() + 1

	ng, err := graph.NewNamedGraph(GraphName(height), statements)
	if err != nil {
		return nil, err
	}

	block := &Block{
		Header: BlockHeader{
			Height:       height,
			ContentHash:  graph.Canonicalize(ng),
			PreviousHash: PreviousHashOf(&tip.Header),
			Timestamp:    timestamp.UnixNano(),
			ProposerID:   signer.PublicKeyHex(),
		},
		Graph: *ng,
	}

	if err := block.Sign(signer); err != nil {
		return nil, err
	}

	return block, nil
}

// Height ...
func (b *Block) Height() uint64 {
	return b.Header.Height
}

// Time returns the header timestamp.
func (b *Block) Time() time.Time {
	return time.Unix(0, b.Header.Timestamp)
}

// Hash identifies the block. It is the hash of the unsigned header.
func (b *Block) Hash() graph.Digest {
	h, _ := b.Header.Hash()
	return h
}

// Sign sets the proposer signature.
func (b *Block) Sign(signer *validators.Signer) error {
	signBytes, err := b.Header.SigningBytes()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(signBytes)
	if err != nil {
		return err
	}
	b.Header.Signature = sig
	return nil
}

// Verify checks the proposer signature against the key in ProposerID.
func (b *Block) Verify() (bool, error) {
	signBytes, err := b.Header.SigningBytes()
	if err != nil {
		return false, err
	}
	return keys.VerifyBytes(b.Header.ProposerID, signBytes, b.Header.Signature)
}

// Marshal encodes the block in JSON.
func (b *Block) Marshal() ([]byte, error) {
	bf := bytes.NewBuffer([]byte{})
	enc := codec.NewEncoder(bf, new(codec.JsonHandle))
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return bf.Bytes(), nil
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	bf := bytes.NewBuffer(data)
	dec := codec.NewDecoder(bf, new(codec.JsonHandle))
	return dec.Decode(b)
}
