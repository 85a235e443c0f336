package chain

import (
	"strings"
	"testing"
	"time"

	"github.com/provchain/semchain/src/graph"
)

func TestGenesisBlock(t *testing.T) {
	genesis := newTestGenesis(t)

	if genesis.Height() != 0 {
		t.Fatalf("genesis height should be 0, not %d", genesis.Height())
	}
	if genesis.Header.PreviousHash.Hex() != strings.Repeat("0", 64) {
		t.Fatalf("genesis previous hash should be the zero sentinel, not %s", genesis.Header.PreviousHash)
	}
	if genesis.Header.ContentHash != graph.Canonicalize(&graph.NamedGraph{}) {
		t.Fatalf("genesis content hash should be the digest of the empty graph")
	}
	if genesis.Graph.Name != "urn:semchain:block:0" {
		t.Fatalf("unexpected graph name %s", genesis.Graph.Name)
	}
}

func TestProposeAndValidate(t *testing.T) {
	signers, vs := newTestSigners(t, 1)
	genesis := newTestGenesis(t)

	statements := batchStatements("Batch1", "FarmA")
	b, err := ProposeBlock(statements, genesis, genesisTime.Add(time.Second), signers[0])
	if err != nil {
		t.Fatal(err)
	}

	if b.Height() != 1 {
		t.Fatalf("height should be 1, not %d", b.Height())
	}
	if b.Header.PreviousHash != PreviousHashOf(&genesis.Header) {
		t.Fatalf("previous hash does not link to genesis")
	}
	if err := ValidateBlock(b, genesis, vs, nil, nil); err != nil {
		t.Fatalf("block should be valid: %v", err)
	}

	g1, _ := graph.NewNamedGraph("one", statements)
	g2, _ := graph.NewNamedGraph("two", statements)
	if graph.Canonicalize(g1) != b.Header.ContentHash || graph.Canonicalize(g2) != b.Header.ContentHash {
		t.Fatalf("content hash is not stable across canonicalizations")
	}
}

func TestPreviousHashCoversMetadata(t *testing.T) {
	genesis := newTestGenesis(t)

	h := genesis.Header
	base := PreviousHashOf(&h)

	h.Timestamp++
	if PreviousHashOf(&h) == base {
		t.Fatalf("previous hash should depend on the timestamp")
	}

	h = genesis.Header
	h.Height = 7
	if PreviousHashOf(&h) == base {
		t.Fatalf("previous hash should depend on the height")
	}
}

func TestBlockHashIgnoresSignature(t *testing.T) {
	signers, _ := newTestSigners(t, 2)
	genesis := newTestGenesis(t)

	b, err := ProposeBlock(batchStatements("Batch1", "FarmA"), genesis, genesisTime, signers[0])
	if err != nil {
		t.Fatal(err)
	}
	hash := b.Hash()

	b.Header.Signature = "1|2"
	if b.Hash() != hash {
		t.Fatalf("hash should not cover the signature")
	}
	if ok, _ := b.Verify(); ok {
		t.Fatalf("forged signature should not verify")
	}
}

func TestBlockMarshal(t *testing.T) {
	signers, _ := newTestSigners(t, 1)
	genesis := newTestGenesis(t)

	statements := append(batchStatements("Batch1", "FarmA"),
		graph.NewStatement(graph.Blank("b0"), graph.IRI("http://example.org/weight"), graph.TypedLiteral("12", "http://www.w3.org/2001/XMLSchema#integer")),
		graph.NewStatement(graph.IRI("http://example.org/Batch1"), graph.IRI("http://example.org/label"), graph.LangLiteral("lot \"one\"", "en")),
	)
	b, err := ProposeBlock(statements, genesis, genesisTime, signers[0])
	if err != nil {
		t.Fatal(err)
	}
	b.Certificate = &Certificate{View: 2, Signatures: map[string]string{signers[0].PublicKeyHex(): "sig"}}

	data, err := b.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded := new(Block)
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	if decoded.Hash() != b.Hash() {
		t.Fatalf("decoded block hash differs")
	}
	if graph.Canonicalize(&decoded.Graph) != b.Header.ContentHash {
		t.Fatalf("decoded graph digest differs")
	}
	if ok, err := decoded.Verify(); err != nil || !ok {
		t.Fatalf("decoded signature should verify: %v", err)
	}
	if decoded.Certificate == nil || decoded.Certificate.View != 2 {
		t.Fatalf("certificate not decoded")
	}
}
