package chain

import (
	"testing"
	"time"

	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
)

var genesisTime = time.Unix(1600000000, 0)

func newTestSigners(t *testing.T, n int) ([]*validators.Signer, *validators.ValidatorSet) {
	signers := make([]*validators.Signer, n)
	vals := make([]*validators.Validator, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		signers[i] = validators.NewSigner(key, "")
		vals[i] = validators.NewValidator(signers[i].PublicKeyHex(), "", "")
	}
	return signers, validators.NewValidatorSet(vals)
}

func batchStatements(batch, origin string) []graph.Statement {
	return []graph.Statement{
		graph.NewStatement(
			graph.IRI("http://example.org/"+batch),
			graph.IRI("http://example.org/hasOrigin"),
			graph.IRI("http://example.org/"+origin),
		),
	}
}

func newTestGenesis(t *testing.T) *Block {
	genesis, err := NewGenesisBlock(nil, genesisTime)
	if err != nil {
		t.Fatal(err)
	}
	return genesis
}

// buildChain creates a chain of n blocks on top of genesis, proposed in turn
// by the signers.
func buildChain(t *testing.T, store Store, n int) (*Chain, []*validators.Signer, *validators.ValidatorSet) {
	signers, vs := newTestSigners(t, 3)

	c, err := NewChain(store, newTestGenesis(t), vs, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= n; i++ {
		b, err := ProposeBlock(
			batchStatements("Batch"+string(rune('0'+i)), "FarmA"),
			c.Tip(),
			genesisTime.Add(time.Duration(i)*time.Second),
			signers[i%len(signers)])
		if err != nil {
			t.Fatal(err)
		}
		if err := ValidateBlock(b, c.Tip(), vs, nil, nil); err != nil {
			t.Fatalf("block %d: %v", i, err)
		}
		if err := c.Append(b); err != nil {
			t.Fatal(err)
		}
	}

	return c, signers, vs
}
