package chain

import (
	"testing"
	"time"
)

func TestResolveFork(t *testing.T) {
	signers, vs := newTestSigners(t, 4)
	genesis := newTestGenesis(t)

	branch := func(proposers ...int) []*Block {
		res := []*Block{}
		tip := genesis
		for i, p := range proposers {
			b, err := ProposeBlock(batchStatements("Batch", "Farm"), tip, genesisTime.Add(time.Duration(i+1)*time.Second), signers[p])
			if err != nil {
				t.Fatal(err)
			}
			res = append(res, b)
			tip = b
		}
		return res
	}

	// two blocks from the same proposer weigh as one
	local := branch(0, 0)
	remote := branch(1, 2)

	winner, err := ResolveFork(local, remote, vs)
	if err != nil {
		t.Fatal(err)
	}
	if winner[0].Hash() != remote[0].Hash() {
		t.Fatalf("remote branch should win")
	}

	// certificates count their signers
	local[1].Certificate = &Certificate{Signatures: map[string]string{
		signers[2].PublicKeyHex(): "s",
		signers[3].PublicKeyHex(): "s",
	}}
	winner, err = ResolveFork(local, remote, vs)
	if err != nil {
		t.Fatal(err)
	}
	if winner[0].Hash() != local[0].Hash() {
		t.Fatalf("local branch should win")
	}

	_, err = ResolveFork(branch(0), branch(1), vs)
	if !IsFork(err) {
		t.Fatalf("equal weights should leave a fork, got %v", err)
	}
	if fe := err.(*ForkError); fe.Height != 1 || fe.LocalWeight != 1 || fe.RemoteWeight != 1 {
		t.Fatalf("unexpected fork error %+v", fe)
	}
}
