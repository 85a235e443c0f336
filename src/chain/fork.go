package chain

import (
	"github.com/provchain/semchain/src/validators"
)

// BranchWeight is the cumulative weight of the distinct validators that
// proposed a block of the branch or signed one of its certificates.
func BranchWeight(branch []*Block, vs *validators.ValidatorSet) uint64 {
	participants := []string{}
	for _, b := range branch {
		if b.Header.ProposerID != "" {
			participants = append(participants, b.Header.ProposerID)
		}
		if b.Certificate != nil {
			participants = append(participants, b.Certificate.Signers()...)
		}
	}
	return vs.WeightOf(participants)
}

// ResolveFork chooses between two branches forking from the same parent. The
// branch backed by more validator weight wins. Equal weights leave the fork
// unresolved and return a *ForkError.
func ResolveFork(local, remote []*Block, vs *validators.ValidatorSet) ([]*Block, error) {
	lw := BranchWeight(local, vs)
	rw := BranchWeight(remote, vs)

	switch {
	case lw > rw:
		return local, nil
	case rw > lw:
		return remote, nil
	}

	var height uint64
	switch {
	case len(local) > 0:
		height = local[0].Height()
	case len(remote) > 0:
		height = remote[0].Height()
	}

	return nil, &ForkError{
		Height:       height,
		LocalWeight:  lw,
		RemoteWeight: rw,
	}
}
