package consensus

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
)

// countSigned counts the distinct voters of vs with a valid signature of a
// typ vote for hash at view and height.
func countSigned(typ MessageType, view, height uint64, hash graph.Digest, signatures map[string]string, vs *validators.ValidatorSet) int {
	signers := make(map[string]bool)
	for pk, sig := range signatures {
		if !vs.IsVoter(pk) {
			continue
		}
		vote := Message{
			Type:          typ,
			View:          view,
			Height:        height,
			CandidateHash: hash,
			SenderID:      pk,
			Signature:     sig,
		}
		if ok, err := vote.Verify(); err == nil && ok {
			signers[common.NormalizeHex(pk)] = true
		}
	}
	return len(signers)
}

// VerifyCertificate checks that the certificate of b holds valid commit
// signatures from a quorum of distinct voters of vs.
func VerifyCertificate(b *chain.Block, vs *validators.ValidatorSet) error {
	c := b.Certificate
	if c == nil {
		return fmt.Errorf("block %d has no certificate", b.Height())
	}

	n := countSigned(Commit, c.View, b.Height(), b.Hash(), c.Signatures, vs)
	if n < vs.Quorum() {
		return fmt.Errorf("certificate of block %d has %d valid commit signatures, %d required",
			b.Height(), n, vs.Quorum())
	}
	return nil
}

// verifyPrepared checks the prepared claim of a signed ViewChange: the block
// matches the claimed hash and height, and a quorum of vs prepared it in the
// claimed view, which is below the requested one.
func verifyPrepared(vc *Message, vs *validators.ValidatorSet) error {
	if vc.CandidateHash.IsZero() {
		if vc.Block != nil {
			return errors.Wrap(ErrPreparedProof, "block without prepared hash")
		}
		return nil
	}
	if vc.PreparedView >= vc.View {
		return errors.Wrapf(ErrPreparedProof, "prepared in view %d, not below %d", vc.PreparedView, vc.View)
	}
	if vc.Block == nil || vc.Block.Hash() != vc.CandidateHash || vc.Block.Height() != vc.Height {
		return errors.Wrap(ErrPreparedProof, "block does not match the prepared hash")
	}
	n := countSigned(Prepare, vc.PreparedView, vc.Height, vc.CandidateHash, vc.Prepared, vs)
	if n < vs.Quorum() {
		return errors.Wrapf(ErrPreparedProof, "%d valid prepare signatures, %d required", n, vs.Quorum())
	}
	return nil
}

// highestPrepared returns the view change whose block was prepared in the
// highest view, nil when none is prepared. Ties go to the lower hash so that
// every validator picks the same block from the same messages.
func highestPrepared(vcs []*Message) *Message {
	var best *Message
	for _, vc := range vcs {
		if vc.CandidateHash.IsZero() {
			continue
		}
		if best == nil || vc.PreparedView > best.PreparedView ||
			(vc.PreparedView == best.PreparedView && vc.CandidateHash.Less(best.CandidateHash)) {
			best = vc
		}
	}
	return best
}

// verifyNewView checks the view changes carried by a PrePrepare: each is
// signed, asks for the PrePrepare's view at its height and proves its
// prepared claim, and together they come from a quorum of distinct voters.
// It returns the highest prepared one, whose block the PrePrepare must carry.
func verifyNewView(pp *Message, vs *validators.ValidatorSet) (*Message, error) {
	senders := make(map[string]bool)
	for _, vc := range pp.NewView {
		if vc == nil || vc.Type != ViewChange || vc.View != pp.View || vc.Height != pp.Height {
			return nil, errors.Wrap(ErrNewView, "view change for another view or height")
		}
		if !vs.IsVoter(vc.SenderID) {
			return nil, errors.Wrap(ErrNewView, ErrUnknownSender.Error())
		}
		if ok, err := vc.Verify(); err != nil || !ok {
			return nil, errors.Wrap(ErrNewView, ErrBadSignature.Error())
		}
		if err := verifyPrepared(vc, vs); err != nil {
			return nil, errors.Wrap(ErrNewView, err.Error())
		}
		senders[common.NormalizeHex(vc.SenderID)] = true
	}
	if len(senders) < vs.Quorum() {
		return nil, errors.Wrapf(ErrNewView, "%d view changes, %d required", len(senders), vs.Quorum())
	}
	return highestPrepared(pp.NewView), nil
}
