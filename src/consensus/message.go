package consensus

import (
	"fmt"

	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
)

// MessageType ...
type MessageType uint8

const (
	// PrePrepare carries the candidate block of the primary.
	PrePrepare MessageType = iota
	// Prepare is the first vote.
	Prepare
	// Commit is the second vote.
	Commit
	// ViewChange asks to move to View.
	ViewChange
	// Proposal carries an authority block.
	Proposal
)

func (t MessageType) String() string {
	switch t {
	case PrePrepare:
		return "PrePrepare"
	case Prepare:
		return "Prepare"
	case Commit:
		return "Commit"
	case ViewChange:
		return "ViewChange"
	case Proposal:
		return "Proposal"
	default:
		return "Unknown"
	}
}

// Message is exchanged between engines. PrePrepare and Proposal messages
// carry the candidate block.
//
// A ViewChange names in CandidateHash the block its sender is prepared on,
// zero if none. It then carries that block, the view in which it was
// prepared and the Prepare signatures of the quorum that prepared it.
type Message struct {
	Type          MessageType
	View          uint64
	Height        uint64
	CandidateHash graph.Digest
	SenderID      string
	Signature     string

	Block *chain.Block

	PreparedView uint64
	Prepared     map[string]string // [validator hex] => Prepare signature

	// NewView holds the quorum of ViewChange messages that moved the
	// validators to View. PrePrepares above view 0 must carry it.
	NewView []*Message
}

// SigningBytes returns the bytes covered by the signature. Votes sign
// "<type>:<view>-<height>-<hash>-<sender>"; view changes sign
// "<type>:<view>-<height>-<hash>-<prepared view>-<sender>", where view is the
// requested one and hash the prepared block.
func (m *Message) SigningBytes() []byte {
	if m.Type == ViewChange {
		return []byte(fmt.Sprintf("%s:%d-%d-%s-%d-%s", m.Type, m.View, m.Height, m.CandidateHash, m.PreparedView, m.SenderID))
	}
	return []byte(fmt.Sprintf("%s:%d-%d-%s-%s", m.Type, m.View, m.Height, m.CandidateHash, m.SenderID))
}

// Sign sets SenderID to the signer and signs the message.
func (m *Message) Sign(signer *validators.Signer) error {
	m.SenderID = signer.PublicKeyHex()
	sig, err := signer.Sign(m.SigningBytes())
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Verify checks the signature against SenderID.
func (m *Message) Verify() (bool, error) {
	return keys.VerifyBytes(m.SenderID, m.SigningBytes(), m.Signature)
}

// String ...
func (m *Message) String() string {
	return fmt.Sprintf("%s{view=%d height=%d hash=%s}", m.Type, m.View, m.Height, m.CandidateHash)
}
