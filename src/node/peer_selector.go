package node

import (
	"math/rand"

	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/validators"
)

// PeerSelector picks the validator to contact for catch-up syncs.
type PeerSelector interface {
	Peers() []*validators.Validator
	UpdateLast(pubKeyHex string)
	Next() *validators.Validator
}

//+++++++++++++++++++++++++++++++++++++++
//RANDOM

// RandomPeerSelector selects peers at random, avoiding the last one contacted
// when there is a choice. Validators without a network address are never
// selected.
type RandomPeerSelector struct {
	self            string
	selectablePeers []*validators.Validator
	last            string
}

// NewRandomPeerSelector ...
func NewRandomPeerSelector(vs *validators.ValidatorSet, self string) *RandomPeerSelector {
	ps := &RandomPeerSelector{self: common.NormalizeHex(self)}
	ps.SetValidators(vs)
	return ps
}

// SetValidators replaces the candidate peers after a membership change.
func (ps *RandomPeerSelector) SetValidators(vs *validators.ValidatorSet) {
	ps.selectablePeers = excludeSelf(vs.Validators, ps.self)
}

// Peers returns the selectable peers.
func (ps *RandomPeerSelector) Peers() []*validators.Validator {
	return ps.selectablePeers
}

// UpdateLast sets the last peer
func (ps *RandomPeerSelector) UpdateLast(pubKeyHex string) {
	ps.last = common.NormalizeHex(pubKeyHex)
}

// Next returns the next peer
func (ps *RandomPeerSelector) Next() *validators.Validator {
	selectablePeers := ps.selectablePeers

	if len(selectablePeers) == 0 {
		return nil
	}

	if len(selectablePeers) > 1 {
		selectablePeers = excludeSelf(selectablePeers, ps.last)
	}

	return selectablePeers[rand.Intn(len(selectablePeers))]
}

func excludeSelf(vals []*validators.Validator, pubKeyHex string) []*validators.Validator {
	res := []*validators.Validator{}
	for _, v := range vals {
		if v.PubKeyHex != pubKeyHex && v.NetAddr != "" {
			res = append(res, v)
		}
	}
	return res
}
