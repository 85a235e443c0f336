package consensus

import (
	"sort"

	"github.com/provchain/semchain/src/graph"
)

type voteKey struct {
	view   uint64
	height uint64
	hash   graph.Digest
}

// tally counts votes by sender, so duplicates are harmless.
type tally struct {
	votes map[voteKey]map[string]string // key => sender => signature
}

func newTally() *tally {
	return &tally{
		votes: make(map[voteKey]map[string]string),
	}
}

// add records a vote and reports whether it is new.
func (t *tally) add(k voteKey, sender, signature string) bool {
	senders, ok := t.votes[k]
	if !ok {
		senders = make(map[string]string)
		t.votes[k] = senders
	}
	if _, ok := senders[sender]; ok {
		return false
	}
	senders[sender] = signature
	return true
}

func (t *tally) count(k voteKey) int {
	return len(t.votes[k])
}

func (t *tally) signatures(k voteKey) map[string]string {
	res := make(map[string]string, len(t.votes[k]))
	for s, sig := range t.votes[k] {
		res[s] = sig
	}
	return res
}

// hasVoted reports whether sender voted for any hash in view at height.
func (t *tally) hasVoted(view, height uint64, sender string) (graph.Digest, bool) {
	for k, senders := range t.votes {
		if k.view != view || k.height != height {
			continue
		}
		if _, ok := senders[sender]; ok {
			return k.hash, true
		}
	}
	return graph.Digest{}, false
}

// pruneBelow drops every vote for heights under height.
func (t *tally) pruneBelow(height uint64) {
	for k := range t.votes {
		if k.height < height {
			delete(t.votes, k)
		}
	}
}

// viewChanges counts ViewChange messages by requested view.
type viewChanges struct {
	votes map[uint64]map[string]*Message
}

func newViewChanges() *viewChanges {
	return &viewChanges{
		votes: make(map[uint64]map[string]*Message),
	}
}

func (v *viewChanges) add(m *Message) bool {
	senders, ok := v.votes[m.View]
	if !ok {
		senders = make(map[string]*Message)
		v.votes[m.View] = senders
	}
	if _, ok := senders[m.SenderID]; ok {
		return false
	}
	senders[m.SenderID] = m
	return true
}

func (v *viewChanges) count(view uint64) int {
	return len(v.votes[view])
}

// messages returns the view changes for view, ordered by sender.
func (v *viewChanges) messages(view uint64) []*Message {
	res := make([]*Message, 0, len(v.votes[view]))
	for _, m := range v.votes[view] {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SenderID < res[j].SenderID })
	return res
}

func (v *viewChanges) pruneUpTo(view uint64) {
	for k := range v.votes {
		if k <= view {
			delete(v.votes, k)
		}
	}
}

func (v *viewChanges) reset() {
	v.votes = make(map[uint64]map[string]*Message)
}
