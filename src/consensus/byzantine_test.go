package consensus

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/graph"
	"github.com/stretchr/testify/require"
)

func TestByzantineCommit(t *testing.T) {
	net, _, vs := newByzantineNet(t, 4, time.Second)

	primary := net.engines[0].(*ByzantineEngine)
	require.True(t, primary.isPrimary())

	b, out, err := primary.Propose(statements("Batch1"), t0)
	require.NoError(t, err)
	require.NotNil(t, b)
	net.broadcast(0, out)
	net.run(t0)
	require.Empty(t, net.errs)

	for i, e := range net.engines {
		require.Equal(t, uint64(1), e.FinalizedHeight(), "engine %d", i)
		committed := e.TakeCommitted()
		require.Len(t, committed, 1)
		require.Equal(t, b.Hash(), committed[0].Hash())
		require.NoError(t, VerifyCertificate(committed[0], vs))
		require.Equal(t, Idle, e.(*ByzantineEngine).Phase())
	}
}

func TestByzantineNonPrimaryDoesNotPropose(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)

	b, out, err := net.engines[1].Propose(statements("Batch1"), t0)
	require.NoError(t, err)
	require.Nil(t, b)
	require.Empty(t, out)
	require.Equal(t, t0.Add(time.Second), net.engines[1].Deadline())
}

// Four validators tolerate one silent validator: the remaining three form a
// quorum of three and commit.
func TestByzantineOneSilentValidator(t *testing.T) {
	net, _, vs := newByzantineNet(t, 4, time.Second)
	require.Equal(t, 1, vs.FaultTolerance())
	require.Equal(t, 3, vs.Quorum())

	net.silent[3] = true

	b, out, err := net.engines[0].Propose(statements("Batch1"), t0)
	require.NoError(t, err)
	net.broadcast(0, out)
	net.run(t0)

	for i := 0; i < 3; i++ {
		require.Equal(t, uint64(1), net.engines[i].FinalizedHeight(), "engine %d", i)
		committed := net.engines[i].TakeCommitted()
		require.Len(t, committed, 1)
		require.Equal(t, b.Hash(), committed[0].Hash())
		require.Len(t, committed[0].Certificate.Signatures, 3)
	}
	require.Equal(t, uint64(0), net.engines[3].FinalizedHeight())
}

func TestByzantineTwoSilentValidatorsStall(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)
	net.silent[2] = true
	net.silent[3] = true

	_, out, err := net.engines[0].Propose(statements("Batch1"), t0)
	require.NoError(t, err)
	net.broadcast(0, out)
	net.run(t0)

	require.Equal(t, uint64(0), net.engines[0].FinalizedHeight())
	require.Equal(t, uint64(0), net.engines[1].FinalizedHeight())
}

func TestByzantineViewChange(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)

	// the primary of view 0 is silent
	net.silent[0] = true

	for i := 1; i < 4; i++ {
		b, out, err := net.engines[i].Propose(statements("Batch1"), t0)
		require.NoError(t, err)
		require.Nil(t, b)
		require.Empty(t, out)
	}

	net.timeout(t0.Add(2 * time.Second))
	for i := 1; i < 4; i++ {
		require.Equal(t, uint64(1), net.engines[i].View(), "engine %d", i)
	}

	primary := net.engines[1].(*ByzantineEngine)
	require.True(t, primary.isPrimary())

	now := t0.Add(3 * time.Second)
	b, out, err := primary.Propose(statements("Batch1"), now)
	require.NoError(t, err)
	require.NotNil(t, b)
	net.broadcast(1, out)
	net.run(now)

	for i := 1; i < 4; i++ {
		require.Equal(t, uint64(1), net.engines[i].FinalizedHeight(), "engine %d", i)
	}
}

// A single late view change request does not move the view, f+1 requests
// make the other validators join.
func TestByzantineViewChangeJoin(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)

	e1 := net.engines[1].(*ByzantineEngine)
	e2 := net.engines[2].(*ByzantineEngine)
	e1.arm(t0)
	e2.arm(t0)

	later := t0.Add(2 * time.Second)
	net.broadcast(1, e1.OnTimeout(later))
	net.run(later)
	for _, e := range net.engines {
		require.Equal(t, uint64(0), e.View())
	}

	net.broadcast(2, e2.OnTimeout(later))
	net.run(later)
	for i, e := range net.engines {
		require.Equal(t, uint64(1), e.View(), "engine %d", i)
	}
}

func TestByzantineRejectsForgedMessages(t *testing.T) {
	net, signers, _ := newByzantineNet(t, 4, time.Second)
	_, outsiders := newSortedSigners(t, 1)

	e := net.engines[1]

	vote := &Message{Type: Prepare, Height: 1}
	require.NoError(t, vote.Sign(signers[2]))
	vote.View = 7
	_, err := e.OnMessage(vote, t0)
	require.Equal(t, ErrBadSignature, err)

	stranger := &Message{Type: Prepare, Height: 1, SenderID: outsiders.Validators[0].PubKeyHex}
	_, err = e.OnMessage(stranger, t0)
	require.Equal(t, ErrUnknownSender, err)

	far := &Message{Type: Prepare, Height: FutureHeightWindow + 2}
	require.NoError(t, far.Sign(signers[2]))
	_, err = e.OnMessage(far, t0)
	require.Equal(t, ErrFutureHeight, err)
}

func TestByzantinePrePrepareFromNonPrimary(t *testing.T) {
	net, signers, _ := newByzantineNet(t, 4, time.Second)
	tip := net.engines[1].(*ByzantineEngine).chain.Tip()

	b, err := chain.ProposeBlock(statements("Batch1"), tip, t0, signers[2])
	require.NoError(t, err)
	pp := &Message{Type: PrePrepare, Height: 1, CandidateHash: b.Hash(), Block: b}
	require.NoError(t, pp.Sign(signers[2]))

	_, err = net.engines[1].OnMessage(pp, t0)
	require.Error(t, err)
	require.Equal(t, Idle, net.engines[1].(*ByzantineEngine).Phase())
}

// An equivocating primary sends different candidates to different validators
// and votes for both. No two validators commit different blocks.
func TestByzantineEquivocatingPrimary(t *testing.T) {
	net, signers, _ := newByzantineNet(t, 4, time.Second)
	primary := signers[0]
	tip := net.engines[1].(*ByzantineEngine).chain.Tip()

	candidate := func(batch string) (*chain.Block, []*Message) {
		b, err := chain.ProposeBlock(statements(batch), tip, t0, primary)
		require.NoError(t, err)
		msgs := []*Message{}
		for _, typ := range []MessageType{PrePrepare, Prepare, Commit} {
			m := &Message{Type: typ, Height: 1, CandidateHash: b.Hash()}
			if typ == PrePrepare {
				m.Block = b
			}
			require.NoError(t, m.Sign(primary))
			msgs = append(msgs, m)
		}
		return b, msgs
	}

	a, aMsgs := candidate("BatchA")
	b, bMsgs := candidate("BatchB")
	require.NotEqual(t, a.Hash(), b.Hash())

	net.silent[0] = false
	net.send(0, 1, aMsgs...)
	net.send(0, 2, aMsgs...)
	net.send(0, 3, bMsgs...)
	// the byzantine primary also gets every honest vote, but never answers
	net.engines[0] = &mute{}
	net.run(t0)

	committed := map[graph.Digest]int{}
	for i := 1; i < 4; i++ {
		for _, blk := range net.engines[i].TakeCommitted() {
			committed[blk.Hash()]++
		}
	}
	require.True(t, len(committed) <= 1, "conflicting commits: %v", committed)
}

func TestByzantineBuffersFutureHeight(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)

	// engine 3 misses the first height
	net.silent[3] = true
	_, out, err := net.engines[0].Propose(statements("Batch1"), t0)
	require.NoError(t, err)
	net.broadcast(0, out)
	net.run(t0)

	// votes for height 2 reach engine 3 before it catches up
	net.silent[3] = false
	_, out, err = net.engines[0].Propose(statements("Batch2"), t0.Add(time.Second))
	require.NoError(t, err)
	net.broadcast(0, out)
	net.run(t0.Add(time.Second))
	require.Equal(t, uint64(0), net.engines[3].FinalizedHeight())

	// once height 1 arrives through sync, the buffered height 2 completes
	first, err := net.engines[0].(*ByzantineEngine).chain.Block(1)
	require.NoError(t, err)
	require.NoError(t, net.engines[3].SyncBlock(first, t0.Add(time.Second)))

	e3 := net.engines[3].(*ByzantineEngine)
	net.broadcast(3, e3.OnTimeout(t0.Add(time.Second)))
	net.run(t0.Add(time.Second))

	require.Equal(t, uint64(2), net.engines[3].FinalizedHeight())
	require.Len(t, net.engines[3].TakeCommitted(), 2)
}

func TestByzantineMembershipChangeBetweenHeights(t *testing.T) {
	net, signers, _ := newByzantineNet(t, 4, time.Second)
	_, extra := newSortedSigners(t, 1)

	e0 := net.engines[0].(*ByzantineEngine)
	_, out, err := e0.Propose(statements("Batch1"), t0)
	require.NoError(t, err)

	// a round is in progress on the primary
	require.Equal(t, ErrMidRound, e0.ApplyMembershipChange(diffAdding(extra)))

	net.broadcast(0, out)
	net.run(t0)
	require.Equal(t, uint64(1), e0.FinalizedHeight())

	require.NoError(t, e0.ApplyMembershipChange(diffAdding(extra)))
	require.Equal(t, 5, e0.Validators().Len())
	require.True(t, e0.Validators().Contains(signers[0].PublicKeyHex()))
}

// mute is a byzantine validator that drops everything.
type mute struct{ Engine }

func (m *mute) OnMessage(msg *Message, now time.Time) ([]*Message, error) {
	return nil, nil
}

// E0 commits A in view 0 while E2 and E3 are only prepared on it. After the
// view change, E3 turns byzantine: its forged view changes are rejected, and
// the new primary has to propose A again, so no honest validator commits
// another block at height 1.
func TestByzantineLockSurvivesViewChange(t *testing.T) {
	net, signers, _ := newByzantineNet(t, 4, time.Second)
	e := make([]*ByzantineEngine, 4)
	for i := range e {
		e[i] = net.engines[i].(*ByzantineEngine)
	}

	a, out, err := e[0].Propose(statements("BatchA"), t0)
	require.NoError(t, err)
	pp, p0 := ofType(out, PrePrepare), ofType(out, Prepare)

	p2 := ofType(deliver(t, e[2], t0, pp), Prepare)
	p3 := ofType(deliver(t, e[3], t0, pp), Prepare)
	c0 := ofType(deliver(t, e[0], t0, p2, p3), Commit)
	c2 := ofType(deliver(t, e[2], t0, p0, p3), Commit)
	c3 := ofType(deliver(t, e[3], t0, p0, p2), Commit)
	require.NotNil(t, c0)
	deliver(t, e[0], t0, c2, c3)

	require.Equal(t, uint64(1), e[0].FinalizedHeight())
	require.Equal(t, Prepared, e[2].Phase())
	require.Equal(t, Prepared, e[3].Phase())

	// E1 saw nothing; it only waits for a block
	_, _, err = e[1].Propose(statements("BatchB"), t0)
	require.NoError(t, err)

	later := t0.Add(2 * time.Second)
	vc1 := ofType(e[1].OnTimeout(later), ViewChange)
	vc2 := ofType(e[2].OnTimeout(later), ViewChange)
	vc3 := ofType(e[3].OnTimeout(later), ViewChange)
	require.True(t, vc1.CandidateHash.IsZero())
	require.Equal(t, a.Hash(), vc2.CandidateHash)
	require.Len(t, vc2.Prepared, 3)

	b, err := chain.ProposeBlock(statements("BatchB"), e[1].chain.Tip(), t0, signers[3])
	require.NoError(t, err)

	forged := *vc3
	forged.Block = b
	forged.CandidateHash = b.Hash()
	forged.PreparedView = 99
	_, err = e[1].OnMessage(&forged, later)
	require.Equal(t, ErrBadSignature, err)

	swapped := *vc3
	swapped.Block = b
	_, err = e[1].OnMessage(&swapped, later)
	require.Equal(t, ErrPreparedProof, errors.Cause(err))

	stale := *vc3
	stale.Height = 2
	_, err = e[1].OnMessage(&stale, later)
	require.Equal(t, ErrBadSignature, err)

	unproven := &Message{Type: ViewChange, View: 1, Height: 1, CandidateHash: b.Hash(), Block: b}
	require.NoError(t, unproven.Sign(signers[3]))
	_, err = e[1].OnMessage(unproven, later)
	require.Equal(t, ErrPreparedProof, errors.Cause(err))
	require.Equal(t, uint64(0), e[1].View())

	// E3 hides its lock instead, which it can sign
	hidden := &Message{Type: ViewChange, View: 1, Height: 1}
	require.NoError(t, hidden.Sign(signers[3]))

	deliver(t, e[1], later, vc2, hidden)
	deliver(t, e[2], later, vc1, hidden)
	deliver(t, e[3], later, vc1, vc2)
	for i := 1; i < 4; i++ {
		require.Equal(t, uint64(1), e[i].View(), "engine %d", i)
	}

	// a new primary that ignores the reported lock is refused
	ignoring := &Message{Type: PrePrepare, View: 1, Height: 1, CandidateHash: b.Hash(), Block: b,
		NewView: []*Message{vc1, vc2, hidden}}
	require.NoError(t, ignoring.Sign(signers[1]))
	_, err = e[2].OnMessage(ignoring, later)
	require.Equal(t, ErrNewView, errors.Cause(err))

	short := *ignoring
	short.NewView = []*Message{vc1, hidden}
	_, err = e[2].OnMessage(&short, later)
	require.Equal(t, ErrNewView, errors.Cause(err))
	require.Equal(t, Idle, e[2].Phase())

	reproposed, out, err := e[1].Propose(statements("BatchB"), later)
	require.NoError(t, err)
	require.Equal(t, a.Hash(), reproposed.Hash())
	require.Len(t, ofType(out, PrePrepare).NewView, 3)

	net.silent[0] = true
	net.broadcast(1, out)
	net.run(later)
	require.Empty(t, net.errs)

	for i, eng := range e {
		require.Equal(t, uint64(1), eng.FinalizedHeight(), "engine %d", i)
		require.Equal(t, a.Hash(), eng.chain.Tip().Hash(), "engine %d", i)
	}
}

// E2 is the only validator prepared on A, so A cannot have committed. The new
// primary legitimately proposes B; E2 refuses it, the others go on.
func TestByzantineLockedValidatorRefusesOtherBlock(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)
	e := make([]*ByzantineEngine, 4)
	for i := range e {
		e[i] = net.engines[i].(*ByzantineEngine)
	}

	a, out, err := e[0].Propose(statements("BatchA"), t0)
	require.NoError(t, err)
	pp, p0 := ofType(out, PrePrepare), ofType(out, Prepare)
	deliver(t, e[2], t0, pp)
	p3 := ofType(deliver(t, e[3], t0, pp), Prepare)
	deliver(t, e[2], t0, p0, p3)
	require.Equal(t, Prepared, e[2].Phase())
	require.Equal(t, PrePrepared, e[3].Phase())

	_, _, err = e[1].Propose(statements("BatchB"), t0)
	require.NoError(t, err)

	later := t0.Add(2 * time.Second)
	vc0 := ofType(e[0].OnTimeout(later), ViewChange)
	vc1 := ofType(e[1].OnTimeout(later), ViewChange)
	vc2 := ofType(e[2].OnTimeout(later), ViewChange)
	vc3 := ofType(e[3].OnTimeout(later), ViewChange)
	require.True(t, vc0.CandidateHash.IsZero())
	require.Equal(t, a.Hash(), vc2.CandidateHash)
	require.True(t, vc3.CandidateHash.IsZero())

	deliver(t, e[1], later, vc0, vc3)
	deliver(t, e[2], later, vc0, vc1)
	deliver(t, e[3], later, vc0, vc1)

	b, out, err := e[1].Propose(statements("BatchB"), later)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.NotEqual(t, a.Hash(), b.Hash())
	ppB := ofType(out, PrePrepare)

	_, err = e[2].OnMessage(ppB, later)
	require.Equal(t, ErrLocked, errors.Cause(err))
	require.Equal(t, Idle, e[2].Phase())

	withoutProof := *ppB
	withoutProof.NewView = nil
	_, err = e[3].OnMessage(&withoutProof, later)
	require.Equal(t, ErrNewView, errors.Cause(err))

	deliver(t, e[3], later, ppB)
	require.Equal(t, PrePrepared, e[3].Phase())
}

// A lagging engine catching up through buffered messages stops after each
// commit, so that membership changes decided by that block can be applied
// before the next height starts.
func TestByzantineStopsAtHeightBoundary(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)
	e3 := net.engines[3].(*ByzantineEngine)

	net.silent[3] = true
	for i := 0; i < 3; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		_, out, err := net.engines[0].Propose(statements(fmt.Sprintf("Batch%d", i)), now)
		require.NoError(t, err)
		net.broadcast(0, out)
		net.run(now)
	}
	require.Equal(t, uint64(3), net.engines[0].FinalizedHeight())
	net.silent[3] = false

	// heights 2 and 3 wait in the buffer
	missed := net.takeMissed(3)
	now := t0.Add(3 * time.Second)
	for _, m := range missed {
		if m.Height > 1 {
			_, err := e3.OnMessage(m, now)
			require.NoError(t, err)
		}
	}
	require.Equal(t, uint64(0), e3.FinalizedHeight())

	first, err := net.engines[0].(*ByzantineEngine).chain.Block(1)
	require.NoError(t, err)
	require.NoError(t, e3.SyncBlock(first, now))

	e3.Resume(now)
	require.Equal(t, uint64(2), e3.FinalizedHeight())
	require.Equal(t, uint64(3), e3.Height())
	require.Equal(t, Idle, e3.Phase())

	require.Nil(t, e3.candidate)

	e3.Resume(now)
	require.Equal(t, uint64(3), e3.FinalizedHeight())
	require.Len(t, e3.TakeCommitted(), 3)
}

func TestByzantineTimeoutSendsVotesAgain(t *testing.T) {
	net, _, _ := newByzantineNet(t, 4, time.Second)
	e1 := net.engines[1].(*ByzantineEngine)

	_, out, err := net.engines[0].Propose(statements("Batch1"), t0)
	require.NoError(t, err)
	p1 := ofType(deliver(t, e1, t0, ofType(out, PrePrepare)), Prepare)
	require.NotNil(t, p1)

	// the prepare was lost; the timeout carries it again with the view change
	again := e1.OnTimeout(t0.Add(2 * time.Second))
	require.Len(t, again, 2)
	require.Equal(t, p1, ofType(again, Prepare))
	require.Equal(t, uint64(1), ofType(again, ViewChange).View)
}
