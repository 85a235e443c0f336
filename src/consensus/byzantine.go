package consensus

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

// Phase is the progress of the current height.
type Phase uint8

const (
	// Idle means no candidate has been accepted yet.
	Idle Phase = iota
	// PrePrepared means a candidate has been accepted and prepared on.
	PrePrepared
	// Prepared means a quorum prepared the candidate.
	Prepared
	// Committed means a quorum committed the candidate. Engines move on
	// to the next height right away, so this phase is only transient.
	Committed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case PrePrepared:
		return "PrePrepared"
	case Prepared:
		return "Prepared"
	case Committed:
		return "Committed"
	default:
		return "Unknown"
	}
}

// maxBuffered bounds the messages kept for future heights and views.
const maxBuffered = 4096

// ByzantineEngine implements three-phase byzantine agreement. The primary of
// a view pre-prepares a candidate; validators prepare it and, once a quorum
// prepared, commit it. A quorum of commits finalizes the block. When a height
// does not commit before the deadline, validators ask for the next view, and
// a quorum of such requests rotates the primary.
//
// A validator that saw a quorum prepare a block is locked on it for the rest
// of the height. Its view changes carry the Prepare signatures, the new
// primary must pre-prepare the block prepared in the highest view among the
// view changes it gathered, and it forwards them so that the others can check.
//
// Each call processes at most one height: once a block commits, buffered and
// incoming messages wait for the next call, so that the caller can apply the
// consequences of the commit first.
type ByzantineEngine struct {
	conf   Config
	chain  *chain.Chain
	vs     *validators.ValidatorSet
	signer *validators.Signer
	logger *logrus.Entry

	view          uint64
	requestedView uint64
	height        uint64
	phase         Phase
	candidate     *chain.Block
	sentPrepare   bool
	sentCommit    bool
	deadline      time.Time

	// the last candidate a quorum prepared at this height, with the
	// Prepare signatures of that quorum
	locked      *chain.Block
	lockedView  uint64
	lockedProof map[string]string
	// the candidate to pre-prepare again after a view change, and the view
	// changes that justify the current view
	reproposal *chain.Block
	newView    []*Message
	// own messages of the current view, sent again on timeout
	sent []*Message

	prepares    *tally
	commits     *tally
	viewChanges *viewChanges
	future      []*Message
	replay      bool

	committed []*chain.Block
}

// NewByzantineEngine ...
func NewByzantineEngine(conf Config) (*ByzantineEngine, error) {
	conf.setDefaults()
	if err := conf.check(); err != nil {
		return nil, err
	}

	return &ByzantineEngine{
		conf:        conf,
		chain:       conf.Chain,
		vs:          conf.Validators,
		signer:      conf.Signer,
		logger:      conf.Logger.WithField("strategy", ByzantineAgreement.String()),
		height:      conf.Chain.Height() + 1,
		prepares:    newTally(),
		commits:     newTally(),
		viewChanges: newViewChanges(),
	}, nil
}

// Strategy implements the Engine interface.
func (e *ByzantineEngine) Strategy() Strategy {
	return ByzantineAgreement
}

// Phase returns the phase of the current height.
func (e *ByzantineEngine) Phase() Phase {
	return e.phase
}

// Height returns the height being agreed on.
func (e *ByzantineEngine) Height() uint64 {
	return e.height
}

// Primary returns the primary of the current view.
func (e *ByzantineEngine) Primary() *validators.Validator {
	return e.vs.Primary(e.view)
}

func (e *ByzantineEngine) isPrimary() bool {
	p := e.Primary()
	return p != nil && p.PubKeyHex == e.signer.PublicKeyHex()
}

func (e *ByzantineEngine) isVoter() bool {
	return e.vs.IsVoter(e.signer.PublicKeyHex())
}

func (e *ByzantineEngine) authorizer() chain.Authorizer {
	return chain.AuthorizerFunc(func(b *chain.Block, tip *chain.Block, vs *validators.ValidatorSet) error {
		if !vs.IsVoter(b.Header.ProposerID) {
			return fmt.Errorf("proposer %s has no voting weight", b.Header.ProposerID)
		}
		return nil
	})
}

// arm starts the round deadline if it is not running.
func (e *ByzantineEngine) arm(now time.Time) {
	if e.deadline.IsZero() {
		e.deadline = now.Add(e.conf.ViewTimeout)
	}
}

// signed builds and signs a message about the current height.
func (e *ByzantineEngine) signed(t MessageType, view uint64, hash graph.Digest) *Message {
	m := &Message{
		Type:          t,
		View:          view,
		Height:        e.height,
		CandidateHash: hash,
	}
	if err := m.Sign(e.signer); err != nil {
		e.logger.WithError(err).WithField("type", t).Error("Signing message")
		return nil
	}
	return m
}

// own records m as sent in the current view.
func (e *ByzantineEngine) own(out []*Message, m *Message) []*Message {
	if m == nil {
		return out
	}
	e.sent = append(e.sent, m)
	return append(out, m)
}

func appendMessage(out []*Message, m *Message) []*Message {
	if m == nil {
		return out
	}
	return append(out, m)
}

// Propose implements the Engine interface. Only the primary proposes, and
// only when idle. After a view change, a block prepared in an earlier view
// is proposed again instead of a new one.
func (e *ByzantineEngine) Propose(statements []graph.Statement, now time.Time) (*chain.Block, []*Message, error) {
	start := e.height
	out := e.flush(now, start)
	if e.height != start {
		return nil, out, nil
	}

	if e.reproposal == nil && len(statements) == 0 {
		return nil, out, nil
	}
	if e.phase != Idle || !e.isPrimary() {
		e.arm(now)
		return nil, out, nil
	}

	tip := e.chain.Tip()
	b := e.reproposal
	if b == nil {
		var err error
		b, err = chain.ProposeBlock(statements, tip, now, e.signer)
		if err != nil {
			return nil, out, err
		}
	}
	if err := chain.ValidateBlock(b, tip, e.vs, e.conf.Gate, e.authorizer()); err != nil {
		e.reproposal = nil
		return nil, out, err
	}

	pp := e.signed(PrePrepare, e.view, b.Hash())
	if pp == nil {
		return nil, out, fmt.Errorf("could not sign pre-prepare")
	}
	pp.Block = b
	if e.view > 0 {
		pp.NewView = e.newView
	}
	out = e.own(out, pp)

	e.logger.WithFields(logrus.Fields{
		"height": e.height,
		"view":   e.view,
		"hash":   b.Hash(),
	}).Debug("Pre-preparing block")

	e.arm(now)
	more, err := e.accept(b, now)
	return b, append(out, more...), err
}

// OnMessage implements the Engine interface.
func (e *ByzantineEngine) OnMessage(msg *Message, now time.Time) ([]*Message, error) {
	start := e.height
	out := e.flush(now, start)
	if e.height != start {
		e.buffer(msg)
		return out, nil
	}
	more, err := e.handle(msg, now)
	return append(out, more...), err
}

// Resume replays the messages held back after a commit. It returns nothing
// when no height moved since the last replay.
func (e *ByzantineEngine) Resume(now time.Time) []*Message {
	return e.flush(now, e.height)
}

func (e *ByzantineEngine) handle(msg *Message, now time.Time) ([]*Message, error) {
	if !e.vs.IsVoter(msg.SenderID) {
		return nil, ErrUnknownSender
	}
	if ok, err := msg.Verify(); err != nil || !ok {
		return nil, ErrBadSignature
	}

	m := *msg
	m.SenderID = common.NormalizeHex(msg.SenderID)

	if m.Height < e.height {
		return nil, nil
	}
	if m.Height > e.height {
		if m.Height > e.height+FutureHeightWindow {
			return nil, ErrFutureHeight
		}
		e.buffer(&m)
		return nil, nil
	}

	switch m.Type {
	case PrePrepare:
		return e.onPrePrepare(&m, now)
	case Prepare:
		e.prepares.add(voteKey{m.View, m.Height, m.CandidateHash}, m.SenderID, m.Signature)
		return e.checkProgress(now)
	case Commit:
		e.commits.add(voteKey{m.View, m.Height, m.CandidateHash}, m.SenderID, m.Signature)
		return e.checkProgress(now)
	case ViewChange:
		return e.onViewChange(&m, now)
	default:
		return nil, fmt.Errorf("unexpected %s message", m.Type)
	}
}

func (e *ByzantineEngine) buffer(m *Message) {
	if len(e.future) >= maxBuffered {
		e.logger.WithField("message", m).Debug("Buffer full, dropping message")
		return
	}
	e.future = append(e.future, m)
}

// flush replays the buffered messages after the height or the view moved.
// It stops at the first commit past start and keeps the rest for later.
func (e *ByzantineEngine) flush(now time.Time, start uint64) []*Message {
	var out []*Message
	for e.replay && e.height == start {
		e.replay = false
		pending := e.future
		e.future = nil
		for i, m := range pending {
			if e.height != start {
				rest := append([]*Message{}, pending[i:]...)
				e.future = append(rest, e.future...)
				break
			}
			more, err := e.handle(m, now)
			if err != nil {
				e.logger.WithError(err).WithField("message", m).Debug("Dropping buffered message")
			}
			out = append(out, more...)
		}
	}
	return out
}

func (e *ByzantineEngine) onPrePrepare(m *Message, now time.Time) ([]*Message, error) {
	if m.View < e.view {
		return nil, nil
	}
	if m.View > e.view {
		e.buffer(m)
		return nil, nil
	}

	if p := e.Primary(); p == nil || p.PubKeyHex != m.SenderID {
		return nil, fmt.Errorf("pre-prepare from %s who is not the primary of view %d", m.SenderID, m.View)
	}
	if m.Block == nil || m.Block.Hash() != m.CandidateHash {
		return nil, fmt.Errorf("pre-prepare hash does not match its block")
	}
	if e.candidate != nil {
		if e.candidate.Hash() == m.CandidateHash {
			return nil, nil
		}
		return nil, fmt.Errorf("conflicting pre-prepare for height %d in view %d", m.Height, m.View)
	}

	var highest *Message
	if m.View > 0 {
		var err error
		if highest, err = verifyNewView(m, e.vs); err != nil {
			return nil, err
		}
		if highest != nil && highest.CandidateHash != m.CandidateHash {
			return nil, errors.Wrapf(ErrNewView, "pre-prepare ignores block %s prepared in view %d",
				highest.CandidateHash, highest.PreparedView)
		}
	}
	if e.locked != nil && e.locked.Hash() != m.CandidateHash &&
		(highest == nil || highest.PreparedView <= e.lockedView) {
		return nil, errors.Wrapf(ErrLocked, "block %s prepared in view %d", e.locked.Hash(), e.lockedView)
	}

	b := *m.Block
	b.Certificate = nil
	if err := chain.ValidateBlock(&b, e.chain.Tip(), e.vs, e.conf.Gate, e.authorizer()); err != nil {
		return nil, err
	}

	e.arm(now)
	return e.accept(&b, now)
}

// accept makes b the candidate of the current view and prepares it.
func (e *ByzantineEngine) accept(b *chain.Block, now time.Time) ([]*Message, error) {
	e.candidate = b
	e.phase = PrePrepared

	var out []*Message
	if !e.sentPrepare && e.isVoter() {
		p := e.signed(Prepare, e.view, b.Hash())
		if p != nil {
			e.sentPrepare = true
			e.prepares.add(voteKey{e.view, e.height, b.Hash()}, p.SenderID, p.Signature)
			out = e.own(out, p)
		}
	}

	more, err := e.checkProgress(now)
	return append(out, more...), err
}

// countVoters counts the senders of a tally entry that can vote in the
// current set.
func (e *ByzantineEngine) countVoters(senders map[string]string) int {
	n := 0
	for s := range senders {
		if e.vs.IsVoter(s) {
			n++
		}
	}
	return n
}

// checkProgress moves the candidate through the phases as quorums form.
func (e *ByzantineEngine) checkProgress(now time.Time) ([]*Message, error) {
	if e.candidate == nil {
		return nil, nil
	}

	var out []*Message
	hash := e.candidate.Hash()
	k := voteKey{e.view, e.height, hash}
	quorum := e.vs.Quorum()

	if e.phase == PrePrepared && e.countVoters(e.prepares.votes[k]) >= quorum {
		e.phase = Prepared
		e.locked = e.candidate
		e.lockedView = e.view
		e.lockedProof = map[string]string{}
		for s, sig := range e.prepares.signatures(k) {
			if e.vs.IsVoter(s) {
				e.lockedProof[s] = sig
			}
		}

		if !e.sentCommit && e.isVoter() {
			c := e.signed(Commit, e.view, hash)
			if c != nil {
				e.sentCommit = true
				e.commits.add(k, c.SenderID, c.Signature)
				out = e.own(out, c)
			}
		}
	}

	if e.countVoters(e.commits.votes[k]) >= quorum {
		if err := e.finalize(k, now); err != nil {
			return out, err
		}
	}

	return out, nil
}

// finalize appends the candidate with its commit certificate and moves on to
// the next height.
func (e *ByzantineEngine) finalize(k voteKey, now time.Time) error {
	signatures := map[string]string{}
	for s, sig := range e.commits.signatures(k) {
		if e.vs.IsVoter(s) {
			signatures[s] = sig
		}
	}

	final := *e.candidate
	final.Certificate = &chain.Certificate{
		View:       k.view,
		Signatures: signatures,
	}

	e.phase = Committed
	if err := e.chain.Append(&final); err != nil {
		return errors.Wrap(err, "appending committed block")
	}
	e.committed = append(e.committed, &final)

	e.logger.WithFields(logrus.Fields{
		"height":     final.Height(),
		"hash":       final.Hash(),
		"view":       k.view,
		"signatures": len(signatures),
	}).Info("Committed block")

	e.nextHeight()
	return nil
}

func (e *ByzantineEngine) nextHeight() {
	e.height = e.chain.Height() + 1
	e.phase = Idle
	e.candidate = nil
	e.sentPrepare = false
	e.sentCommit = false
	e.locked = nil
	e.lockedView = 0
	e.lockedProof = nil
	e.reproposal = nil
	e.newView = nil
	e.sent = nil
	e.deadline = time.Time{}
	e.requestedView = e.view
	e.prepares.pruneBelow(e.height)
	e.commits.pruneBelow(e.height)
	e.viewChanges.reset()
	e.replay = true
}

func (e *ByzantineEngine) onViewChange(m *Message, now time.Time) ([]*Message, error) {
	if m.View <= e.view {
		return nil, nil
	}
	if err := verifyPrepared(m, e.vs); err != nil {
		return nil, err
	}

	e.viewChanges.add(m)

	var out []*Message
	// f+1 requests include at least one honest validator, so join them
	if e.viewChanges.count(m.View) >= e.vs.FaultTolerance()+1 && e.requestedView < m.View && e.isVoter() {
		out = appendMessage(out, e.requestView(m.View, now))
	}
	if e.viewChanges.count(m.View) >= e.vs.Quorum() {
		e.enterView(m.View, now)
	}
	return out, nil
}

// requestView broadcasts a ViewChange for view, carrying the locked block.
func (e *ByzantineEngine) requestView(view uint64, now time.Time) *Message {
	e.requestedView = view

	// back off exponentially with the number of views skipped
	steps := view - e.view
	if steps > 3 {
		steps = 3
	}
	e.deadline = now.Add(e.conf.ViewTimeout * time.Duration(uint64(1)<<steps))

	vc := &Message{
		Type:   ViewChange,
		View:   view,
		Height: e.height,
	}
	if e.locked != nil {
		vc.CandidateHash = e.locked.Hash()
		vc.Block = e.locked
		vc.PreparedView = e.lockedView
		vc.Prepared = e.lockedProof
	}
	if err := vc.Sign(e.signer); err != nil {
		e.logger.WithError(err).Error("Signing view change")
		return nil
	}
	e.viewChanges.add(vc)
	return vc
}

func (e *ByzantineEngine) enterView(view uint64, now time.Time) {
	e.newView = e.viewChanges.messages(view)
	e.reproposal = nil
	if vc := highestPrepared(e.newView); vc != nil {
		b := *vc.Block
		b.Certificate = nil
		e.reproposal = &b
	} else if e.locked != nil {
		e.reproposal = e.locked
	}

	e.view = view
	if e.requestedView < view {
		e.requestedView = view
	}
	e.phase = Idle
	e.candidate = nil
	e.sentPrepare = false
	e.sentCommit = false
	e.sent = nil
	e.deadline = now.Add(e.conf.ViewTimeout)
	e.viewChanges.pruneUpTo(view)
	e.replay = true

	primary := e.Primary()
	e.logger.WithFields(logrus.Fields{
		"height":  e.height,
		"view":    view,
		"primary": primary.Moniker,
	}).Info("View changed")
}

// OnTimeout implements the Engine interface. An expired deadline sends the
// messages of the current view again, for peers that missed them, and
// requests the next view.
func (e *ByzantineEngine) OnTimeout(now time.Time) []*Message {
	start := e.height
	out := e.flush(now, start)
	if e.height != start {
		return out
	}

	if e.deadline.IsZero() || now.Before(e.deadline) {
		return out
	}
	out = append(out, e.sent...)

	next := e.requestedView + 1
	if next <= e.view {
		next = e.view + 1
	}

	e.logger.WithError(ErrQuorumTimeout).WithFields(logrus.Fields{
		"height": e.height,
		"view":   e.view,
		"next":   next,
	}).Warn("Requesting view change")

	if !e.isVoter() {
		e.deadline = now.Add(e.conf.ViewTimeout)
		return out
	}

	out = appendMessage(out, e.requestView(next, now))
	if e.viewChanges.count(next) >= e.vs.Quorum() {
		e.enterView(next, now)
	}
	return out
}

// Deadline implements the Engine interface.
func (e *ByzantineEngine) Deadline() time.Time {
	return e.deadline
}

// SyncBlock implements the Engine interface. The block must carry a valid
// commit certificate.
func (e *ByzantineEngine) SyncBlock(b *chain.Block, now time.Time) error {
	if err := chain.ValidateBlock(b, e.chain.Tip(), e.vs, e.conf.Gate, e.authorizer()); err != nil {
		return err
	}
	if err := VerifyCertificate(b, e.vs); err != nil {
		return err
	}
	if err := e.chain.Append(b); err != nil {
		return errors.Wrap(err, "appending synced block")
	}
	e.committed = append(e.committed, b)
	e.nextHeight()
	return nil
}

// FinalizedHeight implements the Engine interface. Every appended block is
// final.
func (e *ByzantineEngine) FinalizedHeight() uint64 {
	return e.chain.Height()
}

// View implements the Engine interface.
func (e *ByzantineEngine) View() uint64 {
	return e.view
}

// Validators implements the Engine interface.
func (e *ByzantineEngine) Validators() *validators.ValidatorSet {
	return e.vs
}

// ApplyMembershipChange implements the Engine interface.
func (e *ByzantineEngine) ApplyMembershipChange(diff validators.MembershipDiff) error {
	if e.phase != Idle || e.candidate != nil {
		return ErrMidRound
	}
	next, err := e.vs.ApplyMembershipChange(diff)
	if err != nil {
		return err
	}
	e.vs = next
	return nil
}

// TakeCommitted implements the Engine interface.
func (e *ByzantineEngine) TakeCommitted() []*chain.Block {
	res := e.committed
	e.committed = nil
	return res
}
