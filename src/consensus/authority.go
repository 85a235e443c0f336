package consensus

import (
	"fmt"
	"time"

	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

// maxMissedScan bounds the number of slots inspected for missed turns when
// the engine jumps ahead, after a pause for instance.
const maxMissedScan = 1024

// AuthorityEngine implements authority rotation. Slots of BlockInterval start
// at the genesis timestamp and are assigned round-robin to the authorities,
// sorted by public key. The owner of a slot proposes at most one block in it;
// a silent owner loses its turn when the slot ends.
type AuthorityEngine struct {
	conf        Config
	chain       *chain.Chain
	vs          *validators.ValidatorSet
	authorities []*validators.Validator
	logger      *logrus.Entry

	genesisTime  time.Time
	started      bool
	currentSlot  uint64
	slotDeadline time.Time
	proposed     bool
	proposedSlot uint64
	filledSlots  map[uint64]bool

	perf      *performanceTracker
	committed []*chain.Block
}

// NewAuthorityEngine ...
func NewAuthorityEngine(conf Config) (*AuthorityEngine, error) {
	conf.setDefaults()
	if err := conf.check(); err != nil {
		return nil, err
	}

	authorities := conf.Validators.Authorities()
	if len(authorities) == 0 {
		return nil, fmt.Errorf("no authorities in validator set")
	}

	genesis, err := conf.Chain.Block(0)
	if err != nil {
		return nil, err
	}

	return &AuthorityEngine{
		conf:        conf,
		chain:       conf.Chain,
		vs:          conf.Validators,
		authorities: authorities,
		logger:      conf.Logger.WithField("strategy", AuthorityRotation.String()),
		genesisTime: genesis.Time(),
		filledSlots: make(map[uint64]bool),
		perf:        newPerformanceTracker(),
	}, nil
}

// Strategy implements the Engine interface.
func (e *AuthorityEngine) Strategy() Strategy {
	return AuthorityRotation
}

// SlotAt returns the slot containing t.
func (e *AuthorityEngine) SlotAt(t time.Time) uint64 {
	if t.Before(e.genesisTime) {
		return 0
	}
	return uint64(t.Sub(e.genesisTime) / e.conf.BlockInterval)
}

// AuthorityFor returns the authority owning a slot.
func (e *AuthorityEngine) AuthorityFor(slot uint64) *validators.Validator {
	return e.authorities[slot%uint64(len(e.authorities))]
}

// advance moves the current slot to the one containing now, counting the
// turns that elapsed without a block.
func (e *AuthorityEngine) advance(now time.Time) {
	slot := e.SlotAt(now)

	if !e.started {
		e.started = true
		e.currentSlot = slot
		e.setDeadline()
		return
	}

	if slot <= e.currentSlot {
		return
	}

	for s := e.currentSlot; s < slot && s-e.currentSlot < maxMissedScan; s++ {
		if e.filledSlots[s] {
			delete(e.filledSlots, s)
			continue
		}
		owner := e.AuthorityFor(s)
		e.perf.missed(owner.PubKeyHex)
		e.logger.WithFields(logrus.Fields{
			"slot":      s,
			"authority": owner.Moniker,
		}).Debug("Slot missed")
	}
	for s := range e.filledSlots {
		if s < slot {
			delete(e.filledSlots, s)
		}
	}

	e.currentSlot = slot
	e.setDeadline()
}

func (e *AuthorityEngine) setDeadline() {
	e.slotDeadline = e.genesisTime.Add(time.Duration(e.currentSlot+1) * e.conf.BlockInterval)
}

func (e *AuthorityEngine) authorizer(now time.Time) chain.Authorizer {
	return chain.AuthorizerFunc(func(b *chain.Block, tip *chain.Block, vs *validators.ValidatorSet) error {
		slot := e.SlotAt(b.Time())
		if owner := e.AuthorityFor(slot); owner.PubKeyHex != b.Header.ProposerID {
			return fmt.Errorf("slot %d belongs to %s", slot, owner.PubKeyHex)
		}
		if tip.Height() > 0 && slot <= e.SlotAt(tip.Time()) {
			return fmt.Errorf("slot %d is not after the tip slot", slot)
		}
		if b.Time().After(now.Add(e.conf.MaxFutureDrift)) {
			return fmt.Errorf("timestamp is more than %s in the future", e.conf.MaxFutureDrift)
		}
		if b.Time().Before(tip.Time().Add(e.conf.BlockInterval / 2)) {
			return fmt.Errorf("timestamp is less than %s after the tip", e.conf.BlockInterval/2)
		}
		return nil
	})
}

// Propose implements the Engine interface. A block is produced only by the
// owner of the current slot, once per slot, and only when there are
// statements to include.
func (e *AuthorityEngine) Propose(statements []graph.Statement, now time.Time) (*chain.Block, []*Message, error) {
	e.advance(now)

	if len(statements) == 0 {
		return nil, nil, nil
	}
	if e.AuthorityFor(e.currentSlot).PubKeyHex != e.conf.Signer.PublicKeyHex() {
		return nil, nil, nil
	}
	if e.proposed && e.proposedSlot == e.currentSlot {
		return nil, nil, nil
	}

	tip := e.chain.Tip()
	if tip.Height() > 0 && e.SlotAt(tip.Time()) >= e.currentSlot {
		return nil, nil, nil
	}
	if now.Before(tip.Time().Add(e.conf.BlockInterval / 2)) {
		return nil, nil, nil
	}

	b, err := chain.ProposeBlock(statements, tip, now, e.conf.Signer)
	if err != nil {
		return nil, nil, err
	}
	if err := chain.ValidateBlock(b, tip, e.vs, e.conf.Gate, e.authorizer(now)); err != nil {
		return nil, nil, err
	}

	e.proposed = true
	e.proposedSlot = e.currentSlot

	if err := e.commit(b); err != nil {
		return nil, nil, err
	}

	msg := &Message{
		Type:          Proposal,
		View:          e.currentSlot,
		Height:        b.Height(),
		CandidateHash: b.Hash(),
		Block:         b,
	}
	if err := msg.Sign(e.conf.Signer); err != nil {
		return nil, nil, err
	}

	return b, []*Message{msg}, nil
}

// OnMessage implements the Engine interface. Only Proposal messages are
// expected.
func (e *AuthorityEngine) OnMessage(msg *Message, now time.Time) ([]*Message, error) {
	if msg.Type != Proposal || msg.Block == nil {
		return nil, fmt.Errorf("unexpected %s message", msg.Type)
	}
	if !e.vs.Contains(msg.SenderID) {
		return nil, ErrUnknownSender
	}
	if ok, err := msg.Verify(); err != nil || !ok {
		return nil, ErrBadSignature
	}

	b := msg.Block
	if b.Hash() != msg.CandidateHash {
		return nil, fmt.Errorf("proposal hash does not match its block")
	}

	e.advance(now)

	tip := e.chain.Tip()
	switch {
	case b.Height() == tip.Height()+1:
		if err := chain.ValidateBlock(b, tip, e.vs, e.conf.Gate, e.authorizer(now)); err != nil {
			return nil, err
		}
		return nil, e.commit(b)
	case b.Height() <= tip.Height():
		if b.Height() == 0 || b.Height() <= e.FinalizedHeight() {
			return nil, nil
		}
		return nil, e.resolveFork(b, now)
	default:
		return nil, ErrFutureHeight
	}
}

// resolveFork handles a valid competitor of a non-final block.
func (e *AuthorityEngine) resolveFork(b *chain.Block, now time.Time) error {
	existing, err := e.chain.Block(b.Height())
	if err != nil {
		return err
	}
	if existing.Hash() == b.Hash() {
		return nil
	}

	parent, err := e.chain.Block(b.Height() - 1)
	if err != nil {
		return err
	}
	if err := chain.ValidateBlock(b, parent, e.vs, e.conf.Gate, e.authorizer(now)); err != nil {
		return err
	}

	local, err := e.chain.Blocks(b.Height(), int(e.chain.Height()-b.Height())+1)
	if err != nil {
		return err
	}
	remote := []*chain.Block{b}

	winner, err := chain.ResolveFork(local, remote, e.vs)
	if err != nil {
		return err
	}
	if winner[0] != b {
		return nil
	}

	e.logger.WithFields(logrus.Fields{
		"height":   b.Height(),
		"replaced": len(local),
		"hash":     b.Hash(),
	}).Warn("Switching to heavier branch")

	if err := e.chain.ReplaceFrom(b.Height(), remote); err != nil {
		return err
	}
	e.record(b)
	return nil
}

// ResolveBranch considers a branch fetched from a peer. Blocks the chain
// already holds are skipped; from the first differing one, the branch
// replaces the local blocks if it is valid, leaves final blocks alone and is
// backed by more validator weight.
func (e *AuthorityEngine) ResolveBranch(branch []*chain.Block, now time.Time) (bool, error) {
	for len(branch) > 0 && branch[0].Height() <= e.chain.Height() {
		existing, err := e.chain.Block(branch[0].Height())
		if err != nil {
			return false, err
		}
		if existing.Hash() != branch[0].Hash() {
			break
		}
		branch = branch[1:]
	}
	if len(branch) == 0 {
		return false, nil
	}
	from := branch[0].Height()
	if from == 0 || from <= e.FinalizedHeight() {
		return false, fmt.Errorf("cannot replace final block %d", from)
	}
	if from > e.chain.Height() {
		return false, fmt.Errorf("branch at %d does not fork from the chain", from)
	}

	parent, err := e.chain.Block(from - 1)
	if err != nil {
		return false, err
	}
	prev := parent
	for _, b := range branch {
		if err := chain.ValidateBlock(b, prev, e.vs, e.conf.Gate, e.authorizer(now)); err != nil {
			return false, err
		}
		prev = b
	}

	local, err := e.chain.Blocks(from, int(e.chain.Height()-from)+1)
	if err != nil {
		return false, err
	}
	winner, err := chain.ResolveFork(local, branch, e.vs)
	if err != nil {
		return false, err
	}
	if winner[0] != branch[0] {
		return false, nil
	}

	e.logger.WithFields(logrus.Fields{
		"from":     from,
		"replaced": len(local),
		"blocks":   len(branch),
	}).Warn("Switching to heavier synced branch")

	if err := e.chain.ReplaceFrom(from, branch); err != nil {
		return false, err
	}
	for _, b := range branch {
		e.record(b)
	}
	return true, nil
}

func (e *AuthorityEngine) commit(b *chain.Block) error {
	if err := e.chain.Append(b); err != nil {
		return err
	}
	e.record(b)
	return nil
}

func (e *AuthorityEngine) record(b *chain.Block) {
	e.perf.created(b.Header.ProposerID, b.Time())
	e.filledSlots[e.SlotAt(b.Time())] = true
	e.committed = append(e.committed, b)

	e.logger.WithFields(logrus.Fields{
		"height":   b.Height(),
		"hash":     b.Hash(),
		"slot":     e.SlotAt(b.Time()),
		"proposer": b.Header.ProposerID,
	}).Info("Committed block")
}

// OnTimeout implements the Engine interface. Silent authorities lose their
// turn without any message being exchanged.
func (e *AuthorityEngine) OnTimeout(now time.Time) []*Message {
	e.advance(now)
	return nil
}

// Deadline implements the Engine interface. It is the end of the current
// slot.
func (e *AuthorityEngine) Deadline() time.Time {
	return e.slotDeadline
}

// SyncBlock implements the Engine interface.
func (e *AuthorityEngine) SyncBlock(b *chain.Block, now time.Time) error {
	tip := e.chain.Tip()
	if err := chain.ValidateBlock(b, tip, e.vs, e.conf.Gate, e.authorizer(now)); err != nil {
		return err
	}
	return e.commit(b)
}

// FinalizedHeight implements the Engine interface. Blocks become final
// ConfirmationDepth blocks below the tip.
func (e *AuthorityEngine) FinalizedHeight() uint64 {
	h := e.chain.Height()
	if h < e.conf.ConfirmationDepth {
		return 0
	}
	return h - e.conf.ConfirmationDepth
}

// View implements the Engine interface. It returns the current slot.
func (e *AuthorityEngine) View() uint64 {
	return e.currentSlot
}

// Validators implements the Engine interface.
func (e *AuthorityEngine) Validators() *validators.ValidatorSet {
	return e.vs
}

// ApplyMembershipChange implements the Engine interface. The rotation is
// recomputed over the new authorities.
func (e *AuthorityEngine) ApplyMembershipChange(diff validators.MembershipDiff) error {
	next, err := e.vs.ApplyMembershipChange(diff)
	if err != nil {
		return err
	}
	authorities := next.Authorities()
	if len(authorities) == 0 {
		return fmt.Errorf("membership change would leave no authorities")
	}
	e.vs = next
	e.authorities = authorities
	return nil
}

// TakeCommitted implements the Engine interface.
func (e *AuthorityEngine) TakeCommitted() []*chain.Block {
	res := e.committed
	e.committed = nil
	return res
}

// Performance returns a copy of the per-authority statistics, keyed by
// public key.
func (e *AuthorityEngine) Performance() map[string]AuthorityPerformance {
	return e.perf.snapshot()
}
