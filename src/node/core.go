package node

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/governance"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/proxy"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

// blockTimesWindow is the number of recent block timestamps kept to compute
// the median block interval.
const blockTimesWindow = 64

// poolGraphName names the graph used to check submitted batches against the
// gate before they are pooled.
const poolGraphName = "urn:semchain:pool"

// Core is the consensus core of a node: the chain, the engine, governance and
// the statement pool. It is not safe for concurrent use; the node's event loop
// owns it.
type Core struct {
	signer     *validators.Signer
	chain      *chain.Chain
	engine     consensus.Engine
	governance *governance.Governance
	proxy      proxy.AppProxy
	gate       graph.Gate

	pool         *statementPool
	peerSelector *RandomPeerSelector
	metrics      *metrics

	maxBlockStatements int

	// membership changes decided by governance, waiting for their height
	pendingChanges []pendingChange

	stateHash           graph.Digest
	committedStatements int
	blockTimes          []int64
	lastCommit          time.Time
	syncRequests        int
	syncErrors          int

	logger *logrus.Entry
}

// pendingChange is a membership change and the first height it governs.
type pendingChange struct {
	diff   validators.MembershipDiff
	height uint64
}

// resumer is implemented by engines that hold back buffered messages after a
// commit until the commit has been processed.
type resumer interface {
	Resume(now time.Time) []*consensus.Message
}

// NewCore ...
func NewCore(signer *validators.Signer,
	c *chain.Chain,
	engine consensus.Engine,
	gov *governance.Governance,
	proxy proxy.AppProxy,
	gate graph.Gate,
	conf *Config) *Core {

	return &Core{
		signer:             signer,
		chain:              c,
		engine:             engine,
		governance:         gov,
		proxy:              proxy,
		gate:               gate,
		pool:               newStatementPool(conf.MaxPoolStatements),
		peerSelector:       NewRandomPeerSelector(engine.Validators(), signer.PublicKeyHex()),
		metrics:            newMetrics(),
		maxBlockStatements: conf.MaxBlockStatements,
		logger:             conf.Logger,
	}
}

// Bootstrap commits the stored chain to the application and rebuilds the
// governance state up to the finalized height. Membership changes found on
// the way are already reflected in the engine's validator set, which is
// loaded from the chain.
func (c *Core) Bootstrap() error {
	for h := uint64(0); h <= c.chain.Height(); h++ {
		b, err := c.chain.Block(h)
		if err != nil {
			return errors.Wrapf(err, "loading block %d", h)
		}
		if err := c.commitToApp(b); err != nil {
			return err
		}
	}

	if _, err := c.governance.Replay(c.chain, c.engine.FinalizedHeight()); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"height":     c.chain.Height(),
		"finalized":  c.engine.FinalizedHeight(),
		"state_hash": c.stateHash,
	}).Debug("Bootstrapped")

	c.updateGauges()
	return nil
}

// AddStatements validates a batch of submitted statements and pools the ones
// not already known. A batch the gate would reject is refused as a whole.
func (c *Core) AddStatements(statements []graph.Statement) (int, error) {
	if len(statements) == 0 {
		return 0, nil
	}
	g, err := graph.NewNamedGraph(poolGraphName, statements)
	if err != nil {
		return 0, err
	}
	if c.gate != nil {
		if err := graph.ViolationsError(c.gate.Validate(g)); err != nil {
			return 0, err
		}
	}

	added := c.pool.Add(statements)
	c.metrics.statementsSubmitted.Add(float64(added))
	c.metrics.poolSize.Set(float64(c.pool.Len()))

	c.logger.WithFields(logrus.Fields{
		"submitted": len(statements),
		"added":     added,
		"pool":      c.pool.Len(),
	}).Debug("Added statements")

	return added, nil
}

// Propose asks the engine to propose a block from the pool. It returns the
// messages to broadcast.
func (c *Core) Propose(now time.Time) ([]*consensus.Message, error) {
	batch := c.pool.Batch(c.maxBlockStatements)

	b, msgs, err := c.engine.Propose(batch, now)
	if err != nil {
		if b == nil && len(batch) > 0 && chain.IsValidation(err, chain.SemanticValidationFailed) {
			c.logger.WithError(err).WithField("statements", len(batch)).Warn("Dropping statements rejected by block validation")
			c.pool.Remove(batch)
		}
		return msgs, err
	}
	if b != nil {
		c.logger.WithFields(logrus.Fields{
			"height":     b.Height(),
			"statements": b.Graph.Len(),
		}).Debug("Proposed block")
	}

	more, err := c.settle(now)
	return append(msgs, more...), err
}

// ProcessMessage hands a peer's consensus message to the engine.
func (c *Core) ProcessMessage(msg *consensus.Message, now time.Time) ([]*consensus.Message, error) {
	msgs, err := c.engine.OnMessage(msg, now)
	if err != nil {
		c.metrics.messagesRejected.Inc()
	}
	more, cerr := c.settle(now)
	msgs = append(msgs, more...)
	if cerr != nil {
		return msgs, cerr
	}
	return msgs, err
}

// Timeout fires the engine's timeout when its deadline has passed.
func (c *Core) Timeout(now time.Time) ([]*consensus.Message, error) {
	deadline := c.engine.Deadline()
	if deadline.IsZero() || now.Before(deadline) {
		return nil, nil
	}
	msgs := c.engine.OnTimeout(now)
	more, err := c.settle(now)
	return append(msgs, more...), err
}

// SyncBlocks appends blocks fetched from a peer and returns how many were
// new. Blocks the chain already holds are skipped. A block that differs from
// the local one at its height starts a branch, which the engine may adopt if
// it can resolve forks.
func (c *Core) SyncBlocks(blocks []*chain.Block, now time.Time) (int, error) {
	applied := 0
	for i, b := range blocks {
		if b.Height() <= c.chain.Height() {
			existing, err := c.chain.Block(b.Height())
			if err != nil {
				return applied, err
			}
			if existing.Hash() != b.Hash() {
				return applied, c.resolveBranch(blocks[i:], now)
			}
			continue
		}
		if err := c.engine.SyncBlock(b, now); err != nil {
			return applied, errors.Wrapf(err, "syncing block %d", b.Height())
		}
		applied++
		if _, err := c.processCommitted(); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// branchResolver is implemented by engines that can switch to a heavier
// non-final branch.
type branchResolver interface {
	ResolveBranch(branch []*chain.Block, now time.Time) (bool, error)
}

func (c *Core) resolveBranch(branch []*chain.Block, now time.Time) error {
	resolver, ok := c.engine.(branchResolver)
	if !ok {
		return fmt.Errorf("synced block %d diverges from local chain", branch[0].Height())
	}
	switched, err := resolver.ResolveBranch(branch, now)
	if err != nil {
		return errors.Wrapf(err, "resolving branch at %d", branch[0].Height())
	}
	if switched {
		c.logger.WithField("from", branch[0].Height()).Info("Adopted synced branch")
	}
	_, err = c.processCommitted()
	return err
}

// settle processes the blocks committed by the last engine call, then lets
// the engine go on with the messages it held back, until no more commits.
func (c *Core) settle(now time.Time) ([]*consensus.Message, error) {
	committed, err := c.processCommitted()
	if err != nil {
		return nil, err
	}
	r, ok := c.engine.(resumer)
	if !ok {
		return nil, nil
	}
	var out []*consensus.Message
	for committed > 0 {
		out = append(out, r.Resume(now)...)
		if committed, err = c.processCommitted(); err != nil {
			return out, err
		}
	}
	// messages buffered by a sync, which commits without a call to settle
	return append(out, r.Resume(now)...), nil
}

// processCommitted delivers the blocks committed by the engine to the
// application, then runs governance over the newly finalized heights and
// applies the membership changes it decides. It returns the number of
// committed blocks.
func (c *Core) processCommitted() (int, error) {
	committed := c.engine.TakeCommitted()
	for _, b := range committed {
		if err := c.commitToApp(b); err != nil {
			return 0, err
		}
		c.pool.Remove(b.Graph.Statements)
		c.recordBlockTime(b)
		c.lastCommit = time.Now()
		c.metrics.blocksCommitted.Inc()
		c.metrics.statementsCommitted.Add(float64(b.Graph.Len()))
	}

	// a change decided by a finalized block governs the heights after the
	// ones already built on it
	lag := c.chain.Height() - c.engine.FinalizedHeight()
	for h := c.governance.LastHeight() + 1; h <= c.engine.FinalizedHeight(); h++ {
		b, err := c.chain.Block(h)
		if err != nil {
			return 0, errors.Wrapf(err, "loading finalized block %d", h)
		}
		for _, diff := range c.governance.ProcessBlock(b) {
			c.pendingChanges = append(c.pendingChanges, pendingChange{diff: diff, height: h + lag + 1})
		}
	}

	c.applyMembershipChanges()
	c.updateGauges()
	return len(committed), nil
}

func (c *Core) commitToApp(b *chain.Block) error {
	resp, err := c.proxy.CommitBlock(b)
	if err != nil {
		return errors.Wrapf(err, "committing block %d to the application", b.Height())
	}
	c.stateHash = resp.StateHash
	c.committedStatements += resp.Inserted
	return nil
}

// applyMembershipChanges hands the pending changes to the engine once the
// chain reaches the height before the one they govern.
func (c *Core) applyMembershipChanges() {
	for len(c.pendingChanges) > 0 {
		change := c.pendingChanges[0]
		next := c.chain.Height() + 1
		if next < change.height {
			return
		}
		if next > change.height {
			c.logger.WithFields(logrus.Fields{
				"height": change.height,
				"next":   next,
			}).Error("Membership change applied late")
		}

		err := c.engine.ApplyMembershipChange(change.diff)
		if errors.Cause(err) == consensus.ErrMidRound {
			c.logger.WithField("height", change.height).Error("Membership change postponed by a round in progress")
			return
		}
		c.pendingChanges = c.pendingChanges[1:]
		if err != nil {
			c.logger.WithError(err).Error("Applying membership change")
			continue
		}

		vs := c.engine.Validators()
		if err := c.chain.SetValidatorSet(next, vs); err != nil {
			c.logger.WithError(err).Error("Recording validator set")
		}
		c.peerSelector.SetValidators(vs)

		c.logger.WithFields(logrus.Fields{
			"added":      len(change.diff.Add),
			"removed":    len(change.diff.Remove),
			"validators": vs.Len(),
			"from":       next,
		}).Info("Validator set changed")
	}
}

func (c *Core) recordBlockTime(b *chain.Block) {
	c.blockTimes = append(c.blockTimes, b.Time().UnixNano())
	if len(c.blockTimes) > blockTimesWindow {
		c.blockTimes = c.blockTimes[len(c.blockTimes)-blockTimesWindow:]
	}
}

// MedianBlockInterval is the median time between the recently committed
// blocks.
func (c *Core) MedianBlockInterval() time.Duration {
	if len(c.blockTimes) < 2 {
		return 0
	}
	intervals := make([]int64, 0, len(c.blockTimes)-1)
	for i := 1; i < len(c.blockTimes); i++ {
		intervals = append(intervals, c.blockTimes[i]-c.blockTimes[i-1])
	}
	return time.Duration(common.Median(intervals))
}

func (c *Core) updateGauges() {
	c.metrics.height.Set(float64(c.chain.Height()))
	c.metrics.finalizedHeight.Set(float64(c.engine.FinalizedHeight()))
	c.metrics.view.Set(float64(c.engine.View()))
	c.metrics.poolSize.Set(float64(c.pool.Len()))
	c.metrics.validators.Set(float64(c.engine.Validators().Len()))
}

/*******************************************************************************
Accessors
*******************************************************************************/

// Height ...
func (c *Core) Height() uint64 {
	return c.chain.Height()
}

// FinalizedHeight ...
func (c *Core) FinalizedHeight() uint64 {
	return c.engine.FinalizedHeight()
}

// View ...
func (c *Core) View() uint64 {
	return c.engine.View()
}

// Strategy ...
func (c *Core) Strategy() consensus.Strategy {
	return c.engine.Strategy()
}

// Validators returns the active validator set.
func (c *Core) Validators() *validators.ValidatorSet {
	return c.engine.Validators()
}

// Governance ...
func (c *Core) Governance() *governance.Governance {
	return c.governance
}

// Block ...
func (c *Core) Block(height uint64) (*chain.Block, error) {
	return c.chain.Block(height)
}

// Blocks returns up to limit blocks from height from.
func (c *Core) Blocks(from uint64, limit int) ([]*chain.Block, error) {
	if from > c.chain.Height() {
		return []*chain.Block{}, nil
	}
	return c.chain.Blocks(from, limit)
}

// PoolSize ...
func (c *Core) PoolSize() int {
	return c.pool.Len()
}

// StateHash is the application state hash after the last commit.
func (c *Core) StateHash() graph.Digest {
	return c.stateHash
}

// CommittedStatements ...
func (c *Core) CommittedStatements() int {
	return c.committedStatements
}

// LastCommit is the local time of the last commit, zero before the first.
func (c *Core) LastCommit() time.Time {
	return c.lastCommit
}
