package chain

import (
	"context"
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	cm "github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CommitHandler is called with every block appended to the chain.
type CommitHandler func(block *Block) error

// Chain is the sequence of blocks held in a Store. It is not safe for
// concurrent use; the node's event loop is its only owner.
type Chain struct {
	store  Store
	tip    *Block
	commit CommitHandler
	logger *logrus.Entry
}

// NewChain creates a chain from genesis in an empty store, recording vs as
// the validator set effective from height 0.
func NewChain(store Store, genesis *Block, vs *validators.ValidatorSet, logger *logrus.Entry) (*Chain, error) {
	if _, err := store.LastHeight(); !cm.IsStore(err, cm.Empty) {
		return nil, fmt.Errorf("store is not empty")
	}
	if genesis.Height() != 0 || genesis.Header.PreviousHash != graph.ZeroDigest {
		return nil, fmt.Errorf("invalid genesis block")
	}
	if err := checkContent(genesis); err != nil {
		return nil, err
	}
	if err := store.SetValidatorSet(0, vs); err != nil {
		return nil, errors.Wrap(err, "storing genesis validator set")
	}
	if err := store.SetBlock(genesis); err != nil {
		return nil, errors.Wrap(err, "storing genesis block")
	}

	return &Chain{
		store:  store,
		tip:    genesis,
		logger: logger,
	}, nil
}

// LoadChain reconstructs a chain from a store that already holds it. Blocks
// are trusted as they were validated before being stored; VerifyIntegrity
// checks them again on demand.
func LoadChain(store Store, logger *logrus.Entry) (*Chain, error) {
	last, err := store.LastHeight()
	if err != nil {
		return nil, errors.Wrap(err, "loading chain")
	}

	tip, err := store.GetBlock(last)
	if err != nil {
		return nil, errors.Wrapf(err, "loading tip %d", last)
	}

	if _, err := store.GetValidatorSet(last); err != nil {
		return nil, errors.Wrap(err, "loading validator set")
	}

	logger.WithField("height", last).Debug("Chain loaded")

	return &Chain{
		store:  store,
		tip:    tip,
		logger: logger,
	}, nil
}

// SetCommitHandler registers the function invoked with every appended block.
func (c *Chain) SetCommitHandler(h CommitHandler) {
	c.commit = h
}

// Tip returns the last block.
func (c *Chain) Tip() *Block {
	return c.tip
}

// Height returns the height of the tip.
func (c *Chain) Height() uint64 {
	return c.tip.Height()
}

// Store ...
func (c *Chain) Store() Store {
	return c.store
}

// Block returns the block at a height.
func (c *Chain) Block(height uint64) (*Block, error) {
	if height == c.tip.Height() {
		return c.tip, nil
	}
	return c.store.GetBlock(height)
}

// Blocks returns up to limit blocks starting at from.
func (c *Chain) Blocks(from uint64, limit int) ([]*Block, error) {
	res := []*Block{}
	for h := from; h <= c.Height() && len(res) < limit; h++ {
		b, err := c.Block(h)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

// ValidatorSet returns the validator set effective at a height.
func (c *Chain) ValidatorSet(height uint64) (*validators.ValidatorSet, error) {
	return c.store.GetValidatorSet(height)
}

// SetValidatorSet records the validator set effective from a height. Only the
// next height may be given.
func (c *Chain) SetValidatorSet(height uint64, vs *validators.ValidatorSet) error {
	if height != c.Height()+1 {
		return fmt.Errorf("validator set can only change at the next height %d, not %d", c.Height()+1, height)
	}
	return c.store.SetValidatorSet(height, vs)
}

// Append extends the chain with b. The block must already be validated; only
// continuity with the tip is checked here. A failure to persist the block is
// returned wrapped and must be treated as fatal by the caller.
func (c *Chain) Append(b *Block) error {
	if err := c.checkLink(b, c.tip); err != nil {
		return err
	}

	if err := c.store.SetBlock(b); err != nil {
		return errors.Wrapf(err, "storing block %d", b.Height())
	}
	c.tip = b

	c.logger.WithFields(logrus.Fields{
		"height":     b.Height(),
		"hash":       b.Hash(),
		"statements": b.Graph.Len(),
	}).Debug("Block appended")

	if c.commit != nil {
		if err := c.commit(b); err != nil {
			return errors.Wrapf(err, "committing block %d", b.Height())
		}
	}

	return nil
}

// ReplaceFrom swaps the blocks from height onwards with branch. The branch
// must link to the block at height-1 and be contiguous. Genesis cannot be
// replaced. The commit handler is invoked for every block of the branch.
func (c *Chain) ReplaceFrom(height uint64, branch []*Block) error {
	if height == 0 || height > c.Height()+1 {
		return fmt.Errorf("cannot replace from height %d with tip %d", height, c.Height())
	}
	if len(branch) == 0 || branch[0].Height() != height {
		return fmt.Errorf("branch must start at height %d", height)
	}

	parent, err := c.Block(height - 1)
	if err != nil {
		return err
	}
	prev := parent
	for _, b := range branch {
		if err := c.checkLink(b, prev); err != nil {
			return err
		}
		prev = b
	}

	if height <= c.Height() {
		if err := c.store.TruncateFrom(height); err != nil {
			return errors.Wrapf(err, "truncating from %d", height)
		}
	}
	c.tip = parent

	c.logger.WithFields(logrus.Fields{
		"from":   height,
		"blocks": len(branch),
	}).Info("Replacing branch")

	for _, b := range branch {
		if err := c.Append(b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) checkLink(b *Block, tip *Block) error {
	if b.Height() != tip.Height()+1 {
		return newValidationError(HeightMismatch, b,
			fmt.Errorf("expected height %d, got %d", tip.Height()+1, b.Height()))
	}
	if b.Header.PreviousHash != PreviousHashOf(&tip.Header) {
		return newValidationError(PreviousHashMismatch, b,
			fmt.Errorf("block does not link to %d", tip.Height()))
	}
	return nil
}

// Audit re-validates every stored block and returns all failures in height
// order. Content hashes are recomputed in parallel. A block is also reported
// when any of its ancestors failed, since its linkage can no longer be
// trusted.
func (c *Chain) Audit(ctx context.Context, vs *validators.ValidatorSet) ([]*ValidationError, error) {
	blocks, err := c.Blocks(0, int(c.Height())+1)
	if err != nil {
		return nil, err
	}

	graphs := make([]*graph.NamedGraph, len(blocks))
	for i, b := range blocks {
		graphs[i] = &b.Graph
	}
	digests, err := graph.CanonicalizeAll(ctx, graphs, runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	// signatures of every block but genesis, checked against the set
	// effective at their height
	sigErrs := make([]error, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 1; i < len(blocks); i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			set := vs
			if stored, err := c.store.GetValidatorSet(blocks[i].Height()); err == nil {
				set = stored
			}
			sigErrs[i] = checkSignature(blocks[i], set)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failures := []*ValidationError{}
	broken := false
	for i, b := range blocks {
		var verr error
		switch {
		case broken:
			verr = newValidationError(PreviousHashMismatch, b, fmt.Errorf("an ancestor failed validation"))
		case b.Graph.Validate() != nil:
			verr = newValidationError(HashMismatch, b, b.Graph.Validate())
		case checkDigest(b, digests[i]) != nil:
			verr = checkDigest(b, digests[i])
		case i == 0:
			if b.Header.PreviousHash != graph.ZeroDigest {
				verr = newValidationError(PreviousHashMismatch, b, fmt.Errorf("genesis must link to the zero digest"))
			}
		default:
			if err := c.checkLink(b, blocks[i-1]); err != nil {
				verr = err
			} else if sigErrs[i] != nil {
				verr = sigErrs[i]
			}
		}
		if verr != nil {
			failures = append(failures, verr.(*ValidationError))
			broken = true
		}
	}

	return failures, nil
}

// VerifyIntegrity re-validates the whole chain and returns the first failure.
func (c *Chain) VerifyIntegrity(ctx context.Context, vs *validators.ValidatorSet) error {
	failures, err := c.Audit(ctx, vs)
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		c.logger.WithFields(logrus.Fields{
			"failures": len(failures),
			"kind":     failures[0].Kind,
			"height":   failures[0].Height,
			"hash":     failures[0].CandidateHash,
		}).Error("Chain integrity check failed")
		return failures[0]
	}
	return nil
}
