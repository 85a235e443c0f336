package governance

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMinValidators is the smallest set a removal may leave.
	DefaultMinValidators = 1
	// DefaultMaxValidators is the largest set an addition may create.
	DefaultMaxValidators = 100
	// DefaultVotingPeriod is the number of heights a proposal stays open
	// when the proposer leaves the deadline to Governance.
	DefaultVotingPeriod = 100
)

// Config bounds the validator set and sets the voting rules.
type Config struct {
	MinValidators int
	MaxValidators int
	VotingPeriod  uint64

	// RequiredVotes is the number of votes that decides a proposal. Zero
	// means the quorum of the current validator set.
	RequiredVotes int
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		MinValidators: DefaultMinValidators,
		MaxValidators: DefaultMaxValidators,
		VotingPeriod:  DefaultVotingPeriod,
	}
}

// Governance tracks proposals and votes found in finalized blocks. It must be
// fed every finalized block exactly once, in height order.
type Governance struct {
	conf       Config
	validators *validators.ValidatorSet
	proposals  map[string]*Proposal
	order      []string
	height     uint64
	logger     *logrus.Entry
}

// New returns a Governance starting from the validator set vs.
func New(vs *validators.ValidatorSet, conf Config, logger *logrus.Entry) *Governance {
	if conf.MinValidators <= 0 {
		conf.MinValidators = DefaultMinValidators
	}
	if conf.MaxValidators <= 0 {
		conf.MaxValidators = DefaultMaxValidators
	}
	if conf.VotingPeriod == 0 {
		conf.VotingPeriod = DefaultVotingPeriod
	}
	return &Governance{
		conf:       conf,
		validators: vs,
		proposals:  make(map[string]*Proposal),
		logger:     logger,
	}
}

// Validators returns the validator set after the changes executed so far.
func (g *Governance) Validators() *validators.ValidatorSet {
	return g.validators
}

// IsValidator ...
func (g *Governance) IsValidator(pubKeyHex string) bool {
	return g.validators.IsVoter(common.NormalizeHex(pubKeyHex))
}

// LastHeight is the height of the last processed block.
func (g *Governance) LastHeight() uint64 {
	return g.height
}

// DeadlineFrom returns the default deadline for a proposal submitted in the
// block following height.
func (g *Governance) DeadlineFrom(height uint64) uint64 {
	return height + 1 + g.conf.VotingPeriod
}

// RequiredVotes returns the number of votes that decides a proposal with the
// current validator set.
func (g *Governance) RequiredVotes() int {
	if g.conf.RequiredVotes > 0 {
		return g.conf.RequiredVotes
	}
	return g.validators.Quorum()
}

// Proposal ...
func (g *Governance) Proposal(id string) (*Proposal, bool) {
	p, ok := g.proposals[id]
	return p, ok
}

// Proposals returns all known proposals in submission order.
func (g *Governance) Proposals() []*Proposal {
	res := make([]*Proposal, 0, len(g.order))
	for _, id := range g.order {
		res = append(res, g.proposals[id])
	}
	return res
}

// ActiveProposals returns the proposals still open for voting.
func (g *Governance) ActiveProposals() []*Proposal {
	res := []*Proposal{}
	for _, p := range g.Proposals() {
		if p.Status == Active {
			res = append(res, p)
		}
	}
	return res
}

// Submit registers a proposal found in the block at height.
func (g *Governance) Submit(p *Proposal, height uint64) error {
	if _, ok := g.proposals[p.ID]; ok {
		return fmt.Errorf("proposal %s already submitted", p.ID)
	}
	p.Proposer = common.NormalizeHex(p.Proposer)
	p.Validator.PubKeyHex = common.NormalizeHex(p.Validator.PubKeyHex)
	if err := p.Verify(); err != nil {
		return err
	}
	if !g.validators.IsVoter(p.Proposer) {
		return fmt.Errorf("proposer %s is not a validator", p.Proposer)
	}
	if p.Deadline < height {
		return fmt.Errorf("proposal %s has a deadline %d before its height %d", p.ID, p.Deadline, height)
	}
	if p.Action == ValidatorAddition {
		if err := p.Validator.Validate(); err != nil {
			return errors.Wrapf(err, "proposal %s", p.ID)
		}
	}

	p.Height = height
	p.Status = Active
	p.VotesFor = make(map[string]bool)
	p.VotesAgainst = make(map[string]bool)
	g.proposals[p.ID] = p
	g.order = append(g.order, p.ID)
	return nil
}

// Vote records a vote found in the block at height. A voter may change its
// vote while the proposal is active. The proposal is decided as soon as the
// number of votes reaches RequiredVotes.
func (g *Governance) Vote(v *Vote, height uint64) error {
	p, ok := g.proposals[v.ProposalID]
	if !ok {
		return fmt.Errorf("proposal %s not found", v.ProposalID)
	}
	v.Voter = common.NormalizeHex(v.Voter)
	if !g.validators.IsVoter(v.Voter) {
		return fmt.Errorf("only validators can vote on proposals, not %s", v.Voter)
	}
	if err := v.Verify(); err != nil {
		return err
	}
	if p.Status != Active {
		return fmt.Errorf("proposal %s is not active (status: %s)", p.ID, p.Status)
	}
	if height > p.Deadline {
		p.Status = Expired
		return fmt.Errorf("voting deadline of proposal %s has passed", p.ID)
	}

	delete(p.VotesFor, v.Voter)
	delete(p.VotesAgainst, v.Voter)
	if v.InFavour {
		p.VotesFor[v.Voter] = true
	} else {
		p.VotesAgainst[v.Voter] = true
	}

	if len(p.VotesFor)+len(p.VotesAgainst) >= g.RequiredVotes() {
		if len(p.VotesFor) > len(p.VotesAgainst) {
			p.Status = Accepted
		} else {
			p.Status = Rejected
		}
	}
	return nil
}

// Execute applies an accepted proposal to the validator set and returns the
// corresponding change.
func (g *Governance) Execute(id string) (validators.MembershipDiff, error) {
	p, ok := g.proposals[id]
	if !ok {
		return validators.MembershipDiff{}, fmt.Errorf("proposal %s not found", id)
	}
	if p.Status != Accepted {
		return validators.MembershipDiff{}, fmt.Errorf("can only execute accepted proposals, %s is %s", id, p.Status)
	}

	switch p.Action {
	case ValidatorAddition:
		if g.validators.Len() >= g.conf.MaxValidators {
			return validators.MembershipDiff{}, fmt.Errorf("maximum of %d validators reached", g.conf.MaxValidators)
		}
		if g.validators.Contains(p.Validator.PubKeyHex) {
			return validators.MembershipDiff{}, fmt.Errorf("validator %s already present", p.Validator.PubKeyHex)
		}
	case ValidatorRemoval:
		if g.validators.Len() <= g.conf.MinValidators {
			return validators.MembershipDiff{}, fmt.Errorf("cannot remove validator: minimum of %d reached", g.conf.MinValidators)
		}
	}

	diff := p.Diff()
	next, err := g.validators.ApplyMembershipChange(diff)
	if err != nil {
		return validators.MembershipDiff{}, err
	}
	g.validators = next
	p.Status = Executed
	return diff, nil
}

// ProcessBlock reads the governance statements of a finalized block: new
// proposals first, then votes. Proposals decided by this block are executed
// in submission order and their changes returned. Invalid entries are logged
// and ignored, so every node derives the same changes from the same chain.
func (g *Governance) ProcessBlock(b *chain.Block) []validators.MembershipDiff {
	height := b.Height()
	if height != 0 && height <= g.height {
		g.logger.WithField("height", height).Debug("Block already processed by governance")
		return nil
	}
	g.height = height

	logger := g.logger.WithField("height", height)

	proposals, votes, err := Extract(b.Graph.Statements)
	if err != nil {
		logger.WithError(err).Warn("Malformed governance statements")
	}

	for _, p := range proposals {
		if err := g.Submit(p, height); err != nil {
			logger.WithError(err).Warn("Rejecting proposal")
			continue
		}
		logger.WithFields(logrus.Fields{
			"proposal":  p.ID,
			"action":    p.Action,
			"validator": p.Validator.PubKeyHex,
			"deadline":  p.Deadline,
		}).Info("Proposal submitted")
	}

	for _, v := range votes {
		if err := g.Vote(v, height); err != nil {
			logger.WithError(err).Warn("Rejecting vote")
			continue
		}
		logger.WithFields(logrus.Fields{
			"proposal": v.ProposalID,
			"voter":    v.Voter,
			"for":      v.InFavour,
		}).Debug("Vote recorded")
	}

	var diffs []validators.MembershipDiff
	for _, p := range g.Proposals() {
		switch {
		case p.Status == Accepted:
			diff, err := g.Execute(p.ID)
			if err != nil {
				logger.WithError(err).WithField("proposal", p.ID).Warn("Accepted proposal cannot be executed")
				p.Status = Rejected
				continue
			}
			logger.WithFields(logrus.Fields{
				"proposal":   p.ID,
				"action":     p.Action,
				"validator":  p.Validator.PubKeyHex,
				"validators": g.validators.Len(),
			}).Info("Proposal executed")
			diffs = append(diffs, diff)
		case p.Status == Active && height > p.Deadline:
			p.Status = Expired
			logger.WithField("proposal", p.ID).Info("Proposal expired")
		}
	}
	return diffs
}

// Replay processes the finalized blocks of c from the height after the last
// processed one up to height. It is used to rebuild the governance state of a
// node that restarts from a persisted chain.
func (g *Governance) Replay(c *chain.Chain, height uint64) ([]validators.MembershipDiff, error) {
	var diffs []validators.MembershipDiff
	for h := g.height + 1; h <= height; h++ {
		b, err := c.Block(h)
		if err != nil {
			return diffs, errors.Wrapf(err, "replaying governance at height %d", h)
		}
		diffs = append(diffs, g.ProcessBlock(b)...)
	}
	return diffs, nil
}
