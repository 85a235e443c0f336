package governance

import (
	"fmt"
	"testing"
	"time"

	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"github.com/stretchr/testify/require"
)

var genesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newSigners(t *testing.T, n int) ([]*validators.Signer, *validators.ValidatorSet) {
	signers := make([]*validators.Signer, n)
	vals := make([]*validators.Validator, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		signers[i] = validators.NewSigner(key, fmt.Sprintf("node%d", i))
		vals[i] = validators.NewValidator(signers[i].PublicKeyHex(), "", signers[i].Moniker)
	}
	return signers, validators.NewValidatorSet(vals)
}

func newCandidate(t *testing.T) *validators.Validator {
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	return validators.NewValidator(keys.PublicKeyHex(&key.PublicKey), "10.0.0.9:1337", "newcomer")
}

func newGovernance(t *testing.T, vs *validators.ValidatorSet, conf Config) *Governance {
	return New(vs, conf, common.NewTestEntry(t, common.TestLogLevel))
}

// block wraps statements in a block at height without going through
// consensus; governance only reads the graph.
func block(t *testing.T, height uint64, statements ...[]graph.Statement) *chain.Block {
	all := []graph.Statement{}
	for _, s := range statements {
		all = append(all, s...)
	}
	g, err := graph.NewNamedGraph(chain.GraphName(height), all)
	require.NoError(t, err)
	return &chain.Block{
		Header: chain.BlockHeader{Height: height, Timestamp: genesisTime.UnixNano()},
		Graph:  *g,
	}
}

func TestProposalStatementsRoundTrip(t *testing.T) {
	signers, _ := newSigners(t, 1)
	candidate := newCandidate(t)

	p, err := NewProposal(ValidatorAddition, candidate, 10, signers[0])
	require.NoError(t, err)
	require.NoError(t, p.Verify())

	v, err := NewVote(p.ID, true, signers[0])
	require.NoError(t, err)

	proposals, votes, err := Extract(append(p.Statements(), v.Statements()...))
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	require.Len(t, votes, 1)

	got := proposals[0]
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, candidate.PubKeyHex, got.Validator.PubKeyHex)
	require.Equal(t, "10.0.0.9:1337", got.Validator.NetAddr)
	require.Equal(t, validators.Authority, got.Validator.Role)
	require.Equal(t, uint64(1), got.Validator.Weight)
	require.Equal(t, uint64(10), got.Deadline)
	require.NoError(t, got.Verify())

	require.Equal(t, p.ID, votes[0].ProposalID)
	require.True(t, votes[0].InFavour)
	require.NoError(t, votes[0].Verify())
}

func TestProposalTampered(t *testing.T) {
	signers, _ := newSigners(t, 1)
	p, err := NewProposal(ValidatorAddition, newCandidate(t), 10, signers[0])
	require.NoError(t, err)

	p.Deadline = 1000
	require.Error(t, p.Verify())

	// recomputing the identifier does not help without the key
	p.ID = p.computeID()
	require.Error(t, p.Verify())
}

func TestExtractReportsMalformed(t *testing.T) {
	s := graph.IRI(proposalIRIPrefix + "broken")
	statements := []graph.Statement{
		graph.NewStatement(s, graph.IRI(graph.RDFType), graph.IRI(ClassProposal)),
		graph.NewStatement(s, graph.IRI(PredAction), graph.Literal("promote")),
		graph.NewStatement(graph.IRI("http://example.org/Batch1"), graph.IRI("http://example.org/origin"), graph.Literal("Farm")),
	}
	signers, _ := newSigners(t, 1)
	v, err := NewVote("urn:semchain:gov:proposal:x", false, signers[0])
	require.NoError(t, err)

	proposals, votes, err := Extract(append(statements, v.Statements()...))
	require.Error(t, err)
	require.Empty(t, proposals)
	require.Len(t, votes, 1)
	require.False(t, votes[0].InFavour)
}

func TestProposalExecutesAfterRequiredVotes(t *testing.T) {
	signers, vs := newSigners(t, 4)
	gov := newGovernance(t, vs, DefaultConfig())
	require.Equal(t, 3, gov.RequiredVotes())

	candidate := newCandidate(t)
	p, err := NewProposal(ValidatorAddition, candidate, 10, signers[0])
	require.NoError(t, err)

	require.Empty(t, gov.ProcessBlock(block(t, 1, p.Statements())))
	require.Len(t, gov.ActiveProposals(), 1)

	votes := [][]graph.Statement{}
	for i := 0; i < 2; i++ {
		v, err := NewVote(p.ID, true, signers[i])
		require.NoError(t, err)
		votes = append(votes, v.Statements())
	}
	require.Empty(t, gov.ProcessBlock(block(t, 2, votes...)))
	got, _ := gov.Proposal(p.ID)
	require.Equal(t, Active, got.Status)

	v, err := NewVote(p.ID, true, signers[2])
	require.NoError(t, err)
	diffs := gov.ProcessBlock(block(t, 3, v.Statements()))
	require.Len(t, diffs, 1)
	require.Len(t, diffs[0].Add, 1)
	require.Equal(t, candidate.PubKeyHex, diffs[0].Add[0].PubKeyHex)

	require.Equal(t, Executed, got.Status)
	require.Equal(t, 5, gov.Validators().Len())
	require.True(t, gov.IsValidator(candidate.PubKeyHex))
	require.Empty(t, gov.ActiveProposals())
}

func TestProposalAndVotesInOneBlock(t *testing.T) {
	signers, vs := newSigners(t, 3)
	gov := newGovernance(t, vs, DefaultConfig())

	target := vs.Validators[2]
	p, err := NewProposal(ValidatorRemoval, target, 5, signers[0])
	require.NoError(t, err)

	parts := [][]graph.Statement{p.Statements()}
	for i := 0; i < 3; i++ {
		v, err := NewVote(p.ID, true, signers[i])
		require.NoError(t, err)
		parts = append(parts, v.Statements())
	}

	diffs := gov.ProcessBlock(block(t, 1, parts...))
	require.Len(t, diffs, 1)
	require.Equal(t, []string{target.PubKeyHex}, diffs[0].Remove)
	require.False(t, gov.IsValidator(target.PubKeyHex))
}

func TestProposalRejected(t *testing.T) {
	signers, vs := newSigners(t, 4)
	gov := newGovernance(t, vs, DefaultConfig())

	p, err := NewProposal(ValidatorRemoval, vs.Validators[3], 10, signers[0])
	require.NoError(t, err)
	require.NoError(t, gov.Submit(p, 1))

	for i, inFavour := range []bool{true, false, false} {
		v, err := NewVote(p.ID, inFavour, signers[i])
		require.NoError(t, err)
		require.NoError(t, gov.Vote(v, 2))
	}
	require.Equal(t, Rejected, p.Status)

	_, err = gov.Execute(p.ID)
	require.Error(t, err)
	require.Equal(t, 4, gov.Validators().Len())

	// decided proposals take no more votes
	v, err := NewVote(p.ID, true, signers[3])
	require.NoError(t, err)
	require.Error(t, gov.Vote(v, 2))
}

func TestVoteChange(t *testing.T) {
	signers, vs := newSigners(t, 4)
	gov := newGovernance(t, vs, DefaultConfig())

	p, err := NewProposal(ValidatorAddition, newCandidate(t), 10, signers[0])
	require.NoError(t, err)
	require.NoError(t, gov.Submit(p, 1))

	against, err := NewVote(p.ID, false, signers[1])
	require.NoError(t, err)
	require.NoError(t, gov.Vote(against, 2))

	inFavour, err := NewVote(p.ID, true, signers[1])
	require.NoError(t, err)
	require.NoError(t, gov.Vote(inFavour, 3))

	require.Len(t, p.VotesFor, 1)
	require.Empty(t, p.VotesAgainst)
	require.Equal(t, Active, p.Status)
}

func TestOnlyValidatorsTakePart(t *testing.T) {
	signers, vs := newSigners(t, 3)
	outsiders, _ := newSigners(t, 1)
	gov := newGovernance(t, vs, DefaultConfig())

	p, err := NewProposal(ValidatorAddition, newCandidate(t), 10, outsiders[0])
	require.NoError(t, err)
	require.Error(t, gov.Submit(p, 1))

	p, err = NewProposal(ValidatorAddition, newCandidate(t), 10, signers[0])
	require.NoError(t, err)
	require.NoError(t, gov.Submit(p, 1))

	v, err := NewVote(p.ID, true, outsiders[0])
	require.NoError(t, err)
	require.Error(t, gov.Vote(v, 2))

	// a forged voter field fails the signature check
	v, err = NewVote(p.ID, true, outsiders[0])
	require.NoError(t, err)
	v.Voter = signers[1].PublicKeyHex()
	require.Error(t, gov.Vote(v, 2))
	require.Empty(t, p.VotesFor)
}

func TestProposalExpires(t *testing.T) {
	signers, vs := newSigners(t, 4)
	gov := newGovernance(t, vs, DefaultConfig())

	p, err := NewProposal(ValidatorAddition, newCandidate(t), 2, signers[0])
	require.NoError(t, err)
	gov.ProcessBlock(block(t, 1, p.Statements()))
	got, ok := gov.Proposal(p.ID)
	require.True(t, ok)

	v, err := NewVote(p.ID, true, signers[0])
	require.NoError(t, err)
	gov.ProcessBlock(block(t, 2, v.Statements()))
	require.Equal(t, Active, got.Status)

	gov.ProcessBlock(block(t, 3))
	require.Equal(t, Expired, got.Status)

	v, err = NewVote(p.ID, true, signers[1])
	require.NoError(t, err)
	require.Error(t, gov.Vote(v, 4))
}

func TestValidatorBounds(t *testing.T) {
	signers, vs := newSigners(t, 2)

	conf := DefaultConfig()
	conf.MinValidators = 2
	conf.MaxValidators = 2
	conf.RequiredVotes = 2
	gov := newGovernance(t, vs, conf)

	add, err := NewProposal(ValidatorAddition, newCandidate(t), 10, signers[0])
	require.NoError(t, err)
	remove, err := NewProposal(ValidatorRemoval, vs.Validators[1], 10, signers[0])
	require.NoError(t, err)

	parts := [][]graph.Statement{add.Statements(), remove.Statements()}
	for _, s := range signers {
		for _, p := range []*Proposal{add, remove} {
			v, err := NewVote(p.ID, true, s)
			require.NoError(t, err)
			parts = append(parts, v.Statements())
		}
	}

	diffs := gov.ProcessBlock(block(t, 1, parts...))
	require.Empty(t, diffs)
	for _, p := range gov.Proposals() {
		require.Equal(t, Rejected, p.Status, p.ID)
	}
	require.Equal(t, 2, gov.Validators().Len())
}

func TestBlockProcessedOnce(t *testing.T) {
	signers, vs := newSigners(t, 1)
	gov := newGovernance(t, vs, DefaultConfig())
	require.Equal(t, 1, gov.RequiredVotes())

	p, err := NewProposal(ValidatorAddition, newCandidate(t), 10, signers[0])
	require.NoError(t, err)
	v, err := NewVote(p.ID, true, signers[0])
	require.NoError(t, err)

	b := block(t, 1, p.Statements(), v.Statements())
	require.Len(t, gov.ProcessBlock(b), 1)
	require.Empty(t, gov.ProcessBlock(b))
	require.Equal(t, uint64(1), gov.LastHeight())
	require.Equal(t, 2, gov.Validators().Len())
}

func TestGovernanceRules(t *testing.T) {
	gate := graph.NewRuleGate(Rules()...)

	signers, _ := newSigners(t, 1)
	p, err := NewProposal(ValidatorAddition, newCandidate(t), 10, signers[0])
	require.NoError(t, err)

	g, err := graph.NewNamedGraph(chain.GraphName(1), p.Statements())
	require.NoError(t, err)
	require.Empty(t, gate.Validate(g))

	// dropping the signature leaves an incomplete proposal
	stripped := []graph.Statement{}
	for _, s := range p.Statements() {
		if s.Predicate.Value != PredSignature {
			stripped = append(stripped, s)
		}
	}
	g, err = graph.NewNamedGraph(chain.GraphName(1), stripped)
	require.NoError(t, err)
	require.Len(t, gate.Validate(g), 1)
}
