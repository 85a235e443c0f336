package governance

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/crypto"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
)

// Action is the membership change requested by a proposal.
type Action string

const (
	// ValidatorAddition adds a validator to the set.
	ValidatorAddition Action = "add"
	// ValidatorRemoval removes a validator from the set.
	ValidatorRemoval Action = "remove"
)

// Status ...
type Status int

const (
	Active Status = iota
	Accepted
	Rejected
	Expired
	Executed
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	case Expired:
		return "Expired"
	case Executed:
		return "Executed"
	default:
		return "Unknown"
	}
}

// Proposal asks the validators to add or remove one validator. Voting is open
// up to and including the Deadline height.
type Proposal struct {
	ID        string
	Action    Action
	Validator *validators.Validator
	Deadline  uint64
	Proposer  string
	Signature string

	// Set when the proposal is accepted into a Governance instance
	Height       uint64
	Status       Status
	VotesFor     map[string]bool
	VotesAgainst map[string]bool
}

// NewProposal builds and signs a proposal. For a removal, only the public key
// of v is used.
func NewProposal(action Action, v *validators.Validator, deadline uint64, signer *validators.Signer) (*Proposal, error) {
	if action != ValidatorAddition && action != ValidatorRemoval {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	target := &validators.Validator{PubKeyHex: common.NormalizeHex(v.PubKeyHex)}
	if action == ValidatorAddition {
		target = &validators.Validator{
			PubKeyHex: common.NormalizeHex(v.PubKeyHex),
			NetAddr:   v.NetAddr,
			Moniker:   v.Moniker,
			Role:      v.Role,
			Weight:    v.Weight,
		}
		if err := target.Validate(); err != nil {
			return nil, err
		}
	}

	p := &Proposal{
		Action:    action,
		Validator: target,
		Deadline:  deadline,
		Proposer:  signer.PublicKeyHex(),
	}
	p.ID = p.computeID()

	sig, err := signer.Sign(p.SigningBytes())
	if err != nil {
		return nil, errors.Wrap(err, "signing proposal")
	}
	p.Signature = sig
	return p, nil
}

func (p *Proposal) body() string {
	v := p.Validator
	return fmt.Sprintf("%s-%s-%s-%s-%s-%d-%d-%s",
		p.Action,
		v.PubKeyHex,
		v.NetAddr,
		v.Moniker,
		v.Role,
		v.Weight,
		p.Deadline,
		p.Proposer)
}

func (p *Proposal) computeID() string {
	return fmt.Sprintf("%s%x", proposalIRIPrefix, crypto.SHA256([]byte(p.body()))[:16])
}

// SigningBytes covers every field of the proposal except the signature.
func (p *Proposal) SigningBytes() []byte {
	return []byte("proposal:" + p.body())
}

// Verify checks that the identifier matches the content and that the
// proposer signed it.
func (p *Proposal) Verify() error {
	if p.ID != p.computeID() {
		return fmt.Errorf("proposal identifier %s does not match content", p.ID)
	}
	ok, err := keys.VerifyBytes(p.Proposer, p.SigningBytes(), p.Signature)
	if err != nil {
		return errors.Wrap(err, "verifying proposal signature")
	}
	if !ok {
		return fmt.Errorf("invalid signature on proposal %s", p.ID)
	}
	return nil
}

// Diff returns the membership change the proposal asks for.
func (p *Proposal) Diff() validators.MembershipDiff {
	if p.Action == ValidatorRemoval {
		return validators.MembershipDiff{Remove: []string{p.Validator.PubKeyHex}}
	}
	return validators.MembershipDiff{Add: []*validators.Validator{p.Validator}}
}

// Statements encodes the proposal for inclusion in a block.
func (p *Proposal) Statements() []graph.Statement {
	s := graph.IRI(p.ID)
	v := p.Validator
	res := []graph.Statement{
		graph.NewStatement(s, graph.IRI(graph.RDFType), graph.IRI(ClassProposal)),
		graph.NewStatement(s, graph.IRI(PredAction), graph.Literal(string(p.Action))),
		graph.NewStatement(s, graph.IRI(PredValidator), graph.Literal(v.PubKeyHex)),
	}
	if p.Action == ValidatorAddition {
		res = append(res,
			graph.NewStatement(s, graph.IRI(PredNetAddr), graph.Literal(v.NetAddr)),
			graph.NewStatement(s, graph.IRI(PredMoniker), graph.Literal(v.Moniker)),
			graph.NewStatement(s, graph.IRI(PredRole), graph.Literal(string(v.Role))),
			graph.NewStatement(s, graph.IRI(PredWeight), integer(v.Weight)),
		)
	}
	res = append(res,
		graph.NewStatement(s, graph.IRI(PredDeadline), integer(p.Deadline)),
		graph.NewStatement(s, graph.IRI(PredProposer), graph.Literal(p.Proposer)),
		graph.NewStatement(s, graph.IRI(PredSignature), graph.Literal(p.Signature)),
	)
	return res
}

func (p *Proposal) decided() bool {
	return p.Status != Active
}

/*******************************************************************************
Vote
*******************************************************************************/

// Vote is a signed ballot on a proposal.
type Vote struct {
	ProposalID string
	Voter      string
	InFavour   bool
	Signature  string
}

// NewVote builds and signs a vote.
func NewVote(proposalID string, inFavour bool, signer *validators.Signer) (*Vote, error) {
	v := &Vote{
		ProposalID: proposalID,
		Voter:      signer.PublicKeyHex(),
		InFavour:   inFavour,
	}
	sig, err := signer.Sign(v.SigningBytes())
	if err != nil {
		return nil, errors.Wrap(err, "signing vote")
	}
	v.Signature = sig
	return v, nil
}

func (v *Vote) choice() string {
	if v.InFavour {
		return "for"
	}
	return "against"
}

// SigningBytes ...
func (v *Vote) SigningBytes() []byte {
	return []byte(fmt.Sprintf("vote:%s-%s-%s", v.ProposalID, v.choice(), v.Voter))
}

// Verify checks the voter's signature.
func (v *Vote) Verify() error {
	ok, err := keys.VerifyBytes(v.Voter, v.SigningBytes(), v.Signature)
	if err != nil {
		return errors.Wrap(err, "verifying vote signature")
	}
	if !ok {
		return fmt.Errorf("invalid signature on vote by %s", v.Voter)
	}
	return nil
}

// Statements encodes the vote for inclusion in a block.
func (v *Vote) Statements() []graph.Statement {
	id := fmt.Sprintf("%s%x", voteIRIPrefix, crypto.SHA256(v.SigningBytes())[:16])
	s := graph.IRI(id)
	return []graph.Statement{
		graph.NewStatement(s, graph.IRI(graph.RDFType), graph.IRI(ClassVote)),
		graph.NewStatement(s, graph.IRI(PredProposal), graph.IRI(v.ProposalID)),
		graph.NewStatement(s, graph.IRI(PredChoice), graph.Literal(v.choice())),
		graph.NewStatement(s, graph.IRI(PredVoter), graph.Literal(v.Voter)),
		graph.NewStatement(s, graph.IRI(PredSignature), graph.Literal(v.Signature)),
	}
}

func integer(n uint64) graph.Term {
	return graph.TypedLiteral(strconv.FormatUint(n, 10), xsdInteger)
}
