package governance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"go.uber.org/multierr"
)

// subject collects the governance predicates attached to one IRI.
type subject struct {
	iri    string
	class  string
	values map[string][]graph.Term
}

func (s *subject) one(predicate string) (graph.Term, error) {
	vals := s.values[predicate]
	switch len(vals) {
	case 0:
		return graph.Term{}, fmt.Errorf("%s: missing <%s>", s.iri, predicate)
	case 1:
		return vals[0], nil
	default:
		return graph.Term{}, fmt.Errorf("%s: more than one <%s>", s.iri, predicate)
	}
}

func (s *subject) literal(predicate string) (string, error) {
	t, err := s.one(predicate)
	if err != nil {
		return "", err
	}
	if t.Kind != graph.LiteralKind {
		return "", fmt.Errorf("%s: <%s> must be a literal", s.iri, predicate)
	}
	return t.Value, nil
}

func (s *subject) optionalLiteral(predicate string) (string, error) {
	if len(s.values[predicate]) == 0 {
		return "", nil
	}
	return s.literal(predicate)
}

func (s *subject) uint(predicate string) (uint64, error) {
	lit, err := s.literal(predicate)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(lit, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: <%s>: %v", s.iri, predicate, err)
	}
	return n, nil
}

// Extract finds the proposals and votes among statements, in order of first
// appearance. Malformed entries are skipped and reported together in the
// returned error; the well-formed ones are still returned.
func Extract(statements []graph.Statement) ([]*Proposal, []*Vote, error) {
	subjects := make(map[string]*subject)
	order := []*subject{}
	get := func(iri string) *subject {
		s, ok := subjects[iri]
		if !ok {
			s = &subject{iri: iri, values: make(map[string][]graph.Term)}
			subjects[iri] = s
			order = append(order, s)
		}
		return s
	}

	for _, st := range statements {
		if st.Subject.Kind != graph.IRIKind {
			continue
		}
		if st.Predicate.Value == graph.RDFType {
			if st.Object.Value == ClassProposal || st.Object.Value == ClassVote {
				get(st.Subject.Value).class = st.Object.Value
			}
			continue
		}
		if strings.HasPrefix(st.Predicate.Value, Namespace) {
			s := get(st.Subject.Value)
			s.values[st.Predicate.Value] = append(s.values[st.Predicate.Value], st.Object)
		}
	}

	var (
		proposals []*Proposal
		votes     []*Vote
		errs      error
	)
	for _, s := range order {
		switch s.class {
		case ClassProposal:
			p, err := decodeProposal(s)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			proposals = append(proposals, p)
		case ClassVote:
			v, err := decodeVote(s)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			votes = append(votes, v)
		}
	}
	return proposals, votes, errs
}

func decodeProposal(s *subject) (*Proposal, error) {
	action, err := s.literal(PredAction)
	if err != nil {
		return nil, err
	}
	pubKey, err := s.literal(PredValidator)
	if err != nil {
		return nil, err
	}
	deadline, err := s.uint(PredDeadline)
	if err != nil {
		return nil, err
	}
	proposer, err := s.literal(PredProposer)
	if err != nil {
		return nil, err
	}
	sig, err := s.literal(PredSignature)
	if err != nil {
		return nil, err
	}

	p := &Proposal{
		ID:        s.iri,
		Action:    Action(action),
		Validator: &validators.Validator{PubKeyHex: pubKey},
		Deadline:  deadline,
		Proposer:  proposer,
		Signature: sig,
	}

	switch p.Action {
	case ValidatorAddition:
		if p.Validator.NetAddr, err = s.optionalLiteral(PredNetAddr); err != nil {
			return nil, err
		}
		if p.Validator.Moniker, err = s.optionalLiteral(PredMoniker); err != nil {
			return nil, err
		}
		role, err := s.literal(PredRole)
		if err != nil {
			return nil, err
		}
		p.Validator.Role = validators.Role(role)
		if p.Validator.Weight, err = s.uint(PredWeight); err != nil {
			return nil, err
		}
	case ValidatorRemoval:
	default:
		return nil, fmt.Errorf("%s: unknown action %q", s.iri, action)
	}
	return p, nil
}

func decodeVote(s *subject) (*Vote, error) {
	proposal, err := s.one(PredProposal)
	if err != nil {
		return nil, err
	}
	if proposal.Kind != graph.IRIKind {
		return nil, fmt.Errorf("%s: <%s> must be an IRI", s.iri, PredProposal)
	}
	choice, err := s.literal(PredChoice)
	if err != nil {
		return nil, err
	}
	if choice != "for" && choice != "against" {
		return nil, fmt.Errorf("%s: unknown choice %q", s.iri, choice)
	}
	voter, err := s.literal(PredVoter)
	if err != nil {
		return nil, err
	}
	sig, err := s.literal(PredSignature)
	if err != nil {
		return nil, err
	}
	return &Vote{
		ProposalID: proposal.Value,
		Voter:      voter,
		InFavour:   choice == "for",
		Signature:  sig,
	}, nil
}
