package governance

import "github.com/provchain/semchain/src/graph"

// Namespace prefixes every governance predicate and class.
const Namespace = "urn:semchain:gov#"

const (
	ClassProposal = Namespace + "Proposal"
	ClassVote     = Namespace + "Vote"

	PredAction    = Namespace + "action"
	PredValidator = Namespace + "validator"
	PredNetAddr   = Namespace + "netAddr"
	PredMoniker   = Namespace + "moniker"
	PredRole      = Namespace + "role"
	PredWeight    = Namespace + "weight"
	PredDeadline  = Namespace + "deadline"
	PredProposer  = Namespace + "proposer"
	PredProposal  = Namespace + "proposal"
	PredChoice    = Namespace + "choice"
	PredVoter     = Namespace + "voter"
	PredSignature = Namespace + "signature"
)

const (
	proposalIRIPrefix = "urn:semchain:gov:proposal:"
	voteIRIPrefix     = "urn:semchain:gov:vote:"

	xsdInteger = "http://www.w3.org/2001/XMLSchema#integer"
)

// Predicates lists the vocabulary, for use with graph.AllowedPredicates.
func Predicates() []string {
	return []string{
		graph.RDFType,
		PredAction,
		PredValidator,
		PredNetAddr,
		PredMoniker,
		PredRole,
		PredWeight,
		PredDeadline,
		PredProposer,
		PredProposal,
		PredChoice,
		PredVoter,
		PredSignature,
	}
}

// Rules returns gate rules that reject incomplete governance statements
// before they reach a block.
func Rules() []graph.Rule {
	return []graph.Rule{
		graph.RequiredPredicate(ClassProposal, PredAction),
		graph.RequiredPredicate(ClassProposal, PredValidator),
		graph.RequiredPredicate(ClassProposal, PredProposer),
		graph.RequiredPredicate(ClassProposal, PredSignature),
		graph.RequiredPredicate(ClassVote, PredProposal),
		graph.RequiredPredicate(ClassVote, PredChoice),
		graph.RequiredPredicate(ClassVote, PredVoter),
		graph.RequiredPredicate(ClassVote, PredSignature),
	}
}
