package graph

import (
	"fmt"

	"go.uber.org/multierr"
)

// RDFType is the predicate used by RequiredPredicate to find typed subjects.
const RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// Violation describes why a graph failed semantic validation.
type Violation struct {
	Rule      string
	Message   string
	Statement *Statement `json:",omitempty" codec:",omitempty"`
}

// Error ...
func (v Violation) Error() string {
	if v.Statement != nil {
		return fmt.Sprintf("%s: %s (%s)", v.Rule, v.Message, v.Statement)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Gate passes or rejects a graph. An empty result means the graph passes.
type Gate interface {
	Validate(g *NamedGraph) []Violation
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(g *NamedGraph) []Violation

// Validate implements Gate.
func (f GateFunc) Validate(g *NamedGraph) []Violation {
	return f(g)
}

// AcceptAll is a Gate that never rejects.
var AcceptAll Gate = GateFunc(func(*NamedGraph) []Violation { return nil })

// ViolationsError combines violations into a single error, or nil.
func ViolationsError(violations []Violation) error {
	var err error
	for _, v := range violations {
		err = multierr.Append(err, v)
	}
	return err
}

// Rule is one check of a RuleGate.
type Rule func(g *NamedGraph) []Violation

// RuleGate runs every rule and reports all violations together.
type RuleGate struct {
	rules []Rule
}

// NewRuleGate ...
func NewRuleGate(rules ...Rule) *RuleGate {
	return &RuleGate{rules: rules}
}

// Validate implements Gate.
func (r *RuleGate) Validate(g *NamedGraph) []Violation {
	res := []Violation{}
	for _, rule := range r.rules {
		res = append(res, rule(g)...)
	}
	return res
}

// MaxStatements rejects graphs larger than n statements.
func MaxStatements(n int) Rule {
	return func(g *NamedGraph) []Violation {
		if g.Len() > n {
			return []Violation{{
				Rule:    "max-statements",
				Message: fmt.Sprintf("graph has %d statements, limit is %d", g.Len(), n),
			}}
		}
		return nil
	}
}

// AllowedPredicates rejects statements whose predicate is not listed.
func AllowedPredicates(iris ...string) Rule {
	allowed := make(map[string]struct{}, len(iris))
	for _, iri := range iris {
		allowed[iri] = struct{}{}
	}
	return func(g *NamedGraph) []Violation {
		var res []Violation
		for i := range g.Statements {
			s := g.Statements[i]
			if _, ok := allowed[s.Predicate.Value]; !ok {
				res = append(res, Violation{
					Rule:      "allowed-predicates",
					Message:   fmt.Sprintf("predicate %s is not allowed", s.Predicate),
					Statement: &s,
				})
			}
		}
		return res
	}
}

// RequiredPredicate requires every subject typed with class to carry at least
// one statement with predicate.
func RequiredPredicate(class, predicate string) Rule {
	return func(g *NamedGraph) []Violation {
		typed := make(map[Term]bool)
		has := make(map[Term]bool)
		order := []Term{}
		for _, s := range g.Statements {
			if s.Predicate.Value == RDFType && s.Object == IRI(class) {
				if !typed[s.Subject] {
					order = append(order, s.Subject)
				}
				typed[s.Subject] = true
			}
			if s.Predicate.Value == predicate {
				has[s.Subject] = true
			}
		}

		var res []Violation
		for _, subject := range order {
			if !has[subject] {
				res = append(res, Violation{
					Rule:    "required-predicate",
					Message: fmt.Sprintf("%s of type <%s> lacks <%s>", subject, class, predicate),
				})
			}
		}
		return res
	}
}
