package graph

import "fmt"

// NamedGraph is an unordered set of statements tagged with a name. It is
// created once, when a block is proposed, and must not be modified after that.
type NamedGraph struct {
	Name       string
	Statements []Statement
}

// NewNamedGraph validates the statements and drops exact duplicates. The
// first occurrence of a statement keeps its position.
func NewNamedGraph(name string, statements []Statement) (*NamedGraph, error) {
	seen := make(map[string]struct{}, len(statements))
	set := make([]Statement, 0, len(statements))

	for i, s := range statements {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("statement %d: %v", i, err)
		}
		key := s.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		set = append(set, s)
	}

	return &NamedGraph{
		Name:       name,
		Statements: set,
	}, nil
}

// Len returns the number of distinct statements.
func (g *NamedGraph) Len() int {
	return len(g.Statements)
}

// Copy returns a deep copy of the graph.
func (g *NamedGraph) Copy() *NamedGraph {
	statements := make([]Statement, len(g.Statements))
	copy(statements, g.Statements)
	return &NamedGraph{
		Name:       g.Name,
		Statements: statements,
	}
}

// Validate checks every statement. Graphs decoded from the wire go through
// this before they are canonicalized.
func (g *NamedGraph) Validate() error {
	for i, s := range g.Statements {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("statement %d: %v", i, err)
		}
	}
	return nil
}

// Subjects returns every distinct non-blank subject, in order of first
// appearance.
func (g *NamedGraph) Subjects() []Term {
	seen := make(map[string]struct{})
	res := []Term{}
	for _, s := range g.Statements {
		if s.Subject.IsBlank() {
			continue
		}
		k := s.Subject.String()
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			res = append(res, s.Subject)
		}
	}
	return res
}
