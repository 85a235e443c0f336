package graph

import (
	"fmt"
	"sort"
	"sync"
)

// StatementStore receives the graphs of committed blocks and answers pattern
// queries over them.
type StatementStore interface {
	// InsertGraph stores the statements under the graph name.
	InsertGraph(name string, statements []Statement) error
	// Query returns the statements of a graph matching the pattern. An empty
	// graph name queries every graph.
	Query(graphName string, pattern Pattern) ([]Statement, error)
	// DeleteGraph removes a graph. Deleting an unknown graph is not an error.
	DeleteGraph(name string) error
	// GraphNames lists the stored graphs.
	GraphNames() []string
}

// Pattern selects statements. A nil component matches anything.
type Pattern struct {
	Subject   *Term
	Predicate *Term
	Object    *Term
}

// Match ...
func (p Pattern) Match(s Statement) bool {
	return matchTerm(p.Subject, s.Subject) &&
		matchTerm(p.Predicate, s.Predicate) &&
		matchTerm(p.Object, s.Object)
}

func matchTerm(want *Term, got Term) bool {
	return want == nil || *want == got
}

// InmemStatementStore is a StatementStore kept in memory.
type InmemStatementStore struct {
	sync.RWMutex
	graphs map[string][]Statement
}

// NewInmemStatementStore ...
func NewInmemStatementStore() *InmemStatementStore {
	return &InmemStatementStore{
		graphs: make(map[string][]Statement),
	}
}

// InsertGraph implements StatementStore. Graphs are write-once.
func (s *InmemStatementStore) InsertGraph(name string, statements []Statement) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.graphs[name]; ok {
		return fmt.Errorf("graph %s already stored", name)
	}

	cp := make([]Statement, len(statements))
	copy(cp, statements)
	s.graphs[name] = cp

	return nil
}

// Query implements StatementStore.
func (s *InmemStatementStore) Query(graphName string, pattern Pattern) ([]Statement, error) {
	s.RLock()
	defer s.RUnlock()

	names := []string{graphName}
	if graphName == "" {
		names = s.graphNames()
	} else if _, ok := s.graphs[graphName]; !ok {
		return nil, fmt.Errorf("unknown graph %s", graphName)
	}

	res := []Statement{}
	for _, name := range names {
		for _, st := range s.graphs[name] {
			if pattern.Match(st) {
				res = append(res, st)
			}
		}
	}
	return res, nil
}

// DeleteGraph implements StatementStore.
func (s *InmemStatementStore) DeleteGraph(name string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.graphs, name)
	return nil
}

// GraphNames implements StatementStore.
func (s *InmemStatementStore) GraphNames() []string {
	s.RLock()
	defer s.RUnlock()
	return s.graphNames()
}

func (s *InmemStatementStore) graphNames() []string {
	names := make([]string, 0, len(s.graphs))
	for name := range s.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
