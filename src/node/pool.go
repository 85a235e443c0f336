package node

import (
	"github.com/provchain/semchain/src/graph"
)

// statementPool holds the submitted statements that are not yet committed, in
// submission order. A statement is held at most once.
type statementPool struct {
	max   int
	order []string
	byKey map[string]graph.Statement
}

func newStatementPool(max int) *statementPool {
	return &statementPool{
		max:   max,
		byKey: make(map[string]graph.Statement),
	}
}

// Add inserts the statements not already pooled and returns how many were
// taken. Statements beyond the capacity are dropped.
func (p *statementPool) Add(statements []graph.Statement) int {
	added := 0
	for _, s := range statements {
		key := s.String()
		if _, ok := p.byKey[key]; ok {
			continue
		}
		if p.max > 0 && len(p.order) >= p.max {
			break
		}
		p.byKey[key] = s
		p.order = append(p.order, key)
		added++
	}
	return added
}

// Batch returns up to limit statements, oldest first, without removing them.
func (p *statementPool) Batch(limit int) []graph.Statement {
	n := len(p.order)
	if limit > 0 && limit < n {
		n = limit
	}
	res := make([]graph.Statement, 0, n)
	for _, key := range p.order[:n] {
		res = append(res, p.byKey[key])
	}
	return res
}

// Remove drops the statements that were committed.
func (p *statementPool) Remove(statements []graph.Statement) {
	removed := false
	for _, s := range statements {
		key := s.String()
		if _, ok := p.byKey[key]; ok {
			delete(p.byKey, key)
			removed = true
		}
	}
	if !removed {
		return
	}
	order := p.order[:0]
	for _, key := range p.order {
		if _, ok := p.byKey[key]; ok {
			order = append(order, key)
		}
	}
	p.order = order
}

// Len ...
func (p *statementPool) Len() int {
	return len(p.order)
}
