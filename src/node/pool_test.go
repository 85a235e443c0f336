package node

import (
	"fmt"
	"testing"

	"github.com/provchain/semchain/src/graph"
	"github.com/stretchr/testify/require"
)

func poolStatements(n int) []graph.Statement {
	res := []graph.Statement{}
	for i := 0; i < n; i++ {
		res = append(res, graph.NewStatement(
			graph.IRI(fmt.Sprintf("http://example.org/batch%d", i)),
			graph.IRI("http://example.org/hasOrigin"),
			graph.IRI("http://example.org/FarmA"),
		))
	}
	return res
}

func TestPoolDeduplicates(t *testing.T) {
	pool := newStatementPool(0)
	s := poolStatements(3)

	require.Equal(t, 3, pool.Add(s))
	require.Equal(t, 0, pool.Add(s[1:]))
	require.Equal(t, 3, pool.Len())
}

func TestPoolBatchOrder(t *testing.T) {
	pool := newStatementPool(0)
	s := poolStatements(5)
	pool.Add(s)

	batch := pool.Batch(2)
	require.Equal(t, s[:2], batch)
	require.Equal(t, 5, pool.Len(), "Batch should not remove statements")

	require.Equal(t, s, pool.Batch(0))
}

func TestPoolRemove(t *testing.T) {
	pool := newStatementPool(0)
	s := poolStatements(5)
	pool.Add(s)

	pool.Remove([]graph.Statement{s[0], s[3]})
	require.Equal(t, []graph.Statement{s[1], s[2], s[4]}, pool.Batch(0))

	// unknown statements are ignored
	pool.Remove(poolStatements(1))
	require.Equal(t, 3, pool.Len())
}

func TestPoolCapacity(t *testing.T) {
	pool := newStatementPool(2)
	require.Equal(t, 2, pool.Add(poolStatements(4)))
	require.Equal(t, 2, pool.Len())
}
