package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInmemStatementStore(t *testing.T) {
	store := NewInmemStatementStore()

	g := peopleGraph(t, "b1", "b2")
	require.NoError(t, store.InsertGraph("urn:semchain:block:1", g.Statements))
	require.Error(t, store.InsertGraph("urn:semchain:block:1", g.Statements))

	batch := []Statement{NewStatement(exIRI("Batch1"), exIRI("hasOrigin"), exIRI("FarmA"))}
	require.NoError(t, store.InsertGraph("urn:semchain:block:2", batch))

	require.Equal(t, []string{"urn:semchain:block:1", "urn:semchain:block:2"}, store.GraphNames())

	name := exIRI("name")
	res, err := store.Query("urn:semchain:block:1", Pattern{Predicate: &name})
	require.NoError(t, err)
	require.Len(t, res, 2)

	all, err := store.Query("", Pattern{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	farm := exIRI("FarmA")
	res, err = store.Query("", Pattern{Object: &farm})
	require.NoError(t, err)
	require.Equal(t, batch, res)

	_, err = store.Query("urn:semchain:block:9", Pattern{})
	require.Error(t, err)

	require.NoError(t, store.DeleteGraph("urn:semchain:block:2"))
	require.NoError(t, store.DeleteGraph("urn:semchain:block:9"))
	require.Equal(t, []string{"urn:semchain:block:1"}, store.GraphNames())
	require.NoError(t, store.InsertGraph("urn:semchain:block:2", batch))
}
