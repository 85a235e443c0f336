package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNTriples(t *testing.T) {
	input := `
# a provenance record
<http://example.org/Batch1> <http://example.org/hasOrigin> <http://example.org/FarmA> .
_:b1 <http://example.org/name> "Alice \"A\"" .
_:b1 <http://example.org/label> "ferme"@FR .
<http://example.org/Batch1> <http://example.org/weight> "12.5"^^<http://www.w3.org/2001/XMLSchema#decimal> .
_:b1 <http://example.org/knows> _:b2.
`
	statements, err := ParseNTriples(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, statements, 5)

	require.Equal(t, exIRI("FarmA"), statements[0].Object)
	require.Equal(t, Literal(`Alice "A"`), statements[1].Object)
	require.Equal(t, LangLiteral("ferme", "fr"), statements[2].Object)
	require.Equal(t, TypedLiteral("12.5", "http://www.w3.org/2001/XMLSchema#decimal"), statements[3].Object)
	require.Equal(t, Blank("b2"), statements[4].Object)

	for _, s := range statements {
		back, err := ParseStatement(s.String())
		require.NoError(t, err)
		require.Equal(t, s, back)
	}
}

func TestParseNTriplesErrors(t *testing.T) {
	for _, line := range []string{
		`<http://example.org/a> <http://example.org/b> <http://example.org/c>`,
		`<http://example.org/a> <http://example.org/b> "unterminated .`,
		`"literal" <http://example.org/b> <http://example.org/c> .`,
		`<http://example.org/a> _:p <http://example.org/c> .`,
		`<http://example.org/a> <http://example.org/b> <http://example.org/c> . junk`,
	} {
		_, err := ParseNTriples(strings.NewReader(line))
		require.Error(t, err, line)
	}
}

func TestParseTerm(t *testing.T) {
	term, err := ParseTerm(" <http://example.org/FarmA> ")
	require.NoError(t, err)
	require.Equal(t, exIRI("FarmA"), term)

	term, err = ParseTerm(`"ferme"@fr`)
	require.NoError(t, err)
	require.Equal(t, LangLiteral("ferme", "fr"), term)

	for _, bad := range []string{"", "FarmA", "<http://example.org/a> <http://example.org/b>"} {
		_, err := ParseTerm(bad)
		require.Error(t, err, bad)
	}
}
