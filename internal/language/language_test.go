package language

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
)

const catalog = `
type Query { shows(first: Int): [Show] }
type Show { title: String }
`

func TestLoadQuery(t *testing.T) {
	sch, err := LoadSchema(&Source{Name: "catalog.graphql", Input: catalog})
	require.NoError(t, err)

	doc, errs := LoadQuery(sch, `query Q($n: Int) { shows(first: $n) { title } }`)
	require.Empty(t, errs)
	field := doc.Operations.ForName("Q").SelectionSet[0].(*ast.Field)
	require.NotNil(t, field.Definition, "validation resolves field definitions")

	_, errs = LoadQuery(sch, `{ shows { nope } }`)
	require.Len(t, errs, 1)

	_, errs = LoadQuery(sch, `{ shows {`)
	require.Len(t, errs, 1)
}

func TestFormatSchemaOmitsBuiltins(t *testing.T) {
	sch, err := LoadSchema(&Source{Name: "catalog.graphql", Input: catalog})
	require.NoError(t, err)

	sdl := FormatSchema(sch)
	require.Contains(t, sdl, "type Show")
	require.NotContains(t, sdl, "__schema")
	require.NotContains(t, sdl, "scalar String")
}

func TestFormatOperation(t *testing.T) {
	doc, err := ParseQuery(`query Q { s: shows(first: 2) { ...F } } fragment F on Show { title }`)
	require.NoError(t, err)

	out := FormatOperation(doc.Operations[0], doc.Fragments)
	require.True(t, strings.HasPrefix(out, "query Q {"), out)
	require.Contains(t, out, "s: shows(first: 2)")
	require.Contains(t, out, "fragment F on Show")
}
