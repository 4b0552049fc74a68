package executor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const inputSchema = `
type Query { search(filter: FilterInput): [String] }

input FilterInput {
  required: String!
  optional: Int
  limit: Int = 10
  tags: [String!]
}
`

func TestCoerceVariableValues_InputObjectValidation(t *testing.T) {
	sch := mustLoadSchema(t, inputSchema)
	doc := mustLoadQuery(t, sch, `query($input: FilterInput!) { search(filter: $input) }`)
	op := doc.Operations[0]

	_, err := CoerceVariableValues(sch, op, map[string]any{
		"input": map[string]any{"optional": 10},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required field 'required'")

	_, err = CoerceVariableValues(sch, op, map[string]any{
		"input": map[string]any{"required": "x", "unknown": 1},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field 'unknown'")

	got, err := CoerceVariableValues(sch, op, map[string]any{
		"input": map[string]any{"required": "x", "optional": 3.0, "tags": "solo"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"input": map[string]any{"required": "x", "optional": 3, "limit": 10, "tags": []any{"solo"}},
	}, got)
}

func TestCoerceVariableValues_ScalarTypeMismatch(t *testing.T) {
	sch := mustLoadSchema(t, `type Query { page(count: Int!, ratio: Float): Int }`)
	doc := mustLoadQuery(t, sch, `query($count: Int!, $ratio: Float = 0.5) { page(count: $count, ratio: $ratio) }`)
	op := doc.Operations[0]

	_, err := CoerceVariableValues(sch, op, map[string]any{"count": "42"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot coerce")

	_, err = CoerceVariableValues(sch, op, map[string]any{"count": 1.5})
	require.Error(t, err)

	_, err = CoerceVariableValues(sch, op, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "was not provided")

	got, err := CoerceVariableValues(sch, op, map[string]any{"count": 42.0})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"count": 42, "ratio": 0.5}, got)
}

func TestSerializeLeaf(t *testing.T) {
	sch := mustLoadSchema(t, `type Query { k: Kind } enum Kind { A B }`)

	tests := []struct {
		typ   string
		in    any
		want  any
		fails bool
	}{
		{typ: "Int", in: 3.0, want: 3},
		{typ: "Int", in: "7", want: 7},
		{typ: "Int", in: 3.5, fails: true},
		{typ: "Float", in: 2, want: 2.0},
		{typ: "String", in: 12, want: "12"},
		{typ: "ID", in: 12.0, want: "12"},
		{typ: "Boolean", in: "yes", fails: true},
		{typ: "Kind", in: "B", want: "B"},
		{typ: "Kind", in: "C", fails: true},
	}
	for _, tt := range tests {
		got, err := SerializeLeaf(sch.Types[tt.typ], tt.in)
		if tt.fails {
			require.Error(t, err, "%s %v", tt.typ, tt.in)
			continue
		}
		require.NoError(t, err, "%s %v", tt.typ, tt.in)
		require.Equal(t, tt.want, got, "%s %v", tt.typ, tt.in)
	}
}
