package executor

import (
	"testing"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/language"
)

// mustLoadSchema loads sdl on top of the GraphQL prelude and fails the test on error.
func mustLoadSchema(t *testing.T, sdl string) *ast.Schema {
	t.Helper()
	s, err := language.LoadSchema(&ast.Source{Name: "test.graphql", Input: sdl})
	if err != nil {
		t.Fatalf("schema error: %v", err)
	}
	return s
}

// mustLoadQuery parses and validates a GraphQL query and fails the test on error.
func mustLoadQuery(t *testing.T, s *ast.Schema, q string) *ast.QueryDocument {
	t.Helper()
	d, errs := language.LoadQuery(s, q)
	if len(errs) > 0 {
		t.Fatalf("query error: %v", errs)
	}
	return d
}
