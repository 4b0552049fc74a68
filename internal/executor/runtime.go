package executor

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

// FieldRequest describes one field to resolve.
type FieldRequest struct {
	// ObjectType is the concrete type of the parent object.
	ObjectType string
	// Fields are the AST nodes collected under one response name.
	Fields     []*ast.Field
	Definition *ast.FieldDefinition
	// Path is the operation path of the field, including aliases and
	// fragment segments.
	Path gqlpath.Path
	// Source is the parent value; nil for root fields.
	Source any
	// Args are the field arguments, coerced per the schema.
	Args map[string]any
}

// ResponseName is the alias of the field, or its name.
func (r FieldRequest) ResponseName() string {
	f := r.Fields[0]
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Runtime supplies field values, abstract type resolution and leaf
// serialization.
//
// Implementations must not mutate source or argument values. Errors are
// turned into located GraphQL errors; *svcerr.Error values keep their
// structure in the error extensions.
type Runtime interface {
	// ResolveField returns the raw value of a field before completion.
	// Return (nil, nil) for a GraphQL null.
	ResolveField(ctx context.Context, req FieldRequest) (any, error)

	// ResolveType names the concrete object type of a value of an interface
	// or union type. fieldType is the declared type of the field holding the
	// value and fields are its AST nodes.
	ResolveType(ctx context.Context, abstractType *ast.Definition, fieldType *ast.Type, fields []*ast.Field, value any) (string, error)

	// SerializeLeafValue turns a scalar or enum value into a JSON-safe Go
	// value. Enums serialize to their name.
	SerializeLeafValue(ctx context.Context, typ *ast.Definition, value any) (any, error)
}
