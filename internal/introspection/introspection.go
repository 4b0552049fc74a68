// Package introspection answers the __schema and __type meta fields of the
// gateway schema on top of another executor.Runtime.
package introspection

import (
	"context"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/executor"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

// Wrap returns a Runtime that resolves introspection fields against sch
// and delegates every other field to base.
func Wrap(base executor.Runtime, sch *ast.Schema) executor.Runtime {
	return &runtime{Runtime: base, schema: sch}
}

// Deny returns a Runtime that rejects introspection fields.
func Deny(base executor.Runtime) executor.Runtime {
	return &runtime{Runtime: base}
}

type runtime struct {
	executor.Runtime
	schema *ast.Schema
}

func (r *runtime) ResolveField(ctx context.Context, req executor.FieldRequest) (any, error) {
	if !strings.HasPrefix(req.ObjectType, "__") && !isMetaField(req) {
		return r.Runtime.ResolveField(ctx, req)
	}
	if r.schema == nil {
		return nil, svcerr.InvalidRequest("introspection is disabled")
	}
	switch req.ObjectType {
	case "__Schema":
		return r.schemaField(req.Definition.Name), nil
	case "__Type":
		t, _ := req.Source.(*ast.Type)
		return r.typeField(t, req.Definition.Name, req.Args), nil
	case "__Field":
		f, _ := req.Source.(*ast.FieldDefinition)
		return fieldField(f, req.Definition.Name, req.Args), nil
	case "__InputValue":
		a, _ := req.Source.(*ast.ArgumentDefinition)
		return inputValueField(a, req.Definition.Name), nil
	case "__EnumValue":
		v, _ := req.Source.(*ast.EnumValueDefinition)
		return enumValueField(v, req.Definition.Name), nil
	case "__Directive":
		d, _ := req.Source.(*ast.DirectiveDefinition)
		return directiveField(d, req.Definition.Name, req.Args), nil
	}
	switch req.Definition.Name {
	case "__schema":
		return r.schema, nil
	case "__type":
		name, _ := req.Args["name"].(string)
		if r.schema.Types[name] == nil {
			return nil, nil
		}
		return ast.NamedType(name, nil), nil
	}
	return nil, nil
}

func isMetaField(req executor.FieldRequest) bool {
	return req.Source == nil && strings.HasPrefix(req.Definition.Name, "__")
}
