package executor

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/dispatch"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/svcerr"
	"github.com/hanpama/virtugraph/internal/typeresolve"
)

// Materialized is the Runtime over a dispatched request. Fields owned by a
// callable take its outcome; all others are projected out of their parent
// value by response name.
type Materialized struct {
	metamodel *metamodel.Metamodel
	result    *dispatch.Result
	types     *typeresolve.Registry
}

func NewMaterialized(m *metamodel.Metamodel, result *dispatch.Result, types *typeresolve.Registry) *Materialized {
	return &Materialized{metamodel: m, result: result, types: types}
}

func (r *Materialized) ResolveField(_ context.Context, req FieldRequest) (any, error) {
	if o := r.result.Outcome(req.Path); !o.IsPending() {
		return o.Get()
	}
	if req.Source == nil && req.Path.Len() == 1 {
		src, _, ok := r.metamodel.DomainOf(req.Path)
		if !ok {
			return nil, svcerr.New(svcerr.KindInternal).Messagef("%s is not provided by any source", req.Path).Build()
		}
		if src.Kind() == metamodel.DataElement {
			return nil, svcerr.New(svcerr.KindInternal).Messagef("%s was not dispatched", req.Path).Build()
		}
		// Transformer and feature domains are namespaces; their fields
		// carry the callables.
		return map[string]any{}, nil
	}
	return project(req.Source, req.ResponseName(), req.Definition.Name), nil
}

func project(source any, responseName, fieldName string) any {
	obj, ok := source.(map[string]any)
	if !ok {
		return nil
	}
	if v, ok := obj[responseName]; ok {
		return v
	}
	return obj[fieldName]
}

// ResolveType prefers the __typename a backend reported and falls back to
// the subtyping resolver of the interface.
func (r *Materialized) ResolveType(_ context.Context, abstractType *ast.Definition, fieldType *ast.Type, fields []*ast.Field, value any) (string, error) {
	if obj, ok := value.(map[string]any); ok {
		if name, ok := obj["__typename"].(string); ok && name != "" {
			return name, nil
		}
	}
	res, ok := r.types.Resolver(abstractType.Name)
	if !ok {
		return "", svcerr.New(svcerr.KindNotFound).Messagef("cannot resolve the concrete type of %s", abstractType.Name).Build()
	}
	return res.Resolve(typeresolve.Env{Type: fieldType, Selections: mergeSelectionSets(fields), Value: value})
}

func (r *Materialized) SerializeLeafValue(_ context.Context, typ *ast.Definition, value any) (any, error) {
	v, err := SerializeLeaf(typ, value)
	if err != nil {
		return nil, svcerr.New(svcerr.KindBadGateway).Message(err.Error()).Build()
	}
	return v, nil
}
