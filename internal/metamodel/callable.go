package metamodel

import (
	"context"
	"maps"
	"slices"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

// Callable produces the value at Path once the values at Inputs are known.
type Callable interface {
	Path() gqlpath.Path
	SourceName() string
	Inputs() []gqlpath.Path
	Invoke(ctx context.Context, args map[gqlpath.Path]any) (any, error)
}

// DataElementCallableBuilder collects the selections and arguments a request
// makes below one data element domain. It is a value: With* methods return
// a modified copy and never touch the receiver.
type DataElementCallableBuilder struct {
	source         Source
	domain         gqlpath.Path
	selections     *iradix.Tree // path key -> gqlpath.Path
	arguments      *iradix.Tree // path key -> argumentEntry
	typeConditions map[string]string
}

type argumentEntry struct {
	path gqlpath.Path
	typ  *ast.Type
}

func NewDataElementCallableBuilder(src Source, domain gqlpath.Path) DataElementCallableBuilder {
	return DataElementCallableBuilder{source: src, domain: domain, selections: iradix.New(), arguments: iradix.New()}
}

func (b DataElementCallableBuilder) Source() Source       { return b.source }
func (b DataElementCallableBuilder) Domain() gqlpath.Path { return b.domain }

func (b DataElementCallableBuilder) WithSelection(p gqlpath.Path) DataElementCallableBuilder {
	b.selections, _, _ = orEmpty(b.selections).Insert([]byte(p.Key()), p)
	return b
}

func (b DataElementCallableBuilder) WithArgument(p gqlpath.Path, typ *ast.Type) DataElementCallableBuilder {
	b.arguments, _, _ = orEmpty(b.arguments).Insert([]byte(p.Key()), argumentEntry{path: p, typ: typ})
	return b
}

func (b DataElementCallableBuilder) WithTypeCondition(fragment, typeName string) DataElementCallableBuilder {
	tc := maps.Clone(b.typeConditions)
	if tc == nil {
		tc = map[string]string{}
	}
	tc[fragment] = typeName
	b.typeConditions = tc
	return b
}

// Selections lists selected paths in path-key order.
func (b DataElementCallableBuilder) Selections() []gqlpath.Path {
	var out []gqlpath.Path
	if b.selections == nil {
		return out
	}
	b.selections.Root().Walk(func(_ []byte, v interface{}) bool {
		out = append(out, v.(gqlpath.Path))
		return false
	})
	return out
}

func (b DataElementCallableBuilder) Arguments() []gqlpath.Path {
	var out []gqlpath.Path
	if b.arguments == nil {
		return out
	}
	b.arguments.Root().Walk(func(_ []byte, v interface{}) bool {
		out = append(out, v.(argumentEntry).path)
		return false
	})
	return out
}

// Merge unions the selections and arguments of other into b.
func (b DataElementCallableBuilder) Merge(other DataElementCallableBuilder) DataElementCallableBuilder {
	for _, p := range other.Selections() {
		b = b.WithSelection(p)
	}
	if other.arguments != nil {
		other.arguments.Root().Walk(func(_ []byte, v interface{}) bool {
			a := v.(argumentEntry)
			b = b.WithArgument(a.path, a.typ)
			return false
		})
	}
	for f, tc := range other.typeConditions {
		b = b.WithTypeCondition(f, tc)
	}
	return b
}

// Build validates the collected selections and returns the callable.
func (b DataElementCallableBuilder) Build() (Callable, error) {
	src, ok := b.source.(DataElementSource)
	if !ok {
		name := "<nil>"
		if b.source != nil {
			name = b.source.Name()
		}
		return nil, svcerr.New(svcerr.KindInternal).Messagef("source %s is not a data element source", name).Build()
	}
	if b.domain.IsRoot() {
		return nil, svcerr.New(svcerr.KindBadRequest).Messagef("data element %s has no domain selection", src.Name()).Build()
	}
	for _, p := range append(b.Selections(), b.Arguments()...) {
		if !p.IsDescendentTo(b.domain) {
			return nil, svcerr.New(svcerr.KindBadRequest).
				Messagef("selection %s is outside the %s domain %s", p, src.Name(), b.domain).
				Build()
		}
	}
	args := map[gqlpath.Path]*ast.Type{}
	orEmpty(b.arguments).Root().Walk(func(_ []byte, v interface{}) bool {
		a := v.(argumentEntry)
		args[a.path] = a.typ
		return false
	})
	return &dataElementCallable{
		source:         src,
		domain:         b.domain,
		selections:     b.Selections(),
		arguments:      args,
		inputs:         b.Arguments(),
		typeConditions: maps.Clone(b.typeConditions),
	}, nil
}

type dataElementCallable struct {
	source         DataElementSource
	domain         gqlpath.Path
	selections     []gqlpath.Path
	arguments      map[gqlpath.Path]*ast.Type
	inputs         []gqlpath.Path
	typeConditions map[string]string
}

func (c *dataElementCallable) Path() gqlpath.Path     { return c.domain }
func (c *dataElementCallable) SourceName() string     { return c.source.Name() }
func (c *dataElementCallable) Inputs() []gqlpath.Path { return slices.Clone(c.inputs) }

func (c *dataElementCallable) Invoke(ctx context.Context, args map[gqlpath.Path]any) (any, error) {
	req := DataElementRequest{
		Domain:         c.domain,
		Selections:     slices.Clone(c.selections),
		Arguments:      map[gqlpath.Path]ArgumentValue{},
		TypeConditions: maps.Clone(c.typeConditions),
	}
	for p, typ := range c.arguments {
		if v, ok := args[p]; ok {
			req.Arguments[p] = ArgumentValue{Type: typ, Value: v}
		}
	}
	return c.source.Fetch(ctx, req)
}

type fieldCallable struct {
	source string
	path   gqlpath.Path
	args   map[gqlpath.Path]string
	deps   map[gqlpath.Path]gqlpath.Path
	inputs []gqlpath.Path
	invoke func(ctx context.Context, args map[string]any, deps map[gqlpath.Path]any) (any, error)
}

func (c *fieldCallable) Path() gqlpath.Path     { return c.path }
func (c *fieldCallable) SourceName() string     { return c.source }
func (c *fieldCallable) Inputs() []gqlpath.Path { return slices.Clone(c.inputs) }

func (c *fieldCallable) Invoke(ctx context.Context, in map[gqlpath.Path]any) (any, error) {
	args := make(map[string]any, len(c.args))
	for p, name := range c.args {
		if v, ok := in[p]; ok {
			args[name] = v
		}
	}
	var deps map[gqlpath.Path]any
	if len(c.deps) > 0 {
		deps = make(map[gqlpath.Path]any, len(c.deps))
		for reqPath, schemaPath := range c.deps {
			deps[schemaPath] = in[reqPath]
		}
	}
	return c.invoke(ctx, args, deps)
}

func sortedInputs(args map[gqlpath.Path]string, deps map[gqlpath.Path]gqlpath.Path) []gqlpath.Path {
	out := slices.Collect(maps.Keys(args))
	for p := range deps {
		out = append(out, p)
	}
	slices.SortFunc(out, gqlpath.Compare)
	return out
}

// NewTransformerCallable binds the transformer behind fieldName to the
// request path. args maps argument request paths to argument names.
func NewTransformerCallable(src Source, path gqlpath.Path, fieldName string, args map[gqlpath.Path]string) (Callable, error) {
	ts, ok := src.(TransformerSource)
	if !ok {
		return nil, svcerr.New(svcerr.KindInternal).Messagef("source %s is not a transformer source", src.Name()).Build()
	}
	fn, ok := ts.Transformer(fieldName)
	if !ok {
		return nil, svcerr.New(svcerr.KindNotFound).Messagef("transformer %s has no function %s", src.Name(), fieldName).Build()
	}
	return &fieldCallable{
		source: src.Name(),
		path:   path,
		args:   maps.Clone(args),
		inputs: sortedInputs(args, nil),
		invoke: func(ctx context.Context, args map[string]any, _ map[gqlpath.Path]any) (any, error) {
			return fn(ctx, args)
		},
	}, nil
}

// NewFeatureCalculatorCallable binds the feature behind fieldName to the
// request path. deps maps request paths to the schema dependency they fill.
func NewFeatureCalculatorCallable(src Source, path gqlpath.Path, fieldName string, args map[gqlpath.Path]string, deps map[gqlpath.Path]gqlpath.Path) (Callable, error) {
	fs, ok := src.(FeatureCalculatorSource)
	if !ok {
		return nil, svcerr.New(svcerr.KindInternal).Messagef("source %s is not a feature calculator source", src.Name()).Build()
	}
	feature, ok := fs.Feature(fieldName)
	if !ok {
		return nil, svcerr.New(svcerr.KindNotFound).Messagef("feature calculator %s has no feature %s", src.Name(), fieldName).Build()
	}
	return &fieldCallable{
		source: src.Name(),
		path:   path,
		args:   maps.Clone(args),
		deps:   maps.Clone(deps),
		inputs: sortedInputs(args, deps),
		invoke: feature.Compute,
	}, nil
}

func orEmpty(t *iradix.Tree) *iradix.Tree {
	if t == nil {
		return iradix.New()
	}
	return t
}
