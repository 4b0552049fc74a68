// Package metamodel composes backend sources into one GraphQL schema and
// indexes it by operation path.
//
// A Metamodel is an immutable snapshot. Its creation time identifies the
// snapshot: caches keyed by it are invalidated simply by composing again.
package metamodel

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/language"
	"github.com/hanpama/virtugraph/internal/pathgraph"
)

// BuiltinSDL declares the directives the gateway understands.
const BuiltinSDL = `
enum SubtypingStrategy {
  FIELD_NAME
  FIELD_VALUE
}

directive @subtyping(strategy: SubtypingStrategy!, discriminatorField: String) on INTERFACE
directive @discriminator(fieldName: String, fieldValue: String) on OBJECT
`

// SchemaEdge labels edges of the schema graph.
type SchemaEdge uint8

const (
	// SchemaEdgeField links a field to a field of its type.
	SchemaEdgeField SchemaEdge = iota + 1
	// SchemaEdgeArgument links an argument to the field it belongs to.
	SchemaEdgeArgument
	// SchemaEdgeFragment links an abstract field to a possible type.
	SchemaEdgeFragment
)

// SchemaVertex describes one schema path.
type SchemaVertex struct {
	Source        string
	ParentType    string
	Field         *ast.FieldDefinition
	Argument      *ast.ArgumentDefinition
	TypeCondition string
	// Truncated marks fields whose type already occurs on the path above;
	// their children are not expanded.
	Truncated bool
}

type Option func(*options)

type options struct {
	created time.Time
}

// WithCreated overrides the snapshot timestamp.
func WithCreated(t time.Time) Option { return func(o *options) { o.created = t } }

type Metamodel struct {
	id       uuid.UUID
	created  time.Time
	schema   *ast.Schema
	sources  []Source
	byName   map[string]Source
	byDomain map[string]Source
	graph    pathgraph.Graph[SchemaVertex, SchemaEdge]
	columns  map[string][]gqlpath.Path
}

// Compose validates and merges the sources' SDL and indexes the result.
func Compose(sources []Source, opts ...Option) (*Metamodel, error) {
	o := options{created: time.Now()}
	for _, f := range opts {
		f(&o)
	}
	m := &Metamodel{
		id:       uuid.New(),
		created:  o.created,
		byName:   map[string]Source{},
		byDomain: map[string]Source{},
		columns:  map[string][]gqlpath.Path{},
	}
	inputs := []*ast.Source{{Name: "builtin.graphql", Input: BuiltinSDL}}
	for _, src := range sources {
		if _, dup := m.byName[src.Name()]; dup {
			return nil, fmt.Errorf("metamodel: duplicate source %q", src.Name())
		}
		if other, dup := m.byDomain[src.DomainField()]; dup {
			return nil, fmt.Errorf("metamodel: sources %q and %q both claim Query.%s", other.Name(), src.Name(), src.DomainField())
		}
		m.byName[src.Name()] = src
		m.byDomain[src.DomainField()] = src
		m.sources = append(m.sources, src)
		inputs = append(inputs, &ast.Source{Name: src.Name() + ".graphql", Input: src.SDL()})
	}
	sort.Slice(m.sources, func(i, j int) bool { return m.sources[i].Name() < m.sources[j].Name() })

	schema, err := language.LoadSchema(inputs...)
	if err != nil {
		return nil, fmt.Errorf("metamodel: load schema: %w", err)
	}
	if schema.Query == nil {
		return nil, fmt.Errorf("metamodel: schema has no Query type")
	}
	m.schema = schema

	for _, src := range m.sources {
		if schema.Query.Fields.ForName(src.DomainField()) == nil {
			return nil, fmt.Errorf("metamodel: source %q does not define Query.%s", src.Name(), src.DomainField())
		}
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metamodel) index() error {
	m.graph = pathgraph.New[SchemaVertex, SchemaEdge]()
	for _, f := range m.schema.Query.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		src, ok := m.byDomain[f.Name]
		if !ok {
			return fmt.Errorf("metamodel: Query.%s is not provided by any source", f.Name)
		}
		if err := m.walkField(gqlpath.Root().Field(f.Name), gqlpath.Root(), m.schema.Query.Name, f, src.Name(), nil); err != nil {
			return err
		}
	}
	for k := range m.columns {
		slices.SortFunc(m.columns[k], gqlpath.Compare)
	}
	return nil
}

func (m *Metamodel) putEdge(src, dst gqlpath.Path, kind SchemaEdge) error {
	g, err := m.graph.PutEdge(src, dst, kind)
	if err != nil {
		return fmt.Errorf("metamodel: index %s: %w", dst, err)
	}
	m.graph = g
	return nil
}

func (m *Metamodel) walkField(p, parent gqlpath.Path, parentType string, def *ast.FieldDefinition, source string, stack []string) error {
	typ := m.schema.Types[def.Type.Name()]
	truncated := typ != nil && slices.Contains(stack, typ.Name)
	m.graph = m.graph.PutVertex(p, SchemaVertex{Source: source, ParentType: parentType, Field: def, Truncated: truncated})
	if !parent.IsRoot() {
		if err := m.putEdge(parent, p, SchemaEdgeField); err != nil {
			return err
		}
	}
	for _, a := range def.Arguments {
		ap := p.Argument(a.Name)
		m.graph = m.graph.PutVertex(ap, SchemaVertex{Source: source, ParentType: parentType, Field: def, Argument: a})
		if err := m.putEdge(ap, p, SchemaEdgeArgument); err != nil {
			return err
		}
	}
	if typ == nil || truncated {
		return nil
	}
	switch typ.Kind {
	case ast.Scalar, ast.Enum:
		m.indexColumn(p)
		return nil
	}
	stack = append(stack, typ.Name)
	for _, f := range typ.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		if err := m.walkField(p.Field(f.Name), p, typ.Name, f, source, stack); err != nil {
			return err
		}
	}
	if typ.Kind != ast.Interface && typ.Kind != ast.Union {
		return nil
	}
	for _, pt := range m.schema.GetPossibleTypes(typ) {
		if pt.Name == typ.Name {
			continue
		}
		fp := p.InlineFragment(pt.Name)
		m.graph = m.graph.PutVertex(fp, SchemaVertex{Source: source, ParentType: typ.Name, TypeCondition: pt.Name})
		if err := m.putEdge(p, fp, SchemaEdgeFragment); err != nil {
			return err
		}
		for _, f := range pt.Fields {
			if strings.HasPrefix(f.Name, "__") || typ.Fields.ForName(f.Name) != nil {
				continue
			}
			if err := m.walkField(fp.Field(f.Name), fp, pt.Name, f, source, append(stack, pt.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexColumn registers a leaf under its bare name and its dotted field path.
func (m *Metamodel) indexColumn(p gqlpath.Path) {
	var names []string
	for _, s := range p.FieldPath().Segments() {
		names = append(names, s.Name)
	}
	m.columns[names[len(names)-1]] = append(m.columns[names[len(names)-1]], p)
	if len(names) > 1 {
		dotted := strings.Join(names, ".")
		m.columns[dotted] = append(m.columns[dotted], p)
	}
}

func (m *Metamodel) ID() uuid.UUID             { return m.id }
func (m *Metamodel) Created() time.Time        { return m.created }
func (m *Metamodel) Schema() *ast.Schema       { return m.schema }
func (m *Metamodel) Sources() []Source         { return slices.Clone(m.sources) }
func (m *Metamodel) Source(name string) Source { return m.byName[name] }

// Graph is the schema as a path graph: field vertices with field and
// fragment edges downwards and argument edges into their field.
func (m *Metamodel) Graph() pathgraph.Graph[SchemaVertex, SchemaEdge] { return m.graph }

// DomainOf returns the source owning the request path p together with the
// request path of its domain selection.
func (m *Metamodel) DomainOf(p gqlpath.Path) (Source, gqlpath.Path, bool) {
	segs := p.Segments()
	if len(segs) == 0 || !segs[0].Kind.IsSelection() {
		return nil, gqlpath.Path{}, false
	}
	src, ok := m.byDomain[segs[0].Name]
	if !ok {
		return nil, gqlpath.Path{}, false
	}
	return src, gqlpath.MustOf(segs[0]), true
}

// Vertex looks up a schema path.
func (m *Metamodel) Vertex(schemaPath gqlpath.Path) (SchemaVertex, bool) {
	return m.graph.Vertex(schemaPath)
}

// SchemaPath maps a request path onto the schema graph by dropping aliases
// and named fragment spreads. Inline fragments on the field's own type are
// dropped too.
func (m *Metamodel) SchemaPath(p gqlpath.Path, fragmentTypes map[string]string) gqlpath.Path {
	out := gqlpath.Root()
	for _, s := range p.Segments() {
		var next gqlpath.Path
		switch s.Kind {
		case gqlpath.KindAliasedField:
			next = out.Field(s.Name)
		case gqlpath.KindFragmentSpread:
			tc := fragmentTypes[s.Name]
			if tc == "" {
				continue
			}
			next = out.InlineFragment(tc)
		default:
			next = mustAppend(out, s)
		}
		if s.Kind == gqlpath.KindFragmentSpread || s.Kind == gqlpath.KindInlineFragment {
			if !m.graph.HasVertex(next) {
				continue
			}
		}
		out = next
	}
	return out
}

func mustAppend(p gqlpath.Path, s gqlpath.Segment) gqlpath.Path {
	c, err := p.Append(s)
	if err != nil {
		panic(err)
	}
	return c
}

// PathsForColumn returns the schema paths a tabular column name may refer
// to. Names are leaf field names or dotted field paths such as "shows.title".
func (m *Metamodel) PathsForColumn(name string) []gqlpath.Path {
	return slices.Clone(m.columns[name])
}

// FieldDefinition returns the definition behind a schema field path.
func (m *Metamodel) FieldDefinition(schemaPath gqlpath.Path) (*ast.FieldDefinition, bool) {
	v, ok := m.graph.Vertex(schemaPath)
	if !ok || v.Field == nil || v.Argument != nil {
		return nil, false
	}
	return v.Field, true
}
