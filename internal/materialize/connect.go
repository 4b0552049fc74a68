package materialize

import (
	"maps"
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

// ConnectStandard plans the builder's operation: every selection, argument
// and directive becomes a vertex, and every selection is routed to the
// callable producing it. variables decide @skip and @include.
func ConnectStandard(b *StandardQueryBuilder, variables map[string]any) error {
	if b.Metamodel() == nil {
		return missingField("metamodel")
	}
	if b.document == nil {
		return missingField("document")
	}
	op := b.document.Operations.ForName(b.operationName)
	if op == nil {
		return svcerr.New(svcerr.KindBadRequest).Messagef("unknown operation %q", b.operationName).Build()
	}
	if op.Operation != ast.Query {
		return svcerr.New(svcerr.KindBadRequest).Messagef("%s operations are not supported", op.Operation).Build()
	}
	if !b.s.graphSet {
		b.SetRequestGraph(NewRequestGraph())
	}
	pl := newPlanner(&b.contextBuilder, variables)
	for _, f := range b.document.Fragments {
		pl.fragments[f.Name] = f
		pl.fragmentTypes[f.Name] = f.TypeCondition
	}
	for _, vd := range op.VariableDefinitions {
		b.AddVariableKeys(vd.Variable)
		b.PutVertex(gqlpath.Root().Argument(vd.Variable), PlanVertex{
			Kind: VertexInput,
			Spec: PlanSpec{Input: vd.Variable, TypeName: vd.Type.Name()},
		})
	}
	if err := pl.selectionSet(op.SelectionSet, gqlpath.Root(), pl.m.Schema().Query); err != nil {
		return err
	}
	return pl.finish()
}

// ConnectTabular plans the builder's unhandled columns. Raw input keys
// matching an argument name on the way to a column are passed to it.
func ConnectTabular(b *TabularQueryBuilder, rawInput map[string]any) error {
	if b.Metamodel() == nil {
		return missingField("metamodel")
	}
	if !b.s.graphSet {
		b.SetRequestGraph(NewRequestGraph())
	}
	pl := newPlanner(&b.contextBuilder, nil)
	keys := slices.Sorted(maps.Keys(rawInput))
	for _, k := range keys {
		ip, err := gqlpath.Root().Append(gqlpath.Argument(k))
		if err != nil {
			return svcerr.New(svcerr.KindBadRequest).Messagef("invalid input key %q", k).Cause(err).Build()
		}
		b.AddRawInputContextKeys(k)
		b.PutVertex(ip, PlanVertex{Kind: VertexInput, Spec: PlanSpec{Input: k}})
	}
	pl.inputs = rawInput
	for col, ok := b.DequeueUnhandledColumn(); ok; col, ok = b.DequeueUnhandledColumn() {
		paths := pl.m.PathsForColumn(col)
		switch len(paths) {
		case 0:
			return svcerr.New(svcerr.KindBadRequest).
				Messagef("unknown column %q", col).
				PutExtension("column", col).
				Build()
		case 1:
		default:
			candidates := make([]string, len(paths))
			for i, p := range paths {
				candidates[i] = p.String()
			}
			return svcerr.New(svcerr.KindBadRequest).
				Messagef("column %q is ambiguous", col).
				PutExtension("column", col).
				PutExtension("candidates", candidates).
				Build()
		}
		if err := pl.column(col, paths[0]); err != nil {
			return err
		}
	}
	return pl.finish()
}

type planner struct {
	b             *contextBuilder
	m             *metamodel.Metamodel
	variables     map[string]any
	inputs        map[string]any
	fragments     map[string]*ast.FragmentDefinition
	fragmentTypes map[string]string
	features      []pendingFeature
}

type pendingFeature struct {
	path   gqlpath.Path
	source metamodel.Source
	field  string
	args   map[gqlpath.Path]string
}

func newPlanner(b *contextBuilder, variables map[string]any) *planner {
	return &planner{
		b:             b,
		m:             b.Metamodel(),
		variables:     variables,
		fragments:     map[string]*ast.FragmentDefinition{},
		fragmentTypes: map[string]string{},
	}
}

func (pl *planner) included(dirs ast.DirectiveList) bool {
	for _, d := range dirs {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil {
			continue
		}
		v, err := arg.Value.Value(pl.variables)
		if err != nil {
			continue
		}
		cond, _ := v.(bool)
		if d.Name == "skip" && cond || d.Name == "include" && !cond {
			return false
		}
	}
	return true
}

func (pl *planner) selectionSet(set ast.SelectionSet, parent gqlpath.Path, parentType *ast.Definition) error {
	if parentType == nil {
		return svcerr.New(svcerr.KindBadRequest).Messagef("unknown type below %s", parent).Build()
	}
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if !pl.included(s.Directives) || strings.HasPrefix(s.Name, "__") {
				continue
			}
			if err := pl.field(s, parent, parentType); err != nil {
				return err
			}
		case *ast.InlineFragment:
			if !pl.included(s.Directives) {
				continue
			}
			tc := s.TypeCondition
			if tc == "" || tc == parentType.Name || parent.IsRoot() {
				if err := pl.selectionSet(s.SelectionSet, parent, parentType); err != nil {
					return err
				}
				continue
			}
			fp := parent.InlineFragment(tc)
			if err := pl.fragment(fp, parent, tc, ""); err != nil {
				return err
			}
			if err := pl.selectionSet(s.SelectionSet, fp, pl.m.Schema().Types[tc]); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if !pl.included(s.Directives) {
				continue
			}
			def := s.Definition
			if def == nil {
				def = pl.fragments[s.Name]
			}
			if def == nil {
				return svcerr.New(svcerr.KindBadRequest).Messagef("unknown fragment %s", s.Name).Build()
			}
			if parent.IsRoot() {
				if err := pl.selectionSet(def.SelectionSet, parent, parentType); err != nil {
					return err
				}
				continue
			}
			fp := parent.FragmentSpread(s.Name)
			if err := pl.fragment(fp, parent, def.TypeCondition, s.Name); err != nil {
				return err
			}
			if err := pl.selectionSet(def.SelectionSet, fp, pl.m.Schema().Types[def.TypeCondition]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (pl *planner) fragment(fp, parent gqlpath.Path, typeCondition, spread string) error {
	src, domain, ok := pl.m.DomainOf(fp)
	if !ok {
		return svcerr.New(svcerr.KindBadRequest).Messagef("%s is not provided by any source", fp).Build()
	}
	pl.b.PutVertex(fp, PlanVertex{Kind: VertexSelection, Spec: PlanSpec{
		Source:     src.Name(),
		SourceKind: src.Kind(),
		SchemaPath: pl.m.SchemaPath(fp, pl.fragmentTypes),
		TypeName:   typeCondition,
	}})
	if err := pl.b.PutEdge(parent, fp, EdgeSelection); err != nil {
		return err
	}
	if spread != "" && src.Kind() == metamodel.DataElement {
		pl.b.PutDataElementCallableBuilder(domain, pl.dataElement(src, domain).WithTypeCondition(spread, typeCondition))
	}
	return nil
}

func (pl *planner) dataElement(src metamodel.Source, domain gqlpath.Path) metamodel.DataElementCallableBuilder {
	if d, ok := pl.b.DataElementCallableBuilder(domain); ok {
		return d
	}
	return metamodel.NewDataElementCallableBuilder(src, domain)
}

func (pl *planner) field(f *ast.Field, parent gqlpath.Path, parentType *ast.Definition) error {
	fp := parent.AliasedField(f.Alias, f.Name)
	if parentType == nil {
		return svcerr.New(svcerr.KindBadRequest).Messagef("unknown parent type of %s", fp).Build()
	}
	def := f.Definition
	if def == nil {
		def = parentType.Fields.ForName(f.Name)
	}
	if def == nil {
		return svcerr.New(svcerr.KindBadRequest).Messagef("unknown field %s", fp).Build()
	}
	src, domain, ok := pl.m.DomainOf(fp)
	if !ok {
		return svcerr.New(svcerr.KindBadRequest).Messagef("%s is not provided by any source", fp).Build()
	}
	spec := PlanSpec{
		Source:     src.Name(),
		SourceKind: src.Kind(),
		SchemaPath: pl.m.SchemaPath(fp, pl.fragmentTypes),
		ParentType: parentType.Name,
		FieldName:  f.Name,
		TypeName:   def.Type.Name(),
		Field:      f,
	}
	pl.b.PutVertex(fp, PlanVertex{Kind: VertexSelection, Spec: spec})
	if !parent.IsRoot() {
		if err := pl.b.PutEdge(parent, fp, EdgeSelection); err != nil {
			return err
		}
	}

	args := map[gqlpath.Path]string{}
	types := map[gqlpath.Path]*ast.Type{}
	for _, a := range f.Arguments {
		ap := fp.Argument(a.Name)
		if err := pl.argument(ap, fp, a.Value); err != nil {
			return err
		}
		args[ap] = a.Name
		if ad := def.Arguments.ForName(a.Name); ad != nil {
			types[ap] = ad.Type
		}
	}
	for _, d := range f.Directives {
		if d.Name == "skip" || d.Name == "include" {
			continue
		}
		dp := fp.Directive(d.Name)
		pl.b.PutVertex(dp, PlanVertex{Kind: VertexDirective, Spec: PlanSpec{FieldName: d.Name}})
		if err := pl.b.PutEdge(dp, fp, EdgeDirective); err != nil {
			return err
		}
		for _, a := range d.Arguments {
			if err := pl.argument(dp.DirectiveArgument(a.Name), dp, a.Value); err != nil {
				return err
			}
		}
	}
	if err := pl.route(src, domain, fp, f.Name, args, types); err != nil {
		return err
	}
	if len(f.SelectionSet) == 0 {
		return nil
	}
	return pl.selectionSet(f.SelectionSet, fp, pl.m.Schema().Types[def.Type.Name()])
}

func (pl *planner) argument(ap, owner gqlpath.Path, value *ast.Value) error {
	spec := PlanSpec{Value: value}
	if value != nil && value.Kind == ast.Variable {
		spec.Input = value.Raw
	}
	pl.b.PutVertex(ap, PlanVertex{Kind: VertexArgument, Spec: spec})
	if err := pl.b.PutEdge(ap, owner, EdgeArgumentValue); err != nil {
		return err
	}
	for _, name := range variablesIn(value) {
		ip := gqlpath.Root().Argument(name)
		if !pl.b.RequestGraph().HasVertex(ip) {
			return svcerr.New(svcerr.KindBadRequest).Messagef("variable $%s is not defined", name).Build()
		}
		if err := pl.b.PutEdge(ip, ap, EdgeVariableValue); err != nil {
			return err
		}
	}
	return nil
}

func variablesIn(v *ast.Value) []string {
	if v == nil {
		return nil
	}
	if v.Kind == ast.Variable {
		return []string{v.Raw}
	}
	var out []string
	for _, c := range v.Children {
		out = append(out, variablesIn(c.Value)...)
	}
	return out
}

// isDomainChild reports whether fp is a field directly below domain.
func isDomainChild(domain, fp gqlpath.Path) bool {
	return fp.IsDescendentTo(domain) && fp.FieldPath().Len() == 2
}

func (pl *planner) route(src metamodel.Source, domain, fp gqlpath.Path, fieldName string, args map[gqlpath.Path]string, types map[gqlpath.Path]*ast.Type) error {
	switch src.Kind() {
	case metamodel.DataElement:
		d := pl.dataElement(src, domain)
		if fp != domain {
			d = d.WithSelection(fp)
		}
		for ap, t := range types {
			d = d.WithArgument(ap, t)
		}
		pl.b.PutDataElementCallableBuilder(domain, d)
	case metamodel.Transformer:
		if !isDomainChild(domain, fp) {
			return nil
		}
		c, err := metamodel.NewTransformerCallable(src, fp, fieldName, args)
		if err != nil {
			return err
		}
		pl.b.PutTransformerCallable(fp, c)
	case metamodel.FeatureCalculator:
		if !isDomainChild(domain, fp) {
			return nil
		}
		pl.features = append(pl.features, pendingFeature{path: fp, source: src, field: fieldName, args: args})
	}
	return nil
}

// column plans the selections leading to the schema path of a column.
func (pl *planner) column(col string, p gqlpath.Path) error {
	var chain []gqlpath.Path
	for q := p; !q.IsRoot(); q = q.Parent() {
		chain = append(chain, q)
	}
	slices.Reverse(chain)
	for i, q := range chain {
		sv, ok := pl.m.Vertex(q)
		if !ok {
			return svcerr.New(svcerr.KindInternal).Messagef("column %q maps to unknown path %s", col, q).Build()
		}
		if sv.TypeCondition != "" {
			if err := pl.fragment(q, chain[i-1], sv.TypeCondition, ""); err != nil {
				return err
			}
			continue
		}
		src, domain, _ := pl.m.DomainOf(q)
		spec := PlanSpec{
			Source:     src.Name(),
			SourceKind: src.Kind(),
			SchemaPath: q,
			ParentType: sv.ParentType,
			FieldName:  sv.Field.Name,
			TypeName:   sv.Field.Type.Name(),
		}
		if q == p {
			spec.Columns = []string{col}
		}
		pl.b.PutVertex(q, PlanVertex{Kind: VertexSelection, Spec: spec})
		if i > 0 {
			if err := pl.b.PutEdge(chain[i-1], q, EdgeSelection); err != nil {
				return err
			}
		}
		args := map[gqlpath.Path]string{}
		types := map[gqlpath.Path]*ast.Type{}
		for _, ad := range sv.Field.Arguments {
			if _, ok := pl.inputs[ad.Name]; !ok {
				if ad.Type.NonNull && ad.DefaultValue == nil {
					return svcerr.New(svcerr.KindBadRequest).
						Messagef("column %q requires input %q", col, ad.Name).
						PutExtension("column", col).
						Build()
				}
				continue
			}
			ap := q.Argument(ad.Name)
			pl.b.PutVertex(ap, PlanVertex{Kind: VertexArgument, Spec: PlanSpec{Input: ad.Name}})
			if err := pl.b.PutEdge(ap, q, EdgeArgumentValue); err != nil {
				return err
			}
			if err := pl.b.PutEdge(gqlpath.Root().Argument(ad.Name), ap, EdgeVariableValue); err != nil {
				return err
			}
			args[ap] = ad.Name
			types[ap] = ad.Type
		}
		if err := pl.route(src, domain, q, sv.Field.Name, args, types); err != nil {
			return err
		}
	}
	return nil
}

// finish binds the features planned so far and wires the selections they
// depend on, adding hidden ones the request did not make.
func (pl *planner) finish() error {
	for _, f := range pl.features {
		fs, ok := f.source.(metamodel.FeatureCalculatorSource)
		if !ok {
			return svcerr.New(svcerr.KindInternal).Messagef("source %s is not a feature calculator source", f.source.Name()).Build()
		}
		feature, ok := fs.Feature(f.field)
		if !ok {
			return svcerr.New(svcerr.KindNotFound).Messagef("feature calculator %s has no feature %s", f.source.Name(), f.field).Build()
		}
		deps := map[gqlpath.Path]gqlpath.Path{}
		for _, dep := range feature.Dependencies {
			reqPath, found := pl.selectionFor(dep)
			if found {
				if err := pl.b.PutEdge(reqPath, f.path, EdgeDependency); err != nil {
					return err
				}
			} else {
				reqPath = dep
				pl.b.EnqueueAddedVertex(AddedVertex{Path: dep, Spec: PlanSpec{SchemaPath: dep, Hidden: true}, For: f.path})
			}
			deps[reqPath] = dep
		}
		c, err := metamodel.NewFeatureCalculatorCallable(f.source, f.path, f.field, f.args, deps)
		if err != nil {
			return err
		}
		pl.b.PutFeatureCalculatorCallable(f.path, c)
	}
	pl.features = nil
	for v, ok := pl.b.DequeueAddedVertex(); ok; v, ok = pl.b.DequeueAddedVertex() {
		if err := pl.wire(v); err != nil {
			return err
		}
	}
	return nil
}

// selectionFor finds a planned selection answering a schema path.
func (pl *planner) selectionFor(schemaPath gqlpath.Path) (gqlpath.Path, bool) {
	for p, v := range pl.b.RequestGraph().Vertices() {
		if v.Kind == VertexSelection && v.Spec.SchemaPath == schemaPath {
			return p, true
		}
	}
	return gqlpath.Path{}, false
}

func (pl *planner) wire(v AddedVertex) error {
	src, domain, ok := pl.m.DomainOf(v.Path)
	if !ok || src.Kind() != metamodel.DataElement {
		return svcerr.New(svcerr.KindBadRequest).
			Messagef("dependency %s of %s is not provided by a data element source", v.Path, v.For).
			Build()
	}
	var chain []gqlpath.Path
	for q := v.Path; !q.IsRoot(); q = q.Parent() {
		chain = append(chain, q)
	}
	slices.Reverse(chain)
	d := pl.dataElement(src, domain)
	for i, q := range chain {
		sv, ok := pl.m.Vertex(q)
		if !ok {
			return svcerr.New(svcerr.KindBadRequest).Messagef("dependency %s of %s is not in the schema", v.Path, v.For).Build()
		}
		spec := v.Spec
		spec.Source = src.Name()
		spec.SourceKind = src.Kind()
		spec.SchemaPath = q
		spec.ParentType = sv.ParentType
		spec.TypeName = sv.TypeCondition
		spec.FieldName = ""
		if sv.Field != nil {
			spec.FieldName = sv.Field.Name
			spec.TypeName = sv.Field.Type.Name()
		}
		pl.b.PutVertex(q, PlanVertex{Kind: VertexSelection, Spec: spec})
		if i > 0 {
			if err := pl.b.PutEdge(chain[i-1], q, EdgeSelection); err != nil {
				return err
			}
		}
		if q != domain && sv.TypeCondition == "" {
			d = d.WithSelection(q)
		}
	}
	pl.b.PutDataElementCallableBuilder(domain, d)
	return pl.b.PutEdge(v.Path, v.For, EdgeDependency)
}
