package remote

import (
	"slices"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

const typenameField = "__typename"

type selectionNode struct {
	seg      gqlpath.Segment
	args     ast.ArgumentList
	children []*selectionNode
	index    map[gqlpath.Segment]*selectionNode
}

func (n *selectionNode) child(seg gqlpath.Segment) *selectionNode {
	if c, ok := n.index[seg]; ok {
		return c
	}
	c := &selectionNode{seg: seg}
	if n.index == nil {
		n.index = map[gqlpath.Segment]*selectionNode{}
	}
	n.index[seg] = c
	n.children = append(n.children, c)
	return c
}

func (n *selectionNode) walk(segs []gqlpath.Segment) *selectionNode {
	for _, s := range segs {
		n = n.child(s)
	}
	return n
}

// selectionSet renders the children of n. Every field with sub-selections
// also asks for __typename so abstract values carry their concrete type.
func (n *selectionNode) selectionSet(typeConditions map[string]string) ast.SelectionSet {
	if len(n.children) == 0 {
		return nil
	}
	var set ast.SelectionSet
	if n.seg.Kind == gqlpath.KindField || n.seg.Kind == gqlpath.KindAliasedField {
		if _, ok := n.index[gqlpath.Field(typenameField)]; !ok {
			set = append(set, &ast.Field{Alias: typenameField, Name: typenameField})
		}
	}
	for _, c := range n.children {
		set = append(set, c.selection(typeConditions))
	}
	return set
}

func (n *selectionNode) selection(typeConditions map[string]string) ast.Selection {
	switch n.seg.Kind {
	case gqlpath.KindInlineFragment:
		return &ast.InlineFragment{TypeCondition: n.seg.Name, SelectionSet: n.selectionSet(typeConditions)}
	case gqlpath.KindFragmentSpread:
		return &ast.InlineFragment{TypeCondition: typeConditions[n.seg.Name], SelectionSet: n.selectionSet(typeConditions)}
	}
	return &ast.Field{
		Alias:        n.seg.ResponseKey(),
		Name:         n.seg.Name,
		Arguments:    n.args,
		SelectionSet: n.selectionSet(typeConditions),
	}
}

// BuildOperation turns a data element request into a query operation
// selecting the domain field, together with the variables it references.
// Arguments are always passed as variables; fragment spreads become inline
// fragments on the spread's type condition.
func BuildOperation(req metamodel.DataElementRequest) (*ast.OperationDefinition, map[string]any, error) {
	last, ok := req.Domain.Last()
	if !ok || req.Domain.Len() != 1 {
		return nil, nil, svcerr.New(svcerr.KindInternal).Messagef("remote domain must be a root field, got %s", req.Domain).Build()
	}
	root := &selectionNode{seg: last}
	base := req.Domain.Len()
	for _, p := range req.Selections {
		if !p.IsDescendentTo(req.Domain) {
			return nil, nil, svcerr.New(svcerr.KindInternal).Messagef("selection %s is outside domain %s", p, req.Domain).Build()
		}
		root.walk(p.Segments()[base:])
	}

	argPaths := make([]gqlpath.Path, 0, len(req.Arguments))
	for p := range req.Arguments {
		argPaths = append(argPaths, p)
	}
	slices.SortFunc(argPaths, gqlpath.Compare)

	op := &ast.OperationDefinition{Operation: ast.Query}
	vars := map[string]any{}
	for i, p := range argPaths {
		if !p.RefersToArgument() {
			continue
		}
		arg := req.Arguments[p]
		if arg.Type == nil {
			return nil, nil, svcerr.New(svcerr.KindInternal).Messagef("argument %s has no type", p).Build()
		}
		seg, _ := p.Last()
		owner := root.walk(p.SelectionPath().Segments()[base:])
		name := "v" + strconv.Itoa(i)
		owner.args = append(owner.args, &ast.Argument{
			Name:  seg.Name,
			Value: &ast.Value{Kind: ast.Variable, Raw: name},
		})
		op.VariableDefinitions = append(op.VariableDefinitions, &ast.VariableDefinition{Variable: name, Type: arg.Type})
		vars[name] = arg.Value
	}
	op.SelectionSet = ast.SelectionSet{root.selection(req.TypeConditions)}
	return op, vars, nil
}
