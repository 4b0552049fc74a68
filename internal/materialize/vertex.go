package materialize

import (
	"fmt"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/pathgraph"
)

// VertexKind classifies request graph vertices.
type VertexKind uint8

const (
	VertexSelection VertexKind = iota + 1
	VertexArgument
	VertexDirective
	// VertexInput is a request input: a variable or a raw input key. Inputs
	// live at root argument paths such as gqlo:/?first.
	VertexInput
)

func (k VertexKind) String() string {
	switch k {
	case VertexSelection:
		return "selection"
	case VertexArgument:
		return "argument"
	case VertexDirective:
		return "directive"
	case VertexInput:
		return "input"
	}
	return fmt.Sprintf("VertexKind(%d)", uint8(k))
}

// EdgeKind labels request graph edges.
type EdgeKind uint8

const (
	// EdgeSelection links a selection to a selection below it.
	EdgeSelection EdgeKind = iota + 1
	// EdgeArgumentValue links an argument to the field it is passed to.
	EdgeArgumentValue
	// EdgeVariableValue links a request input to an argument using it.
	EdgeVariableValue
	// EdgeDirective links a directive to the selection it annotates.
	EdgeDirective
	// EdgeDependency links a selection to a feature computed from it.
	EdgeDependency
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeSelection:
		return "selection"
	case EdgeArgumentValue:
		return "argument_value"
	case EdgeVariableValue:
		return "variable_value"
	case EdgeDirective:
		return "directive"
	case EdgeDependency:
		return "dependency"
	}
	return fmt.Sprintf("EdgeKind(%d)", uint8(k))
}

// PlanSpec is what the planner knows about one request path.
type PlanSpec struct {
	Source     string
	SourceKind metamodel.SourceKind
	SchemaPath gqlpath.Path
	ParentType string
	FieldName  string
	TypeName   string
	// Columns are the tabular output columns this selection answers.
	// Several column names may resolve to one path.
	Columns []string
	// Hidden selections are fetched for dependencies only.
	Hidden bool
	// Value is the literal of an argument, possibly referencing variables.
	Value *ast.Value
	// Input names the request input an argument or input vertex is bound to.
	Input string
	Field *ast.Field
}

// mergeSpec overlays b onto a field by field: set fields of b win, unset
// ones keep a's value. A selection is hidden only if both sides hide it.
func mergeSpec(a, b PlanSpec) PlanSpec {
	out := a
	if b.Source != "" {
		out.Source = b.Source
	}
	if b.SourceKind != 0 {
		out.SourceKind = b.SourceKind
	}
	if !b.SchemaPath.IsRoot() {
		out.SchemaPath = b.SchemaPath
	}
	if b.ParentType != "" {
		out.ParentType = b.ParentType
	}
	if b.FieldName != "" {
		out.FieldName = b.FieldName
	}
	if b.TypeName != "" {
		out.TypeName = b.TypeName
	}
	if len(b.Columns) > 0 {
		out.Columns = unionColumns(a.Columns, b.Columns)
	}
	out.Hidden = a.Hidden && b.Hidden
	if b.Value != nil {
		out.Value = b.Value
	}
	if b.Input != "" {
		out.Input = b.Input
	}
	if b.Field != nil {
		out.Field = b.Field
	}
	return out
}

func unionColumns(a, b []string) []string {
	out := slices.Clone(a)
	for _, c := range b {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// PlanVertex is the value stored at each request graph vertex.
type PlanVertex struct {
	Kind VertexKind
	Spec PlanSpec
}

func mergeVertex(a, b PlanVertex) PlanVertex {
	out := PlanVertex{Kind: a.Kind, Spec: mergeSpec(a.Spec, b.Spec)}
	if b.Kind != 0 {
		out.Kind = b.Kind
	}
	return out
}

// RequestGraph is the per-request plan.
type RequestGraph = pathgraph.Graph[PlanVertex, EdgeKind]

// NewRequestGraph returns an empty plan graph.
func NewRequestGraph() RequestGraph { return pathgraph.New[PlanVertex, EdgeKind]() }

// AddedVertex is a selection the plan needs but the query did not make,
// waiting to be wired into the graph and its data element.
type AddedVertex struct {
	Path gqlpath.Path
	Spec PlanSpec
	// For is the vertex depending on Path.
	For gqlpath.Path
}
