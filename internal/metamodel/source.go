package metamodel

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

// SourceKind tells how a source produces values.
type SourceKind uint8

const (
	// DataElement sources fetch a whole domain subtree in one call.
	DataElement SourceKind = iota + 1
	// Transformer sources compute single fields from their arguments.
	Transformer
	// FeatureCalculator sources compute single fields from their arguments
	// and from values other sources produce in the same request.
	FeatureCalculator
)

func (k SourceKind) String() string {
	switch k {
	case DataElement:
		return "data_element"
	case Transformer:
		return "transformer"
	case FeatureCalculator:
		return "feature_calculator"
	}
	return fmt.Sprintf("SourceKind(%d)", uint8(k))
}

// Source is a backend contributing one Query field (its domain) and the types
// below it. SDL is expected to use `extend type Query { <domain>: ... }`.
type Source interface {
	Name() string
	Kind() SourceKind
	DomainField() string
	SDL() string
}

// DataElementRequest is what a data element source receives per call.
type DataElementRequest struct {
	// Domain is the request path of the domain selection, possibly aliased.
	Domain gqlpath.Path
	// Selections lists every selected path below Domain in path order.
	Selections []gqlpath.Path
	// Arguments holds the resolved argument values below and on Domain.
	Arguments map[gqlpath.Path]ArgumentValue
	// TypeConditions maps fragment spread names to their type condition.
	TypeConditions map[string]string
}

// ArgumentValue is a resolved argument together with its declared type.
type ArgumentValue struct {
	Type  *ast.Type
	Value any
}

// DataElementSource fetches the value of its domain field.
type DataElementSource interface {
	Source
	Fetch(ctx context.Context, req DataElementRequest) (any, error)
}

// FieldFunc computes a field value from its arguments keyed by name.
type FieldFunc func(ctx context.Context, args map[string]any) (any, error)

// TransformerSource resolves the functions behind its domain's fields.
type TransformerSource interface {
	Source
	Transformer(fieldName string) (FieldFunc, bool)
}

// Feature is a calculator over arguments and values of other schema paths.
// Dependencies are schema paths (no aliases or fragments); Compute receives
// their values keyed by the same paths.
type Feature struct {
	Dependencies []gqlpath.Path
	Compute      func(ctx context.Context, args map[string]any, deps map[gqlpath.Path]any) (any, error)
}

// FeatureCalculatorSource resolves the features behind its domain's fields.
type FeatureCalculatorSource interface {
	Source
	Feature(fieldName string) (Feature, bool)
}

type funcSource struct {
	name, domain, sdl string
	kind              SourceKind
}

func (s funcSource) Name() string        { return s.name }
func (s funcSource) Kind() SourceKind    { return s.kind }
func (s funcSource) DomainField() string { return s.domain }
func (s funcSource) SDL() string         { return s.sdl }

// DataElementFunc is a data element source backed by a Go function.
type DataElementFunc struct {
	funcSource
	fetch func(ctx context.Context, req DataElementRequest) (any, error)
}

func NewDataElementFunc(name, domainField, sdl string, fetch func(ctx context.Context, req DataElementRequest) (any, error)) *DataElementFunc {
	return &DataElementFunc{funcSource: funcSource{name: name, domain: domainField, sdl: sdl, kind: DataElement}, fetch: fetch}
}

func (s *DataElementFunc) Fetch(ctx context.Context, req DataElementRequest) (any, error) {
	return s.fetch(ctx, req)
}

// TransformerFunc is a transformer source backed by a map of functions.
type TransformerFunc struct {
	funcSource
	funcs map[string]FieldFunc
}

func NewTransformerFunc(name, domainField, sdl string, funcs map[string]FieldFunc) *TransformerFunc {
	return &TransformerFunc{funcSource: funcSource{name: name, domain: domainField, sdl: sdl, kind: Transformer}, funcs: funcs}
}

func (s *TransformerFunc) Transformer(fieldName string) (FieldFunc, bool) {
	f, ok := s.funcs[fieldName]
	return f, ok
}

// FeatureFunc is a feature calculator source backed by a map of features.
type FeatureFunc struct {
	funcSource
	features map[string]Feature
}

func NewFeatureFunc(name, domainField, sdl string, features map[string]Feature) *FeatureFunc {
	return &FeatureFunc{funcSource: funcSource{name: name, domain: domainField, sdl: sdl, kind: FeatureCalculator}, features: features}
}

func (s *FeatureFunc) Feature(fieldName string) (Feature, bool) {
	f, ok := s.features[fieldName]
	return f, ok
}
