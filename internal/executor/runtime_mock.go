package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

// MockResolver resolves a single field in tests.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// NewMockValueResolver returns a MockResolver that always returns the provided value.
func NewMockValueResolver(val any) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return val, nil
	}
}

// NewMockErrorResolver returns a MockResolver that always returns the provided error.
func NewMockErrorResolver(err error) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, err
	}
}

// Call records one ResolveField invocation.
type Call struct {
	ObjectType string
	Field      string
	Path       gqlpath.Path
	Source     any
	Args       map[string]any
}

// MockRuntime implements Runtime with resolvers keyed "ObjectType.field".
// Fields without a resolver are projected out of their parent value.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call

	typeResolver func(value any) (string, error)
}

func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		resolvers: make(map[string]MockResolver),
		typeResolver: func(value any) (string, error) {
			if m, ok := value.(map[string]any); ok {
				if typename, ok := m["__typename"].(string); ok {
					return typename, nil
				}
			}
			return "", fmt.Errorf("cannot resolve type")
		},
	}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

func (m *MockRuntime) SetTypeResolver(f func(value any) (string, error)) {
	m.mu.Lock()
	m.typeResolver = f
	m.mu.Unlock()
}

func (m *MockRuntime) ResolveField(ctx context.Context, req FieldRequest) (any, error) {
	key := req.ObjectType + "." + req.Definition.Name

	m.mu.Lock()
	r := m.resolvers[key]
	m.calls = append(m.calls, Call{
		ObjectType: req.ObjectType,
		Field:      req.Definition.Name,
		Path:       req.Path,
		Source:     req.Source,
		Args:       req.Args,
	})
	m.mu.Unlock()

	if r == nil {
		return project(req.Source, req.ResponseName(), req.Definition.Name), nil
	}
	return r(ctx, req.Source, req.Args)
}

func (m *MockRuntime) ResolveType(ctx context.Context, abstractType *ast.Definition, fieldType *ast.Type, fields []*ast.Field, value any) (string, error) {
	m.mu.Lock()
	f := m.typeResolver
	m.mu.Unlock()
	return f(value)
}

func (m *MockRuntime) SerializeLeafValue(ctx context.Context, typ *ast.Definition, value any) (any, error) {
	return SerializeLeaf(typ, value)
}

// GetCalls returns a copy of the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
