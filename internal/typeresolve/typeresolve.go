// Package typeresolve picks the concrete object type of interface values
// from the @subtyping and @discriminator directives of the schema.
//
// An interface opts in with @subtyping(strategy: FIELD_NAME) or
// @subtyping(strategy: FIELD_VALUE, discriminatorField: "kind"). Each
// implementing object then declares @discriminator(fieldName: "...") or
// @discriminator(fieldValue: "...") respectively.
package typeresolve

import (
	"fmt"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/svcerr"
)

const (
	SubtypingDirective     = "subtyping"
	DiscriminatorDirective = "discriminator"
)

// Strategy is either a FieldNameStrategy or a FieldValueStrategy.
type Strategy interface {
	registered() int
}

// FieldNameStrategy identifies a subtype by the presence of its
// discriminator field in the selection set.
type FieldNameStrategy struct {
	// Types in registration order, each with its discriminator field.
	Types []string
	Field map[string]string
}

// FieldValueStrategy identifies a subtype by the runtime value of one
// discriminator field shared by all subtypes.
type FieldValueStrategy struct {
	Field string
	Types []string
	Value map[string]string
}

func (s *FieldNameStrategy) registered() int  { return len(s.Types) }
func (s *FieldValueStrategy) registered() int { return len(s.Types) }

func (s *FieldNameStrategy) register(typeName string, d *ast.Directive) {
	name := argument(d, "fieldName")
	if name == "" {
		return
	}
	s.Types = append(s.Types, typeName)
	s.Field[typeName] = name
}

func (s *FieldValueStrategy) register(typeName string, d *ast.Directive) {
	value := argument(d, "fieldValue")
	if value == "" {
		return
	}
	s.Types = append(s.Types, typeName)
	s.Value[typeName] = value
}

func argument(d *ast.Directive, name string) string {
	a := d.Arguments.ForName(name)
	if a == nil || a.Value == nil {
		return ""
	}
	return a.Value.Raw
}

// Env is what a resolver sees of one interface value.
type Env struct {
	// Type is the declared type of the field, possibly wrapped.
	Type *ast.Type
	// Selections is the selection set made on the field.
	Selections ast.SelectionSet
	// Value is the runtime value, usually a map[string]any.
	Value any
}

// Resolver resolves values of one interface.
type Resolver struct {
	iface    string
	strategy Strategy
}

// CreateResolver walks iface and its possible types depth first and
// collects the subtyping strategy they declare.
func CreateResolver(iface *ast.Definition, schema *ast.Schema) (*Resolver, error) {
	if iface == nil || iface.Kind != ast.Interface {
		return nil, svcerr.New(svcerr.KindInternal).Message("type resolver needs an interface definition").Build()
	}
	d := iface.Directives.ForName(SubtypingDirective)
	if d == nil {
		return nil, svcerr.New(svcerr.KindInternal).Messagef("interface %s has no @%s directive", iface.Name, SubtypingDirective).Build()
	}
	var (
		strategy Strategy
		register func(typeName string, d *ast.Directive)
	)
	switch kind := argument(d, "strategy"); kind {
	case "FIELD_NAME":
		s := &FieldNameStrategy{Field: map[string]string{}}
		strategy, register = s, s.register
	case "FIELD_VALUE":
		field := argument(d, "discriminatorField")
		if field == "" {
			return nil, svcerr.New(svcerr.KindInternal).Messagef("interface %s uses FIELD_VALUE subtyping without a discriminatorField", iface.Name).Build()
		}
		s := &FieldValueStrategy{Field: field, Value: map[string]string{}}
		strategy, register = s, s.register
	default:
		return nil, svcerr.New(svcerr.KindInternal).Messagef("interface %s has unknown subtyping strategy %q", iface.Name, kind).Build()
	}

	visited := map[string]bool{iface.Name: true}
	var walk func(def *ast.Definition)
	walk = func(def *ast.Definition) {
		possible := slices.Clone(schema.PossibleTypes[def.Name])
		slices.SortFunc(possible, func(a, b *ast.Definition) int {
			switch {
			case a.Name < b.Name:
				return -1
			case a.Name > b.Name:
				return 1
			}
			return 0
		})
		for _, t := range possible {
			if visited[t.Name] {
				continue
			}
			visited[t.Name] = true
			if t.Kind == ast.Interface {
				walk(t)
				continue
			}
			if t.Kind != ast.Object {
				continue
			}
			if dd := t.Directives.ForName(DiscriminatorDirective); dd != nil {
				register(t.Name, dd)
			}
		}
	}
	walk(iface)

	if strategy.registered() == 0 {
		return nil, svcerr.New(svcerr.KindInternal).Messagef("interface %s has no subtypes with @%s", iface.Name, DiscriminatorDirective).Build()
	}
	return &Resolver{iface: iface.Name, strategy: strategy}, nil
}

func (r *Resolver) Interface() string  { return r.iface }
func (r *Resolver) Strategy() Strategy { return r.strategy }

// Resolve returns the name of the concrete type of env.
func (r *Resolver) Resolve(env Env) (string, error) {
	if env.Type != nil && env.Type.Name() != r.iface {
		return "", svcerr.New(svcerr.KindInternal).Messagef("resolver for %s got a value of type %s", r.iface, env.Type.Name()).Build()
	}
	switch s := r.strategy.(type) {
	case *FieldNameStrategy:
		selected := selectedFields(env.Selections, map[string]bool{})
		for _, t := range s.Types {
			if selected[s.Field[t]] {
				return t, nil
			}
		}
	case *FieldValueStrategy:
		if obj, ok := env.Value.(map[string]any); ok {
			if v, ok := obj[s.Field]; ok && v != nil {
				got := fmt.Sprint(v)
				for _, t := range s.Types {
					if s.Value[t] == got {
						return t, nil
					}
				}
			}
		}
	}
	return "", svcerr.New(svcerr.KindNotFound).Messagef("no subtype of %s matches the value", r.iface).Build()
}

func selectedFields(set ast.SelectionSet, into map[string]bool) map[string]bool {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			into[s.Name] = true
		case *ast.InlineFragment:
			selectedFields(s.SelectionSet, into)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				selectedFields(s.Definition.SelectionSet, into)
			}
		}
	}
	return into
}

// Registry holds a resolver for every interface that declares subtyping.
type Registry struct {
	resolvers map[string]*Resolver
}

// NewRegistry builds resolvers for all interfaces of schema carrying
// @subtyping. Interfaces without it are left to __typename.
func NewRegistry(schema *ast.Schema) (*Registry, error) {
	r := &Registry{resolvers: map[string]*Resolver{}}
	for name, def := range schema.Types {
		if def.Kind != ast.Interface || def.Directives.ForName(SubtypingDirective) == nil {
			continue
		}
		res, err := CreateResolver(def, schema)
		if err != nil {
			return nil, err
		}
		r.resolvers[name] = res
	}
	return r, nil
}

// Resolver returns the resolver of the named interface.
func (r *Registry) Resolver(iface string) (*Resolver, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.resolvers[iface]
	return res, ok
}
