package introspection

import (
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

func (r *runtime) schemaField(field string) any {
	sch := r.schema
	switch field {
	case "description":
		return optional(sch.Description)
	case "types":
		names := make([]string, 0, len(sch.Types))
		for name := range sch.Types {
			names = append(names, name)
		}
		slices.Sort(names)
		out := make([]*ast.Type, len(names))
		for i, name := range names {
			out[i] = ast.NamedType(name, nil)
		}
		return out
	case "queryType":
		return rootType(sch.Query)
	case "mutationType":
		return rootType(sch.Mutation)
	case "subscriptionType":
		return rootType(sch.Subscription)
	case "directives":
		out := make([]*ast.DirectiveDefinition, 0, len(sch.Directives))
		for _, d := range sch.Directives {
			out = append(out, d)
		}
		slices.SortFunc(out, func(a, b *ast.DirectiveDefinition) int { return strings.Compare(a.Name, b.Name) })
		return out
	}
	return nil
}

func rootType(def *ast.Definition) any {
	if def == nil {
		return nil
	}
	return ast.NamedType(def.Name, nil)
}

// typeField resolves a field of __Type. Wrapping types are *ast.Type values
// with NonNull or Elem set; named types are looked up in the schema.
func (r *runtime) typeField(t *ast.Type, field string, args map[string]any) any {
	if t == nil {
		return nil
	}
	switch {
	case t.NonNull:
		return wrapperField("NON_NULL", &ast.Type{NamedType: t.NamedType, Elem: t.Elem}, field)
	case t.Elem != nil:
		return wrapperField("LIST", t.Elem, field)
	}
	def := r.schema.Types[t.NamedType]
	if def == nil {
		return nil
	}
	switch field {
	case "kind":
		return string(def.Kind)
	case "name":
		return def.Name
	case "description":
		return optional(def.Description)
	case "specifiedByURL":
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if a := d.Arguments.ForName("url"); a != nil {
				return a.Value.Raw
			}
		}
		return nil
	case "fields":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		out := []*ast.FieldDefinition{}
		for _, f := range def.Fields {
			if strings.HasPrefix(f.Name, "__") || !includeDeprecated(args) && isDeprecated(f.Directives) {
				continue
			}
			out = append(out, f)
		}
		return out
	case "interfaces":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		out := make([]*ast.Type, len(def.Interfaces))
		for i, name := range def.Interfaces {
			out[i] = ast.NamedType(name, nil)
		}
		return out
	case "possibleTypes":
		if def.Kind != ast.Interface && def.Kind != ast.Union {
			return nil
		}
		var out []*ast.Type
		for _, pt := range r.schema.GetPossibleTypes(def) {
			out = append(out, ast.NamedType(pt.Name, nil))
		}
		slices.SortFunc(out, func(a, b *ast.Type) int { return strings.Compare(a.NamedType, b.NamedType) })
		return out
	case "enumValues":
		if def.Kind != ast.Enum {
			return nil
		}
		out := []*ast.EnumValueDefinition{}
		for _, v := range def.EnumValues {
			if !includeDeprecated(args) && isDeprecated(v.Directives) {
				continue
			}
			out = append(out, v)
		}
		return out
	case "inputFields":
		if def.Kind != ast.InputObject {
			return nil
		}
		out := []*ast.ArgumentDefinition{}
		for _, f := range def.Fields {
			if !includeDeprecated(args) && isDeprecated(f.Directives) {
				continue
			}
			out = append(out, &ast.ArgumentDefinition{
				Description:  f.Description,
				Name:         f.Name,
				DefaultValue: f.DefaultValue,
				Type:         f.Type,
				Directives:   f.Directives,
			})
		}
		return out
	case "isOneOf":
		return def.Directives.ForName("oneOf") != nil
	}
	return nil
}

func wrapperField(kind string, ofType *ast.Type, field string) any {
	switch field {
	case "kind":
		return kind
	case "ofType":
		return ofType
	}
	return nil
}

func fieldField(f *ast.FieldDefinition, field string, args map[string]any) any {
	if f == nil {
		return nil
	}
	switch field {
	case "name":
		return f.Name
	case "description":
		return optional(f.Description)
	case "args":
		return arguments(f.Arguments, args)
	case "type":
		return f.Type
	case "isDeprecated":
		return isDeprecated(f.Directives)
	case "deprecationReason":
		return deprecationReason(f.Directives)
	}
	return nil
}

func inputValueField(a *ast.ArgumentDefinition, field string) any {
	if a == nil {
		return nil
	}
	switch field {
	case "name":
		return a.Name
	case "description":
		return optional(a.Description)
	case "type":
		return a.Type
	case "defaultValue":
		if a.DefaultValue == nil {
			return nil
		}
		return a.DefaultValue.String()
	case "isDeprecated":
		return isDeprecated(a.Directives)
	case "deprecationReason":
		return deprecationReason(a.Directives)
	}
	return nil
}

func enumValueField(v *ast.EnumValueDefinition, field string) any {
	if v == nil {
		return nil
	}
	switch field {
	case "name":
		return v.Name
	case "description":
		return optional(v.Description)
	case "isDeprecated":
		return isDeprecated(v.Directives)
	case "deprecationReason":
		return deprecationReason(v.Directives)
	}
	return nil
}

func directiveField(d *ast.DirectiveDefinition, field string, args map[string]any) any {
	if d == nil {
		return nil
	}
	switch field {
	case "name":
		return d.Name
	case "description":
		return optional(d.Description)
	case "isRepeatable":
		return d.IsRepeatable
	case "locations":
		out := make([]string, len(d.Locations))
		for i, l := range d.Locations {
			out[i] = string(l)
		}
		return out
	case "args":
		return arguments(d.Arguments, args)
	}
	return nil
}

func arguments(list ast.ArgumentDefinitionList, args map[string]any) []*ast.ArgumentDefinition {
	out := []*ast.ArgumentDefinition{}
	for _, a := range list {
		if !includeDeprecated(args) && isDeprecated(a.Directives) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func includeDeprecated(args map[string]any) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}

func isDeprecated(dirs ast.DirectiveList) bool {
	return dirs.ForName("deprecated") != nil
}

func deprecationReason(dirs ast.DirectiveList) any {
	d := dirs.ForName("deprecated")
	if d == nil {
		return nil
	}
	if a := d.Arguments.ForName("reason"); a != nil && a.Value != nil {
		return a.Value.Raw
	}
	return "No longer supported"
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
