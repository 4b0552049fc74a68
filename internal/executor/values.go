package executor

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/svcerr"
)

// CoerceVariableValues coerces the request variables to the types the
// operation declares. Defaults apply to missing variables; variables the
// operation does not declare are dropped.
func CoerceVariableValues(
	schema *ast.Schema,
	operation *ast.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	if variableValues == nil {
		variableValues = make(map[string]any)
	}
	coerced := make(map[string]any)
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := variableValues[name]
		if !ok {
			if v2, ok2 := variableValues[strings.TrimPrefix(name, "$")]; ok2 {
				val = v2
				ok = true
			}
		}
		if !ok {
			if varDef.DefaultValue != nil {
				val = astValueToGo(varDef.DefaultValue)
			} else if t.NonNull {
				return nil, variableError(name, "of required type %s was not provided", t)
			} else {
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, variableError(name, "of type %s cannot be null", t)
		}
		cv, err := coerceValue(schema, val, t)
		if err != nil {
			return nil, variableError(name, "of type %s cannot be coerced: %v", t, err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

func variableError(name, format string, args ...any) *svcerr.Error {
	return svcerr.New(svcerr.KindBadRequest).
		Messagef("variable $%s "+format, append([]any{name}, args...)...).
		PutExtension("variable", name).
		Build()
}

// coerceArgumentValues coerces argument values for a field
func coerceArgumentValues(
	state *executionState,
	fieldDef *ast.FieldDefinition,
	arguments ast.ArgumentList,
	path Path,
) map[string]any {
	coerced := make(map[string]any)
	for _, arg := range arguments {
		argDef := fieldDef.Arguments.ForName(arg.Name)
		if argDef == nil {
			continue
		}
		val := valueFromASTWithVars(arg.Value, state.variableValues)
		cv, err := coerceValue(state.schema, val, argDef.Type)
		if err != nil {
			state.addError(fmt.Errorf("argument '%s' cannot be coerced: %v", arg.Name, err), path)
			continue
		}
		coerced[arg.Name] = cv
	}
	for _, argDef := range fieldDef.Arguments {
		name := argDef.Name
		if _, ok := coerced[name]; !ok {
			if argDef.DefaultValue != nil {
				coerced[name] = astValueToGo(argDef.DefaultValue)
			} else if argDef.Type.NonNull {
				state.addError(fmt.Errorf("argument '%s' of required type was not provided", name), path)
			}
		}
	}
	return coerced
}

// valueFromASTWithVars converts an AST value to a runtime value with variable substitution
func valueFromASTWithVars(value *ast.Value, variableValues map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case ast.Variable:
		name := value.Raw
		if v, ok := variableValues[name]; ok {
			return v
		}
		if v, ok := variableValues[strings.TrimPrefix(name, "$")]; ok {
			return v
		}
		return nil
	case ast.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromASTWithVars(c.Value, variableValues)
		}
		return out
	case ast.ObjectValue:
		m := make(map[string]any)
		for _, f := range value.Children {
			m[f.Name] = valueFromASTWithVars(f.Value, variableValues)
		}
		return m
	default:
		return astValueToGo(value)
	}
}

// astValueToGo converts an AST value to a Go value
func astValueToGo(value *ast.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case ast.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case ast.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case ast.StringValue, ast.BlockValue:
		return value.Raw
	case ast.BooleanValue:
		return value.Raw == "true"
	case ast.NullValue:
		return nil
	case ast.EnumValue:
		return value.Raw
	case ast.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = astValueToGo(c.Value)
		}
		return out
	case ast.ObjectValue:
		m := make(map[string]any)
		for _, f := range value.Children {
			m[f.Name] = astValueToGo(f.Value)
		}
		return m
	default:
		return nil
	}
}

// coerceValue coerces a value to the specified GraphQL input type
func coerceValue(schema *ast.Schema, value any, targetType *ast.Type) (any, error) {
	if targetType.NonNull {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(schema, value, nullable(targetType))
	}

	if value == nil {
		return nil, nil
	}

	if targetType.Elem != nil {
		return coerceListValue(schema, value, targetType)
	}

	switch targetType.NamedType {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		return coerceToString(value)
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		return coerceToID(value)
	}

	def := schema.Types[targetType.NamedType]
	if def == nil {
		return nil, fmt.Errorf("unknown type %s", targetType.NamedType)
	}
	switch def.Kind {
	case ast.Enum:
		return coerceToEnum(def, value)
	case ast.InputObject:
		return coerceInputObject(schema, def, value)
	default:
		// Custom scalars pass through.
		return value, nil
	}
}

// nullable returns t without its Non-Null wrapper.
func nullable(t *ast.Type) *ast.Type {
	inner := *t
	inner.NonNull = false
	return &inner
}

// coerceListValue coerces a value to a list
func coerceListValue(schema *ast.Schema, value any, listType *ast.Type) (any, error) {
	if slice, ok := value.([]any); ok {
		coercedSlice := make([]any, len(slice))
		for i, item := range slice {
			coercedItem, err := coerceValue(schema, item, listType.Elem)
			if err != nil {
				return nil, err
			}
			coercedSlice[i] = coercedItem
		}
		return coercedSlice, nil
	}

	// Single value becomes a list of one
	coercedItem, err := coerceValue(schema, value, listType.Elem)
	if err != nil {
		return nil, err
	}
	return []any{coercedItem}, nil
}

func coerceInputObject(schema *ast.Schema, def *ast.Definition, value any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %v (%T) to input object %s", value, value, def.Name)
	}
	for name := range obj {
		if def.Fields.ForName(name) == nil {
			return nil, fmt.Errorf("unknown field '%s' for input object %s", name, def.Name)
		}
	}
	out := make(map[string]any, len(def.Fields))
	for _, f := range def.Fields {
		v, ok := obj[f.Name]
		if !ok {
			if f.DefaultValue != nil {
				out[f.Name] = astValueToGo(f.DefaultValue)
				continue
			}
			if f.Type.NonNull {
				return nil, fmt.Errorf("required field '%s' of input object %s was not provided", f.Name, def.Name)
			}
			continue
		}
		cv, err := coerceValue(schema, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", f.Name, err)
		}
		out[f.Name] = cv
	}
	return out, nil
}

func coerceToEnum(def *ast.Definition, value any) (any, error) {
	s, ok := value.(string)
	if ok && slices.ContainsFunc(def.EnumValues, func(v *ast.EnumValueDefinition) bool { return v.Name == s }) {
		return s, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to enum %s", value, value, def.Name)
}

// Basic scalar coercion functions
func coerceToInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	case float32:
		if float64(v) == math.Trunc(float64(v)) {
			return int(v), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceToString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to string", value, value)
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}

// SerializeLeaf serializes a backend value of a scalar or enum type. Output
// coercion is lenient where input coercion is not: strings holding numbers
// are accepted for Int and Float, and anything prints as a String.
func SerializeLeaf(typ *ast.Definition, value any) (any, error) {
	switch typ.Name {
	case "Int":
		if s, ok := value.(string); ok {
			if iv, err := strconv.Atoi(s); err == nil {
				return iv, nil
			}
		}
		return coerceToInt(value)
	case "Float":
		if s, ok := value.(string); ok {
			if fv, err := strconv.ParseFloat(s, 64); err == nil {
				return fv, nil
			}
		}
		return coerceToFloat(value)
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		if id, err := coerceToID(value); err == nil {
			return id, nil
		}
		return fmt.Sprint(value), nil
	}
	if typ.Kind == ast.Enum {
		return coerceToEnum(typ, value)
	}
	return value, nil
}
