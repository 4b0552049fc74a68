package executor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

// executionState holds the state during query execution
type executionState struct {
	runtime        Runtime
	schema         *ast.Schema
	document       *ast.QueryDocument
	variableValues map[string]any
	context        context.Context
	errors         []GraphQLError
	// response paths that already carry an error
	errorPaths map[string]struct{}
}

type Executor struct {
	runtime Runtime
	schema  *ast.Schema
}

func NewExecutor(runtime Runtime, schema *ast.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// ExecuteRequest shapes the response of the named operation of document.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *ast.QueryDocument,
	operationName string,
	variableValues map[string]any,
) *ExecutionResult {
	operation := document.Operations.ForName(operationName)
	if operation == nil {
		return &ExecutionResult{Errors: []GraphQLError{NewGraphQLError(
			svcerr.New(svcerr.KindBadRequest).Messagef("operation %q not found", operationName).Build(), nil)}}
	}

	coercedVariableValues, err := CoerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{NewGraphQLError(err, nil)}}
	}

	var rootType *ast.Definition
	switch operation.Operation {
	case ast.Query:
		rootType = e.schema.Query
	case ast.Mutation:
		rootType = e.schema.Mutation
	case ast.Subscription:
		rootType = e.schema.Subscription
	}
	if rootType == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("root type not found for %s operation", operation.Operation)}}}
	}

	state := &executionState{
		runtime:        e.runtime,
		schema:         e.schema,
		document:       document,
		variableValues: coercedVariableValues,
		context:        ctx,
		errors:         []GraphQLError{},
		errorPaths:     make(map[string]struct{}),
	}

	data := executeSelectionSet(state, rootType, rootType.Name, operation.SelectionSet, nil, gqlpath.Root(), Path{})
	return &ExecutionResult{Data: data, Errors: state.errors}
}

// executeSelectionSet executes the fields of selectionSet on objectValue.
// It returns nil when a Non-Null field below the root came out null.
func executeSelectionSet(state *executionState, objectType *ast.Definition, staticType string, selectionSet ast.SelectionSet, objectValue any, opPath gqlpath.Path, path Path) map[string]any {
	groupedFields := collectFields(state, objectType, staticType, selectionSet, opPath)
	resultMap := make(map[string]any)

	for _, collectedField := range groupedFields.orderedFields() {
		responseName := collectedField.ResponseName
		fields := collectedField.Fields
		fieldPath := appendPath(path, responseName)

		if fields[0].Name == "__typename" {
			resultMap[responseName] = objectType.Name
			continue
		}

		fieldDef := objectType.Fields.ForName(fields[0].Name)
		if fieldDef == nil {
			state.addError(fmt.Errorf("Cannot query field '%s' on type '%s'", fields[0].Name, objectType.Name), fieldPath)
			continue
		}

		fieldResult := executeField(state, objectType, objectValue, fieldDef, collectedField, fieldPath)

		if fieldDef.Type.NonNull && isNullish(fieldResult) {
			if len(path) > 0 {
				return nil
			}
			// Root level: keep going but write nil
			resultMap[responseName] = nil
			continue
		}

		if isNullish(fieldResult) {
			resultMap[responseName] = nil
		} else {
			resultMap[responseName] = fieldResult
		}
	}

	return resultMap
}

func executeField(state *executionState, objectType *ast.Definition, objectValue any, fieldDef *ast.FieldDefinition, cf collectedField, path Path) any {
	args := coerceArgumentValues(state, fieldDef, cf.Fields[0].Arguments, path)
	value, err := state.runtime.ResolveField(state.context, FieldRequest{
		ObjectType: objectType.Name,
		Fields:     cf.Fields,
		Definition: fieldDef,
		Path:       cf.Path,
		Source:     objectValue,
		Args:       args,
	})
	if err != nil {
		state.addError(err, path)
		return completeValue(state, fieldDef.Type, cf.Fields, nil, cf.Path, path)
	}
	return completeValue(state, fieldDef.Type, cf.Fields, value, cf.Path, path)
}

// completeValue completes a value
func completeValue(state *executionState, fieldType *ast.Type, fields []*ast.Field, result any, opPath gqlpath.Path, path Path) any {
	if fieldType.NonNull {
		if isNullish(result) {
			state.addErrorOnce(fmt.Errorf("Cannot return null for non-nullable field %s", path), path)
			return nil
		}
		completed := completeValue(state, nullable(fieldType), fields, result, opPath, path)
		if isNullish(completed) {
			// Error already recorded at original path; propagate only
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if fieldType.Elem != nil {
		return completeListValue(state, fieldType, fields, result, opPath, path)
	}
	typeObj := state.schema.Types[fieldType.NamedType]
	if typeObj == nil {
		state.addError(fmt.Errorf("Unknown type: %s", fieldType.NamedType), path)
		return nil
	}

	switch typeObj.Kind {
	case ast.Scalar, ast.Enum:
		serialized, err := state.runtime.SerializeLeafValue(state.context, typeObj, result)
		if err != nil {
			state.addError(err, path)
			return nil
		}
		return serialized
	case ast.Object:
		return completeObjectValue(state, typeObj, typeObj.Name, fields, result, opPath, path)
	case ast.Interface, ast.Union:
		return completeAbstractValue(state, typeObj, fieldType, fields, result, opPath, path)
	default:
		state.addError(fmt.Errorf("Cannot complete value of unexpected type: %s", typeObj.Kind), path)
		return nil
	}
}

// completeListValue completes a list value
func completeListValue(state *executionState, listType *ast.Type, fields []*ast.Field, result any, opPath gqlpath.Path, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice {
			state.addError(fmt.Errorf("Expected list value, got %T", result), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := listType.Elem
	completed := make([]any, len(items))
	for i, item := range items {
		v := completeValue(state, inner, fields, item, opPath, appendPath(path, i))
		if inner.NonNull && isNullish(v) {
			// Propagate null to the list field; error already recorded by inner completion
			return nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, objectType *ast.Definition, staticType string, fields []*ast.Field, result any, opPath gqlpath.Path, path Path) any {
	sub := mergeSelectionSets(fields)
	obj := executeSelectionSet(state, objectType, staticType, sub, result, opPath, path)
	if obj == nil {
		return nil
	}
	return obj
}

func completeAbstractValue(state *executionState, abstractType *ast.Definition, fieldType *ast.Type, fields []*ast.Field, result any, opPath gqlpath.Path, path Path) any {
	typeName, err := state.runtime.ResolveType(state.context, abstractType, fieldType, fields, result)
	if err != nil {
		state.addError(err, path)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != ast.Object || !state.typeApplies(objectType, abstractType.Name) {
		state.addError(fmt.Errorf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType.Name, typeName), path)
		return nil
	}
	return completeObjectValue(state, objectType, abstractType.Name, fields, result, opPath, path)
}

func (state *executionState) addError(err error, path Path) {
	state.errors = append(state.errors, NewGraphQLError(err, path))
	state.errorPaths[path.String()] = struct{}{}
}

// addErrorOnce records err unless path already carries an error.
func (state *executionState) addErrorOnce(err error, path Path) {
	if _, ok := state.errorPaths[path.String()]; ok {
		return
	}
	state.addError(err, path)
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
