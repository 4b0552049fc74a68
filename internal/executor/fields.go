package executor

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*ast.Field
	// Path is the operation path of the first field in Fields.
	Path gqlpath.Path
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{
		fields: make([]collectedField, 0),
		index:  make(map[string]int),
	}
}

func (cfm *collectedFieldMap) add(responseName string, field *ast.Field, path gqlpath.Path) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*ast.Field{field},
		Path:         path,
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields collects the fields of selectionSet that apply to
// objectType. staticType is the declared type the selection set was written
// against and parent the operation path of the selection set.
func collectFields(state *executionState, objectType *ast.Definition, staticType string, selectionSet ast.SelectionSet, parent gqlpath.Path) *collectedFieldMap {
	groupedFields := newCollectedFieldMap()
	visitedFragments := make(map[string]bool)

	collectFieldsImpl(state, objectType, staticType, selectionSet, parent, groupedFields, visitedFragments)

	return groupedFields
}

func collectFieldsImpl(state *executionState, objectType *ast.Definition, staticType string, selectionSet ast.SelectionSet, parent gqlpath.Path, groupedFields *collectedFieldMap, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *ast.Field:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			groupedFields.add(responseName, sel, parent.AliasedField(sel.Alias, sel.Name))

		case *ast.InlineFragment:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if !state.typeApplies(objectType, sel.TypeCondition) {
				continue
			}
			tc := sel.TypeCondition
			if tc == "" || tc == staticType || parent.IsRoot() {
				collectFieldsImpl(state, objectType, staticType, sel.SelectionSet, parent, groupedFields, visitedFragments)
				continue
			}
			collectFieldsImpl(state, objectType, tc, sel.SelectionSet, parent.InlineFragment(tc), groupedFields, visitedFragments)

		case *ast.FragmentSpread:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			fragmentDef := sel.Definition
			if fragmentDef == nil {
				fragmentDef = state.document.Fragments.ForName(sel.Name)
			}
			if fragmentDef == nil {
				continue
			}
			if !state.typeApplies(objectType, fragmentDef.TypeCondition) {
				continue
			}
			if !shouldIncludeNode(state, fragmentDef.Directives) {
				continue
			}
			if parent.IsRoot() {
				collectFieldsImpl(state, objectType, staticType, fragmentDef.SelectionSet, parent, groupedFields, visitedFragments)
				continue
			}
			collectFieldsImpl(state, objectType, fragmentDef.TypeCondition, fragmentDef.SelectionSet, parent.FragmentSpread(sel.Name), groupedFields, visitedFragments)
		}
	}
}

// typeApplies reports whether a fragment with the given type condition
// applies to objectType.
func (state *executionState) typeApplies(objectType *ast.Definition, condition string) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	cond := state.schema.Types[condition]
	if cond == nil {
		return false
	}
	for _, t := range state.schema.GetPossibleTypes(cond) {
		if t.Name == objectType.Name {
			return true
		}
	}
	return false
}

// shouldIncludeNode checks if a node should be included based on directives
func shouldIncludeNode(state *executionState, directives ast.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if skipIf, ok := directiveArgumentValue(state, skip, "if"); ok {
			if skipBool, ok := skipIf.(bool); ok && skipBool {
				return false
			}
		}
	}
	if include := directives.ForName("include"); include != nil {
		if includeIf, ok := directiveArgumentValue(state, include, "if"); ok {
			if includeBool, ok := includeIf.(bool); ok && !includeBool {
				return false
			}
		}
	}
	return true
}

func directiveArgumentValue(state *executionState, directive *ast.Directive, argName string) (any, bool) {
	arg := directive.Arguments.ForName(argName)
	if arg == nil {
		return nil, false
	}
	return valueFromASTWithVars(arg.Value, state.variableValues), true
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*ast.Field) ast.SelectionSet {
	var merged ast.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}
