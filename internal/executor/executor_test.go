package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/virtugraph/internal/svcerr"
)

const showsSchema = `
type Query {
  obj: Obj!
  other: String
  items: [Item!]
  shows: [Show]
  count(min: Int = 2, kind: Kind): Int
}

type Obj { a: String! b: String }
type Item { v: String! }

enum Kind { SMALL LARGE }

interface Show { title: String }
type Movie implements Show { title: String runtime: Int }
type TVShow implements Show { title: String numberOfSeasons: Int }
`

func TestCompleteValue_NonNull_Propagation(t *testing.T) {
	sch := mustLoadSchema(t, showsSchema)

	t.Run("Resolver error", func(t *testing.T) {
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.obj":   NewMockValueResolver(map[string]any{}),
			"Obj.a":       NewMockErrorResolver(fmt.Errorf("boom")),
			"Query.other": NewMockValueResolver("x"),
		})
		doc := mustLoadQuery(t, sch, "{ obj { a b } other }")

		gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil)

		wantRes := &ExecutionResult{
			Data:   map[string]any{"obj": nil, "other": "x"},
			Errors: []GraphQLError{{Message: "boom", Path: Path{"obj", "a"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}

		var fields []string
		for _, c := range rt.GetCalls() {
			fields = append(fields, c.ObjectType+"."+c.Field)
		}
		if diff := cmp.Diff([]string{"Query.obj", "Obj.a", "Query.other"}, fields); diff != "" {
			t.Fatalf("Runtime calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Null list item", func(t *testing.T) {
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.items": NewMockValueResolver([]any{map[string]any{"v": "1"}, map[string]any{"v": nil}}),
		})
		doc := mustLoadQuery(t, sch, "{ items { v } }")

		gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil)

		wantRes := &ExecutionResult{
			Data: map[string]any{"items": nil},
			Errors: []GraphQLError{{
				Message: "Cannot return null for non-nullable field items[1].v",
				Path:    Path{"items", 1, "v"},
			}},
		}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Null root", func(t *testing.T) {
		rt := NewMockRuntime(map[string]MockResolver{
			"Query.obj": NewMockValueResolver(nil),
		})
		doc := mustLoadQuery(t, sch, "{ obj { b } }")

		gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil)

		wantRes := &ExecutionResult{
			Data:   map[string]any{"obj": nil},
			Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field obj", Path: Path{"obj"}}},
		}
		if diff := cmp.Diff(wantRes, gotRes); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAbstractTypesAndOperationPaths(t *testing.T) {
	sch := mustLoadSchema(t, showsSchema)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.shows": NewMockValueResolver([]any{
			map[string]any{"__typename": "Movie", "title": "A", "runtime": 120},
			map[string]any{"__typename": "TVShow", "name": "B", "numberOfSeasons": 3},
		}),
	})
	doc := mustLoadQuery(t, sch, `{
		shows {
			kind: __typename
			name: title
			... on TVShow { numberOfSeasons }
			...M
		}
	}
	fragment M on Movie { runtime }`)

	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil)

	wantRes := &ExecutionResult{
		Data: map[string]any{"shows": []any{
			map[string]any{"kind": "Movie", "name": "A", "runtime": 120},
			map[string]any{"kind": "TVShow", "name": "B", "numberOfSeasons": 3},
		}},
		Errors: []GraphQLError{},
	}
	if diff := cmp.Diff(wantRes, gotRes); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	var paths []string
	for _, c := range rt.GetCalls() {
		paths = append(paths, c.ObjectType+" "+c.Path.Key())
	}
	want := []string{
		"Query /shows",
		"Movie /shows/name:title",
		"Movie /shows/...M/runtime",
		"TVShow /shows/name:title",
		"TVShow /shows/[TVShow]/numberOfSeasons",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("operation paths mismatch (-want +got):\n%s", diff)
	}
}

func TestAbstractTypeResolutionFailure(t *testing.T) {
	sch := mustLoadSchema(t, showsSchema)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.shows": NewMockValueResolver([]any{map[string]any{"title": "A"}}),
	})
	rt.SetTypeResolver(func(any) (string, error) { return "Obj", nil })
	doc := mustLoadQuery(t, sch, `{ shows { title } }`)

	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil)

	require.Equal(t, map[string]any{"shows": []any{nil}}, gotRes.Data)
	require.Len(t, gotRes.Errors, 1)
	require.Equal(t, Path{"shows", 0}, gotRes.Errors[0].Path)
}

func TestSkipIncludeAndArguments(t *testing.T) {
	sch := mustLoadSchema(t, showsSchema)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.count": func(_ context.Context, _ any, args map[string]any) (any, error) {
			return args["min"], nil
		},
		"Query.other": NewMockValueResolver("x"),
	})
	doc := mustLoadQuery(t, sch, `query($skip: Boolean!, $kind: Kind) {
		other @skip(if: $skip)
		count(kind: $kind)
		more: count(min: 5)
	}`)

	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", map[string]any{"skip": true, "kind": "LARGE"})

	wantRes := &ExecutionResult{
		Data:   map[string]any{"count": 2, "more": 5},
		Errors: []GraphQLError{},
	}
	if diff := cmp.Diff(wantRes, gotRes); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	calls := rt.GetCalls()
	require.Equal(t, map[string]any{"min": 2, "kind": "LARGE"}, calls[0].Args)
}

func TestVariableErrors(t *testing.T) {
	sch := mustLoadSchema(t, showsSchema)
	doc := mustLoadQuery(t, sch, `query($kind: Kind!) { count(kind: $kind) }`)

	gotRes := NewExecutor(NewMockRuntime(nil), sch).ExecuteRequest(context.Background(), doc, "", map[string]any{"kind": "HUGE"})

	require.Nil(t, gotRes.Data)
	require.Len(t, gotRes.Errors, 1)
	require.Equal(t, svcerr.KindBadRequest.String(), gotRes.Errors[0].Extensions["code"])
	require.Equal(t, "kind", gotRes.Errors[0].Extensions["variable"])
}

func TestErrors_LocatedPaths(t *testing.T) {
	sch := mustLoadSchema(t, showsSchema)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.items": NewMockValueResolver([]any{map[string]any{"v": "1"}, map[string]any{"v": 2}}),
		"Item.v": func(_ context.Context, src any, _ map[string]any) (any, error) {
			if _, ok := src.(map[string]any)["v"].(string); !ok {
				return nil, svcerr.BadGateway("bad item")
			}
			return src.(map[string]any)["v"], nil
		},
	})
	doc := mustLoadQuery(t, sch, `{ items { v } }`)

	gotRes := NewExecutor(rt, sch).ExecuteRequest(context.Background(), doc, "", nil)

	require.Equal(t, map[string]any{"items": nil}, gotRes.Data)
	require.Len(t, gotRes.Errors, 1)
	got := gotRes.Errors[0]
	require.Equal(t, "bad item", got.Message)
	require.Equal(t, Path{"items", 1, "v"}, got.Path)
	require.Equal(t, svcerr.KindBadGateway.String(), got.Extensions["code"])
}
