package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/preparse"
	"github.com/hanpama/virtugraph/internal/remote"
	"github.com/hanpama/virtugraph/internal/reqid"
)

type captured struct {
	rid     string
	headers http.Header
}

func newTestHandler(t *testing.T, c *captured, opts ...Option) *Handler {
	t.Helper()
	m, err := metamodel.Compose([]metamodel.Source{
		metamodel.NewDataElementFunc("catalog", "shows", `
			extend type Query { shows(first: Int): [Show] }
			type Show { title: String rating: Float }
		`, func(ctx context.Context, req metamodel.DataElementRequest) (any, error) {
			if c != nil {
				c.rid, _ = reqid.FromContext(ctx)
			}
			return []any{
				map[string]any{"title": "A", "rating": 1.0},
				map[string]any{"title": "B", "rating": 3.0},
			}, nil
		}),
	})
	require.NoError(t, err)
	h, err := New(m, preparse.New(), opts...)
	require.NoError(t, err)
	return h
}

func post(h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGraphQLRequest(t *testing.T) {
	h := newTestHandler(t, nil)

	w := post(h, "/graphql", `{"query":"query($n: Int) { shows(first: $n) { name: title } }","variables":{"n":2}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	want := map[string]any{
		"data": map[string]any{"shows": []any{
			map[string]any{"name": "A"},
			map[string]any{"name": "B"},
		}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newTestHandler(t, nil)

	w := post(h, "/graphql", `{"query":"{ shows { nope } }"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	require.Nil(t, got["data"])
	errs := got["errors"].([]any)
	require.Len(t, errs, 1)
	require.Equal(t, "BAD_REQUEST", errs[0].(map[string]any)["extensions"].(map[string]any)["code"])
}

func TestExplainExtension(t *testing.T) {
	h := newTestHandler(t, nil)

	w := post(h, "/graphql", `{"query":"{ shows { title } }","extensions":{"explain":true}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ext := decode(t, w)["extensions"].(map[string]any)
	require.NotEmpty(t, ext[ExplainExtension])
}

func TestBatch(t *testing.T) {
	h := newTestHandler(t, nil)

	w := post(h, "/graphql", `[{"query":"{ shows { title } }"},{"query":"{ shows { rating } }"}]`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, map[string]any{"shows": []any{
		map[string]any{"rating": 1.0},
		map[string]any{"rating": 3.0},
	}}, out[1]["data"])
}

func TestTabularRequest(t *testing.T) {
	h := newTestHandler(t, nil)

	w := post(h, "/tabular", `{"columns":["title","rating"]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	want := map[string]any{
		"columns": []any{"rating", "title"},
		"rows": []any{
			map[string]any{"rating": 1.0, "title": "A"},
			map[string]any{"rating": 3.0, "title": "B"},
		},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	w = post(h, "/tabular", `{"columns":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(h, "/tabular", `{"columns":["nope"]}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForwardedHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"data":{"shows":[]}}`))
	}))
	defer srv.Close()

	m, err := metamodel.Compose([]metamodel.Source{
		remote.New("catalog", "shows", `
			extend type Query { shows: [Show] }
			type Show { title: String }
		`, remote.WithEndpoints(srv.URL)),
	})
	require.NoError(t, err)
	h, err := New(m, preparse.New(), WithForwardHeaders("X-Test"))
	require.NoError(t, err)

	w := post(h, "/graphql", `{"query":"{ shows { title } }"}`, map[string]string{"X-Test": "abc", "X-Other": "nope"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "abc", got.Get("X-Test"))
	require.Empty(t, got.Get("X-Other"))
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, nil, WithCORS("*"))

	w := post(h, "/graphql", `{"query":"{ shows { title } }"}`, map[string]string{"Origin": "http://example.com"})
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	pre := httptest.NewRequest("OPTIONS", "/graphql", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, nil, WithMaxBodyBytes(10))

	w := post(h, "/graphql", `{"query":"1234567890"}`, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	var c captured
	h := newTestHandler(t, &c)

	w := post(h, "/graphql", `{"query":"{ shows { title } }"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, c.rid)
	require.Equal(t, c.rid, w.Header().Get(reqid.Header))

	w = post(h, "/graphql", `{"query":"{ shows { rating } }"}`, map[string]string{reqid.Header: "caller-id"})
	require.Equal(t, "caller-id", c.rid)
	require.Equal(t, "caller-id", w.Header().Get(reqid.Header))
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/tabular", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestIntrospection(t *testing.T) {
	h := newTestHandler(t, nil)
	w := post(h, "/graphql", `{"query":"{ __type(name: \"Show\") { name } }"}`, nil)
	require.Equal(t, map[string]any{"__type": map[string]any{"name": "Show"}}, decode(t, w)["data"])

	h = newTestHandler(t, nil, WithIntrospection(false))
	w = post(h, "/graphql", `{"query":"{ __schema { queryType { name } } }"}`, nil)
	require.NotEmpty(t, decode(t, w)["errors"])
}
