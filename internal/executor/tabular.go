package executor

import (
	"github.com/hanpama/virtugraph/internal/dispatch"
	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/materialize"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

// TabularResult is the response of a tabular query: one row per value of
// the longest column, keyed by column name.
type TabularResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Errors  []GraphQLError   `json:"errors,omitempty"`
}

// ExecuteTabular lines up the column values of a dispatched tabular query.
// List-valued columns fill rows in order; a single value repeats on every
// row. Missing values are null.
func ExecuteTabular(q *materialize.TabularQuery, result *dispatch.Result) *TabularResult {
	columns := q.OutputColumns()
	paths := map[string]gqlpath.Path{}
	for p, v := range q.RequestGraph().Vertices() {
		for _, col := range v.Spec.Columns {
			paths[col] = p
		}
	}

	res := &TabularResult{Columns: columns, Rows: []map[string]any{}}
	values := make(map[string][]any, len(columns))
	scalar := map[string]bool{}
	n := 0
	for _, col := range columns {
		path := Path{col}
		p, ok := paths[col]
		if !ok {
			res.Errors = append(res.Errors, NewGraphQLError(svcerr.New(svcerr.KindInternal).Messagef("column %q was not planned", col).Build(), path))
			continue
		}
		producer, o, ok := result.Producer(p)
		if !ok {
			res.Errors = append(res.Errors, NewGraphQLError(svcerr.New(svcerr.KindInternal).Messagef("no callable produces column %q", col).Build(), path))
			continue
		}
		if o.IsFailure() {
			res.Errors = append(res.Errors, NewGraphQLError(o.Err(), path))
			continue
		}
		v, _ := dispatch.Extract(o.Value(), producer, p)
		if list, ok := v.([]any); ok {
			values[col] = list
			n = max(n, len(list))
			continue
		}
		values[col] = []any{v}
		scalar[col] = true
		n = max(n, 1)
	}

	for i := range n {
		row := make(map[string]any, len(columns))
		for _, col := range columns {
			vs := values[col]
			switch {
			case scalar[col]:
				row[col] = vs[0]
			case i < len(vs):
				row[col] = vs[i]
			default:
				row[col] = nil
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}
