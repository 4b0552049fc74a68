package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/virtugraph/internal/eventbus"
	"github.com/hanpama/virtugraph/internal/events"
	"github.com/hanpama/virtugraph/internal/executor"
	"github.com/hanpama/virtugraph/internal/introspection"
	"github.com/hanpama/virtugraph/internal/language"
	"github.com/hanpama/virtugraph/internal/materialize"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/preparse"
	"github.com/hanpama/virtugraph/internal/remote"
	"github.com/hanpama/virtugraph/internal/reqid"
	"github.com/hanpama/virtugraph/internal/session"
	"github.com/hanpama/virtugraph/internal/svcerr"
	"github.com/hanpama/virtugraph/internal/typeresolve"
)

//go:embed graphiql.html
var graphiqlPage []byte

// ExplainExtension is the request extension asking for the plan to be
// returned under the response extension of the same name.
const ExplainExtension = "explain"

// Handler is an http.Handler serving the GraphQL endpoint and, under
// /tabular, the tabular endpoint.
type Handler struct {
	current atomic.Pointer[snapshot]
	cache   *preparse.Cache
	opt     Options
	log     zerolog.Logger
}

// snapshot is a metamodel together with the type resolvers of its schema.
type snapshot struct {
	metamodel *metamodel.Metamodel
	types     *typeresolve.Registry
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// ForwardHeaders lists HTTP headers passed on to remote sources.
	// Header names are case-insensitive. Default is none.
	ForwardHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// Introspection answers __schema and __type when true.
	Introspection bool

	Logger zerolog.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option   { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                   { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option      { return func(o *Options) { o.MaxBodyBytes = n } }
func WithGraphiQL(enable bool) Option      { return func(o *Options) { o.GraphiQL = enable } }
func WithIntrospection(enable bool) Option { return func(o *Options) { o.Introspection = enable } }
func WithLogger(l zerolog.Logger) Option   { return func(o *Options) { o.Logger = l } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithForwardHeaders(headers ...string) Option {
	return func(o *Options) { o.ForwardHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a handler serving m. Requests are planned through cache.
func New(m *metamodel.Metamodel, cache *preparse.Cache, opts ...Option) (*Handler, error) {
	op := Options{Timeout: 10 * time.Second, GraphiQL: true, Introspection: true, Logger: zerolog.Nop()}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{cache: cache, opt: op, log: op.Logger}
	if err := h.SetMetamodel(m); err != nil {
		return nil, err
	}
	return h, nil
}

// SetMetamodel swaps the served metamodel. Requests already running keep the
// one they started with.
func (h *Handler) SetMetamodel(m *metamodel.Metamodel) error {
	types, err := typeresolve.NewRegistry(m.Schema())
	if err != nil {
		return err
	}
	h.current.Store(&snapshot{metamodel: m, types: types})
	h.log.Info().Str("metamodel", m.ID().String()).Time("created", m.Created()).Msg("serving metamodel")
	return nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	tabular := strings.HasSuffix(r.URL.Path, "/tabular")
	if r.Method != http.MethodPost && (r.Method != http.MethodGet || tabular) {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(svcerr.New(svcerr.KindBadRequest).Message("method not allowed").Build()), h.opt.Pretty)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	if len(h.opt.ForwardHeaders) > 0 {
		fwd := http.Header{}
		for _, hdr := range h.opt.ForwardHeaders {
			if v := r.Header.Values(hdr); len(v) > 0 {
				fwd[http.CanonicalHeaderKey(hdr)] = v
			}
		}
		ctx = remote.WithForwardedHeaders(ctx, fwd)
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if tabular {
		req, err := parseTabularRequest(r, h.opt.MaxBodyBytes)
		if err != nil {
			status = requestErrorStatus(err)
			writeJSON(w, status, errorResponse(err), h.opt.Pretty)
			return
		}
		res, err := h.executeTabular(ctx, rid, req)
		if err != nil {
			status = err.Status()
			writeJSON(w, status, errorResponse(err), h.opt.Pretty)
			return
		}
		writeJSON(w, status, res, h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = requestErrorStatus(berr)
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	if batch != nil {
		op := make([]any, len(batch))
		for i := range batch {
			op[i] = h.executeOne(ctx, rid, batch[i])
		}
		writeJSON(w, status, op, h.opt.Pretty)
		return
	}

	res := h.executeOne(ctx, rid, req)
	writeJSON(w, status, res, h.opt.Pretty)
}

// executeOne plans, dispatches and shapes one GraphQL request. Every
// failure is reported inside the result.
func (h *Handler) executeOne(ctx context.Context, rid string, req GraphQLRequest) *executor.ExecutionResult {
	snap := h.current.Load()
	m := snap.metamodel
	ctx = session.NewContext(ctx, &session.Session{
		RequestID:     rid,
		Metamodel:     m,
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		Query:         req.Query,
		OperationName: req.OperationName,
		Cached:        h.cache.Contains(m, req.Query),
	})
	result := h.execute(ctx, snap, req)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return result
}

func (h *Handler) execute(ctx context.Context, snap *snapshot, req GraphQLRequest) *executor.ExecutionResult {
	entry, err := h.cache.GetPlannedEntry(ctx, language.LoadQuery)
	if err != nil {
		return &executor.ExecutionResult{Errors: []executor.GraphQLError{executor.NewGraphQLError(err, nil)}}
	}
	if !entry.Valid() {
		return validationResult(entry.Errors)
	}
	s, err := session.FromContext(ctx)
	if err != nil {
		return &executor.ExecutionResult{Errors: []executor.GraphQLError{executor.NewGraphQLError(err, nil)}}
	}

	var rt executor.Runtime = executor.NewMaterialized(snap.metamodel, s.Result, snap.types)
	if h.opt.Introspection {
		rt = introspection.Wrap(rt, snap.metamodel.Schema())
	} else {
		rt = introspection.Deny(rt)
	}
	exec := executor.NewExecutor(rt, snap.metamodel.Schema())
	result := exec.ExecuteRequest(ctx, entry.Document, req.OperationName, req.Variables)
	if explain, _ := req.Extensions[ExplainExtension].(bool); explain {
		if result.Extensions == nil {
			result.Extensions = map[string]any{}
		}
		result.Extensions[ExplainExtension] = materialize.Explain(s.Context)
	}
	return result
}

func validationResult(list gqlerror.List) *executor.ExecutionResult {
	out := &executor.ExecutionResult{Errors: make([]executor.GraphQLError, len(list))}
	for i, e := range list {
		ext := map[string]any{"code": svcerr.KindBadRequest.String()}
		for k, v := range e.Extensions {
			ext[k] = v
		}
		if len(e.Locations) > 0 {
			ext["locations"] = e.Locations
		}
		out.Errors[i] = executor.GraphQLError{Message: e.Message, Extensions: ext}
	}
	return out
}

func (h *Handler) executeTabular(ctx context.Context, rid string, req TabularRequest) (*executor.TabularResult, *svcerr.Error) {
	snap := h.current.Load()
	ctx = session.NewContext(ctx, &session.Session{
		RequestID:     rid,
		Metamodel:     snap.metamodel,
		RawInput:      req.Input,
		OutputColumns: req.Columns,
	})

	start := time.Now()
	eventbus.Publish(ctx, events.TabularStart{Columns: req.Columns})
	finish := events.TabularFinish{Columns: req.Columns}
	defer func() {
		finish.Duration = time.Since(start)
		eventbus.Publish(ctx, finish)
	}()

	if _, err := h.cache.GetPlannedEntry(ctx, language.LoadQuery); err != nil {
		finish.Errors = []error{err}
		return nil, svcerr.FromError(err, svcerr.KindInternal)
	}
	s, err := session.FromContext(ctx)
	if err != nil {
		finish.Errors = []error{err}
		return nil, svcerr.FromError(err, svcerr.KindInternal)
	}
	q, ok := s.Context.(*materialize.TabularQuery)
	if !ok {
		return nil, svcerr.Internal("tabular request was not planned as a tabular query")
	}
	res := executor.ExecuteTabular(q, s.Result)
	finish.Rows = len(res.Rows)
	for _, e := range res.Errors {
		finish.Errors = append(finish.Errors, e)
	}
	return res, nil
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// TabularRequest asks for columns computed from raw input values.
type TabularRequest struct {
	Columns []string       `json:"columns"`
	Input   map[string]any `json:"input,omitempty"`
}

var errBodyTooLarge = svcerr.New(svcerr.KindBadRequest).Message("body too large").Build()

func requestErrorStatus(err *svcerr.Error) int {
	if err == errBodyTooLarge {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func badRequest(msg string) *svcerr.Error { return svcerr.InvalidRequest(msg) }

func readBody(r *http.Request, maxBody int64) ([]byte, *svcerr.Error) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return nil, badRequest("unsupported Content-Type")
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, badRequest("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *svcerr.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, badRequest("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, badRequest("invalid 'variables' JSON")
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	body, berr := readBody(r, maxBody)
	if berr != nil {
		return GraphQLRequest{}, nil, berr
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, badRequest("invalid JSON")
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, badRequest("empty batch")
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, badRequest("invalid JSON")
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, badRequest("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
}

func parseTabularRequest(r *http.Request, maxBody int64) (TabularRequest, *svcerr.Error) {
	body, berr := readBody(r, maxBody)
	if berr != nil {
		return TabularRequest{}, berr
	}
	var req TabularRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return TabularRequest{}, badRequest("invalid JSON")
	}
	if len(req.Columns) == 0 {
		return TabularRequest{}, badRequest("missing 'columns'")
	}
	return req, nil
}

// ------------------ Response formatting ------------------

func errorResponse(err error) *executor.ExecutionResult {
	return &executor.ExecutionResult{Errors: []executor.GraphQLError{executor.NewGraphQLError(err, nil)}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	if accept == "" {
		return false
	}
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
