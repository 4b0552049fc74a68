// Package remote implements data element sources backed by GraphQL services
// reachable over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hanpama/virtugraph/internal/eventbus"
	"github.com/hanpama/virtugraph/internal/events"
	"github.com/hanpama/virtugraph/internal/language"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

// Source fetches its domain field from a remote GraphQL service. The domain
// sub-selection of each request is printed as a query and sent as one POST.
type Source struct {
	name, domain, sdl string
	opts              *Options
}

var _ metamodel.DataElementSource = (*Source)(nil)

func New(name, domainField, sdl string, opts ...Option) *Source {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Provider == nil && len(o.Endpoints) > 0 {
		o.Provider = NewStaticEndpoints(map[string][]string{name: o.Endpoints})
	}
	return &Source{name: name, domain: domainField, sdl: sdl, opts: o}
}

func (s *Source) Name() string               { return s.name }
func (s *Source) Kind() metamodel.SourceKind { return metamodel.DataElement }
func (s *Source) DomainField() string        { return s.domain }
func (s *Source) SDL() string                { return s.sdl }

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (s *Source) Fetch(ctx context.Context, req metamodel.DataElementRequest) (v any, err error) {
	if s.opts.Provider == nil {
		return nil, svcerr.New(svcerr.KindInternal).Messagef("remote source %s has no endpoints configured", s.name).Build()
	}
	op, vars, err := BuildOperation(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(request{Query: language.FormatOperation(op, nil), Variables: vars})
	if err != nil {
		return nil, svcerr.New(svcerr.KindBadRequest).Messagef("encode %s request", s.name).Cause(err).Build()
	}

	if _, ok := ctx.Deadline(); !ok && s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	endpoints, err := s.opts.Provider.Endpoints(ctx, s.name)
	if err != nil {
		return nil, svcerr.New(svcerr.KindServiceUnavailable).Messagef("remote source %s", s.name).Cause(err).Build()
	}
	endpoint := endpoints[rand.IntN(len(endpoints))]

	start := time.Now()
	status := 0
	eventbus.Publish(ctx, events.RemoteStart{Source: s.name, Endpoint: endpoint})
	defer func() {
		eventbus.Publish(ctx, events.RemoteFinish{
			Source:   s.name,
			Endpoint: endpoint,
			Status:   status,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, svcerr.New(svcerr.KindInternal).Messagef("remote source %s has an invalid endpoint", s.name).Cause(err).Build()
	}
	for _, h := range []http.Header{forwardedHeaders(ctx), s.opts.Headers} {
		for k, vs := range h {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.opts.Client.Do(httpReq)
	if err != nil {
		return nil, s.transportError(ctx, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, s.transportError(ctx, err)
	}
	return s.decode(resp.StatusCode, payload, req)
}

func (s *Source) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return svcerr.New(svcerr.KindGatewayTimeout).Messagef("remote source %s timed out", s.name).Cause(err).Build()
	}
	return svcerr.New(svcerr.KindServiceUnavailable).Messagef("remote source %s is unreachable", s.name).Cause(err).Build()
}

// decode maps a response onto the value of the domain field. GraphQL errors
// fail the whole call even when partial data came back.
func (s *Source) decode(status int, payload []byte, req metamodel.DataElementRequest) (any, error) {
	switch {
	case status == http.StatusServiceUnavailable:
		return nil, svcerr.New(svcerr.KindServiceUnavailable).Messagef("remote source %s is unavailable", s.name).Build()
	case status == http.StatusGatewayTimeout:
		return nil, svcerr.New(svcerr.KindGatewayTimeout).Messagef("remote source %s timed out", s.name).Build()
	case status < 200 || status >= 300:
		if !gjson.GetBytes(payload, "errors").IsArray() {
			return nil, svcerr.New(svcerr.KindBadGateway).Messagef("remote source %s responded with status %d", s.name, status).Build()
		}
	}
	if !gjson.ValidBytes(payload) {
		return nil, svcerr.New(svcerr.KindBadGateway).Messagef("remote source %s returned invalid JSON", s.name).Build()
	}

	if errs := gjson.GetBytes(payload, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		all := errs.Array()
		b := svcerr.New(svcerr.KindBadGateway).
			Messagef("%s: %s", s.name, all[0].Get("message").String()).
			PutExtension("source", s.name)
		if len(all) > 1 {
			b = b.PutExtension("remoteErrors", len(all))
		}
		if p := all[0].Get("path"); p.Exists() {
			b = b.PutExtension("remotePath", p.Value())
		}
		return nil, b.Build()
	}

	data := gjson.GetBytes(payload, "data")
	if !data.Exists() {
		return nil, svcerr.New(svcerr.KindBadGateway).Messagef("remote source %s returned no data", s.name).Build()
	}
	last, _ := req.Domain.Last()
	return data.Get(last.ResponseKey()).Value(), nil
}
