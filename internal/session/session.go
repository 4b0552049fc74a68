// Package session carries the per-request state of a materialization
// through context.
package session

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/hanpama/virtugraph/internal/dispatch"
	"github.com/hanpama/virtugraph/internal/materialize"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

// Session describes one request. Query is empty for tabular requests.
type Session struct {
	RequestID     string
	Metamodel     *metamodel.Metamodel
	Query         string
	OperationName string
	Variables     map[string]any
	RawInput      map[string]any
	OutputColumns []string

	// Set once the request has been materialized.
	Context materialize.GraphContext
	Result  *dispatch.Result
}

func (s *Session) IsTabular() bool { return s.Query == "" }

// Clone returns a shallow copy with its own maps and slices.
func (s *Session) Clone() *Session {
	c := *s
	c.Variables = maps.Clone(s.Variables)
	c.RawInput = maps.Clone(s.RawInput)
	c.OutputColumns = slices.Clone(s.OutputColumns)
	return &c
}

// holder is the mutable slot the session lives in, so that later stages
// can replace the session seen by everyone sharing the context.
type holder struct {
	mu sync.RWMutex
	s  *Session
}

type key struct{}

// NewContext attaches s to ctx.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, key{}, &holder{s: s})
}

// FromContext returns the session attached to ctx.
func FromContext(ctx context.Context) (*Session, error) {
	h, ok := ctx.Value(key{}).(*holder)
	if !ok {
		return nil, svcerr.MissingSession()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return nil, svcerr.MissingSession()
	}
	return h.s, nil
}

// Store replaces the session attached to ctx.
func Store(ctx context.Context, s *Session) error {
	h, ok := ctx.Value(key{}).(*holder)
	if !ok {
		return svcerr.MissingSession()
	}
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
	return nil
}
