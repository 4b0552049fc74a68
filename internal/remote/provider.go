package remote

import (
	"context"
	"slices"
	"sync"
)

// EndpointProvider lists the URLs serving a remote source, keyed by the
// source name. Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, source string) ([]string, error)
}

// StaticEndpoints is a provider backed by an in-memory map.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = slices.Clone(v)
	}
	return &StaticEndpoints{data: cp}
}

// Set replaces the endpoints of one source.
func (s *StaticEndpoints) Set(source string, endpoints ...string) {
	s.mu.Lock()
	s.data[source] = slices.Clone(endpoints)
	s.mu.Unlock()
}

func (s *StaticEndpoints) Endpoints(_ context.Context, source string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[source]
	if len(arr) == 0 {
		return nil, ErrNoEndpoints
	}
	return slices.Clone(arr), nil
}
