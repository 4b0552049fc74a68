package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/metamodel"
)

// DefaultMemoCallTimeout bounds a shared invocation.
const DefaultMemoCallTimeout = 3 * time.Second

// Memo caches callable results by metamodel, source, path and arguments.
// Concurrent calls with the same key share one invocation. The shared
// invocation is detached from the cancellation of the caller that started
// it; each caller still stops waiting when its own context ends.
type Memo struct {
	cache   *expirable.LRU[uint64, any]
	flight  singleflight.Group
	timeout time.Duration
}

// NewMemo keeps up to size results for ttl each.
func NewMemo(size int, ttl time.Duration) *Memo {
	return &Memo{cache: expirable.NewLRU[uint64, any](size, nil, ttl), timeout: DefaultMemoCallTimeout}
}

// Len reports the number of cached results.
func (m *Memo) Len() int { return m.cache.Len() }

func memoKey(created int64, c metamodel.Callable, args map[gqlpath.Path]any) (uint64, error) {
	// encoding/json writes map keys sorted, which makes the encoding canonical
	b, err := json.Marshal(args)
	if err != nil {
		return 0, err
	}
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatInt(created, 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(c.SourceName())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(c.Path().Key())
	_, _ = d.WriteString("\x00")
	_, _ = d.Write(b)
	return d.Sum64(), nil
}

// Memoize wraps c so results are served from m. created identifies the
// metamodel c was built from, so a replaced metamodel never reads results
// of the previous one. Arguments that cannot be encoded bypass the cache.
// Errors are never cached.
func Memoize(c metamodel.Callable, m *Memo, created time.Time) metamodel.Callable {
	if m == nil {
		return c
	}
	return &memoized{Callable: c, memo: m, created: created.UnixNano()}
}

type memoized struct {
	metamodel.Callable
	memo    *Memo
	created int64
}

func (c *memoized) Invoke(ctx context.Context, args map[gqlpath.Path]any) (any, error) {
	key, err := memoKey(c.created, c.Callable, args)
	if err != nil {
		return c.Callable.Invoke(ctx, args)
	}
	if v, ok := c.memo.cache.Get(key); ok {
		memoHits.Inc()
		return v, nil
	}
	ch := c.memo.flight.DoChan(strconv.FormatUint(key, 16), func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.memo.timeout)
		defer cancel()
		v, err := c.Callable.Invoke(sctx, args)
		if err == nil {
			c.memo.cache.Add(key, v)
		}
		return v, err
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
