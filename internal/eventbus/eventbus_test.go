package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }

type pong struct{}

func TestPublishReachesTypedHandlers(t *testing.T) {
	b := New()
	Use(b)
	t.Cleanup(func() { Use(nil) })

	var pings []int
	var pongs int
	unsubA := Subscribe(func(_ context.Context, p ping) { pings = append(pings, p.n) })
	Subscribe(func(_ context.Context, p ping) { pings = append(pings, -p.n) })
	Subscribe(func(context.Context, pong) { pongs++ })

	Publish(context.Background(), ping{n: 1})
	require.Equal(t, []int{1, -1}, pings)
	require.Zero(t, pongs)

	unsubA()
	unsubA()
	Publish(context.Background(), ping{n: 2})
	require.Equal(t, []int{1, -1, -2}, pings)
}

func TestPublishWithoutBus(t *testing.T) {
	Use(nil)
	called := false
	unsub := Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	unsub()
	require.False(t, called)
}
