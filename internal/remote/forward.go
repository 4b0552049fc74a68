package remote

import (
	"context"
	"net/http"
)

type forwardKey struct{}

// WithForwardedHeaders returns a copy of ctx whose remote calls carry h.
func WithForwardedHeaders(ctx context.Context, h http.Header) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return context.WithValue(ctx, forwardKey{}, h.Clone())
}

func forwardedHeaders(ctx context.Context) http.Header {
	h, _ := ctx.Value(forwardKey{}).(http.Header)
	return h
}
