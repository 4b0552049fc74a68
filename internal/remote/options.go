package remote

import (
	"net/http"
	"time"
)

// Options configures how a remote source calls its service.
//
// Defaults:
// - Timeout: 3s (used only if the callable context has no deadline)
// - Client:  a dedicated http.Client
//
// Either Provider or Endpoints must be set; with only Endpoints the source
// uses a StaticEndpoints provider holding them.
type Options struct {
	Provider  EndpointProvider
	Endpoints []string

	Timeout time.Duration
	Client  *http.Client
	Headers http.Header
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Timeout: 3 * time.Second,
		Client:  &http.Client{},
		Headers: http.Header{},
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithEndpoints(urls ...string) Option    { return func(o *Options) { o.Endpoints = urls } }
func WithTimeout(d time.Duration) Option     { return func(o *Options) { o.Timeout = d } }
func WithHTTPClient(c *http.Client) Option   { return func(o *Options) { o.Client = c } }
func WithHeader(key, value string) Option    { return func(o *Options) { o.Headers.Add(key, value) } }
