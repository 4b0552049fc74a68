package remote

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a source.
	ErrNoEndpoints = errors.New("remote: no endpoints available")
)
