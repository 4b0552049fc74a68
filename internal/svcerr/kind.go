package svcerr

import (
	"fmt"
	"net/http"
)

// Kind classifies an error by severity. Kinds are ordered from the most
// origin-like failure to the most caller-facing one; the zero Kind marks the
// empty error.
type Kind uint8

const (
	KindInternal Kind = iota + 1
	KindServiceUnavailable
	KindBadGateway
	KindGatewayTimeout
	KindBadRequest
	KindNotFound
)

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindInternal:
		return http.StatusInternalServerError
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindBadGateway:
		return http.StatusBadGateway
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusOK
}

// String is the extension code reported to GraphQL clients.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "INTERNAL"
	case KindServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case KindBadGateway:
		return "BAD_GATEWAY"
	case KindGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindNotFound:
		return "NOT_FOUND"
	case 0:
		return "NONE"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}
