package svcerr

import (
	"context"
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func Internal(msg string) *Error       { return New(KindInternal).Message(msg).Build() }
func InvalidRequest(msg string) *Error { return New(KindBadRequest).Message(msg).Build() }
func NotFound(msg string) *Error       { return New(KindNotFound).Message(msg).Build() }
func BadGateway(msg string) *Error     { return New(KindBadGateway).Message(msg).Build() }
func Timeout(msg string) *Error        { return New(KindGatewayTimeout).Message(msg).Build() }
func Unavailable(msg string) *Error    { return New(KindServiceUnavailable).Message(msg).Build() }

// MissingSession is the fail-fast error for calls without a request session.
func MissingSession() *Error {
	return New(KindInternal).Message("no request session attached to context").Build()
}

// FromError converts err into an Error. Errors already of this type pass
// through; context deadlines and cancellations get their own kinds and
// everything else is classified as fallback.
func FromError(err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(KindGatewayTimeout).Message("downstream call timed out").Cause(err).Build()
	case errors.Is(err, context.Canceled):
		return New(KindServiceUnavailable).Message("downstream call canceled").Cause(err).Build()
	}
	return New(fallback).Message(err.Error()).Cause(err).Build()
}

// Tree is the serializable form of an Error. Extensions are left out since
// they may hold arbitrary values.
type Tree struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
	History []Tree `json:"history,omitempty"`
}

func (e *Error) Tree() Tree {
	if e == nil {
		return Tree{}
	}
	t := Tree{Kind: e.kind.String(), Status: e.kind.Status(), Message: e.message, Cause: e.causeSummary}
	for _, h := range e.history {
		t.History = append(t.History, h.Tree())
	}
	return t
}

// ToGQLError renders e as a GraphQL error located at path.
func (e *Error) ToGQLError(path ast.Path) *gqlerror.Error {
	ext := e.Extensions()
	if ext == nil {
		ext = map[string]any{}
	}
	ext["code"] = e.Kind().String()
	ext["serviceError"] = e.Tree()
	return &gqlerror.Error{
		Err:        e,
		Message:    e.Error(),
		Path:       path,
		Extensions: ext,
	}
}

// GQLErrors flattens e and its history into a list of GraphQL errors.
func (e *Error) GQLErrors(path ast.Path) gqlerror.List {
	if e.IsEmpty() {
		return nil
	}
	list := gqlerror.List{e.ToBuilder().ClearHistory().Build().ToGQLError(path)}
	for _, h := range e.history {
		list = append(list, h.GQLErrors(path)...)
	}
	return list
}
