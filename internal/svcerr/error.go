// Package svcerr is the gateway's structured error model.
//
// An Error carries a severity Kind, a message, the innermost cause, an ordered
// history of errors merged into it and free-form extensions. Errors are
// immutable once built. Merge folds concurrent failures into one ranked
// aggregate; the empty error (and nil) is its identity.
package svcerr

import (
	"maps"
	"slices"
	"strings"
)

// Error is an immutable structured error. Use a Builder to create one.
type Error struct {
	kind         Kind
	message      string
	cause        error
	causeSummary string
	history      []*Error
	extensions   map[string]any
}

// Empty returns the identity element of Merge.
func Empty() *Error { return &Error{} }

// IsEmpty reports whether e is nil or carries nothing.
func (e *Error) IsEmpty() bool {
	return e == nil || (e.kind == 0 && e.message == "" && e.cause == nil && len(e.history) == 0 && len(e.extensions) == 0)
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.message == "" {
		return e.kind.String()
	}
	return e.message
}

// Unwrap exposes the root cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func (e *Error) Kind() Kind {
	if e == nil {
		return 0
	}
	return e.kind
}

func (e *Error) Status() int { return e.Kind().Status() }

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Cause() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// CauseSummary is the rendered "type: message at frame" line of the cause.
func (e *Error) CauseSummary() string {
	if e == nil {
		return ""
	}
	return e.causeSummary
}

// History returns a copy of the merged errors, oldest first.
func (e *Error) History() []*Error {
	if e == nil {
		return nil
	}
	return slices.Clone(e.history)
}

// Extensions returns a copy of the extension map.
func (e *Error) Extensions() map[string]any {
	if e == nil || e.extensions == nil {
		return nil
	}
	return maps.Clone(e.extensions)
}

func (e *Error) Extension(key string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.extensions[key]
	return v, ok
}

// ToBuilder returns a builder seeded with a copy of e.
func (e *Error) ToBuilder() *Builder {
	b := &Builder{}
	if e == nil {
		return b
	}
	b.err = Error{
		kind:         e.kind,
		message:      e.message,
		cause:        e.cause,
		causeSummary: e.causeSummary,
		history:      slices.Clone(e.history),
		extensions:   maps.Clone(e.extensions),
	}
	return b
}

// Compare orders errors by kind, then errors with a cause first, then by
// message, then by the messages of their histories. Two errors comparing
// equal have the same kind, message, cause presence and history messages.
func Compare(a, b *Error) int {
	if c := int(a.Kind()) - int(b.Kind()); c != 0 {
		if c < 0 {
			return -1
		}
		return 1
	}
	ac, bc := a.Cause() != nil, b.Cause() != nil
	if ac != bc {
		if ac {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Message(), b.Message()); c != 0 {
		return c
	}
	ah, bh := a.History(), b.History()
	for i := 0; i < len(ah) && i < len(bh); i++ {
		if c := Compare(ah[i], bh[i]); c != 0 {
			return c
		}
	}
	return len(ah) - len(bh)
}

// Merge combines two errors. An empty operand yields the other one. Otherwise
// the lesser error survives and the greater one, with its history cleared, is
// appended to the survivor's history followed by the greater's own history.
func Merge(a, b *Error) *Error {
	if a.IsEmpty() {
		if b == nil {
			return Empty()
		}
		return b
	}
	if b.IsEmpty() {
		return a
	}
	lo, hi := a, b
	if Compare(a, b) > 0 {
		lo, hi = b, a
	}
	return lo.ToBuilder().
		AddHistory(hi.ToBuilder().ClearHistory().Build()).
		AddHistory(hi.history...).
		Build()
}

// MergeAll merges errs in ascending order, so the result does not depend on
// the order failures arrived in.
func MergeAll(errs ...*Error) *Error {
	sorted := slices.Clone(errs)
	slices.SortStableFunc(sorted, Compare)
	out := Empty()
	for _, e := range sorted {
		out = Merge(out, e)
	}
	return out
}
