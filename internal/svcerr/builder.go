package svcerr

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const causeMarker = "[cause: "

// Builder assembles an Error. A Builder is not safe for concurrent use.
type Builder struct {
	err   Error
	trace string
}

// New starts a builder for the given kind.
func New(kind Kind) *Builder { return &Builder{err: Error{kind: kind}} }

func (b *Builder) Kind(k Kind) *Builder {
	b.err.kind = k
	return b
}

func (b *Builder) Message(msg string) *Builder {
	b.err.message = msg
	return b
}

func (b *Builder) Messagef(format string, args ...any) *Builder {
	b.err.message = fmt.Sprintf(format, args...)
	return b
}

// Cause records the innermost non-nil error of err's chain. The first stack
// frame found along the chain is kept for the cause summary.
func (b *Builder) Cause(err error) *Builder {
	if err == nil {
		b.err.cause = nil
		b.err.causeSummary = ""
		b.trace = ""
		return b
	}
	b.trace = firstFrame(err)
	b.err.cause = innermost(err)
	b.err.causeSummary = ""
	return b
}

func (b *Builder) AddHistory(errs ...*Error) *Builder {
	for _, e := range errs {
		if !e.IsEmpty() {
			b.err.history = append(b.err.history, e)
		}
	}
	return b
}

// RemoveHistory drops every history entry identical to e.
func (b *Builder) RemoveHistory(e *Error) *Builder {
	kept := b.err.history[:0:0]
	for _, h := range b.err.history {
		if h != e {
			kept = append(kept, h)
		}
	}
	b.err.history = kept
	return b
}

func (b *Builder) ClearHistory() *Builder {
	b.err.history = nil
	return b
}

func (b *Builder) PutExtension(key string, value any) *Builder {
	if b.err.extensions == nil {
		b.err.extensions = map[string]any{}
	}
	b.err.extensions[key] = value
	return b
}

func (b *Builder) RemoveExtension(key string) *Builder {
	delete(b.err.extensions, key)
	return b
}

func (b *Builder) ClearExtensions() *Builder {
	b.err.extensions = nil
	return b
}

// Build returns the immutable error. When a cause is set its summary is
// appended to the message unless the message already carries it.
func (b *Builder) Build() *Error {
	e := b.err
	if e.cause != nil {
		if e.causeSummary == "" {
			e.causeSummary = summarize(e.cause, b.trace)
		}
		tag := causeMarker + e.causeSummary + "]"
		switch {
		case e.message == "":
			e.message = tag
		case !strings.Contains(e.message, tag):
			e.message += " " + tag
		}
	}
	e.history = append([]*Error(nil), e.history...)
	if e.extensions != nil {
		ext := make(map[string]any, len(e.extensions))
		for k, v := range e.extensions {
			ext[k] = v
		}
		e.extensions = ext
	}
	return &e
}

func innermost(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			if c, ok := err.(interface{ Cause() error }); ok && c.Cause() != nil && c.Cause() != err {
				next = c.Cause()
			}
		}
		if next == nil {
			return err
		}
		err = next
	}
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// firstFrame renders the frame closest to the origin among the stack traces
// attached along err's chain.
func firstFrame(err error) string {
	var frame string
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			if trace := st.StackTrace(); len(trace) > 0 {
				frame = fmt.Sprintf("%n (%s:%d)", trace[0], trace[0], trace[0])
			}
		}
		next := errors.Unwrap(err)
		if next == nil {
			if c, ok := err.(interface{ Cause() error }); ok && c.Cause() != err {
				next = c.Cause()
			}
		}
		err = next
	}
	return frame
}

func summarize(cause error, frame string) string {
	s := fmt.Sprintf("%T: %s", cause, cause.Error())
	if frame != "" {
		s += " at " + frame
	}
	return s
}
