package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/virtugraph/internal/svcerr"
)

type Path []PathElement

// PathElement is a response key (string) or list index (int).
type PathElement any

func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		}
	}
	return b.String()
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// NewGraphQLError locates err at path. Service errors contribute their kind
// and error tree as extensions.
func NewGraphQLError(err error, path Path) GraphQLError {
	var se *svcerr.Error
	if !errors.As(err, &se) {
		return GraphQLError{Message: err.Error(), Path: path}
	}
	gqlErr := se.ToGQLError(nil)
	return GraphQLError{Message: gqlErr.Message, Path: path, Extensions: gqlErr.Extensions}
}

// ExecutionResult represents the result of executing a GraphQL query
type ExecutionResult struct {
	Data       any            `json:"data"`
	Errors     []GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}
