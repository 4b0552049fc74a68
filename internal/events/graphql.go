package events

import "time"

// GraphQLStart is emitted before materializing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	Cached        bool
}

// GraphQLFinish is emitted after materializing a GraphQL operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	Errors        []error
	Duration      time.Duration
}

// TabularStart is emitted before materializing a tabular request.
type TabularStart struct {
	Columns []string
}

// TabularFinish is emitted after materializing a tabular request.
type TabularFinish struct {
	Columns  []string
	Rows     int
	Errors   []error
	Duration time.Duration
}
