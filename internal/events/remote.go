package events

import "time"

// RemoteStart is emitted before a remote GraphQL source is called.
type RemoteStart struct {
	Source   string
	Endpoint string
}

// RemoteFinish is emitted after a remote GraphQL source returns.
type RemoteFinish struct {
	Source   string
	Endpoint string
	Status   int
	Err      error
	Duration time.Duration
}
