package events

import "time"

// PlanFinish is emitted after a request graph has been connected.
type PlanFinish struct {
	Surface   string // "standard" or "tabular"
	Vertices  int
	Callables int
	Duration  time.Duration
	Err       error
}

// CallableStart is emitted before a callable is invoked.
type CallableStart struct {
	Path   string
	Source string
	Kind   string
}

// CallableFinish is emitted after a callable returns or is skipped.
type CallableFinish struct {
	Path     string
	Source   string
	Kind     string
	Err      error
	Skipped  bool
	Duration time.Duration
}
