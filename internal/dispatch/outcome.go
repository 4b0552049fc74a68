package dispatch

import (
	"github.com/hanpama/virtugraph/internal/svcerr"
)

type outcomeState uint8

const (
	statePending outcomeState = iota
	stateSuccess
	stateFailure
)

// Outcome is the result of one callable: pending until it ran, then either
// a value or an error.
type Outcome struct {
	state outcomeState
	value any
	err   *svcerr.Error
}

func Pending() Outcome                  { return Outcome{} }
func Success(v any) Outcome             { return Outcome{state: stateSuccess, value: v} }
func Failure(err *svcerr.Error) Outcome { return Outcome{state: stateFailure, err: err} }

func (o Outcome) IsPending() bool { return o.state == statePending }
func (o Outcome) IsSuccess() bool { return o.state == stateSuccess }
func (o Outcome) IsFailure() bool { return o.state == stateFailure }

// Value returns the produced value; nil unless successful.
func (o Outcome) Value() any { return o.value }

// Err returns the failure; nil unless failed.
func (o Outcome) Err() *svcerr.Error { return o.err }

// Get unpacks o the way functions return values. A pending outcome reports
// an internal error.
func (o Outcome) Get() (any, error) {
	switch o.state {
	case stateSuccess:
		return o.value, nil
	case stateFailure:
		return nil, o.err
	}
	return nil, svcerr.Internal("outcome is still pending")
}
