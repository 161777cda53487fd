package testkit

import (
	"errors"
	"sync/atomic"
)

var ErrInjectedFault = errors.New("injected fault")

// Fault fails every call once After calls have succeeded. A negative After
// never fails.
type Fault struct {
	After int64
	Err   error

	calls atomic.Int64
}

// NewFault returns a Fault that starts failing after n successful calls.
// If err is nil, ErrInjectedFault is used.
func NewFault(n int64, err error) *Fault {
	if err == nil {
		err = ErrInjectedFault
	}
	return &Fault{After: n, Err: err}
}

// Check counts a call and returns the injected error once the budget is spent.
func (f *Fault) Check() error {
	if f == nil || f.After < 0 {
		return nil
	}
	if f.calls.Add(1) > f.After {
		return f.Err
	}
	return nil
}

// Calls reports how many times Check ran.
func (f *Fault) Calls() int64 {
	if f == nil {
		return 0
	}
	return f.calls.Load()
}
