// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is the admission failure: the endpoint is not in the
	// Opened state, or the process is draining.
	ErrUnavailable = errors.New("endpoint: closed or shutting down")

	// ErrIllegalState is returned for lifecycle calls that observe a state
	// no legal transition starts from, and for open cycles interrupted by
	// a concurrent close.
	ErrIllegalState = errors.New("endpoint: illegal state")

	// ErrNoInvoker is returned when an endpoint has no execution chain.
	ErrNoInvoker = errors.New("endpoint: no invoker")
)

// Error is the canonical invocation failure. Failures crossing the pipeline
// boundary are wrapped exactly once: an error that is already an *Error, or
// that wraps one of the package sentinels, passes through untouched.
type Error struct {
	Endpoint string
	Method   string
	Err      error
}

func (e *Error) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("endpoint %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("endpoint %s: method %s: %v", e.Endpoint, e.Method, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// canonical reports whether err already carries pipeline failure semantics.
func canonical(err error) bool {
	var ep *Error
	if errors.As(err, &ep) {
		return true
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrIllegalState)
}

// invocationError canonicalizes a failure raised on behalf of req.
func invocationError(name string, req *Request, err error) error {
	if canonical(err) {
		return err
	}
	method := ""
	if req != nil {
		method = req.Method
	}
	return &Error{Endpoint: name, Method: method, Err: err}
}
