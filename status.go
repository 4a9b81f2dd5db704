// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import "sync/atomic"

// Status is the lifecycle state of an endpoint.
//
// The state machine is strictly linear:
//
//	Closed -> Opening -> Opened -> Closing -> Closed
//
// Closed is both the initial and the terminal state, so an endpoint can be
// reopened after a full close. No other transitions exist.
type Status int32

const (
	// Closed is the initial and terminal state. Resources are released.
	Closed Status = iota
	// Opening means resource acquisition is in progress.
	Opening
	// Opened means the endpoint accepts invocations.
	Opened
	// Closing means shutdown is in progress and new work is rejected.
	Closing
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Opened:
		return "opened"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// state holds an endpoint's lifecycle status. All mutations go through
// compare-and-swap so concurrent open/close attempts race safely: exactly
// one caller wins a transition, everyone else observes the loss and reacts.
type state struct {
	v atomic.Int32
}

// load returns the current status.
func (s *state) load() Status {
	return Status(s.v.Load())
}

// cas transitions from expect to next and reports whether this caller won.
func (s *state) cas(expect, next Status) bool {
	return s.v.CompareAndSwap(int32(expect), int32(next))
}

// force unconditionally stores next. Only the orchestrator uses it, and only
// for the final settle into Closed where the transition is already owned.
func (s *state) force(next Status) {
	s.v.Store(int32(next))
}
