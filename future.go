// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"sync/atomic"
)

// Future is a single-assignment completion handle. Open, Close and Invoke
// all return one; resource hooks and invokers produce them.
//
// A Future settles exactly once. Later Complete calls lose the settle race
// and are ignored, which is what makes redundant completions (a drain that
// was already forced, a hook that reports twice) harmless.
type Future struct {
	settled atomic.Bool
	done    chan struct{}
	res     *Result
	err     error
}

// NewFuture returns an unsettled future. The creator is responsible for
// eventually calling Complete.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already settled with res.
func Resolved(res *Result) *Future {
	f := NewFuture()
	f.Complete(res, nil)
	return f
}

// Failed returns a future already settled with err.
func Failed(err error) *Future {
	f := NewFuture()
	f.Complete(nil, err)
	return f
}

// Complete settles the future and reports whether this call won the settle
// race. The result and error are visible to readers once Done is closed.
func (f *Future) Complete(res *Result, err error) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.res = res
	f.err = err
	close(f.done)
	return true
}

// Done returns a channel closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled.
func (f *Future) Settled() bool {
	return f.settled.Load()
}

// Result blocks until the future settles and returns its outcome.
func (f *Future) Result() (*Result, error) {
	<-f.done
	return f.res, f.err
}

// Err blocks until the future settles and returns its error, if any.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// Wait blocks until the future settles or ctx is done. It returns the
// settlement error, or the context error if the caller gave up first. The
// future itself is unaffected by ctx; it still settles on its own schedule.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.err
	}
}

// whenDone runs fn with the settled outcome. If the future has already
// settled, fn runs inline on the calling goroutine; otherwise it runs on a
// fresh goroutine once the future settles. Continuation ordering between
// multiple whenDone registrations is unspecified.
func (f *Future) whenDone(fn func(*Result, error)) {
	select {
	case <-f.done:
		fn(f.res, f.err)
	default:
		go func() {
			<-f.done
			fn(f.res, f.err)
		}()
	}
}
