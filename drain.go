// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import "sync/atomic"

// drainTracker counts in-flight invocations and resolves the drain future a
// graceful close installs once the count returns to zero.
//
// admit and release are a strict pair: one release per successful admit,
// owned by the invocation pipeline. The count never goes negative.
type drainTracker struct {
	inflight atomic.Int64
	drainF   atomic.Pointer[Future]
}

// admit records one in-flight invocation and returns the new count.
func (t *drainTracker) admit() int64 {
	return t.inflight.Add(1)
}

// release records completion of one admitted invocation. When the count
// returns to zero and a drain is pending, the drain future resolves here.
// Futures settle once, so racing the forced completion of a non-graceful
// close is harmless.
func (t *drainTracker) release() {
	if t.inflight.Add(-1) == 0 {
		if f := t.drainF.Load(); f != nil {
			f.Complete(nil, nil)
		}
	}
}

// count returns the number of in-flight invocations.
func (t *drainTracker) count() int64 {
	return t.inflight.Load()
}

// begin publishes a fresh drain future for a closing cycle and returns it.
// Publish happens before the closer inspects the count, so a release landing
// in between still observes the future and resolves it.
func (t *drainTracker) begin() *Future {
	f := NewFuture()
	t.drainF.Store(f)
	return f
}

// reset drops any stale drain future at the start of a new open cycle.
func (t *drainTracker) reset() {
	t.drainF.Store(nil)
}
