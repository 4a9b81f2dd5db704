// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import "sync/atomic"

// draining is the process-wide shutdown flag. Every admission check reads
// it, so flipping it rejects new work on all non-system endpoints at once
// while in-flight invocations run to completion.
var draining atomic.Bool

// SetDraining marks the process as draining (or clears the mark). Intended
// to be called from the owner's signal handling right before endpoints are
// closed gracefully.
func SetDraining(v bool) {
	draining.Store(v)
}

// Draining reports whether the process is draining.
func Draining() bool {
	return draining.Load()
}
