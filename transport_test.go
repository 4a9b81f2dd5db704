// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"slices"
	"testing"
)

func TestTransportRegistry(t *testing.T) {
	if !HasTransport(TransportZAP) {
		t.Fatal("default transport not registered")
	}
	if HasTransport("bogus") {
		t.Fatal("unregistered transport reported available")
	}
	if !slices.Contains(AvailableTransports(), TransportZAP) {
		t.Fatalf("AvailableTransports() = %v, missing %q", AvailableTransports(), TransportZAP)
	}
}
