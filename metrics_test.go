// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ep := New("trade", echoInvoker, WithMetrics(m), quiet())

	// A refusal before open.
	f := ep.Invoke(context.Background(), NewRequest("trade", "submit", nil))
	if _, err := f.Result(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("trade")); got != 1 {
		t.Fatalf("rejected = %v, want 1", got)
	}

	if _, err := waitSettled(t, ep.Open()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// A successful invocation.
	if _, err := ep.Call(context.Background(), NewRequest("trade", "submit", []byte("x"))); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("trade", "ok")); got != 1 {
		t.Fatalf(`requests{outcome="ok"} = %v, want 1`, got)
	}
	if got := testutil.ToFloat64(m.inflight.WithLabelValues("trade")); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}

	// A failed invocation.
	fail := New("flaky", InvokerFunc(func(ctx context.Context, req *Request) *Future {
		return Failed(errors.New("boom"))
	}), WithMetrics(m), quiet())
	if _, err := waitSettled(t, fail.Open()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := fail.Call(context.Background(), NewRequest("flaky", "submit", nil)); err == nil {
		t.Fatal("Call succeeded on a failing chain")
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("flaky", "error")); got != 1 {
		t.Fatalf(`requests{outcome="error"} = %v, want 1`, got)
	}

	// Lifecycle transitions.
	if _, err := waitSettled(t, ep.Close(true)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, st := range []Status{Opening, Opened, Closing, Closed} {
		if got := testutil.ToFloat64(m.transitions.WithLabelValues("trade", st.String())); got != 1 {
			t.Fatalf("transitions{status=%q} = %v, want 1", st, got)
		}
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.admitted("trade")
	m.released("trade", nil)
	m.released("trade", errors.New("boom"))
	m.refused("trade")
	m.transitioned("trade", Opened)
}

func TestMetricsNilRegisterer(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m == nil {
		t.Fatal("NewMetrics returned nil collector set")
	}
	m.admitted("trade")
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("second registration on the same registry succeeded")
	}
}
