// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestCore() *serverCore {
	return newServerCore(&serverOptions{logger: quietLogger()})
}

func TestServerCoreDispatch(t *testing.T) {
	ctx := context.Background()
	core := newTestCore()

	methodEcho := InvokerFunc(func(ctx context.Context, req *Request) *Future {
		return Resolved(&Result{Payload: []byte(req.Method)})
	})
	if _, err := core.Register("calc", methodEcho, quiet()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// "service.method" splits at the first dot.
	data, err := core.dispatch(ctx, "calc.add", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(data) != "add" {
		t.Fatalf("method = %q, want %q", data, "add")
	}

	// Later dots belong to the method.
	data, err = core.dispatch(ctx, "calc.vec.sum", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(data) != "vec.sum" {
		t.Fatalf("method = %q, want %q", data, "vec.sum")
	}

	// A bare service name dispatches with an empty method.
	data, err = core.dispatch(ctx, "calc", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(data) != "" {
		t.Fatalf("method = %q, want empty", data)
	}

	// An exact registered name wins over dot-splitting.
	if _, err := core.Register("calc.add", methodEcho, quiet()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	data, err = core.dispatch(ctx, "calc.add", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(data) != "" {
		t.Fatalf("method = %q, want empty for the exact-name service", data)
	}

	if _, err := core.dispatch(ctx, "nope.add", nil); err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("err = %v, want unknown method", err)
	}
}

func TestServerCoreDispatchAlias(t *testing.T) {
	core := newTestCore()
	ep := New("trade.v2", echoInvoker, WithAlias("trade"), quiet())
	if err := core.RegisterEndpoint(ep); err != nil {
		t.Fatalf("RegisterEndpoint: %v", err)
	}

	data, err := core.dispatch(context.Background(), "trade", []byte("x"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(data) != "x" {
		t.Fatalf("payload = %q, want %q", data, "x")
	}
}

func TestServerCoreRegisterDuplicate(t *testing.T) {
	core := newTestCore()
	if _, err := core.Register("calc", echoInvoker, quiet()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := core.Register("calc", echoInvoker, quiet()); err == nil {
		t.Fatal("duplicate Register succeeded")
	}
}

func TestServerCoreFailedOpenUnregisters(t *testing.T) {
	core := newTestCore()
	boom := errors.New("acquire failed")
	h := &stubHooks{openNext: func() *Future { return Failed(boom) }}

	if _, err := core.Register("calc", echoInvoker, WithHooks(h.hooks()), quiet()); !errors.Is(err, boom) {
		t.Fatalf("Register err = %v, want %v", err, boom)
	}
	if core.Endpoint("calc") != nil {
		t.Fatal("failed registration left the endpoint registered")
	}

	// The name is free again.
	if _, err := core.Register("calc", echoInvoker, quiet()); err != nil {
		t.Fatalf("Register after failure: %v", err)
	}
}

func TestServerCoreDispatchRefusal(t *testing.T) {
	core := newTestCore()
	if _, err := core.Register("calc", echoInvoker, quiet()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := waitSettled(t, core.Endpoint("calc").Close(true)); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := core.dispatch(context.Background(), "calc.add", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
