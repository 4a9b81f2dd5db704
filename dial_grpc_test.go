//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func startGRPCServer(t *testing.T, ctx context.Context) Server {
	t.Helper()
	server, err := Listen(":0", WithServerTransport(TransportGRPC), WithServerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	if err := server.RegisterRaw("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}); err != nil {
		t.Fatalf("RegisterRaw: %v", err)
	}
	if err := server.RegisterRaw("sum", func(ctx context.Context, payload []byte) ([]byte, error) {
		var nums []int
		if err := json.Unmarshal(payload, &nums); err != nil {
			return nil, err
		}
		total := 0
		for _, n := range nums {
			total += n
		}
		return json.Marshal(total)
	}); err != nil {
		t.Fatalf("RegisterRaw: %v", err)
	}

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)
	return server
}

func TestGRPCRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startGRPCServer(t, ctx)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportGRPC))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// Dotted wire names split onto /service/method.
	resp, err := client.CallRaw(ctx, "echo.ping", []byte("hello"))
	if err != nil {
		t.Fatalf("CallRaw: %v", err)
	}
	if string(resp) != "hello" {
		t.Errorf("got %q, want %q", resp, "hello")
	}

	// Bare service names work too.
	resp, err = client.CallRaw(ctx, "echo", []byte("again"))
	if err != nil {
		t.Fatalf("CallRaw: %v", err)
	}
	if string(resp) != "again" {
		t.Errorf("got %q, want %q", resp, "again")
	}

	var total int
	if err := client.Call(ctx, "sum.calc", []int{4, 5}, &total); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if total != 9 {
		t.Errorf("got %d, want 9", total)
	}
}

func TestGRPCNotify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server, err := Listen(":0", WithServerTransport(TransportGRPC), WithServerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	got := make(chan string, 1)
	if err := server.RegisterRaw("audit", func(ctx context.Context, payload []byte) ([]byte, error) {
		var msg string
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		got <- msg
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterRaw: %v", err)
	}

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportGRPC))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Notify(ctx, "audit.log", "order-1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case msg := <-got:
		if msg != "order-1" {
			t.Errorf("got %q, want %q", msg, "order-1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never reached the handler")
	}
}

func TestGRPCRejectsClosedEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startGRPCServer(t, ctx)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportGRPC))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := waitSettled(t, server.Endpoint("echo").Close(true)); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = client.CallRaw(ctx, "echo.ping", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "closed or shutting down") {
		t.Fatalf("err = %v, want admission rejection", err)
	}
	if status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want %v", status.Code(err), codes.Unavailable)
	}
}

func TestGRPCUnknownMethod(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startGRPCServer(t, ctx)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportGRPC))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	_, err = client.CallRaw(ctx, "nope.ping", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("err = %v, want unknown method", err)
	}
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("code = %v, want %v", status.Code(err), codes.Unimplemented)
	}
}
