//go:build ws

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func startWSServer(t *testing.T, ctx context.Context) Server {
	t.Helper()
	server, err := Listen(":0", WithServerTransport(TransportWS), WithServerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	if err := server.RegisterRaw("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}); err != nil {
		t.Fatalf("RegisterRaw: %v", err)
	}

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)
	return server
}

func TestWSRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := startWSServer(t, ctx)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportWS))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	payload := []byte("hello over ws")
	resp, err := client.CallRaw(ctx, "echo", payload)
	if err != nil {
		t.Fatalf("CallRaw: %v", err)
	}
	if string(resp) != string(payload) {
		t.Errorf("got %q, want %q", resp, payload)
	}

	// Typed calls run through the codec.
	var reply struct{ Msg string }
	if err := client.Call(ctx, "echo", struct{ Msg string }{Msg: "hi"}, &reply); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Msg != "hi" {
		t.Errorf("got %q, want %q", reply.Msg, "hi")
	}
}

func TestWSNotify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := Listen(":0", WithServerTransport(TransportWS), WithServerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	got := make(chan string, 1)
	if err := server.RegisterRaw("audit", func(ctx context.Context, payload []byte) ([]byte, error) {
		var msg string
		if err := defaultCodec.Decode(payload, &msg); err != nil {
			return nil, err
		}
		got <- msg
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterRaw: %v", err)
	}

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportWS))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Notify(ctx, "audit", "order-1"); err != nil {
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

func TestWSRejectsClosedEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := startWSServer(t, ctx)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportWS))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.CallRaw(ctx, "echo", []byte("warm")); err != nil {
		t.Fatalf("CallRaw: %v", err)
	}

	if _, err := waitSettled(t, server.Endpoint("echo").Close(true)); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = client.CallRaw(ctx, "echo", []byte("cold"))
	if err == nil || !strings.Contains(err.Error(), "closed or shutting down") {
		t.Fatalf("err = %v, want admission rejection", err)
	}
}

func TestWSClientClosed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server := startWSServer(t, ctx)

	client, err := Dial(ctx, server.Addr(), WithTransport(TransportWS))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := client.CallRaw(ctx, "echo", nil); !errors.Is(err, ErrWSClosed) {
		t.Fatalf("err = %v, want ErrWSClosed", err)
	}
}
