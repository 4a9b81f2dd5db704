// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package endpoint manages the lifecycle of RPC service endpoints and the
// admission of invocations through them for the Lux ecosystem.
//
// # Lifecycle
//
// Every endpoint runs the same strictly linear state machine:
//
//	Closed -> Opening -> Opened -> Closing -> Closed
//
// Open acquires resources through an open hook; Close drains in-flight
// invocations (when graceful) and releases resources through a close hook.
// Both return futures that settle when the cycle completes, and both are
// safe under arbitrary concurrency: transitions are compare-and-swap owned,
// so racing opens share one cycle and racing closes share one teardown.
//
//	inv := endpoint.NewClientInvoker("localhost:9000")
//	ep := endpoint.New("trade", inv, endpoint.WithHooks(inv.Hooks()))
//	if err := ep.Open().Err(); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := ep.Call(ctx, endpoint.NewRequest("trade", "submit", orderBytes))
//
//	ep.Close(true).Err() // drain, then hang up
//
// # Admission and draining
//
// Invoke refuses work unless the endpoint is Opened and the process is not
// draining; system endpoints (WithSystem) bypass the check so control-plane
// calls still go out during shutdown. Admitted invocations are counted, and
// a graceful close completes only after the count returns to zero. Flip the
// process-wide flag with SetDraining before closing endpoints to fail fast
// on new work everywhere at once.
//
// # Transport Selection
//
// ZAP is the default transport. Use build tags to enable alternatives:
//
//	go build              # ZAP only (default, fastest)
//	go build -tags grpc   # Enable gRPC transport
//	go build -tags json   # Enable JSON-RPC over HTTP
//	go build -tags ws     # Enable WebSocket transport
//
// Server usage; every registered service is backed by an Endpoint, so
// admission and drain semantics hold on the serving side too:
//
//	server, err := endpoint.Listen(":9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	server.RegisterRaw("trade", func(ctx context.Context, payload []byte) ([]byte, error) {
//	    return processOrder(payload)
//	})
//
//	go server.Serve(ctx)
//	...
//	server.Shutdown(shutdownCtx) // drain all endpoints, then stop
//
// # Architecture
//
// The package separates concerns:
//
//   - status.go: lifecycle states and the compare-and-swap transition owner
//   - future.go: single-assignment completion handles
//   - endpoint.go: the Endpoint orchestrator and its options
//   - invoke.go: admission, in-flight accounting and dispatch
//   - drain.go: the in-flight counter behind graceful close
//   - shutdown.go: the process-wide draining flag
//   - errors.go: failure taxonomy and canonical wrapping
//   - request.go: the Request, Result and Options records
//   - registry.go: named endpoint collections and collective close
//   - chain.go: stock invokers (raw handlers, dialed clients)
//   - resolver.go: per-call option resolution and caching
//   - metrics.go: optional prometheus collectors
//   - client.go: protocol-agnostic Client and Server interfaces
//   - server.go: endpoint-backed dispatch shared by transport servers
//   - codec.go: Codec interface for message encoding
//   - transport.go: transport registry for build-tag extensibility
//   - dial.go: Dial and Listen factory functions
//   - zap.go: ZAP transport implementation (default)
//   - json.go: JSON-RPC 2.0 HTTP client helper with retries
//
// Application code should depend on the Endpoint, Client and Server types;
// transport selection stays a deployment decision rather than a code change.
package endpoint
