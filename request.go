// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"time"

	"github.com/google/uuid"
)

// Request describes a single invocation flowing through an endpoint.
//
// A Request is built once by the caller and handed to Invoke. The pipeline
// treats it as read-only except for Options, which it fills in on first use.
type Request struct {
	// ID identifies the request across logs and transports.
	ID string

	// Service and Method name the target. Method may be empty for
	// single-operation services registered with RegisterRaw.
	Service string
	Method  string

	// Payload is the encoded argument blob. The core never decodes it;
	// codecs live in the transport layer.
	Payload []byte

	// Metadata carries caller-supplied key/value pairs end to end.
	Metadata map[string]string

	// Options holds the per-call options resolved for this request. Nil
	// until the pipeline (or the caller) attaches them.
	Options *Options
}

// NewRequest returns a Request with a fresh unique ID.
func NewRequest(service, method string, payload []byte) *Request {
	return &Request{
		ID:      uuid.New().String(),
		Service: service,
		Method:  method,
		Payload: payload,
	}
}

// wire returns the method string used on the transport: "service.method",
// or just the service name for single-operation services.
func (r *Request) wire() string {
	if r.Method == "" {
		return r.Service
	}
	return r.Service + "." + r.Method
}

// Options carries per-call settings resolved once per request. Resolution
// happens outside the core; see OptionResolver.
type Options struct {
	// Timeout bounds the remote call. Zero means no pipeline-imposed
	// deadline; the caller's context still applies.
	Timeout time.Duration

	// Metadata is merged into the request metadata before the call, with
	// request-level keys winning on conflict.
	Metadata map[string]string
}

// Result is the outcome of an invocation. Failed invocations still carry a
// Result so completion hooks always observe a (request, result) pair.
type Result struct {
	// Payload is the encoded response blob, nil on failure.
	Payload []byte

	// Metadata carries transport response metadata, if any.
	Metadata map[string]string

	// Err is the failure that produced this result, nil on success.
	Err error
}

// failure synthesizes a Result for err.
func failure(err error) *Result {
	return &Result{Err: err}
}
