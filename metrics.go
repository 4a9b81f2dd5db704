// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics instruments endpoint activity. All recording methods are safe on
// a nil receiver, so endpoints built without WithMetrics pay a single nil
// check per event.
type Metrics struct {
	inflight    *prometheus.GaugeVec
	requests    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewMetrics builds the endpoint collector set and registers it on reg.
// Pass prometheus.DefaultRegisterer to publish on the default registry, or
// a private registry in tests. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "endpoint_inflight_requests",
			Help: "Number of invocations currently admitted and not yet released.",
		}, []string{"endpoint"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpoint_requests_total",
			Help: "Completed invocations by outcome.",
		}, []string{"endpoint", "outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpoint_rejected_total",
			Help: "Invocations refused at admission.",
		}, []string{"endpoint"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpoint_transitions_total",
			Help: "Lifecycle transitions by resulting status.",
		}, []string{"endpoint", "status"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	for _, c := range []prometheus.Collector{m.inflight, m.requests, m.rejected, m.transitions} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) admitted(name string) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(name).Inc()
}

func (m *Metrics) released(name string, err error) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(name).Dec()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) refused(name string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(name).Inc()
}

func (m *Metrics) transitioned(name string, st Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, st.String()).Inc()
}
