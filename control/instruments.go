// File: control/instruments.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Prometheus instruments. A nil *Metrics is valid everywhere and records nothing,
// so components never branch on whether telemetry is enabled.

package control

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gaffer"

// Metrics groups the benchmark instruments.
type Metrics struct {
	sent      prometheus.Counter
	received  prometheus.Counter
	bandwidth prometheus.Gauge
	transient *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	inflight  prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_total",
			Help:      "Datagrams sent by senders and replies sent by servers",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_total",
			Help:      "Datagrams received",
		}),
		bandwidth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bandwidth_bytes",
			Help:      "Bytes moved during the last reporting interval",
		}),
		transient: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_errors_total",
			Help:      "Non-fatal send or receive failures",
		}, []string{"component"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Datagrams or frames discarded",
		}, []string{"component", "reason"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "forwarder",
			Name:      "inflight",
			Help:      "Requests written to the backend and not yet answered",
		}),
	}
	for _, c := range []prometheus.Collector{m.sent, m.received, m.bandwidth, m.transient, m.dropped, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "control: register metrics")
		}
	}
	return m, nil
}

// ObserveInterval records one reporter sample.
func (m *Metrics) ObserveInterval(s Sample) {
	if m == nil {
		return
	}
	m.sent.Add(float64(s.Sent))
	m.received.Add(float64(s.Received))
	m.bandwidth.Set(float64(s.Bytes))
}

// TransientError counts a skipped I/O failure.
func (m *Metrics) TransientError(component string) {
	if m == nil {
		return
	}
	m.transient.WithLabelValues(component).Inc()
}

// Dropped counts a discarded unit of work.
func (m *Metrics) Dropped(component, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(component, reason).Inc()
}

// SetInflight publishes the forwarder's outstanding request count.
func (m *Metrics) SetInflight(n int64) {
	if m == nil {
		return
	}
	m.inflight.Set(float64(n))
}
