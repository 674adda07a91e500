// File: control/reporter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reporter drains the throughput counters on a fixed interval and publishes the
// interval's bandwidth. It only reads counters and never blocks the data path.

package control

import (
	"time"

	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/shutdown"
)

// Defaults for byte accounting: a benchmark payload and a binary hash reply.
const (
	DefaultInterval    = time.Second
	DefaultRequestSize = 100
	DefaultReplySize   = 8
)

// Sample is one drained interval.
type Sample struct {
	At       time.Time
	Interval time.Duration
	Sent     uint64
	Received uint64
	Bytes    uint64
}

// MiBPerSecond converts the sample to MiB/s.
func (s Sample) MiBPerSecond() float64 {
	if s.Interval <= 0 {
		return 0
	}
	return float64(s.Bytes) / (1 << 20) / s.Interval.Seconds()
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithInterval sets the drain period.
func WithInterval(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithSizes sets the per-datagram byte weights.
func WithSizes(request, reply int) ReporterOption {
	return func(r *Reporter) {
		r.requestSize = uint64(request)
		r.replySize = uint64(reply)
	}
}

// WithReporterLogger sets the logger.
func WithReporterLogger(l *mlog.Logger) ReporterOption {
	return func(r *Reporter) { r.log = l }
}

// WithReporterMetrics publishes samples to prometheus.
func WithReporterMetrics(m *Metrics) ReporterOption {
	return func(r *Reporter) { r.metrics = m }
}

// WithRegistry publishes samples to a snapshot registry.
func WithRegistry(reg *MetricsRegistry) ReporterOption {
	return func(r *Reporter) { r.registry = reg }
}

// WithSampleHook is called synchronously with every sample.
func WithSampleHook(fn func(Sample)) ReporterOption {
	return func(r *Reporter) { r.hook = fn }
}

// Reporter is the single drainer of a ThroughputCounters.
type Reporter struct {
	token    *shutdown.Token
	counters *ThroughputCounters
	interval time.Duration

	requestSize uint64
	replySize   uint64

	log      *mlog.Logger
	metrics  *Metrics
	registry *MetricsRegistry
	hook     func(Sample)

	last time.Time
}

// NewReporter creates a reporter for counters that stops on token.
func NewReporter(token *shutdown.Token, counters *ThroughputCounters, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		token:       token,
		counters:    counters,
		interval:    DefaultInterval,
		requestSize: DefaultRequestSize,
		replySize:   DefaultReplySize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = mlog.New("reporter")
	}
	return r
}

// Run ticks until the token is cancelled. It always returns nil.
func (r *Reporter) Run() error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.last = time.Now()

	for {
		select {
		case <-r.token.Done():
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick drains the counters once and publishes the sample.
func (r *Reporter) Tick() Sample {
	now := time.Now()
	interval := r.interval
	if !r.last.IsZero() {
		interval = now.Sub(r.last)
	}
	r.last = now

	s := Sample{
		At:       now,
		Interval: interval,
		Sent:     r.counters.Sent.Drain(),
		Received: r.counters.Received.Drain(),
	}
	s.Bytes = s.Sent*r.requestSize + s.Received*r.replySize

	r.log.Infof("sent %d, received: %d, total bandwidth: %.2f mbs/s", s.Sent, s.Received, s.MiBPerSecond())
	r.metrics.ObserveInterval(s)
	if r.registry != nil {
		r.registry.Set("sent", s.Sent)
		r.registry.Set("received", s.Received)
		r.registry.Set("bandwidth_bytes", s.Bytes)
	}
	if r.hook != nil {
		r.hook(s)
	}
	return s
}
