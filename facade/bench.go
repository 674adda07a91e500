// File: facade/bench.go
// Unified facade for one benchmark run.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bench aggregates the components a role needs behind a single object: it binds
// every socket up front, starts each component under the worker assignment
// policy, runs the throughput reporter and the optional metrics endpoint, and
// tears everything down when the run's token is cancelled.

package facade

import (
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/backend"
	"github.com/gamedolphin/gafferchallenge/config"
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/forwarder"
	"github.com/gamedolphin/gafferchallenge/hasher"
	"github.com/gamedolphin/gafferchallenge/internal/concurrency"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/pool"
	"github.com/gamedolphin/gafferchallenge/responder"
	"github.com/gamedolphin/gafferchallenge/sender"
	"github.com/gamedolphin/gafferchallenge/shutdown"
	"github.com/gamedolphin/gafferchallenge/transport"
)

type runnable interface {
	api.Runner
	api.GracefulShutdown
}

type component struct {
	name string
	r    runnable
}

// Endpoints lists the bound addresses of a run.
type Endpoints struct {
	Backend    net.Addr
	Forwarders []net.Addr
	Responders []net.Addr
	Senders    []net.Addr
	Metrics    string
}

// Bench is the main facade type.
type Bench struct {
	cfg      *config.Config
	runID    string
	token    *shutdown.Token
	log      *mlog.Logger
	counters *control.ThroughputCounters
	registry *control.MetricsRegistry
	metrics  *control.Metrics
	reporter *control.Reporter
	server   *control.Server
	sched    *concurrency.Scheduler

	components []component
	endpoints  Endpoints
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Bench)(nil)

// New validates cfg and acquires every socket of the role. If any acquisition
// fails, everything acquired so far is released and the error is returned.
func New(cfg *config.Config, token *shutdown.Token) (*Bench, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interval, err := cfg.ReportInterval()
	if err != nil {
		return nil, err
	}
	policy, err := concurrency.ParsePolicy(cfg.Scheduler.Policy)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := mlog.New("bench").With("run", runID, "role", cfg.Role)

	b := &Bench{
		cfg:      cfg,
		runID:    runID,
		token:    token,
		log:      log,
		counters: control.NewThroughputCounters(),
		registry: control.NewMetricsRegistry(),
	}
	b.metrics, err = control.NewMetrics(b.registry.PrometheusRegistry())
	if err != nil {
		return nil, err
	}
	b.sched = concurrency.NewScheduler(policy,
		concurrency.WithCPUs(cfg.Scheduler.CPUs),
		concurrency.WithLogger(log.Named("scheduler")))

	if err := b.build(); err != nil {
		_ = b.Shutdown()
		return nil, err
	}

	b.reporter = control.NewReporter(token, b.counters,
		control.WithInterval(interval),
		control.WithSizes(cfg.Report.RequestSize, cfg.Report.ReplySize),
		control.WithReporterLogger(log.Named("reporter")),
		control.WithReporterMetrics(b.metrics),
		control.WithRegistry(b.registry))

	if cfg.Metrics.Addr != "" {
		b.server = control.NewServer(cfg.Metrics.Addr, b.registry, log.Named("metrics"))
		if err := b.server.Listen(); err != nil {
			_ = b.Shutdown()
			return nil, err
		}
		b.endpoints.Metrics = b.server.Addr()
		b.registerProbes(b.server.Probes())
	}
	return b, nil
}

func (b *Bench) socketOptions() transport.SocketOptions {
	return transport.SocketOptions{
		ReusePort:  b.cfg.Socket.ReusePort,
		RecvBuffer: b.cfg.Socket.RecvBuffer,
		SendBuffer: b.cfg.Socket.SendBuffer,
	}
}

// build binds components in dependency order: backend, forwarders, responders, senders.
func (b *Bench) build() error {
	cfg := b.cfg
	role := cfg.Role
	// in combined mode only the senders feed the reporter
	serverCounters := b.counters
	if role == config.RoleCombined {
		serverCounters = nil
	}

	if role == config.RoleBackend || role == config.RoleCombined {
		bc := backend.DefaultConfig()
		bc.Addr = cfg.Backend.Addr
		bc.Socket = transport.SocketOptions{ReusePort: cfg.Socket.ReusePort}
		be, err := backend.New(b.token, bc,
			backend.WithLogger(b.log.Named("backend")),
			backend.WithCounters(orPrivate(serverCounters)),
			backend.WithMetrics(b.metrics))
		if err != nil {
			return err
		}
		b.add("backend", be)
		b.endpoints.Backend = be.Addr()
	}

	if role == config.RoleForwarder || role == config.RoleCombined {
		enc, err := hasher.ParseEncoding(cfg.Forwarder.ReplyEncoding)
		if err != nil {
			return err
		}
		fc := forwarder.DefaultConfig()
		fc.Addr = cfg.Forwarder.Addr
		fc.BackendAddr = cfg.Forwarder.BackendAddr
		if b.endpoints.Backend != nil {
			fc.BackendAddr = loopback(b.endpoints.Backend)
		}
		fc.MaxBacklog = cfg.Forwarder.MaxBacklog
		fc.ReplyEncoding = enc
		fc.Socket = b.socketOptions()
		for i := 0; i < cfg.Forwarder.Listeners; i++ {
			if i > 0 {
				// later listeners share the port the first one got
				fc.Addr = b.endpoints.Forwarders[0].String()
			}
			f, err := forwarder.New(b.token, fc,
				forwarder.WithLogger(b.log.Named("forwarder").With("listener", i)),
				forwarder.WithCounters(orPrivate(serverCounters)),
				forwarder.WithMetrics(b.metrics))
			if err != nil {
				return err
			}
			b.add("forwarder-"+strconv.Itoa(i), f)
			b.endpoints.Forwarders = append(b.endpoints.Forwarders, f.Addr())
		}
	}

	if role == config.RoleServer {
		enc, err := hasher.ParseEncoding(cfg.Responder.Encoding)
		if err != nil {
			return err
		}
		rc := responder.DefaultConfig()
		rc.Addr = cfg.Responder.Addr
		rc.BatchSize = cfg.Responder.BatchSize
		rc.Encoding = enc
		rc.Socket = b.socketOptions()
		for i := 0; i < cfg.Responder.Listeners; i++ {
			if i > 0 {
				rc.Addr = b.endpoints.Responders[0].String()
			}
			r, err := responder.New(b.token, rc,
				responder.WithLogger(b.log.Named("responder").With("listener", i)),
				responder.WithCounters(b.counters),
				responder.WithMetrics(b.metrics))
			if err != nil {
				return err
			}
			b.add("responder-"+strconv.Itoa(i), r)
			b.endpoints.Responders = append(b.endpoints.Responders, r.Addr())
		}
	}

	if role == config.RoleClient || role == config.RoleCombined {
		payloads, err := b.payloads()
		if err != nil {
			return err
		}
		sc := sender.DefaultConfig()
		sc.Target = cfg.Sender.Target
		if role == config.RoleCombined {
			sc.Target = loopback(b.endpoints.Forwarders[0])
		}
		sc.Frequency = cfg.Sender.Frequency
		sc.Socket = transport.SocketOptions{RecvBuffer: cfg.Socket.RecvBuffer, SendBuffer: cfg.Socket.SendBuffer}
		for i := 0; i < cfg.Sender.Clients; i++ {
			s, err := sender.New(b.token, sc, payloads,
				sender.WithLogger(b.log.Named("sender").With("client", i)),
				sender.WithCounters(b.counters),
				sender.WithMetrics(b.metrics))
			if err != nil {
				return err
			}
			b.add("sender-"+strconv.Itoa(i), s)
			b.endpoints.Senders = append(b.endpoints.Senders, s.LocalAddr())
		}
	}
	return nil
}

func (b *Bench) payloads() (*pool.PayloadPool, error) {
	kind := b.cfg.Payload.Kind
	if kind == "" {
		kind = "reference"
		if b.cfg.Role == config.RoleCombined {
			kind = "alphanumeric"
		}
	}
	if kind == "alphanumeric" {
		return pool.Alphanumeric(b.cfg.Payload.Count, b.cfg.Payload.Size)
	}
	return pool.Default(), nil
}

func (b *Bench) registerProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("run", func() any {
		return map[string]any{
			"id":         b.runID,
			"role":       b.cfg.Role,
			"policy":     b.sched.Policy().String(),
			"components": len(b.components),
		}
	})
	for _, c := range b.components {
		if f, ok := c.r.(*forwarder.Forwarder); ok {
			dp.RegisterProbe(c.name+"_inflight", func() any { return f.Inflight() })
		}
	}
}

func (b *Bench) add(name string, r runnable) {
	b.components = append(b.components, component{name: name, r: r})
}

// orPrivate gives a component its own counters when it must not feed the reporter.
func orPrivate(c *control.ThroughputCounters) *control.ThroughputCounters {
	if c == nil {
		return control.NewThroughputCounters()
	}
	return c
}

// loopback rewrites a wildcard bind address to the loopback address of the same family.
func loopback(a net.Addr) string {
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsUnspecified() {
		if ip != nil && ip.To4() == nil {
			host = "::1"
		} else {
			host = "127.0.0.1"
		}
	}
	return net.JoinHostPort(host, port)
}

// RunID identifies this run in logs.
func (b *Bench) RunID() string {
	return b.runID
}

// Endpoints returns the bound addresses.
func (b *Bench) Endpoints() Endpoints {
	return b.endpoints
}

// Counters returns the counters drained by the reporter.
func (b *Bench) Counters() *control.ThroughputCounters {
	return b.counters
}

// Registry returns the metrics registry.
func (b *Bench) Registry() *control.MetricsRegistry {
	return b.registry
}

// Run starts every component and blocks until the token is cancelled or a
// component fails, which cancels the token for the rest. Sockets are closed
// before Run returns.
func (b *Bench) Run() error {
	b.log.Infof("starting %d components, policy %s", len(b.components), b.sched.Policy())

	for _, c := range b.components {
		c := c
		p := b.sched.Go(c.name, concurrency.RunnerFunc(func() (err error) {
			failed := true
			defer func() {
				if failed {
					b.token.Cancel()
				}
			}()
			if err = c.r.Run(); err != nil {
				b.log.Errorf("%s failed: %v", c.name, err)
				return err
			}
			failed = false
			return nil
		}))
		b.log.Debugf("%s placed at %s", c.name, p)
	}

	// observers never need a pinned thread
	var observers sync.WaitGroup
	observers.Add(1)
	go func() {
		defer observers.Done()
		_ = b.reporter.Run()
	}()
	var serverErr error
	if b.server != nil {
		observers.Add(1)
		go func() {
			defer observers.Done()
			serverErr = b.server.Run()
		}()
	}

	b.token.Wait()
	err := b.sched.Wait()
	err = multierr.Append(err, b.Shutdown())
	observers.Wait()
	err = multierr.Append(err, serverErr)
	if err != nil {
		return errors.WithMessage(err, "bench")
	}
	b.log.Info("run finished")
	return nil
}

// Shutdown closes every socket and the metrics server.
func (b *Bench) Shutdown() error {
	var err error
	for i := len(b.components) - 1; i >= 0; i-- {
		if cerr := b.components[i].r.Shutdown(); cerr != nil && !api.IsClosed(cerr) {
			err = multierr.Append(err, errors.WithMessage(cerr, b.components[i].name))
		}
	}
	if b.server != nil {
		err = multierr.Append(err, b.server.Shutdown())
	}
	return err
}
