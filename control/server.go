// File: control/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
)

// Server exposes the registry over HTTP.
type Server struct {
	addr     string
	registry *MetricsRegistry
	probes   *DebugProbes
	log      *mlog.Logger

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

var _ api.GracefulShutdown = (*Server)(nil)

// NewServer creates a metrics server for addr, e.g. ":9090".
func NewServer(addr string, registry *MetricsRegistry, log *mlog.Logger) *Server {
	if log == nil {
		log = mlog.New("metrics")
	}
	probes := NewDebugProbes()
	RegisterRuntimeProbes(probes)
	return &Server{addr: addr, registry: registry, probes: probes, log: log}
}

// Probes is the registry served under /debug/state.
func (s *Server) Probes() *DebugProbes {
	return s.probes
}

// Handler builds the mux: /metrics, /health and /debug/state.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		state := s.probes.DumpState()
		state["last_sample"] = s.registry.GetSnapshot()
		b, err := gjson.Encode(state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	})
	return mux
}

// Listen binds the HTTP socket so that bind failures surface before Run.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("control: metrics server already running")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return api.NewBindError("metrics", "listen", s.addr, err)
	}
	s.ln = ln
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return nil
}

// Addr is the bound address, valid after Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Run serves until Shutdown.
func (s *Server) Run() error {
	s.mu.Lock()
	srv, ln := s.server, s.ln
	s.mu.Unlock()
	if srv == nil {
		return errors.New("control: Listen not called")
	}
	s.log.Infof("metrics listening on http://%s/metrics", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "control: metrics server")
	}
	return nil
}

// Shutdown stops the server, waiting briefly for in-flight scrapes.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
