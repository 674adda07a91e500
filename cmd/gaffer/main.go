// File: cmd/gaffer/main.go
// Package main
// Single binary for every benchmark role: client, server, backend, forwarder, combined.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/config"
	"github.com/gamedolphin/gafferchallenge/facade"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/shutdown"
)

// Exit codes.
const (
	exitOK     = 0
	exitConfig = 2
	exitBind   = 3
	exitRun    = 1
)

type flags struct {
	configFile string
	role       string
	target     string
	frequency  float64
	clients    int
	listen     string
	listeners  int
	backend    string
	backendAt  string
	encoding   string
	payload    string
	interval   string
	policy     string
	cpus       int
	metrics    string
	logLevel   string
	duration   time.Duration
}

func parseFlags(args []string) (*flags, *flag.FlagSet, error) {
	f := &flags{}
	fs := flag.NewFlagSet("gaffer", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "configuration file (json, yaml or toml)")
	fs.StringVar(&f.role, "role", config.RoleCombined, "client, server, backend, forwarder or combined")
	fs.StringVar(&f.target, "target", "", "client: address to send datagrams to")
	fs.Float64Var(&f.frequency, "frequency", 0, "client: datagrams per second per client, inf for unpaced")
	fs.IntVar(&f.clients, "clients", 0, "client: number of concurrent senders")
	fs.StringVar(&f.listen, "listen", "", "server/forwarder: UDP listen address")
	fs.IntVar(&f.listeners, "listeners", 0, "server/forwarder: sockets sharing the listen port")
	fs.StringVar(&f.backend, "backend", "", "forwarder: TCP address of the hash backend")
	fs.StringVar(&f.backendAt, "backend-listen", "", "backend: TCP listen address")
	fs.StringVar(&f.encoding, "encoding", "", "server/forwarder: UDP reply encoding (little-endian, big-endian, decimal)")
	fs.StringVar(&f.payload, "payload", "", "client: payload kind (reference or alphanumeric)")
	fs.StringVar(&f.interval, "interval", "", "reporting interval, e.g. 1s")
	fs.StringVar(&f.policy, "policy", "", "worker policy: shared or pinned")
	fs.IntVar(&f.cpus, "cpus", 0, "pinned policy: number of CPUs to spread over")
	fs.StringVar(&f.metrics, "metrics", "", "prometheus listen address, empty to disable")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.DurationVar(&f.duration, "duration", 0, "stop after this long, 0 runs until interrupted")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// overlay copies explicitly set flags onto cfg.
func overlay(cfg *config.Config, f *flags, fs *flag.FlagSet) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "role":
			cfg.Role = f.role
		case "target":
			cfg.Sender.Target = f.target
		case "frequency":
			cfg.Sender.Frequency = f.frequency
		case "clients":
			cfg.Sender.Clients = f.clients
		case "listen":
			cfg.Responder.Addr = f.listen
			cfg.Forwarder.Addr = f.listen
		case "listeners":
			cfg.Responder.Listeners = f.listeners
			cfg.Forwarder.Listeners = f.listeners
		case "backend":
			cfg.Forwarder.BackendAddr = f.backend
		case "backend-listen":
			cfg.Backend.Addr = f.backendAt
		case "encoding":
			cfg.Responder.Encoding = f.encoding
			cfg.Forwarder.ReplyEncoding = f.encoding
		case "payload":
			cfg.Payload.Kind = f.payload
		case "interval":
			cfg.Report.Interval = f.interval
		case "policy":
			cfg.Scheduler.Policy = f.policy
		case "cpus":
			cfg.Scheduler.CPUs = f.cpus
		case "metrics":
			cfg.Metrics.Addr = f.metrics
		case "log-level":
			cfg.Log.Level = f.logLevel
		}
	})
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, fs, err := parseFlags(args)
	if err != nil {
		return exitConfig
	}
	cfg, err := config.Load(f.configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	overlay(cfg, f, fs)
	facade.ConfigureLogging(cfg.Log)
	log := mlog.New("gaffer")
	defer func() { _ = log.Sync() }()

	token := shutdown.New()
	stop := shutdown.NotifySignals(token, log)
	defer stop()

	bench, err := facade.New(cfg, token)
	if err != nil {
		log.Errorf("startup failed: %v", err)
		if api.IsBindError(err) {
			return exitBind
		}
		return exitConfig
	}
	log.Infof("run %s: role %s", bench.RunID(), cfg.Role)

	if f.duration > 0 {
		go func() {
			if !token.WaitTimeout(f.duration) {
				token.Cancel()
			}
		}()
	}

	if err := bench.Run(); err != nil {
		log.Errorf("run failed: %v", err)
		return exitRun
	}
	return exitOK
}
