// File: config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Run configuration. Values start from Default, are overlaid by an optional
// JSON/YAML/TOML file and then by command-line flags.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/os/gfile"
	"github.com/pkg/errors"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/hasher"
)

// Roles a process can run.
const (
	RoleClient    = "client"
	RoleServer    = "server"
	RoleBackend   = "backend"
	RoleForwarder = "forwarder"
	RoleCombined  = "combined"
)

// Config is the full run configuration.
type Config struct {
	Role      string          `json:"role"`
	Sender    SenderConfig    `json:"sender"`
	Responder ResponderConfig `json:"responder"`
	Forwarder ForwarderConfig `json:"forwarder"`
	Backend   BackendConfig   `json:"backend"`
	Payload   PayloadConfig   `json:"payload"`
	Report    ReportConfig    `json:"report"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Socket    SocketConfig    `json:"socket"`
	Metrics   MetricsConfig   `json:"metrics"`
	Log       LogConfig       `json:"log"`
}

// SenderConfig configures the traffic generators.
type SenderConfig struct {
	Target    string  `json:"target"`
	Frequency float64 `json:"frequency"`
	Clients   int     `json:"clients"`
}

// ResponderConfig configures the UDP hash responder.
type ResponderConfig struct {
	Addr      string `json:"addr"`
	Listeners int    `json:"listeners"`
	BatchSize int    `json:"batch_size"`
	Encoding  string `json:"encoding"`
}

// ForwarderConfig configures the UDP to TCP bridge.
type ForwarderConfig struct {
	Addr          string `json:"addr"`
	BackendAddr   string `json:"backend_addr"`
	Listeners     int    `json:"listeners"`
	MaxBacklog    int    `json:"max_backlog"`
	ReplyEncoding string `json:"reply_encoding"`
}

// BackendConfig configures the TCP hash service.
type BackendConfig struct {
	Addr string `json:"addr"`
}

// PayloadConfig selects the payload rotation.
type PayloadConfig struct {
	// Kind is "reference" (the fixed four-buffer rotation), "alphanumeric", or
	// empty for the role default: reference for client, alphanumeric for combined.
	Kind  string `json:"kind"`
	Count int    `json:"count"`
	Size  int    `json:"size"`
}

// ReportConfig configures the throughput reporter.
type ReportConfig struct {
	Interval    string `json:"interval"`
	RequestSize int    `json:"request_size"`
	ReplySize   int    `json:"reply_size"`
}

// SchedulerConfig is the worker assignment policy.
type SchedulerConfig struct {
	Policy string `json:"policy"` // "shared" or "pinned"
	CPUs   int    `json:"cpus"`
}

// SocketConfig is shared by every socket of the run.
type SocketConfig struct {
	ReusePort  bool `json:"reuse_port"`
	RecvBuffer int  `json:"recv_buffer"`
	SendBuffer int  `json:"send_buffer"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// LogConfig maps onto mlog.CoreConfig.
type LogConfig struct {
	Level    string `json:"level"`
	Encoding string `json:"encoding"` // "console" or "json"
	Output   string `json:"output"`   // "console" or "file"
	Path     string `json:"path"`
	Color    bool   `json:"color"`
}

// Default returns a combined run on loopback.
func Default() *Config {
	return &Config{
		Role: RoleCombined,
		Sender: SenderConfig{
			Target:    "127.0.0.1:8080",
			Frequency: 1000,
			Clients:   1,
		},
		Responder: ResponderConfig{
			Addr:      ":8080",
			Listeners: 1,
			BatchSize: 32,
			Encoding:  "little-endian",
		},
		Forwarder: ForwarderConfig{
			Addr:          ":8080",
			BackendAddr:   "127.0.0.1:9000",
			Listeners:     1,
			MaxBacklog:    65536,
			ReplyEncoding: "decimal",
		},
		Backend: BackendConfig{Addr: ":9000"},
		Payload: PayloadConfig{Count: 100, Size: 100},
		Report: ReportConfig{
			Interval:    "1s",
			RequestSize: 100,
			ReplySize:   8,
		},
		Scheduler: SchedulerConfig{Policy: "shared"},
		Socket: SocketConfig{
			ReusePort:  true,
			RecvBuffer: 12 << 20,
			SendBuffer: 12 << 20,
		},
		Log: LogConfig{Level: "info", Encoding: "console", Output: "console", Color: true},
	}
}

// Load overlays the file at path on Default. An empty path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if !gfile.Exists(path) {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "config file %s does not exist", path)
	}
	j, err := gjson.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: load %s", path)
	}
	if err := j.Scan(cfg); err != nil {
		return nil, errors.Wrapf(err, "config: decode %s", path)
	}
	return cfg, nil
}

// ReportInterval parses Report.Interval.
func (c *Config) ReportInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Report.Interval)
	if err != nil {
		return 0, errors.Wrapf(api.ErrInvalidConfig, "report.interval %q: %v", c.Report.Interval, err)
	}
	return d, nil
}

// Validate checks every value the selected role uses.
func (c *Config) Validate() error {
	c.Role = strings.ToLower(strings.TrimSpace(c.Role))
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	client := c.Role == RoleClient || c.Role == RoleCombined
	server := c.Role == RoleServer
	forwarder := c.Role == RoleForwarder || c.Role == RoleCombined
	backend := c.Role == RoleBackend || c.Role == RoleCombined

	switch c.Role {
	case RoleClient, RoleServer, RoleBackend, RoleForwarder, RoleCombined:
	default:
		bad("unknown role %q", c.Role)
	}
	if client {
		if c.Sender.Target == "" {
			bad("sender.target is required")
		}
		if !(c.Sender.Frequency > 0) {
			bad("sender.frequency must be positive")
		}
		if c.Sender.Clients < 1 {
			bad("sender.clients must be at least 1")
		}
		switch c.Payload.Kind {
		case "reference", "":
		case "alphanumeric":
			if c.Payload.Count < 1 || c.Payload.Size < 0 {
				bad("payload.count must be at least 1 and payload.size non-negative")
			}
		default:
			bad("unknown payload.kind %q", c.Payload.Kind)
		}
	}
	if server {
		if c.Responder.Addr == "" {
			bad("responder.addr is required")
		}
		if c.Responder.Listeners < 1 {
			bad("responder.listeners must be at least 1")
		}
		if _, err := hasher.ParseEncoding(c.Responder.Encoding); err != nil {
			bad("responder.encoding: %v", err)
		}
	}
	if forwarder {
		if c.Forwarder.Addr == "" || c.Forwarder.BackendAddr == "" {
			bad("forwarder.addr and forwarder.backend_addr are required")
		}
		if c.Forwarder.Listeners < 1 {
			bad("forwarder.listeners must be at least 1")
		}
		if _, err := hasher.ParseEncoding(c.Forwarder.ReplyEncoding); err != nil {
			bad("forwarder.reply_encoding: %v", err)
		}
	}
	if backend && c.Backend.Addr == "" {
		bad("backend.addr is required")
	}
	if (server || forwarder) && !c.Socket.ReusePort {
		n := c.Responder.Listeners
		if forwarder {
			n = c.Forwarder.Listeners
		}
		if n > 1 {
			bad("multiple listeners require socket.reuse_port")
		}
	}
	if d, err := c.ReportInterval(); err != nil || d <= 0 {
		bad("report.interval must be a positive duration, got %q", c.Report.Interval)
	}
	switch strings.ToLower(c.Scheduler.Policy) {
	case "", "shared", "pinned":
	default:
		bad("unknown scheduler.policy %q", c.Scheduler.Policy)
	}
	if c.Socket.RecvBuffer < 0 || c.Socket.SendBuffer < 0 {
		bad("socket buffer sizes must be non-negative")
	}

	if len(problems) > 0 {
		return errors.Wrap(api.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
