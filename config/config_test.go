package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	d, err := cfg.ReportInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadJSONOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "run.json", `{
		"role": "client",
		"sender": {"target": "10.0.0.2:8080", "frequency": 5000, "clients": 4},
		"report": {"interval": "250ms"},
		"scheduler": {"policy": "pinned"}
	}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, config.RoleClient, cfg.Role)
	assert.Equal(t, "10.0.0.2:8080", cfg.Sender.Target)
	assert.Equal(t, float64(5000), cfg.Sender.Frequency)
	assert.Equal(t, 4, cfg.Sender.Clients)
	assert.Equal(t, "pinned", cfg.Scheduler.Policy)
	d, err := cfg.ReportInterval()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	// untouched sections keep their defaults
	assert.Equal(t, 100, cfg.Report.RequestSize)
	assert.Equal(t, ":9000", cfg.Backend.Addr)
	assert.Equal(t, 12<<20, cfg.Socket.RecvBuffer)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "run.yaml", "role: server\nresponder:\n  addr: \":7000\"\n  listeners: 3\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":7000", cfg.Responder.Addr)
	assert.Equal(t, 3, cfg.Responder.Listeners)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, api.ErrInvalidConfig)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*config.Config){
		"role":          func(c *config.Config) { c.Role = "video" },
		"frequency":     func(c *config.Config) { c.Sender.Frequency = 0 },
		"clients":       func(c *config.Config) { c.Sender.Clients = 0 },
		"interval":      func(c *config.Config) { c.Report.Interval = "soon" },
		"policy":        func(c *config.Config) { c.Scheduler.Policy = "numa" },
		"payload":       func(c *config.Config) { c.Payload.Kind = "zeros" },
		"reply enc":     func(c *config.Config) { c.Forwarder.ReplyEncoding = "hex" },
		"backend addr":  func(c *config.Config) { c.Backend.Addr = "" },
		"no reuseport":  func(c *config.Config) { c.Socket.ReusePort = false; c.Forwarder.Listeners = 2 },
		"negative bufs": func(c *config.Config) { c.Socket.RecvBuffer = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), api.ErrInvalidConfig)
		})
	}
}
