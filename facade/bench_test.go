package facade_test

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/config"
	"github.com/gamedolphin/gafferchallenge/facade"
	"github.com/gamedolphin/gafferchallenge/shutdown"
)

func loopbackConfig(role string) *config.Config {
	cfg := config.Default()
	cfg.Role = role
	cfg.Backend.Addr = "127.0.0.1:0"
	cfg.Forwarder.Addr = "127.0.0.1:0"
	cfg.Responder.Addr = "127.0.0.1:0"
	cfg.Sender.Frequency = 2000
	cfg.Report.Interval = "50ms"
	cfg.Socket.ReusePort = false
	cfg.Socket.RecvBuffer = 0
	cfg.Socket.SendBuffer = 0
	cfg.Log.Level = "error"
	return cfg
}

func TestCombinedRun(t *testing.T) {
	facade.ConfigureLogging(config.LogConfig{Level: "error", Output: "console", Encoding: "console"})

	token := shutdown.New()
	b, err := facade.New(loopbackConfig(config.RoleCombined), token)
	require.NoError(t, err)
	assert.NotEmpty(t, b.RunID())

	ep := b.Endpoints()
	require.NotNil(t, ep.Backend)
	require.Len(t, ep.Forwarders, 1)
	require.Len(t, ep.Senders, 1)
	assert.Empty(t, ep.Responders)

	done := make(chan error, 1)
	go func() { done <- b.Run() }()

	// replies travel sender -> forwarder -> backend and back
	require.Eventually(t, func() bool {
		return sampleReceived(t, b)
	}, 5*time.Second, 20*time.Millisecond)

	token.Cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

// sampleReceived reports whether the reporter has published any received traffic.
func sampleReceived(t *testing.T, b *facade.Bench) bool {
	t.Helper()
	families, err := b.Registry().PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "gaffer_received_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			if m.GetCounter().GetValue() > 0 {
				return true
			}
		}
	}
	return false
}

func TestServerRoleReplies(t *testing.T) {
	token := shutdown.New()
	b, err := facade.New(loopbackConfig(config.RoleServer), token)
	require.NoError(t, err)
	require.Len(t, b.Endpoints().Responders, 1)

	done := make(chan error, 1)
	go func() { done <- b.Run() }()

	conn, err := net.Dial("udp", b.Endpoints().Responders[0].String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	token.Cancel()
	require.NoError(t, <-done)
}

func TestBindFailureReleasesSockets(t *testing.T) {
	busy, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := loopbackConfig(config.RoleServer)
	cfg.Responder.Addr = busy.LocalAddr().String()
	_, err = facade.New(cfg, shutdown.New())
	require.Error(t, err)
	assert.True(t, api.IsBindError(err))
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := loopbackConfig(config.RoleClient)
	cfg.Sender.Clients = 0
	_, err := facade.New(cfg, shutdown.New())
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := loopbackConfig(config.RoleBackend)
	cfg.Metrics.Addr = "127.0.0.1:0"
	token := shutdown.New()
	b, err := facade.New(cfg, token)
	require.NoError(t, err)
	assert.NotEqual(t, "127.0.0.1:0", b.Endpoints().Metrics)

	done := make(chan error, 1)
	go func() { done <- b.Run() }()

	resp, err := http.Get("http://" + b.Endpoints().Metrics + "/debug/state")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), b.RunID())

	token.Cancel()
	require.NoError(t, <-done)
}
