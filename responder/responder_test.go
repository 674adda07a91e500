package responder_test

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/hasher"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/responder"
	"github.com/gamedolphin/gafferchallenge/shutdown"
	"github.com/gamedolphin/gafferchallenge/transport"
)

func startResponder(t *testing.T, cfg responder.Config, opts ...responder.Option) (*responder.Responder, *shutdown.Token, chan error) {
	t.Helper()
	tok := shutdown.New()
	opts = append([]responder.Option{responder.WithLogger(mlog.Nop())}, opts...)
	r, err := responder.New(tok, cfg, opts...)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	t.Cleanup(func() {
		tok.Cancel()
		<-done
		_ = r.Shutdown()
	})
	return r, tok, done
}

func loopbackConfig() responder.Config {
	cfg := responder.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Socket = transport.SocketOptions{}
	return cfg
}

func dial(t *testing.T, addr net.Addr) *net.UDPConn {
	t.Helper()
	c, err := net.DialUDP("udp", nil, addr.(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	return c
}

func TestHelloRoundTrip(t *testing.T) {
	r, _, _ := startResponder(t, loopbackConfig())
	c := dial(t, r.Addr())

	_, err := c.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	assert.Equal(t, hasher.Sum64([]byte("hello")), binary.LittleEndian.Uint64(buf[:n]))
}

func TestPayloadSizes(t *testing.T) {
	counters := control.NewThroughputCounters()
	r, _, _ := startResponder(t, loopbackConfig(), responder.WithCounters(counters))
	c := dial(t, r.Addr())

	buf := make([]byte, 64)
	for size := 0; size <= 100; size++ {
		p := make([]byte, size)
		for i := range p {
			p[i] = byte(i * 7)
		}
		_, err := c.Write(p)
		require.NoError(t, err)
		n, err := c.Read(buf)
		require.NoError(t, err, "size %d", size)
		require.Equal(t, hasher.Size, n)
		assert.Equal(t, hasher.Sum64(p), binary.LittleEndian.Uint64(buf[:n]), "size %d", size)
	}
	assert.Equal(t, uint64(101), counters.Received.Load())
	require.Eventually(t, func() bool { return counters.Sent.Load() == 101 }, time.Second, 5*time.Millisecond)
}

func TestDecimalEncoding(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Encoding = hasher.Decimal
	r, _, _ := startResponder(t, cfg)
	c := dial(t, r.Addr())

	_, err := c.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	require.NoError(t, err)
	got, err := hasher.Decimal.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, hasher.Sum64([]byte("hello")), got)
}

func TestCancellationStopsRun(t *testing.T) {
	_, tok, done := startResponder(t, loopbackConfig())
	time.Sleep(20 * time.Millisecond)

	tok.Cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
		done <- nil // let cleanup drain
	case <-time.After(shutdown.PollInterval):
		t.Fatal("responder did not stop within the poll interval")
	}
}

func TestBindFailure(t *testing.T) {
	r, _, _ := startResponder(t, loopbackConfig())

	cfg := loopbackConfig()
	cfg.Addr = r.Addr().String()
	_, err := responder.New(shutdown.New(), cfg, responder.WithLogger(mlog.Nop()))
	require.Error(t, err)
	assert.True(t, api.IsBindError(err))
}
