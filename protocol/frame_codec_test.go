package protocol_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedolphin/gafferchallenge/hasher"
	"github.com/gamedolphin/gafferchallenge/protocol"
)

func TestAppendRequestWireFormat(t *testing.T) {
	b, err := protocol.AppendRequest(nil, protocol.Request{Origin: "127.0.0.1:4000", Body: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: 127.0.0.1:4000\r\n\r\nhello", string(b))
}

func TestAppendResponseWireFormat(t *testing.T) {
	b, err := protocol.AppendResponse(nil, protocol.Response{Origin: "127.0.0.1:4000", Hash: 42})
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n127.0.0.1:4000\r\n\r\n42", string(b))
}

func TestOriginWithLineBreakRejected(t *testing.T) {
	_, err := protocol.AppendRequest(nil, protocol.Request{Origin: "a\r\nb"})
	assert.ErrorIs(t, err, protocol.ErrMalformedFrame)
	_, err = protocol.AppendResponse(nil, protocol.Response{Origin: ""})
	assert.ErrorIs(t, err, protocol.ErrMalformedFrame)
}

func TestStreamOfRequests(t *testing.T) {
	var stream bytes.Buffer
	enc := protocol.NewEncoder(&stream, 0)
	bodies := [][]byte{[]byte("first"), {}, []byte("line\r\nbreak\r\n\r\n"), bytes.Repeat([]byte{0xff}, 100)}
	for i, b := range bodies {
		require.NoError(t, enc.WriteRequest(protocol.Request{Origin: "[::1]:900" + string(rune('0'+i)), Body: b}))
	}
	require.NoError(t, enc.Flush())

	// half-sized reads split frames at arbitrary points
	dec := protocol.NewDecoder(iotestHalfReader{&stream}, 0)
	for i, want := range bodies {
		req, err := dec.ReadRequest()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, "[::1]:900"+string(rune('0'+i)), req.Origin)
		assert.Equal(t, want, req.Body)
	}
	_, err := dec.ReadRequest()
	assert.ErrorIs(t, err, io.EOF)
}

func TestResponseRoundTrip(t *testing.T) {
	var stream bytes.Buffer
	enc := protocol.NewEncoder(&stream, 0)
	h := hasher.Sum64([]byte("hello"))
	require.NoError(t, enc.WriteResponse(protocol.Response{Origin: "10.0.0.1:5", Hash: h}))
	require.NoError(t, enc.Flush())

	resp, err := protocol.NewDecoder(&stream, 0).ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, protocol.Response{Origin: "10.0.0.1:5", Hash: h}, resp)
}

func TestDecodeWithoutContentLength(t *testing.T) {
	in := "GET / HTTP/1.1\r\nHost: 1.2.3.4:5\r\n\r\npayload"
	req, err := protocol.NewDecoder(strings.NewReader(in), 0).ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4:5", req.Origin)
	assert.Equal(t, "payload", string(req.Body))

	in = "HTTP/1.1 200 OK\r\n1.2.3.4:5\r\n\r\n123" + "HTTP/1.1 200 OK\r\n6.7.8.9:1\r\n\r\n456"
	dec := protocol.NewDecoder(strings.NewReader(in), 0)
	resp, err := dec.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, protocol.Response{Origin: "1.2.3.4:5", Hash: 123}, resp)
	resp, err = dec.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, protocol.Response{Origin: "6.7.8.9:1", Hash: 456}, resp)
}

func TestFrameSplitAcrossReads(t *testing.T) {
	dec := protocol.NewDecoder(&chunkReader{chunks: []string{
		"GET / HTTP/1.1\r\nHost: 1.1.1.1:1\r\n\r\n0123456789",
		"abcdefghij",
		"GET / HT",
		"TP/1.1\r\nHost: 2.2.2.2:2\r\n\r\nsecond",
	}}, 0)

	req, err := dec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1:1", req.Origin)
	assert.Equal(t, "0123456789abcdefghij", string(req.Body))

	req, err = dec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "2.2.2.2:2", req.Origin)
	assert.Equal(t, "second", string(req.Body))

	_, err = dec.ReadRequest()
	assert.ErrorIs(t, err, io.EOF)
}

func TestResponseDigitsSplitAcrossReads(t *testing.T) {
	dec := protocol.NewDecoder(&chunkReader{chunks: []string{
		"HTTP/1.1 200 OK\r\n1.1.1.1:1\r\n\r\n1469598",
		"1039346656037",
		"HTTP/1.1 200 OK\r\n2.2.2.2:2\r\n\r\n7",
	}}, 0)

	resp, err := dec.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, protocol.Response{Origin: "1.1.1.1:1", Hash: hasher.OffsetBasis}, resp)
	resp, err = dec.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, protocol.Response{Origin: "2.2.2.2:2", Hash: 7}, resp)
}

func TestContentLengthIsHonoured(t *testing.T) {
	body := "GET / HTTP/1.1\r\nnot a frame"
	in := "GET / HTTP/1.1\r\nHost: a:1\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body +
		"HTTP/1.1 200 OK\r\n"
	dec := protocol.NewDecoder(iotestHalfReader{strings.NewReader(in)}, 32)
	req, err := dec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, body, string(req.Body))

	in = "HTTP/1.1 200 OK\r\na:1\r\nContent-Length: 4\r\n\r\n 42 "
	resp, err := protocol.NewDecoder(strings.NewReader(in), 0).ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), resp.Hash)
}

func TestIdleCompletesLastFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\nHost: a:1\r\n\r\nhel"))
		_, _ = client.Write([]byte("lo"))
	}()

	dec := protocol.NewDecoder(server, 0).WithIdle(context.Background(), 50*time.Millisecond)
	start := time.Now()
	req, err := dec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(req.Body))
	assert.Less(t, time.Since(start), time.Second)

	// the idle deadline is cleared: a later frame still arrives
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\nHost: b:2\r\n\r\nlater"))
	}()
	req, err = dec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "later", string(req.Body))
}

func TestIdleKeepsCancellationInterrupt(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, func() { _ = server.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\nHost: a:1\r\n\r\nbody"))
	}()
	dec := protocol.NewDecoder(server, 0).WithIdle(ctx, 200*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := dec.ReadRequest()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("decoder did not observe cancellation")
	}
	_, err := dec.ReadRequest()
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	good, err := protocol.AppendRequest(nil, protocol.Request{Origin: "1.1.1.1:1", Body: []byte("ok")})
	require.NoError(t, err)
	in := "POST /x HTTP/1.0\r\njunk\r\n\r\n" + string(good)

	dec := protocol.NewDecoder(strings.NewReader(in), 0)
	_, err = dec.ReadRequest()
	require.ErrorIs(t, err, protocol.ErrMalformedFrame)

	req, err := dec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(req.Body))
}

func TestMalformedHeaders(t *testing.T) {
	cases := map[string]string{
		"missing host":   "GET / HTTP/1.1\r\nContent-Length: 0\r\n\r\n",
		"bad length":     "GET / HTTP/1.1\r\nHost: a\r\nContent-Length: -3\r\n\r\n",
		"huge length":    "GET / HTTP/1.1\r\nHost: a\r\nContent-Length: 99999999\r\n\r\n",
		"no colon":       "GET / HTTP/1.1\r\nHost a\r\n\r\n",
		"bare lf header": "GET / HTTP/1.1\nHost: a\r\n\r\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := protocol.NewDecoder(strings.NewReader(in), 0).ReadRequest()
			assert.ErrorIs(t, err, protocol.ErrMalformedFrame)
		})
	}
}

func TestNonDecimalResponseBody(t *testing.T) {
	in := "HTTP/1.1 200 OK\r\n1.2.3.4:5\r\nContent-Length: 3\r\n\r\nabc"
	_, err := protocol.NewDecoder(strings.NewReader(in), 0).ReadResponse()
	assert.ErrorIs(t, err, protocol.ErrMalformedFrame)
}

func TestOversizedBodyWithoutLength(t *testing.T) {
	in := "GET / HTTP/1.1\r\nHost: a:1\r\n\r\n" + strings.Repeat("x", protocol.MaxFramePayload+1) +
		"GET / HTTP/1.1\r\nHost: b:2\r\n\r\nsmall"
	dec := protocol.NewDecoder(strings.NewReader(in), 2*protocol.MaxFramePayload)
	_, err := dec.ReadRequest()
	require.ErrorIs(t, err, protocol.ErrMalformedFrame)

	req, err := dec.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "b:2", req.Origin)
	assert.Equal(t, "small", string(req.Body))
}

func TestTruncatedFrame(t *testing.T) {
	in := "GET / HTTP/1.1\r\nHost: a\r\nContent-Length: 10\r\n\r\nabc"
	_, err := protocol.NewDecoder(strings.NewReader(in), 0).ReadRequest()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// chunkReader hands out one chunk per Read, like separate TCP segments.
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

// iotestHalfReader returns at most half of what is asked, like a slow TCP peer.
type iotestHalfReader struct{ r io.Reader }

func (h iotestHalfReader) Read(p []byte) (int, error) {
	n := (len(p) + 1) / 2
	return h.r.Read(p[:n])
}
