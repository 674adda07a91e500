// File: protocol/frame_codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream codec for request/response frames over a TCP byte stream.
//
// A body without Content-Length runs up to the next start line (requests) or the
// last decimal digit (responses). When the buffered input ends before such a
// boundary the decoder keeps reading; the body is complete at end of stream or,
// with WithIdle, once the peer has sent nothing for the idle period. Content-Length
// is honoured when a peer sends it. After a malformed frame the decoder skips input
// until it sees a start line again.

package protocol

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gamedolphin/gafferchallenge/hasher"
)

// DefaultBufferSize is the bufio size used by NewDecoder and NewEncoder when size <= 0.
const DefaultBufferSize = 64 << 10

// DefaultBodyIdle is how long a decoder waits for more body bytes before it
// treats a frame without Content-Length as complete.
const DefaultBodyIdle = 2 * time.Millisecond

// Encoder writes frames to a buffered stream. Callers decide when to Flush.
type Encoder struct {
	w   *bufio.Writer
	buf []byte
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer, size int) *Encoder {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Encoder{w: bufio.NewWriterSize(w, size)}
}

// WriteRequest buffers one request frame.
func (e *Encoder) WriteRequest(req Request) error {
	b, err := AppendRequest(e.buf[:0], req)
	if err != nil {
		return err
	}
	e.buf = b
	_, err = e.w.Write(b)
	return err
}

// WriteResponse buffers one response frame.
func (e *Encoder) WriteResponse(resp Response) error {
	b, err := AppendResponse(e.buf[:0], resp)
	if err != nil {
		return err
	}
	e.buf = b
	_, err = e.w.Write(b)
	return err
}

// Flush pushes buffered frames to the underlying writer.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Buffered is the number of bytes waiting for Flush.
func (e *Encoder) Buffered() int {
	return e.w.Buffered()
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

var past = time.Unix(1, 0)

// Decoder reads frames from a byte stream. Not safe for concurrent use.
type Decoder struct {
	src    io.Reader
	r      *bufio.Reader
	resync bool

	// set by WithIdle
	dl   readDeadliner
	ctx  context.Context
	idle time.Duration
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader, size int) *Decoder {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Decoder{src: r, r: bufio.NewReaderSize(r, size)}
}

// WithIdle lets a body without Content-Length end once r has been quiet for idle,
// which a live connection needs because its last frame is never followed by
// another. r must support read deadlines, otherwise this is a no-op. The read
// deadline is cleared after each wait; if ctx is done by then it is moved into
// the past again, so cancellation that interrupts reads on r stays in effect.
func (d *Decoder) WithIdle(ctx context.Context, idle time.Duration) *Decoder {
	dl, ok := d.src.(readDeadliner)
	if !ok || idle <= 0 {
		return d
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.dl, d.ctx, d.idle = dl, ctx, idle
	return d
}

// Buffered is the number of bytes already read from the stream but not decoded.
func (d *Decoder) Buffered() int {
	return d.r.Buffered()
}

// ReadRequest decodes the next request frame. It returns io.EOF when the stream ends
// cleanly between frames and an error wrapping ErrMalformedFrame for a bad frame.
func (d *Decoder) ReadRequest() (Request, error) {
	if err := d.readStart(requestLine); err != nil {
		return Request{}, err
	}
	hdr, err := d.readHeaders(false)
	if err != nil {
		return Request{}, d.fail(err)
	}
	if hdr.origin == "" {
		return Request{}, d.fail(errors.Wrap(ErrMalformedFrame, "missing Host header"))
	}
	body, err := d.readBody(hdr.length, requestEnd, MaxFramePayload)
	if err != nil {
		return Request{}, d.fail(err)
	}
	return Request{Origin: hdr.origin, Body: body}, nil
}

// ReadResponse decodes the next response frame.
func (d *Decoder) ReadResponse() (Response, error) {
	if err := d.readStart(responseLine); err != nil {
		return Response{}, err
	}
	hdr, err := d.readHeaders(true)
	if err != nil {
		return Response{}, d.fail(err)
	}
	body, err := d.readBody(hdr.length, responseEnd, maxDecimalHash)
	if err != nil {
		return Response{}, d.fail(err)
	}
	h, err := hasher.Decimal.Decode(bytes.TrimSpace(body))
	if err != nil {
		return Response{}, errors.Wrapf(ErrMalformedFrame, "response body %q is not a decimal hash", body)
	}
	return Response{Origin: hdr.origin, Hash: h}, nil
}

// fail switches the decoder into resync mode when err is a framing error.
func (d *Decoder) fail(err error) error {
	if errors.Is(err, ErrMalformedFrame) {
		d.resync = true
	}
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (d *Decoder) readStart(start string) error {
	for {
		line, err := d.readLine()
		if err != nil {
			if !errors.Is(err, ErrMalformedFrame) {
				return err
			}
			if d.resync {
				continue
			}
			d.resync = true
			return err
		}
		// while resyncing, a start line may trail the rest of a dropped body
		if line == start || (d.resync && strings.HasSuffix(line, start)) {
			d.resync = false
			return nil
		}
		if d.resync {
			continue
		}
		d.resync = true
		return errors.Wrapf(ErrMalformedFrame, "unexpected start line %q", line)
	}
}

type header struct {
	origin string
	length int // -1 when absent
}

// readHeaders consumes header lines through the blank separator. A response
// carries its origin as the first bare line.
func (d *Decoder) readHeaders(bareOrigin bool) (header, error) {
	hdr := header{length: -1}
	if bareOrigin {
		line, err := d.readLine()
		if err != nil {
			return hdr, err
		}
		if line == "" {
			return hdr, errors.Wrap(ErrMalformedFrame, "missing origin line")
		}
		hdr.origin = strings.TrimSpace(line)
	}
	for {
		line, err := d.readLine()
		if err != nil {
			return hdr, err
		}
		if line == "" {
			return hdr, nil
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return hdr, errors.Wrapf(ErrMalformedFrame, "bad header line %q", line)
		}
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(name, hostHeader) && !bareOrigin:
			hdr.origin = value
		case strings.EqualFold(name, lengthHeader):
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > MaxFramePayload {
				return hdr, errors.Wrapf(ErrMalformedFrame, "bad Content-Length %q", value)
			}
			hdr.length = n
		}
	}
}

// boundary reports where the body inside b ends, or -1 when b holds no boundary
// yet. Bytes before from were already scanned.
type boundary func(b []byte, from int) int

var requestMarker = []byte(requestLine + crlf)

// requestEnd finds the next request start line.
func requestEnd(b []byte, from int) int {
	from -= len(requestMarker) - 1
	if from < 0 {
		from = 0
	}
	if i := bytes.Index(b[from:], requestMarker); i >= 0 {
		return from + i
	}
	return -1
}

// responseEnd stops at the first byte that is not a decimal digit.
func responseEnd(b []byte, from int) int {
	for i := from; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return i
		}
	}
	if len(b) >= maxDecimalHash {
		return maxDecimalHash
	}
	return -1
}

func (d *Decoder) readBody(length int, end boundary, limit int) ([]byte, error) {
	if length >= 0 {
		body := make([]byte, length)
		if _, err := io.ReadFull(d.r, body); err != nil {
			return nil, err
		}
		return body, nil
	}

	scanned := 0
	for {
		if n := d.r.Buffered(); n > scanned {
			peek, _ := d.r.Peek(n)
			if i := end(peek, scanned); i >= 0 && i <= limit {
				return d.take(i), nil
			}
			scanned = n
		}
		if scanned > limit {
			return nil, errors.Wrapf(ErrMalformedFrame, "body exceeds %d bytes", limit)
		}
		more, err := d.waitMore(scanned)
		if err != nil {
			return nil, err
		}
		if !more {
			return d.take(scanned), nil
		}
	}
}

// take consumes the first n buffered bytes as a body.
func (d *Decoder) take(n int) []byte {
	peek, _ := d.r.Peek(n)
	body := append([]byte{}, peek...)
	_, _ = d.r.Discard(n)
	return body
}

// waitMore blocks until more than n bytes are buffered. It reports false when the
// body ends here: at end of stream, or when the idle period passes first.
func (d *Decoder) waitMore(n int) (bool, error) {
	if d.dl != nil {
		if err := d.dl.SetReadDeadline(time.Now().Add(d.idle)); err != nil {
			return false, errors.WithStack(err)
		}
		defer d.restoreDeadline()
	}
	_, err := d.r.Peek(n + 1)
	switch {
	case err == nil:
		return true, nil
	case err == io.EOF:
		return false, nil
	case err == bufio.ErrBufferFull:
		return false, errors.Wrapf(ErrMalformedFrame, "body exceeds %d byte buffer", d.r.Size())
	case d.dl != nil && errors.Is(err, os.ErrDeadlineExceeded) && d.ctx.Err() == nil:
		return false, nil
	}
	return false, err
}

func (d *Decoder) restoreDeadline() {
	_ = d.dl.SetReadDeadline(time.Time{})
	if d.ctx.Err() != nil {
		_ = d.dl.SetReadDeadline(past)
	}
}

// readLine returns one CRLF-terminated line without the terminator.
func (d *Decoder) readLine() (string, error) {
	line, err := d.r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		for err == bufio.ErrBufferFull {
			_, err = d.r.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", errors.Wrap(ErrMalformedFrame, "line exceeds buffer")
	}
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", errors.Wrap(ErrMalformedFrame, "line not terminated by CRLF")
	}
	return string(line[:len(line)-2]), nil
}
