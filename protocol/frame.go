// File: protocol/frame.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Text framing between the forwarder and the backend hash service.
//
//	Request:  "GET / HTTP/1.1\r\nHost: <origin>\r\n\r\n<payload>"
//	Response: "HTTP/1.1 200 OK\r\n<origin>\r\n\r\n<hash-decimal>"
//
// The origin names the UDP peer the request came from and is the only pairing key
// between requests and responses. Frames carry no length: a body ends at the next
// start line, at the end of the stream, or when the stream goes quiet (see Decoder).
// A request body that itself contains the request start line cannot be framed.

package protocol

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gamedolphin/gafferchallenge/hasher"
)

// MaxFramePayload caps a frame body; longer bodies are malformed.
const MaxFramePayload = 64 << 10

// maxDecimalHash is the length of the largest uint64 in base 10.
const maxDecimalHash = 20

const (
	requestLine  = "GET / HTTP/1.1"
	responseLine = "HTTP/1.1 200 OK"
	hostHeader   = "Host"
	lengthHeader = "Content-Length"
	crlf         = "\r\n"
)

// ErrMalformedFrame marks a frame that cannot be decoded. The frame is dropped and
// the stream stays usable.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

// Request asks the backend to hash Body on behalf of Origin.
type Request struct {
	Origin string
	Body   []byte
}

// Response carries the hash computed for Origin.
type Response struct {
	Origin string
	Hash   uint64
}

func checkOrigin(origin string) error {
	if origin == "" {
		return errors.Wrap(ErrMalformedFrame, "empty origin")
	}
	if strings.ContainsAny(origin, "\r\n") {
		return errors.Wrapf(ErrMalformedFrame, "origin %q contains a line break", origin)
	}
	return nil
}

// AppendRequest encodes req onto dst.
func AppendRequest(dst []byte, req Request) ([]byte, error) {
	if err := checkOrigin(req.Origin); err != nil {
		return dst, err
	}
	if len(req.Body) > MaxFramePayload {
		return dst, errors.Wrapf(ErrMalformedFrame, "body of %d bytes exceeds %d", len(req.Body), MaxFramePayload)
	}
	dst = append(dst, requestLine+crlf+hostHeader+": "...)
	dst = append(dst, req.Origin...)
	dst = append(dst, crlf+crlf...)
	return append(dst, req.Body...), nil
}

// AppendResponse encodes resp onto dst with the hash in decimal.
func AppendResponse(dst []byte, resp Response) ([]byte, error) {
	if err := checkOrigin(resp.Origin); err != nil {
		return dst, err
	}
	dst = append(dst, responseLine+crlf...)
	dst = append(dst, resp.Origin...)
	dst = append(dst, crlf+crlf...)
	return hasher.Decimal.Append(dst, resp.Hash), nil
}
