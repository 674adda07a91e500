// File: transport/batch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Batched datagram I/O. On Linux ReadBatch and WriteBatch map to recvmmsg and
// sendmmsg; elsewhere x/net falls back to one datagram per call.

package transport

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Message is one datagram slot of a batch. ipv4 and ipv6 share the type.
type Message = ipv4.Message

// BatchConn reads and writes several datagrams per system call.
type BatchConn struct {
	conn *net.UDPConn
	v4   *ipv4.PacketConn
	v6   *ipv6.PacketConn
}

// NewBatchConn wraps c, picking the address family from its local address.
func NewBatchConn(c *net.UDPConn) *BatchConn {
	bc := &BatchConn{conn: c}
	if la, ok := c.LocalAddr().(*net.UDPAddr); ok && la.IP.To4() != nil {
		bc.v4 = ipv4.NewPacketConn(c)
	} else {
		bc.v6 = ipv6.NewPacketConn(c)
	}
	return bc
}

// Conn returns the wrapped socket.
func (b *BatchConn) Conn() *net.UDPConn {
	return b.conn
}

// NewMessages allocates n slots with one size-byte buffer each.
func NewMessages(n, size int) []Message {
	ms := make([]Message, n)
	for i := range ms {
		ms[i].Buffers = [][]byte{make([]byte, size)}
	}
	return ms
}

// ReadBatch fills up to len(ms) messages and returns how many were read.
func (b *BatchConn) ReadBatch(ms []Message) (int, error) {
	var (
		n   int
		err error
	)
	if b.v4 != nil {
		n, err = b.v4.ReadBatch(ms, 0)
	} else {
		n, err = b.v6.ReadBatch(ms, 0)
	}
	return n, errors.WithStack(err)
}

// WriteBatch sends all of ms, looping over partial writes.
func (b *BatchConn) WriteBatch(ms []Message) (int, error) {
	sent := 0
	for sent < len(ms) {
		var (
			n   int
			err error
		)
		if b.v4 != nil {
			n, err = b.v4.WriteBatch(ms[sent:], 0)
		} else {
			n, err = b.v6.WriteBatch(ms[sent:], 0)
		}
		sent += n
		if err != nil {
			return sent, errors.WithStack(err)
		}
		if n == 0 {
			break
		}
	}
	return sent, nil
}
