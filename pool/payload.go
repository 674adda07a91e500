// File: pool/payload.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PayloadPool is a fixed rotation of immutable datagram bodies. The pool owns the
// bytes; senders borrow one slice per tick through a Cursor and must not modify it.

package pool

import (
	"github.com/gogf/gf/v2/util/grand"
	"github.com/pkg/errors"
)

// DefaultPayloadSize is the datagram body size of the reference traffic generator.
const DefaultPayloadSize = 100

// ErrEmptyPool is returned when a pool would contain no payloads.
var ErrEmptyPool = errors.New("pool: payload pool is empty")

// PayloadPool holds the payload rotation shared by all senders of a run.
type PayloadPool struct {
	payloads [][]byte
}

// NewPayloadPool copies the given payloads into a new pool.
func NewPayloadPool(payloads ...[]byte) (*PayloadPool, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyPool
	}
	p := &PayloadPool{payloads: make([][]byte, len(payloads))}
	for i, b := range payloads {
		p.payloads[i] = append([]byte(nil), b...)
	}
	return p, nil
}

// Len returns the number of payloads in the rotation.
func (p *PayloadPool) Len() int {
	return len(p.payloads)
}

// At returns payload i modulo the pool size.
func (p *PayloadPool) At(i int) []byte {
	return p.payloads[i%len(p.payloads)]
}

// Cursor starts a new rotation at index 0.
func (p *PayloadPool) Cursor() *Cursor {
	return &Cursor{pool: p}
}

// Cursor walks a pool in order, wrapping at the end. Not safe for concurrent use;
// each sender owns its own cursor.
type Cursor struct {
	pool  *PayloadPool
	index int
}

// Index is the position the next call to Next returns.
func (c *Cursor) Index() int {
	return c.index
}

// Next returns the current payload and advances.
func (c *Cursor) Next() []byte {
	b := c.pool.payloads[c.index]
	c.index++
	if c.index >= len(c.pool.payloads) {
		c.index = 0
	}
	return b
}

// Alphanumeric builds count random printable payloads of size bytes each.
func Alphanumeric(count, size int) (*PayloadPool, error) {
	if count <= 0 || size < 0 {
		return nil, ErrEmptyPool
	}
	payloads := make([][]byte, count)
	for i := range payloads {
		payloads[i] = make([]byte, 0, size)
		if size > 0 {
			payloads[i] = append(payloads[i], grand.S(size)...)
		}
	}
	return &PayloadPool{payloads: payloads}, nil
}

// Default returns the fixed four-payload rotation of the reference client.
func Default() *PayloadPool {
	p, _ := NewPayloadPool(referencePayloads[:]...)
	return p
}

var referencePayloads = [4][]byte{
	{
		43, 20, 193, 151, 203, 27, 136, 87, 216, 82, 131, 147, 1, 55, 252, 8, 148, 181, 244, 139, 13,
		221, 95, 240, 225, 196, 121, 104, 250, 37, 96, 199, 202, 189, 37, 21, 38, 191, 143, 70, 5, 216,
		158, 166, 157, 90, 174, 206, 83, 233, 103, 2, 196, 72, 222, 56, 103, 189, 62, 182, 103, 108,
		249, 243, 6, 149, 13, 197, 50, 69, 99, 55, 38, 165, 163, 23, 13, 200, 12, 98, 26, 128, 194, 47,
		144, 149, 15, 212, 13, 64, 147, 2, 211, 20, 151, 117, 35, 99, 55, 190,
	},
	{
		27, 94, 176, 86, 163, 253, 229, 85, 137, 72, 97, 184, 211, 242, 77, 174, 120, 22, 203, 44, 85,
		92, 116, 82, 41, 6, 103, 67, 176, 239, 54, 251, 228, 123, 150, 32, 178, 8, 41, 229, 183, 91,
		201, 100, 233, 229, 200, 134, 53, 176, 45, 233, 230, 132, 130, 122, 1, 150, 35, 74, 12, 228,
		216, 133, 184, 47, 193, 241, 103, 189, 189, 243, 171, 221, 241, 106, 220, 147, 38, 0, 136, 192,
		146, 7, 156, 214, 2, 0, 66, 23, 176, 150, 191, 216, 23, 166, 243, 58, 206, 166,
	},
	{
		30, 242, 84, 106, 32, 165, 69, 14, 65, 140, 213, 143, 130, 25, 117, 106, 192, 142, 18, 206,
		125, 104, 184, 51, 217, 22, 197, 160, 19, 77, 188, 134, 121, 53, 192, 203, 192, 246, 166, 166,
		171, 151, 180, 101, 17, 142, 134, 98, 1, 157, 111, 231, 122, 169, 255, 151, 236, 68, 31, 195,
		30, 202, 232, 12, 2, 82, 107, 203, 172, 38, 94, 70, 16, 86, 240, 86, 44, 66, 98, 152, 23, 11,
		147, 162, 101, 241, 221, 221, 85, 205, 96, 52, 106, 87, 219, 36, 185, 158, 24, 227,
	},
	{
		79, 160, 134, 47, 159, 103, 34, 162, 74, 33, 148, 212, 252, 24, 169, 36, 229, 65, 84, 163, 156,
		104, 178, 185, 9, 150, 147, 139, 31, 137, 19, 169, 3, 20, 175, 97, 173, 97, 55, 215, 11, 2,
		120, 114, 41, 70, 89, 132, 17, 134, 199, 135, 110, 80, 105, 208, 203, 230, 28, 143, 36, 229,
		200, 25, 226, 79, 117, 38, 155, 202, 160, 208, 3, 10, 255, 96, 20, 230, 194, 106, 173, 6, 235,
		39, 109, 21, 180, 55, 150, 20, 130, 152, 55, 63, 247, 115, 91, 67, 74, 165,
	},
}
