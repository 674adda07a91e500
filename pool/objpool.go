// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool wraps sync.Pool for generic usage.
type SyncPool[T any] struct {
	pool *sync.Pool
}

// NewSyncPool creates a new SyncPool with a creator function.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	return &SyncPool[T]{
		pool: &sync.Pool{New: func() any { return creator() }},
	}
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	sp.pool.Put(obj)
}

// Buffer is a pooled receive buffer. The pointer indirection keeps Put allocation free.
type Buffer struct {
	B []byte
}

// BufferPool hands out fixed-size receive buffers, e.g. one per in-flight datagram.
type BufferPool struct {
	size int
	sp   *SyncPool[*Buffer]
}

var _ ObjectPool[*Buffer] = (*BufferPool)(nil)

// NewBufferPool creates a pool of size-byte buffers.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		sp:   NewSyncPool(func() *Buffer { return &Buffer{B: make([]byte, size)} }),
	}
}

// Size is the capacity of every buffer from this pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns a full-length buffer.
func (bp *BufferPool) Get() *Buffer {
	b := bp.sp.Get()
	b.B = b.B[:bp.size]
	return b
}

// Put recycles b. Buffers of a foreign size are dropped.
func (bp *BufferPool) Put(b *Buffer) {
	if b == nil || cap(b.B) != bp.size {
		return
	}
	bp.sp.Put(b)
}
