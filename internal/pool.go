package internal

import (
	"bytes"
	"sync"
)

// Buffer size classes. A request larger than the biggest class, or a buffer
// that grew past MaxPooledBufferSize, bypasses the pools.
const (
	SmallBufferSize     = 256
	MediumBufferSize    = 2 * 1024
	LargeBufferSize     = 8 * 1024
	MaxPooledBufferSize = 64 * 1024
)

var bufferPools = [...]struct {
	size int
	pool sync.Pool
}{
	{size: SmallBufferSize},
	{size: MediumBufferSize},
	{size: LargeBufferSize},
}

// GetBuffer returns an empty buffer with room for at least hint bytes
func GetBuffer(hint int) *bytes.Buffer {
	for i := range bufferPools {
		class := &bufferPools[i]
		if hint > class.size {
			continue
		}
		if buf, ok := class.pool.Get().(*bytes.Buffer); ok {
			buf.Reset()
			return buf
		}
		buf := &bytes.Buffer{}
		buf.Grow(class.size)
		return buf
	}
	buf := &bytes.Buffer{}
	buf.Grow(hint)
	return buf
}

// PutBuffer hands a buffer back to the class matching its capacity.
// Oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	c := buf.Cap()
	if c < SmallBufferSize || c > MaxPooledBufferSize {
		return
	}
	buf.Reset()
	for i := len(bufferPools) - 1; i >= 0; i-- {
		if c >= bufferPools[i].size {
			bufferPools[i].pool.Put(buf)
			return
		}
	}
}

// StackPool is a bounded free-list of reusable slices.
//
// It never blocks: when another goroutine holds the lock, Get allocates and
// Put drops. A miss costs an allocation and nothing else.
type StackPool[T any] struct {
	mu       sync.Mutex
	free     [][]T
	limit    int
	capHint  int
	maxCap   int
	reused   int64
	fresh    int64
	rejected int64
}

// NewStackPool keeps at most limit slices, each created with capHint
// capacity and discarded once it grows past maxCap.
func NewStackPool[T any](limit, capHint, maxCap int) *StackPool[T] {
	if limit <= 0 {
		limit = 8
	}
	if capHint <= 0 {
		capHint = 16
	}
	if maxCap < capHint {
		maxCap = capHint * 16
	}
	return &StackPool[T]{
		free:    make([][]T, 0, limit),
		limit:   limit,
		capHint: capHint,
		maxCap:  maxCap,
	}
}

// Get returns an empty slice, reusing a pooled one when the lock is free
func (p *StackPool[T]) Get() []T {
	if p.mu.TryLock() {
		if n := len(p.free); n > 0 {
			s := p.free[n-1]
			p.free[n-1] = nil
			p.free = p.free[:n-1]
			p.reused++
			p.mu.Unlock()
			return s
		}
		p.fresh++
		p.mu.Unlock()
	}
	return make([]T, 0, p.capHint)
}

// Put returns a slice to the pool; it is cleared first
func (p *StackPool[T]) Put(s []T) {
	if s == nil || cap(s) > p.maxCap {
		return
	}
	clear(s[:cap(s)])
	s = s[:0]
	if !p.mu.TryLock() {
		return
	}
	if len(p.free) < p.limit {
		p.free = append(p.free, s)
	} else {
		p.rejected++
	}
	p.mu.Unlock()
}

// Len returns the number of idle slices
func (p *StackPool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
