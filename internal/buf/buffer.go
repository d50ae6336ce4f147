// Package buf provides pooled frame buffers and the process-wide memory
// ceiling described in spec §5 "Memory discipline".
package buf

import (
	"sync"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

// Size is the capacity of a pooled Buffer (64 KiB): room for one maximal
// 65535-byte Noise message, not for PSF envelope overhead on top of it.
const Size = 65536

var pool = sync.Pool{
	New: func() interface{} {
		return make([]byte, Size)
	},
}

// Buffer is a recyclable byte buffer. Release returns it to the pool.
type Buffer struct {
	v   []byte
	len int
}

// New allocates a zero-length, Size-capacity Buffer from the pool.
func New() *Buffer {
	v := pool.Get().([]byte)
	return &Buffer{v: v[:0]}
}

// Bytes returns the valid (written) portion of the buffer.
func (b *Buffer) Bytes() []byte { return b.v[:b.len] }

// Extend grows the buffer by n bytes and returns the newly exposed slice.
func (b *Buffer) Extend(n int) []byte {
	start := b.len
	b.len += n
	if b.len > cap(b.v) {
		panic("buf: extend beyond capacity")
	}
	return b.v[start:b.len]
}

// Write appends p to the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	copy(b.Extend(len(p)), p)
	return len(p), nil
}

// Release returns the buffer to the pool. The Buffer must not be used again.
func (b *Buffer) Release() {
	if b == nil || b.v == nil {
		return
	}
	b.len = 0
	pool.Put(b.v[:Size])
	b.v = nil
}

// Ceiling is a counting allocator enforcing the process-wide memory ceiling:
// new sessions are refused once outstanding buffers would exceed the limit.
// Ground: spec §5 "A process ceiling (default 1 GiB) is enforced by
// refusing new sessions", modeled on common/buf's pool plus
// common/bytespool's size accounting.
type Ceiling struct {
	mu        sync.Mutex
	limit     int64
	allocated int64
}

// NewCeiling returns a Ceiling that permits up to limitBytes of concurrently
// outstanding buffer capacity.
func NewCeiling(limitBytes int64) *Ceiling {
	return &Ceiling{limit: limitBytes}
}

// Reserve accounts for n bytes against the ceiling, failing with an
// Unclassified, warning-severity error if the ceiling would be exceeded
// (the core must refuse the session, not silently proceed).
func (c *Ceiling) Reserve(n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocated+n > c.limit {
		return coreerr.New("memory ceiling exceeded: ", c.allocated+n, " > ", c.limit).WithKind(coreerr.Unclassified).AtWarning()
	}
	c.allocated += n
	return nil
}

// Release gives back n bytes previously reserved.
func (c *Ceiling) Release(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocated -= n
	if c.allocated < 0 {
		c.allocated = 0
	}
}

// InUse returns the currently reserved byte count, for diagnostics.
func (c *Ceiling) InUse() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}
