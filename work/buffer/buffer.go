package buffer

import (
	"github.com/valyala/bytebufferpool"
)

// Pool hands out reusable byte buffers for upstream reads. It wraps
// valyala/bytebufferpool so relay sessions do not allocate a fresh chunk
// buffer per read; a session borrows a buffer, fills it from the upstream
// body, hands it across the pipeline channel and the consumer returns it.
type Pool struct {
	pool      *bytebufferpool.Pool
	chunkSize int
}

// NewPool creates a Pool whose buffers have at least chunkSize capacity.
func NewPool(chunkSize int) *Pool {
	return &Pool{
		pool:      &bytebufferpool.Pool{},
		chunkSize: chunkSize,
	}
}

// ChunkSize returns the read size buffers from this pool are grown to.
func (p *Pool) ChunkSize() int {
	return p.chunkSize
}

// Get returns a buffer with length set to the pool's chunk size, ready to
// be passed to an io.Reader. The contents are undefined; callers re-slice
// to the number of bytes actually read.
func (p *Pool) Get() *bytebufferpool.ByteBuffer {
	buf := p.pool.Get()
	if cap(buf.B) < p.chunkSize {
		buf.B = make([]byte, p.chunkSize)
	} else {
		buf.B = buf.B[:p.chunkSize]
	}
	return buf
}

// Put returns a buffer to the pool once the consumer is done with it.
func (p *Pool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf != nil {
		p.pool.Put(buf)
	}
}
