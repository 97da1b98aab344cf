package realign

import (
	"bytes"
)

const (
	// PacketSize is the fixed MPEG-TS packet length.
	PacketSize = 188
	// SyncByte marks the start of every valid TS packet.
	SyncByte = 0x47
)

// Realigner turns an arbitrary byte stream into a sequence of fixed-size,
// sync-byte-aligned TS packets. It accumulates partial data across pushes,
// drops leading garbage until a sync byte is found, and never fails: corrupt
// input only costs the discarded bytes, counted for observability.
//
// A Realigner belongs to a single relay session and is not safe for
// concurrent use.
type Realigner struct {
	buf       []byte
	discarded int64
}

// New returns an empty Realigner.
func New() *Realigner {
	return &Realigner{}
}

// Push appends a chunk to the accumulation buffer and returns every complete
// 188-byte packet that can be cut from it. Bytes before the first sync byte
// are discarded; if the buffer holds no sync byte at all it is dropped
// entirely, since no packet can start inside it.
//
// Returned packets are owned by the caller and stay valid across later
// pushes. The input chunk may be reused as soon as Push returns.
func (r *Realigner) Push(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	var packets [][]byte
	for len(r.buf) > 0 {
		if r.buf[0] != SyncByte {
			idx := bytes.IndexByte(r.buf, SyncByte)
			if idx == -1 {
				r.discarded += int64(len(r.buf))
				r.buf = nil
				break
			}
			r.discarded += int64(idx)
			r.buf = r.buf[idx:]
		}
		if len(r.buf) < PacketSize {
			break
		}
		packets = append(packets, r.buf[:PacketSize:PacketSize])
		r.buf = r.buf[PacketSize:]
	}

	// move the leftover into a fresh slice so the emitted packets, which
	// alias the old backing array, cannot be clobbered by the next push
	if len(r.buf) > 0 {
		rest := make([]byte, len(r.buf), PacketSize)
		copy(rest, r.buf)
		r.buf = rest
	} else {
		r.buf = nil
	}

	return packets
}

// Discarded returns the total number of bytes dropped during realignment.
func (r *Realigner) Discarded() int64 {
	return r.discarded
}

// Pending returns how many buffered bytes are waiting for more data before
// they can form a complete packet.
func (r *Realigner) Pending() int {
	return len(r.buf)
}
