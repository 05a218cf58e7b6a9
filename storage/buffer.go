package storage

import "go.uber.org/atomic"

// PageBuffer is an in-memory handle to one PAGE_SIZE block: a slice into a
// segment's backing array plus the fields that track its lifecycle state.
// The share counter and position live behind typed atomics rather than a
// page-wide mutex so hot, concurrently-touched fields stay lock-free;
// BufferWritable reads back as a plain negative int32.
type PageBuffer struct {
	bytes        []byte
	segmentIndex int
	offset       int

	share    atomic.Int32
	position atomic.Uint64
	origin   Origin
}

// newPageBuffer wraps a PAGE_SIZE slice of a segment's backing array as a
// free buffer: share counter 0, position unset.
func newPageBuffer(bytes []byte, segmentIndex, offset int) *PageBuffer {
	pb := &PageBuffer{
		bytes:        bytes,
		segmentIndex: segmentIndex,
		offset:       offset,
	}
	pb.position.Store(MaxPosition)
	return pb
}

// Bytes returns the buffer's backing slice. Callers holding a writable
// buffer may mutate it; callers holding a readable buffer must not.
func (pb *PageBuffer) Bytes() []byte {
	return pb.bytes
}

// Position returns the buffer's assigned position (see Origin for the other
// half of its key). It is MaxPosition while none is assigned: after NewPage,
// and again once the buffer is back in the free pool.
func (pb *PageBuffer) Position() uint64 {
	return pb.position.Load()
}

// Origin returns the buffer's file origin.
func (pb *PageBuffer) Origin() Origin {
	return pb.origin
}

// ShareCount returns the raw share counter: 0 (free), BufferWritable
// (writable), or >= 1 (readable, shared by that many readers).
func (pb *PageBuffer) ShareCount() int32 {
	return pb.share.Load()
}

// IsWritable reports whether the buffer is in the writable state.
func (pb *PageBuffer) IsWritable() bool {
	return pb.share.Load() == BufferWritable
}

// IsFree reports whether the buffer is in the free state.
func (pb *PageBuffer) IsFree() bool {
	return pb.share.Load() == 0
}

// key returns the buffer's readable-index key. Callers must only use this
// once position and origin have been assigned.
func (pb *PageBuffer) key() pageKey {
	return pageKey{origin: pb.origin, position: pb.position.Load()}
}

// reset clears a buffer back to the free state: zeroed bytes, unset
// position, share counter 0. Called by the cache whenever a buffer returns
// to the free pool.
func (pb *PageBuffer) reset() {
	for i := range pb.bytes {
		pb.bytes[i] = 0
	}
	pb.position.Store(MaxPosition)
	pb.origin = Data
	pb.share.Store(0)
}

// markWritable transitions a free buffer into the writable state with its
// position still unset.
func (pb *PageBuffer) markWritable() {
	pb.position.Store(MaxPosition)
	pb.share.Store(BufferWritable)
}

// assign sets the buffer's key after the caller (cache) has decided where
// it belongs, used on both the readable-load and MoveToReadable paths.
func (pb *PageBuffer) assign(origin Origin, position uint64) {
	pb.origin = origin
	pb.position.Store(position)
}

// retain increments the share counter, used when a second reader observes
// an already-readable buffer for the same key.
func (pb *PageBuffer) retain() int32 {
	return pb.share.Inc()
}

// release decrements the share counter, used when a reader is done with a
// readable buffer. Returns the counter's new value; the cache returns the
// buffer to free once this reaches 0.
func (pb *PageBuffer) release() int32 {
	return pb.share.Dec()
}
