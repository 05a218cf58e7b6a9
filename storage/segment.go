package storage

// memorySegmentSizes is the ordered list of segment sizes (in pages) the
// cache allocates from as it grows. The list repeats its last entry once
// exhausted, so growth settles into fixed 1000-page increments rather than
// running off the end of a literal slice.
var memorySegmentSizes = []int{1000, 1000, 1000, 1000, 1000}

// segment is one contiguous batch of PageBuffers backed by a single
// []byte allocation, handed out PageSize at a time. Segments are never
// shrunk or freed for the lifetime of a cache.
type segment struct {
	backing []byte
	buffers []*PageBuffer
}

// newSegment allocates count contiguous PAGE_SIZE buffers as one backing
// array, avoiding count separate heap allocations under load.
func newSegment(index, count int) *segment {
	backing := make([]byte, count*PageSize)
	buffers := make([]*PageBuffer, count)
	for i := 0; i < count; i++ {
		start := i * PageSize
		buffers[i] = newPageBuffer(backing[start:start+PageSize], index, i)
	}
	return &segment{backing: backing, buffers: buffers}
}
