package storage

import (
	"sync"

	"github.com/briskdb/briskdb/logger"
)

// Loader fills buf (always exactly PageSize bytes) with the page content at
// position, reading from whichever file origin implies. Supplied by the
// disk service; the cache never talks to a file directly.
type Loader func(position uint64, buf []byte) error

// PageCache manages the free/writable/readable buffer lifecycle: it hands
// out PageBuffers on demand, tracks which (origin, position) keys are
// currently readable, and recycles readable buffers with a share count of
// zero before growing by another segment. There is no hard capacity cap
// and no LRU eviction, prefetching or auto-tuning; recycling idle readable
// buffers is the only pressure relief the cache applies.
type PageCache struct {
	mu sync.Mutex

	segmentSizes []int
	segments     []*segment
	free         []*PageBuffer
	readable     map[pageKey]*PageBuffer
	checksums    map[pageKey]uint64

	stats Stats
}

// NewPageCache returns an empty cache with no segments allocated yet; the
// first NewPage/GetReadablePage/GetWritablePage call triggers the first
// segment allocation. sizes is the per-segment page count list; a nil or
// empty slice falls back to the package default.
func NewPageCache(sizes []int) *PageCache {
	if len(sizes) == 0 {
		sizes = memorySegmentSizes
	}
	return &PageCache{
		segmentSizes: sizes,
		readable:     make(map[pageKey]*PageBuffer),
		checksums:    make(map[pageKey]uint64),
	}
}

// Stats exposes diagnostic counters. They participate in no invariant;
// they exist for operational visibility only.
type Stats struct {
	Hits, Misses  int64
	Reads, Writes int64
	DirtyDiscards int64
	Segments      int64
}

// HitRatio returns the fraction of GetReadablePage calls that found an
// already-resident buffer, or 0 if there have been no calls yet.
func (c *PageCache) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total)
}

// Snapshot returns a copy of the current counters.
func (c *PageCache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// NewPage returns a fresh writable buffer: share counter BufferWritable,
// position MaxPosition, origin unset, bytes zeroed. Source order: free
// pool first, then a recyclable readable buffer (share count 0), then a
// freshly allocated segment.
func (c *PageCache) NewPage() *PageBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	pb := c.takeLocked()
	pb.markWritable()
	return pb
}

// GetReadablePage returns the readable buffer for (origin, position),
// incrementing its share counter if one already exists, or loading one via
// loader and inserting it into the readable index otherwise.
func (c *PageCache) GetReadablePage(position uint64, origin Origin, loader Loader) (*PageBuffer, error) {
	key := pageKey{origin: origin, position: position}

	c.mu.Lock()
	if existing, ok := c.readable[key]; ok {
		existing.retain()
		c.stats.Hits++
		c.mu.Unlock()
		return existing, nil
	}
	c.stats.Misses++
	pb := c.takeLocked()
	c.mu.Unlock()

	if err := loader(position, pb.bytes); err != nil {
		c.mu.Lock()
		c.returnToFreeLocked(pb)
		c.mu.Unlock()
		return nil, err
	}
	c.stats.Reads++
	c.recordChecksum(key, origin, position, pb.bytes)

	c.mu.Lock()
	pb.assign(origin, position)
	pb.share.Store(1)
	// Another goroutine may have loaded and installed the same key while
	// this one was blocked on I/O; the winner's buffer becomes canonical,
	// ours returns to free rather than orphaning a duplicate readable copy.
	if existing, ok := c.readable[key]; ok {
		existing.retain()
		c.returnToFreeLocked(pb)
		c.mu.Unlock()
		return existing, nil
	}
	c.readable[key] = pb
	c.mu.Unlock()
	return pb, nil
}

// recordChecksum hashes data and logs a warning if it disagrees with the
// checksum last recorded for key, then records the new value. Diagnostic
// only: it participates in no invariant and never blocks or fails a read.
func (c *PageCache) recordChecksum(key pageKey, origin Origin, position uint64, data []byte) {
	sum := Checksum(origin, position, data)
	c.mu.Lock()
	defer c.mu.Unlock()
	if prior, ok := c.checksums[key]; ok && prior != sum {
		logger.Warnf("storage: checksum changed for %s page at %d since it was last loaded", origin, position)
	}
	c.checksums[key] = sum
}

// GetWritablePage always returns a fresh writable buffer loaded from disk
// for read-modify-write. The readable index is untouched; callers install
// the result via MoveToReadable once they are done mutating.
func (c *PageCache) GetWritablePage(position uint64, origin Origin, loader Loader) (*PageBuffer, error) {
	c.mu.Lock()
	pb := c.takeLocked()
	c.mu.Unlock()

	if err := loader(position, pb.bytes); err != nil {
		c.mu.Lock()
		c.returnToFreeLocked(pb)
		c.mu.Unlock()
		return nil, err
	}
	c.stats.Reads++

	pb.assign(origin, position)
	pb.share.Store(BufferWritable)
	return pb, nil
}

// MoveToReadable installs a writable buffer under its assigned key,
// replacing and releasing any existing readable buffer for that key.
func (c *PageCache) MoveToReadable(w *PageBuffer) (*PageBuffer, error) {
	if !w.IsWritable() {
		return nil, ErrPageNotWritable
	}
	if w.position.Load() == MaxPosition {
		return nil, ErrPagePositionUnset
	}

	key := w.key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.readable[key]; ok && old != w {
		if old.release() == 0 {
			c.returnToFreeLocked(old)
		}
	}
	w.share.Store(1)
	c.readable[key] = w
	c.checksums[key] = Checksum(w.origin, w.position.Load(), w.bytes)
	c.stats.Writes++
	return w, nil
}

// TryMoveToReadable behaves like MoveToReadable but refuses to install over
// an existing readable entry for the same key, returning false instead.
func (c *PageCache) TryMoveToReadable(w *PageBuffer) (bool, error) {
	if !w.IsWritable() {
		return false, ErrPageNotWritable
	}
	if w.position.Load() == MaxPosition {
		return false, ErrPagePositionUnset
	}

	key := w.key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.readable[key]; ok {
		return false, nil
	}
	w.share.Store(1)
	c.readable[key] = w
	c.checksums[key] = Checksum(w.origin, w.position.Load(), w.bytes)
	c.stats.Writes++
	return true, nil
}

// DiscardPage unconditionally returns buffer to free, removing any
// readable-index entry pointing at it.
func (c *PageCache) DiscardPage(buffer *PageBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if buffer.origin == Data || buffer.origin == Log {
		key := buffer.key()
		if existing, ok := c.readable[key]; ok && existing == buffer {
			delete(c.readable, key)
			delete(c.checksums, key)
		}
	}
	c.returnToFreeLocked(buffer)
}

// Release decrements a readable buffer's share counter, returning it to
// free once the count reaches 0. Callers use this to give back a buffer
// obtained from GetReadablePage.
func (c *PageCache) Release(buffer *PageBuffer) {
	if buffer.release() > 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := buffer.key()
	if existing, ok := c.readable[key]; ok && existing == buffer {
		delete(c.readable, key)
		delete(c.checksums, key)
	}
	c.returnToFreeLocked(buffer)
}

// takeLocked pops a buffer following NewPage's source order. Caller holds
// c.mu.
func (c *PageCache) takeLocked() *PageBuffer {
	if n := len(c.free); n > 0 {
		pb := c.free[n-1]
		c.free = c.free[:n-1]
		return pb
	}

	for key, pb := range c.readable {
		if pb.ShareCount() == 0 {
			delete(c.readable, key)
			delete(c.checksums, key)
			pb.reset()
			return pb
		}
	}

	return c.allocateSegmentLocked()
}

// returnToFreeLocked resets buffer and pushes it onto the free pool. Caller
// holds c.mu.
func (c *PageCache) returnToFreeLocked(pb *PageBuffer) {
	pb.reset()
	c.free = append(c.free, pb)
}

// allocateSegmentLocked grows the cache by one segment and returns its
// first buffer, already removed from the free pool. Caller holds c.mu.
func (c *PageCache) allocateSegmentLocked() *PageBuffer {
	index := len(c.segments)
	count := c.segmentSizeAt(index)
	seg := newSegment(index, count)
	c.segments = append(c.segments, seg)
	c.stats.Segments++

	logger.Infof("storage: allocated page cache segment %d (%d pages)", index, count)

	c.free = append(c.free, seg.buffers[1:]...)
	return seg.buffers[0]
}

// segmentSizeAt returns the page count for the segment at index, clamping
// to the last configured size once the list is exhausted.
func (c *PageCache) segmentSizeAt(index int) int {
	if index < len(c.segmentSizes) {
		return c.segmentSizes[index]
	}
	return c.segmentSizes[len(c.segmentSizes)-1]
}
