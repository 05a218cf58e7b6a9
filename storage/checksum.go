package storage

import "github.com/OneOfOne/xxhash"

// Checksum hashes a page's payload for diagnostic self-consistency checks:
// the cache records one per readable key (on load and on promotion) and,
// when it loads a key that still has a recorded sum, logs a warning if the
// two differ. It is not part of the on-disk format; pages are
// treated as opaque everywhere else in this package. This exists purely for
// logging, to notice corruption earlier than a higher layer would.
func Checksum(origin Origin, position uint64, data []byte) uint64 {
	h := xxhash.New64()
	h.Write([]byte(origin.String()))
	var posBuf [8]byte
	for i := 0; i < 8; i++ {
		posBuf[i] = byte(position >> (8 * i))
	}
	h.Write(posBuf[:])
	h.Write(data)
	return h.Sum64()
}
