// Package storage implements the page-addressable storage and durability core:
// positional file I/O, the share-counted page cache, the asynchronous log
// writer, and the disk service that ties them together. Everything above this
// package (document model, B-tree, query engine, transaction manager,
// checkpoint policy) is a consumer of the types defined here.
package storage

// PageSize is the fixed size, in bytes, of every page in either file.
const PageSize = 8192

// Origin identifies which file a page belongs to.
type Origin int

const (
	// Data pages live in the committed database image.
	Data Origin = iota
	// Log pages live in the write-ahead journal.
	Log
)

func (o Origin) String() string {
	switch o {
	case Data:
		return "data"
	case Log:
		return "log"
	default:
		return "unknown"
	}
}

// BufferWritable is the share-counter sentinel marking a buffer as uniquely
// owned by a writer. It is negative so it can never collide with a reader
// count, which is always >= 0.
const BufferWritable int32 = -1

// MaxPosition is the "not yet placed" sentinel used for freshly allocated
// writable pages before they are assigned a position.
const MaxPosition uint64 = ^uint64(0)

// InvalidDataFileStateOffset is the byte offset, within page 0 of the data
// file, of the single-byte invalid-state flag. MarkAsInvalidState sets it;
// the engine's recovery path reads it on open.
const InvalidDataFileStateOffset = 16

// CollationOffset is the byte offset, within page 0 of the data file, of
// the collation pragma: a one-byte length followed by up to
// CollationMaxLen bytes of collation name, written once at creation and
// read back on every open. The header page is the pragma's source of
// truth; the sidecar metadata file carries a copy for operators to read
// without touching the page format, nothing more.
const CollationOffset = 17

// CollationMaxLen bounds the collation name stored at CollationOffset.
const CollationMaxLen = 64

// LogFileSuffix is appended to the data file's path to derive the log
// file's path.
const LogFileSuffix = "-log"

// pageKey identifies a readable buffer uniquely within the cache.
type pageKey struct {
	origin   Origin
	position uint64
}
