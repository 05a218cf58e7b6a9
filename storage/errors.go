package storage

import "errors"

// Sentinel errors for programmer-error and collaborator-visible failure
// cases. Callers compare with errors.Is; internal I/O failures are wrapped
// with github.com/pkg/errors at each boundary crossing instead of being
// assigned a sentinel, since their detail (which syscall, which path) is
// the useful part.
var (
	// ErrReadOnly is returned by every mutating operation when the disk
	// service was opened with Options.ReadOnly set.
	ErrReadOnly = errors.New("storage: database opened read-only")

	// ErrPageNotWritable is returned when an operation expecting a
	// writable buffer (share counter == BufferWritable) receives one that
	// is free or readable instead.
	ErrPageNotWritable = errors.New("storage: page buffer is not writable")

	// ErrPagePositionUnset is returned when MoveToReadable,
	// TryMoveToReadable or Write is handed a buffer whose position is still
	// MaxPosition.
	ErrPagePositionUnset = errors.New("storage: page position has not been assigned")

	// ErrWrongOrigin is returned when Write is called with an origin other
	// than Data. WriteAsync never returns it: it sets each page's origin to
	// Log itself.
	ErrWrongOrigin = errors.New("storage: page origin does not match operation")

	// ErrPageShared is returned when Write is handed a page that is still
	// shared with the cache (share counter != 0); direct writes require
	// exclusive, cache-detached ownership.
	ErrPageShared = errors.New("storage: page is still shared with the cache")

	// ErrQueueNotEmpty is returned by SetLength(Log) while the log writer
	// queue still has pages pending.
	ErrQueueNotEmpty = errors.New("storage: log writer queue is not empty")

	// ErrShortRead is returned by ReadFull when the underlying file ends
	// mid-page; a well-formed paged file's length is always a multiple of
	// PageSize.
	ErrShortRead = errors.New("storage: short read, file length is not a multiple of page size")

	// ErrUnalignedPosition is returned when a position is not a multiple
	// of PageSize.
	ErrUnalignedPosition = errors.New("storage: page position is not page-aligned")

	// ErrQueueFailed is the poison value left on the log writer queue
	// after its consumer terminates on an I/O failure; it is rethrown
	// synchronously from the next EnqueuePage or Wait call. The returned
	// error wraps ErrQueueFailed and carries the original failure's text in
	// its message; the original error value itself is not wrapped, so
	// errors.Is matches ErrQueueFailed but not the underlying I/O error.
	ErrQueueFailed = errors.New("storage: log writer queue failed and is no longer accepting pages")
)
