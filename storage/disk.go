package storage

import (
	"sync"

	"github.com/briskdb/briskdb/logger"
	"github.com/briskdb/briskdb/util"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// DiskService owns both file handles (via factories), the shared page
// cache, and the lazily-created log writer queue, and orchestrates them
// behind a small set of page-level operations: allocate, read, write async,
// write sync, truncate, mark-invalid, and rollback discard.
type DiskService struct {
	opts Options

	dataFile *FileFactory
	logFile  *FileFactory
	cache    *PageCache

	collation Collation

	dataLength atomic.Int64
	logLength  atomic.Int64

	queueMu sync.Mutex
	queue   *logWriterQueue
}

// Open creates a DiskService for opts.Filename, initializing the data file
// with a single header page if it does not already exist. The data file's
// handle is opened here, to write or read the header page. The log file is
// not opened eagerly; its factory is bound but the handle stays lazy.
func Open(opts Options) (*DiskService, error) {
	ds := &DiskService{
		opts:     opts,
		dataFile: NewFileFactory(opts.Filename, opts.ReadOnly),
		logFile:  NewFileFactory(opts.logFilename(), opts.ReadOnly),
		cache:    NewPageCache(opts.segmentSizes()),
	}

	dataExists, err := ds.dataFile.Exists()
	if err != nil {
		return nil, err
	}

	if !dataExists {
		if opts.ReadOnly {
			return nil, ErrReadOnly
		}
		if err := ds.createHeaderPage(opts.Collation); err != nil {
			return nil, err
		}
		ds.collation = opts.Collation
		ds.dataLength.Store(0)
		if err := writeSidecarMeta(opts.Filename, opts.Collation, nowRFC3339()); err != nil {
			logger.Warnf("storage: failed to write sidecar metadata: %v", err)
		}
	} else {
		length, err := ds.dataFile.GetLength()
		if err != nil {
			return nil, err
		}
		ds.dataLength.Store(length - PageSize)

		collation, err := ds.readHeaderCollation()
		if err != nil {
			return nil, err
		}
		ds.collation = collation
	}

	logExists, err := ds.logFile.Exists()
	if err != nil {
		return nil, err
	}
	if logExists {
		length, err := ds.logFile.GetLength()
		if err != nil {
			return nil, err
		}
		ds.logLength.Store(length - PageSize)
	} else {
		ds.logLength.Store(-PageSize)
	}

	logger.Infof("storage: opened database fingerprint=%d file=%s", util.HashCode([]byte(opts.Filename)), opts.Filename)
	return ds, nil
}

func (ds *DiskService) createHeaderPage(collation Collation) error {
	name := string(collation)
	if len(name) > CollationMaxLen {
		return errors.Errorf("storage: collation name %q exceeds %d bytes", name, CollationMaxLen)
	}

	header := make([]byte, PageSize)
	header[InvalidDataFileStateOffset] = 0
	header[CollationOffset] = byte(len(name))
	copy(header[CollationOffset+1:], name)

	handle, err := ds.dataFile.Access()
	if err != nil {
		return err
	}
	if err := handle.WriteAt(header, 0); err != nil {
		return errors.Wrap(err, "write header page")
	}
	return handle.Flush()
}

// readHeaderCollation reads the collation pragma back out of page 0. The
// header page is the pragma's source of truth; callers never need to trust
// whatever collation was passed to Open for an already-existing database.
func (ds *DiskService) readHeaderCollation() (Collation, error) {
	handle, err := ds.dataFile.Access()
	if err != nil {
		return "", err
	}
	header := make([]byte, PageSize)
	if _, err := handle.ReadAt(header, 0); err != nil {
		return "", errors.Wrap(err, "read header page")
	}
	n := int(header[CollationOffset])
	if n > CollationMaxLen {
		return "", errors.Errorf("storage: corrupt collation length %d in header page", n)
	}
	return Collation(header[CollationOffset+1 : CollationOffset+1+n]), nil
}

// Collation returns the collation pragma recorded in the data file's
// header page at creation time.
func (ds *DiskService) Collation() Collation {
	return ds.collation
}

// Reader is a non-thread-safe, per-transaction handle bound to the shared
// disk service. Callers obtain one reader per executing transaction.
type Reader struct {
	ds *DiskService
}

// GetReader returns a new Reader bound to this disk service.
func (ds *DiskService) GetReader() *Reader {
	return &Reader{ds: ds}
}

// Dispose frees any per-reader state. It does not touch the disk service or
// cache; resource pooling is not part of this core.
func (r *Reader) Dispose() {}

// ReadPage fans out to the cache's writable or readable path depending on
// writable, loading through whichever file handle origin implies.
func (r *Reader) ReadPage(position uint64, writable bool, origin Origin) (*PageBuffer, error) {
	loader := r.ds.loaderFor(origin)
	if writable {
		return r.ds.cache.GetWritablePage(position, origin, loader)
	}
	return r.ds.cache.GetReadablePage(position, origin, loader)
}

// Release gives back a page obtained from ReadPage, decrementing its share
// counter. It is a thin wrapper over the underlying cache and exists so
// callers outside this package never need to reach into ds.cache directly.
func (ds *DiskService) Release(pb *PageBuffer) {
	ds.cache.Release(pb)
}

// CacheStats returns a snapshot of the page cache's hit/miss/read/write
// counters for operational visibility.
func (ds *DiskService) CacheStats() Stats {
	return ds.cache.Snapshot()
}

func (ds *DiskService) loaderFor(origin Origin) Loader {
	factory := ds.dataFile
	if origin == Log {
		factory = ds.logFile
	}
	return func(position uint64, buf []byte) error {
		handle, err := factory.Access()
		if err != nil {
			return err
		}
		n, err := handle.ReadAt(buf, int64(position))
		if err != nil {
			return err
		}
		if n < len(buf) {
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
		}
		return nil
	}
}

// NewPage delegates to the cache.
func (ds *DiskService) NewPage() (*PageBuffer, error) {
	if ds.opts.ReadOnly {
		return nil, ErrReadOnly
	}
	return ds.cache.NewPage(), nil
}

// WriteAsync assigns each page a log position, promotes it to readable, and
// enqueues it on the writer. Returns the number of pages accepted.
func (ds *DiskService) WriteAsync(pages []*PageBuffer) (int, error) {
	if ds.opts.ReadOnly {
		return 0, ErrReadOnly
	}

	queue, err := ds.ensureQueue()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, pb := range pages {
		if !pb.IsWritable() {
			return count, ErrPageNotWritable
		}

		position := uint64(ds.logLength.Add(PageSize))
		pb.assign(Log, position)

		if _, err := ds.cache.MoveToReadable(pb); err != nil {
			return count, err
		}

		if err := queue.EnqueuePage(pb); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Write synchronously writes pages directly to the data file at their
// assigned positions. Pages must not be shared with the cache (share
// counter 0); this is for pages produced by a checkpoint's log-apply pass,
// not for pages still circulating through the cache.
func (ds *DiskService) Write(pages []*PageBuffer, origin Origin) error {
	if ds.opts.ReadOnly {
		return ErrReadOnly
	}
	if origin != Data {
		return ErrWrongOrigin
	}

	handle, err := ds.dataFile.Access()
	if err != nil {
		return err
	}

	for _, pb := range pages {
		if pb.ShareCount() != 0 {
			return ErrPageShared
		}
		position := pb.Position()
		if position == MaxPosition {
			return ErrPagePositionUnset
		}
		if position%PageSize != 0 {
			return ErrUnalignedPosition
		}
		if err := handle.WriteAt(pb.Bytes(), int64(position)); err != nil {
			return err
		}
		ds.bumpDataLength(int64(position))
	}

	return handle.Flush()
}

func (ds *DiskService) bumpDataLength(position int64) {
	for {
		cur := ds.dataLength.Load()
		if position <= cur {
			return
		}
		if ds.dataLength.CAS(cur, position) {
			return
		}
	}
}

// SetLength truncates or extends origin's file. Truncating the log requires
// the writer queue to be empty.
func (ds *DiskService) SetLength(length int64, origin Origin) error {
	if ds.opts.ReadOnly {
		return ErrReadOnly
	}

	factory := ds.dataFile
	if origin == Log {
		factory = ds.logFile
		ds.queueMu.Lock()
		queue := ds.queue
		ds.queueMu.Unlock()
		if queue != nil && queue.Len() > 0 {
			return ErrQueueNotEmpty
		}
	}

	handle, err := factory.Access()
	if err != nil {
		return err
	}
	if err := handle.SetLength(length); err != nil {
		return err
	}

	if origin == Log {
		ds.logLength.Store(length - PageSize)
	} else {
		ds.dataLength.Store(length - PageSize)
	}
	return nil
}

// PageIterator is a lazy, single-use sequence of pages read directly from a
// file, bypassing the cache entirely.
type PageIterator struct {
	handle   RandomAccessFile
	origin   Origin
	position int64
	length   int64
	buf      []byte
}

// Next reads the next page, returning (nil, nil) once the file is
// exhausted. The returned buffer's bytes are only valid until the next call
// to Next, since the iterator may reuse its backing array.
func (it *PageIterator) Next() (*PageBuffer, error) {
	if it.position >= it.length {
		return nil, nil
	}
	n, err := it.handle.ReadAt(it.buf, it.position)
	if err != nil {
		return nil, err
	}
	if n < len(it.buf) {
		return nil, errors.Wrapf(ErrShortRead, "origin=%s position=%d read=%d", it.origin, it.position, n)
	}

	pb := newPageBuffer(append([]byte(nil), it.buf...), -1, -1)
	pb.assign(it.origin, uint64(it.position))
	it.position += PageSize
	return pb, nil
}

// ReadFull returns a lazy sequence over origin's entire file, one page at a
// time, without touching the cache.
func (ds *DiskService) ReadFull(origin Origin) (*PageIterator, error) {
	factory := ds.dataFile
	if origin == Log {
		factory = ds.logFile
	}

	handle, err := factory.Access()
	if err != nil {
		return nil, err
	}
	length, err := handle.Length()
	if err != nil {
		return nil, err
	}
	if length%PageSize != 0 {
		return nil, errors.Wrapf(ErrShortRead, "origin=%s length=%d", origin, length)
	}

	return &PageIterator{
		handle: handle,
		origin: origin,
		length: length,
		buf:    make([]byte, PageSize),
	}, nil
}

// GetVirtualLength returns the last reserved offset plus PageSize for
// origin, which may exceed the kernel-visible file length while the async
// writer lags behind.
func (ds *DiskService) GetVirtualLength(origin Origin) uint64 {
	if origin == Log {
		return uint64(ds.logLength.Load() + PageSize)
	}
	return uint64(ds.dataLength.Load() + PageSize)
}

// MaxItemsCount returns a conservative ceiling on total items, used by
// higher layers to detect pointer-loop corruption.
func (ds *DiskService) MaxItemsCount() uint64 {
	dataLen := ds.dataLength.Load() + PageSize
	logLen := ds.logLength.Load() + PageSize
	return uint64((dataLen+logLen)/PageSize+10) * 255
}

// markInvalidStateRetries bounds MarkAsInvalidState's retry budget on
// sharing violations.
const markInvalidStateRetries = 60

// MarkAsInvalidState sets the invalid-state byte in page 0 of the data
// file, used during abnormal close to request recovery on next open.
// Retries with backoff on sharing violations, since another reader may
// momentarily hold page 0's bytes.
func (ds *DiskService) MarkAsInvalidState() error {
	if ds.opts.ReadOnly {
		return ErrReadOnly
	}

	handle, err := ds.dataFile.Access()
	if err != nil {
		return err
	}

	startedAt := util.GetCurrentTimeMillis()
	var lastErr error
	for attempt := 0; attempt < markInvalidStateRetries; attempt++ {
		buf := []byte{1}
		if err := handle.WriteAt(buf, InvalidDataFileStateOffset); err != nil {
			lastErr = err
			backoff(attempt)
			continue
		}
		return handle.Flush()
	}
	elapsed := util.GetCurrentTimeMillis() - startedAt
	logger.Errorf("storage: mark invalid state exhausted %d retries over %dms: %v",
		markInvalidStateRetries, elapsed, lastErr)
	return errors.Wrap(lastErr, "mark invalid state: exhausted retries")
}

// DiscardDirtyPages sends dirty pages straight back to the free pool: their
// content was never installed as the canonical readable version, so there
// is nothing to preserve.
func (ds *DiskService) DiscardDirtyPages(pages []*PageBuffer) {
	for _, pb := range pages {
		ds.cache.DiscardPage(pb)
	}
}

// DiscardCleanPages promotes clean pages to readable where possible (a
// reader may already be using the same key), falling back to discarding
// them outright.
func (ds *DiskService) DiscardCleanPages(pages []*PageBuffer) {
	for _, pb := range pages {
		if !pb.IsWritable() || pb.Position() == MaxPosition {
			ds.cache.DiscardPage(pb)
			continue
		}
		if ok, _ := ds.cache.TryMoveToReadable(pb); !ok {
			ds.cache.DiscardPage(pb)
		}
	}
}

// ensureQueue lazily creates the log writer queue on first use of the log.
func (ds *DiskService) ensureQueue() (*logWriterQueue, error) {
	ds.queueMu.Lock()
	defer ds.queueMu.Unlock()

	if ds.queue != nil {
		return ds.queue, nil
	}

	handle, err := ds.logFile.Access()
	if err != nil {
		return nil, err
	}

	write := func(position uint64, buf []byte) error {
		return handle.WriteAt(buf, int64(position))
	}
	flush := func() error {
		return handle.Flush()
	}

	ds.queue = newLogWriterQueue(write, flush, ds.cache, ds.opts.State)
	return ds.queue, nil
}

// Dispose waits on the queue if one was created, closes both file
// factories, and deletes the log file if it exists but holds no pages.
func (ds *DiskService) Dispose() error {
	ds.queueMu.Lock()
	queue := ds.queue
	ds.queueMu.Unlock()

	if queue != nil {
		if err := queue.Wait(); err != nil {
			logger.Warnf("storage: dispose wait on log writer queue: %v", err)
		}
		queue.Dispose()
	}

	if err := ds.dataFile.Close(); err != nil {
		return err
	}
	if err := ds.logFile.Close(); err != nil {
		return err
	}

	if ds.logLength.Load() == -PageSize {
		exists, err := ds.logFile.Exists()
		if err != nil {
			return err
		}
		if exists {
			if err := ds.logFile.Delete(); err != nil {
				return err
			}
		}
	}

	return nil
}
