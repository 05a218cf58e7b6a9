package storage

import (
	"container/list"
	"sync"

	"github.com/briskdb/briskdb/logger"
	"github.com/briskdb/briskdb/util"
	"github.com/pkg/errors"
)

// logWriteFunc persists one page's bytes at its assigned position in the
// log file; supplied by the disk service so this file never imports
// RandomAccessFile directly.
type logWriteFunc func(position uint64, buf []byte) error

// logFlushFunc flushes the log file handle.
type logFlushFunc func() error

// StateReporter is the external "engine state" collaborator the async
// writer hands asynchronous failures to for global reporting, in addition
// to poisoning the queue itself. A disk service opened without one simply
// has nothing to notify; the queue still poisons and rethrows on its own.
type StateReporter interface {
	Handle(err error)
}

// logWriterQueue is a single-producer-set/single-consumer unbounded FIFO
// draining PageBuffers to the log file on one dedicated background
// goroutine.
type logWriterQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	drained  *sync.Cond

	items   *list.List
	closed  bool
	failed  error
	running bool

	write logWriteFunc
	flush logFlushFunc
	cache *PageCache
	state StateReporter
}

func newLogWriterQueue(write logWriteFunc, flush logFlushFunc, cache *PageCache, state StateReporter) *logWriterQueue {
	q := &logWriterQueue{
		items: list.New(),
		write: write,
		flush: flush,
		cache: cache,
		state: state,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.drained = sync.NewCond(&q.mu)
	q.running = true
	go q.run()
	return q
}

// EnqueuePage adds a page to the tail of the FIFO. It rethrows any
// previously recorded failure synchronously instead of accepting the page,
// so a poisoned queue fails fast rather than silently dropping writes.
func (q *logWriterQueue) EnqueuePage(pb *PageBuffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.failed != nil {
		return errors.Wrap(ErrQueueFailed, q.failed.Error())
	}
	q.items.PushBack(pb)
	q.notEmpty.Signal()
	return nil
}

// Wait blocks until the queue is empty and the most recent flush has
// completed, or returns the queue's poisoned error if the writer failed.
// Callers are responsible for not racing a concurrent EnqueuePage.
func (q *logWriterQueue) Wait() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() > 0 && q.failed == nil {
		q.drained.Wait()
	}
	if q.failed != nil {
		return errors.Wrap(ErrQueueFailed, q.failed.Error())
	}
	return nil
}

// Len reports how many pages are currently queued, used by SetLength(Log)
// to reject truncation while work is pending.
func (q *logWriterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Dispose marks the queue closed, wakes the consumer, and waits for it to
// drain what is already queued and exit. EnqueuePage does not check the
// closed flag.
func (q *logWriterQueue) Dispose() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Signal()
	for q.running {
		q.drained.Wait()
	}
	q.mu.Unlock()
}

// run is the dedicated consumer goroutine: Idle -> Draining -> Flushing ->
// Idle, or Failed (terminal) on the first I/O error.
func (q *logWriterQueue) run() {
	for {
		q.mu.Lock()
		for q.items.Len() == 0 && !q.closed {
			q.notEmpty.Wait()
		}
		if q.items.Len() == 0 && q.closed {
			q.running = false
			q.drained.Broadcast()
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		if err := q.drainOnce(); err != nil {
			logger.Errorf("storage: log writer queue failed: %v", err)
			if q.state != nil {
				q.state.Handle(err)
			}
			q.mu.Lock()
			q.failed = err
			q.running = false
			q.items.Init()
			q.drained.Broadcast()
			q.mu.Unlock()
			return
		}
	}
}

// drainOnce writes every page currently queued, then flushes. Written pages
// stay in the FIFO until that flush succeeds, so Len and Wait keep counting
// them as pending until they are durable. It stops and returns the first
// error encountered, leaving later pages unwritten.
func (q *logWriterQueue) drainOnce() error {
	var written []*list.Element
	for {
		q.mu.Lock()
		next := q.items.Front()
		if n := len(written); n > 0 {
			next = written[n-1].Next()
		}
		q.mu.Unlock()
		if next == nil {
			break
		}

		pb := next.Value.(*PageBuffer)
		startedAt := util.GetCurrentTimeNanos()
		err := q.write(pb.Position(), pb.Bytes())
		logger.Debugf("storage: log writer wrote position %d in %dns", pb.Position(), util.GetCurrentTimeNanos()-startedAt)
		q.cache.Release(pb)
		if err != nil {
			return errors.Wrap(err, "log writer")
		}
		written = append(written, next)
	}

	if err := q.flush(); err != nil {
		return errors.Wrap(err, "log writer flush")
	}

	q.mu.Lock()
	for _, e := range written {
		q.items.Remove(e)
	}
	q.drained.Broadcast()
	q.mu.Unlock()
	return nil
}
