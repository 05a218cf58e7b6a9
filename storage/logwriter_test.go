package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errWriteFailed = errors.New("simulated log write failure")

func newTestQueue(t *testing.T, write logWriteFunc) (*logWriterQueue, *PageCache) {
	return newTestQueueWithState(t, write, nil)
}

func newTestQueueWithState(t *testing.T, write logWriteFunc, state StateReporter) (*logWriterQueue, *PageCache) {
	c := NewPageCache(nil)
	flushed := 0
	flush := func() error {
		flushed++
		return nil
	}
	q := newLogWriterQueue(write, flush, c, state)
	t.Cleanup(q.Dispose)
	return q, c
}

// recordingState is a test StateReporter counting and capturing Handle calls.
type recordingState struct {
	mu      sync.Mutex
	errs    []error
	handled int
}

func (s *recordingState) Handle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	s.handled++
}

func (s *recordingState) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled
}

func readablePageAt(t *testing.T, c *PageCache, position uint64, fill byte) *PageBuffer {
	w := c.NewPage()
	for i := range w.Bytes() {
		w.Bytes()[i] = fill
	}
	w.assign(Log, position)
	pb, err := c.MoveToReadable(w)
	require.NoError(t, err)
	pb.retain()
	return pb
}

func TestLogWriterQueueDrainsInOrder(t *testing.T) {
	var mu sync.Mutex
	var written []uint64

	q, c := newTestQueue(t, func(position uint64, buf []byte) error {
		mu.Lock()
		written = append(written, position)
		mu.Unlock()
		return nil
	})

	for i := uint64(0); i < 5; i++ {
		pb := readablePageAt(t, c, i*PageSize, byte(i))
		require.NoError(t, q.EnqueuePage(pb))
	}
	require.NoError(t, q.Wait())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{0, PageSize, 2 * PageSize, 3 * PageSize, 4 * PageSize}, written)
}

func TestLogWriterQueueReleasesPageAfterWrite(t *testing.T) {
	q, c := newTestQueue(t, func(position uint64, buf []byte) error { return nil })

	pb := readablePageAt(t, c, 0, 1)
	require.EqualValues(t, 2, pb.ShareCount())

	require.NoError(t, q.EnqueuePage(pb))
	require.NoError(t, q.Wait())

	require.EqualValues(t, 1, pb.ShareCount())
}

func TestLogWriterQueuePoisonsOnFailure(t *testing.T) {
	state := &recordingState{}
	q, c := newTestQueueWithState(t, func(position uint64, buf []byte) error {
		return errWriteFailed
	}, state)

	pb := readablePageAt(t, c, 0, 1)
	require.NoError(t, q.EnqueuePage(pb))

	// Give the consumer a chance to observe the failure before the second
	// enqueue is attempted.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		q.mu.Lock()
		failed := q.failed != nil
		q.mu.Unlock()
		if failed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	second := readablePageAt(t, c, PageSize, 2)
	err := q.EnqueuePage(second)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrQueueFailed)

	require.Equal(t, 1, state.count(), "engine state must record the exception exactly once")
}

func TestLogWriterQueueDisposeDrainsPending(t *testing.T) {
	var mu sync.Mutex
	written := 0

	q, c := newTestQueue(t, func(position uint64, buf []byte) error {
		mu.Lock()
		written++
		mu.Unlock()
		return nil
	})

	pb := readablePageAt(t, c, 0, 1)
	require.NoError(t, q.EnqueuePage(pb))
	q.Dispose()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, written)
}
