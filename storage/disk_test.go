package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenEmptyCreatesHeaderPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	ds, err := Open(DefaultOptions(path))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ds.Dispose()) })

	exists, err := ds.dataFile.Exists()
	require.NoError(t, err)
	require.True(t, exists)

	length, err := ds.dataFile.GetLength()
	require.NoError(t, err)
	require.EqualValues(t, PageSize, length)

	logExists, err := ds.logFile.Exists()
	require.NoError(t, err)
	require.False(t, logExists)

	require.EqualValues(t, PageSize, ds.GetVirtualLength(Data))
	require.EqualValues(t, 0, ds.GetVirtualLength(Log))
	require.Equal(t, CollationUTF8BinCI, ds.Collation())
}

func TestCollationPragmaPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	opts := DefaultOptions(path)
	opts.Collation = CollationUTF8GenCI

	ds, err := Open(opts)
	require.NoError(t, err)
	require.Equal(t, CollationUTF8GenCI, ds.Collation())
	require.NoError(t, ds.Dispose())

	reopened, err := Open(DefaultOptions(path))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reopened.Dispose()) })

	require.Equal(t, CollationUTF8GenCI, reopened.Collation(),
		"header page is the source of truth, not whatever was passed to the second Open")
}

func TestWriteAsyncWiresStateReporterIntoQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	opts := DefaultOptions(path)
	opts.State = &recordingState{}
	ds, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ds.Dispose()) })

	pb, err := ds.NewPage()
	require.NoError(t, err)
	_, err = ds.WriteAsync([]*PageBuffer{pb})
	require.NoError(t, err)
	require.NoError(t, ds.waitForQueue())

	ds.queueMu.Lock()
	state := ds.queue.state
	ds.queueMu.Unlock()
	require.Same(t, opts.State, state)
}

func TestWriteAsyncThenReadAcrossCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	ds, err := Open(DefaultOptions(path))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ds.Dispose()) })

	pb, err := ds.NewPage()
	require.NoError(t, err)
	for i := range pb.Bytes() {
		pb.Bytes()[i] = 0xAB
	}

	n, err := ds.WriteAsync([]*PageBuffer{pb})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	position := pb.Position()

	require.NoError(t, ds.waitForQueue())

	reader := ds.GetReader()
	defer reader.Dispose()

	readBack, err := reader.ReadPage(position, false, Log)
	require.NoError(t, err)
	require.EqualValues(t, 1, readBack.ShareCount())
	for _, b := range readBack.Bytes() {
		require.Equal(t, byte(0xAB), b)
	}
}

func TestCheckpointCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	ds, err := Open(DefaultOptions(path))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ds.Dispose()) })

	var toWrite []*PageBuffer
	for i := 0; i < 5; i++ {
		pb, err := ds.NewPage()
		require.NoError(t, err)
		for j := range pb.Bytes() {
			pb.Bytes()[j] = byte(i)
		}
		toWrite = append(toWrite, pb)
	}
	_, err = ds.WriteAsync(toWrite)
	require.NoError(t, err)
	require.NoError(t, ds.waitForQueue())

	it, err := ds.ReadFull(Log)
	require.NoError(t, err)

	var dataPages []*PageBuffer
	position := int64(PageSize)
	for {
		pb, err := it.Next()
		require.NoError(t, err)
		if pb == nil {
			break
		}
		target := newPageBuffer(append([]byte(nil), pb.Bytes()...), -1, -1)
		target.assign(Data, uint64(position))
		dataPages = append(dataPages, target)
		position += PageSize
	}
	require.Len(t, dataPages, 5)

	require.NoError(t, ds.Write(dataPages, Data))
	require.NoError(t, ds.SetLength(0, Log))

	logHandle, err := ds.logFile.Access()
	require.NoError(t, err)
	logLen, err := logHandle.Length()
	require.NoError(t, err)
	require.Zero(t, logLen)
	require.EqualValues(t, -PageSize, ds.logLength.Load())

	dataHandle, err := ds.dataFile.Access()
	require.NoError(t, err)
	for i, want := range dataPages {
		got := make([]byte, PageSize)
		_, err := dataHandle.ReadAt(got, int64(want.Position()))
		require.NoError(t, err)
		require.Equal(t, byte(i), got[0])
	}
}

func TestRollbackDiscardsReturnBufferToFree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	ds, err := Open(DefaultOptions(path))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ds.Dispose()) })

	pb, err := ds.NewPage()
	require.NoError(t, err)
	pb.Bytes()[0] = 0x99

	ds.DiscardDirtyPages([]*PageBuffer{pb})
	require.True(t, pb.IsFree())

	reused, err := ds.NewPage()
	require.NoError(t, err)
	require.Same(t, pb, reused)
	require.True(t, reused.IsWritable())
	require.Zero(t, reused.Bytes()[0])
}

func TestMarkAsInvalidStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	ds, err := Open(DefaultOptions(path))
	require.NoError(t, err)

	require.NoError(t, ds.MarkAsInvalidState())
	require.NoError(t, ds.Dispose())

	reopened, err := Open(DefaultOptions(path))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reopened.Dispose()) })

	handle, err := reopened.dataFile.Access()
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = handle.ReadAt(buf, InvalidDataFileStateOffset)
	require.NoError(t, err)
	require.Equal(t, byte(1), buf[0])
}

// waitForQueue exposes the log writer queue's Wait for tests, since the
// queue itself is only created lazily on first WriteAsync.
func (ds *DiskService) waitForQueue() error {
	ds.queueMu.Lock()
	q := ds.queue
	ds.queueMu.Unlock()
	if q == nil {
		return nil
	}
	return q.Wait()
}
