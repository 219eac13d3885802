package pagecache

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xpagecache/fs"
)

// A writer keeps modifying the middle of page zero while a reader checks
// that the untouched first byte reads back consistently in every retry
// window.
func TestRetryResetsCursorOffset(t *testing.T) {
	mfs := fs.NewMemFS()
	cache := newTestCache(t, mfs, testMaxPages)
	pf, err := cache.Map(testFileName, testFilePageSize)
	require.NoError(t, err)

	const expectedByte = byte(13)

	cursor, err := pf.IO(0, FlagExclusiveLock)
	require.NoError(t, err)
	ok, err := cursor.Next()
	require.NoError(t, err)
	require.True(t, ok)
	cursor.PutByte(expectedByte)
	cursor.Close()

	var stop atomic.Bool
	var writerErr atomic.Value
	started := make(chan struct{})
	var once sync.Once
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer once.Do(func() { close(started) })
		for !stop.Load() {
			cursor, err := pf.IO(0, FlagExclusiveLock)
			if err != nil {
				writerErr.Store(err)
				return
			}
			if ok, err := cursor.Next(); err != nil {
				writerErr.Store(err)
				cursor.Close()
				return
			} else if ok {
				cursor.SetOffset(testRecordSize)
				cursor.PutByte(14)
			}
			cursor.Close()
			once.Do(func() { close(started) })
		}
	}()

	<-started
	for i := 0; i < 1000; i++ {
		cursor, err := pf.IO(0, FlagSharedLock)
		require.NoError(t, err)
		ok, err := cursor.Next()
		require.NoError(t, err)
		require.True(t, ok)
		for {
			got := cursor.GetByte()
			if !cursor.Retry() {
				require.Equalf(t, expectedByte, got, "acquisition %d", i)
				break
			}
		}
		cursor.Close()
	}

	stop.Store(true)
	wg.Wait()
	require.Nil(t, writerErr.Load())
}

// Eight writers fill random pages of a small region with a single random
// byte value each. A reader scanning the whole file must see every page
// uniform within a completed retry window.
func TestReadsAndWritesAreMutuallyConsistent(t *testing.T) {
	if testing.Short() {
		t.Skip("long running consistency scan")
	}

	const pageCount = 100
	const writerThreads = 8
	const scans = 2000

	mfs := fs.NewMemFS()
	cache := newTestCache(t, mfs, testMaxPages)
	pf, err := cache.Map(testFileName, testFilePageSize)
	require.NoError(t, err)

	// materialize the page range
	cursor, err := pf.IO(0, FlagExclusiveLock)
	require.NoError(t, err)
	for i := 0; i < pageCount; i++ {
		ok, err := cursor.Next()
		require.NoError(t, err)
		require.True(t, ok)
	}
	cursor.Close()

	var stop atomic.Bool
	var writerErr atomic.Value
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < writerThreads; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			<-start
			for !stop.Load() {
				value := byte(rng.Int())
				pageID := int64(pageCount/2 + rng.Intn(5))
				cursor, err := pf.IO(pageID, FlagExclusiveLock)
				if err != nil {
					writerErr.Store(err)
					return
				}
				if ok, err := cursor.Next(); err != nil {
					writerErr.Store(err)
					cursor.Close()
					return
				} else if ok {
					for i := 0; i < testFilePageSize; i++ {
						cursor.PutByte(value)
					}
				}
				cursor.Close()
			}
		}(int64(w))
	}
	close(start)

	for scan := 0; scan < scans; scan++ {
		consistentPages := 0
		cursor, err := pf.IO(0, FlagSharedLock)
		require.NoError(t, err)
		for {
			ok, err := cursor.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			consistent := true
			for {
				cursor.SetOffset(0)
				first := cursor.GetByte()
				consistent = true
				for j := 1; j < testFilePageSize; j++ {
					if cursor.GetByte() != first {
						consistent = false
					}
				}
				if !cursor.Retry() {
					break
				}
			}
			require.Truef(t, consistent, "scan %d page %d", scan, cursor.CurrentPageID())
			consistentPages++
		}
		cursor.Close()
		require.Equal(t, pageCount, consistentPages)
	}

	stop.Store(true)
	wg.Wait()
	require.Nil(t, writerErr.Load())
}

// A reader whose pin begins after a writer released its pin observes the
// written bytes without any retry.
func TestReaderAfterWriterSeesTheWrittenBytes(t *testing.T) {
	mfs := fs.NewMemFS()
	cache := newTestCache(t, mfs, testMaxPages)
	pf, err := cache.Map(testFileName, testFilePageSize)
	require.NoError(t, err)

	writer, err := pf.IO(0, FlagExclusiveLock)
	require.NoError(t, err)
	ok, err := writer.Next()
	require.NoError(t, err)
	require.True(t, ok)
	writeRecords(t, writer)
	writer.Close()

	reader, err := pf.IO(0, FlagSharedLock)
	require.NoError(t, err)
	defer reader.Close()
	ok, err = reader.Next()
	require.NoError(t, err)
	require.True(t, ok)

	record := make([]byte, testRecordSize)
	reader.GetBytes(record)
	assert.False(t, reader.Retry())

	expected := make([]byte, testRecordSize)
	generateRecordForID(0, expected)
	assert.Equal(t, expected, record)
}

func TestConcurrentSharedCursorsPinTheSamePage(t *testing.T) {
	mfs := fs.NewMemFS()
	generateFileWithRecords(t, mfs, testFileName, testRecordCount, testRecordSize)

	cache := newTestCache(t, mfs, testMaxPages)
	pf, err := cache.Map(testFileName, testFilePageSize)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cursor, err := pf.IO(0, FlagSharedLock)
			if err != nil {
				errs <- err
				return
			}
			defer cursor.Close()
			for k := 0; k < 100; k++ {
				ok, err := cursor.NextTo(0)
				if err != nil {
					errs <- err
					return
				}
				if !ok {
					continue
				}
				record := make([]byte, testRecordSize)
				for {
					cursor.SetOffset(0)
					cursor.GetBytes(record)
					if !cursor.Retry() {
						break
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
