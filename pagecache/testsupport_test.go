package pagecache

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xpagecache/fs"
)

const (
	testRecordSize         = 9
	testRecordCount        = 1060
	testMaxPages           = 20
	testCachePageSize      = 20
	testFilePageSize       = 18
	testRecordsPerFilePage = testFilePageSize / testRecordSize

	testFileName = "a"
)

func newTestCache(t *testing.T, mfs *fs.MemFS, maxPages int) *PageCache {
	t.Helper()
	cache, err := New(&Config{
		PageSize:           testCachePageSize,
		MaxPages:           maxPages,
		VictimSearchRounds: 64,
		FileSystem:         mfs,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cache.Close()
	})
	return cache
}

// generateRecordForID fills buf with a deterministic record: a big endian
// id derived integer followed by a run of increasing bytes.
func generateRecordForID(id int64, buf []byte) {
	x := uint32(id + 1)
	binary.BigEndian.PutUint32(buf, x)
	for i := 4; i < len(buf); i++ {
		x++
		buf[i] = byte(x)
	}
}

func generateFileWithRecords(t *testing.T, mfs *fs.MemFS, name string, recordCount, recordSize int) {
	t.Helper()
	channel, err := mfs.Open(name, fs.ModeTruncate)
	require.NoError(t, err)
	buf := make([]byte, recordSize)
	for i := 0; i < recordCount; i++ {
		generateRecordForID(int64(i), buf)
		_, err := channel.WriteAt(buf, int64(i*recordSize))
		require.NoError(t, err)
	}
	require.NoError(t, channel.Close())
}

// verifyRecordsMatchExpected checks every record on the cursor's current
// page, running each read in its own retry window.
func verifyRecordsMatchExpected(t *testing.T, cursor *Cursor) {
	t.Helper()
	record := make([]byte, testRecordSize)
	expected := make([]byte, testRecordSize)
	pageID := cursor.CurrentPageID()
	for i := 0; i < testRecordsPerFilePage; i++ {
		recordID := pageID*testRecordsPerFilePage + int64(i)
		generateRecordForID(recordID, expected)
		for {
			cursor.GetBytes(record)
			if !cursor.Retry() {
				break
			}
		}
		require.Equalf(t, expected, record, "record %d on page %d", recordID, pageID)
	}
}

// writeRecords writes every record of the cursor's current page.
func writeRecords(t *testing.T, cursor *Cursor) {
	t.Helper()
	record := make([]byte, testRecordSize)
	for {
		cursor.SetOffset(0)
		for i := 0; i < testRecordsPerFilePage; i++ {
			recordID := cursor.CurrentPageID()*testRecordsPerFilePage + int64(i)
			generateRecordForID(recordID, record)
			cursor.PutBytes(record)
		}
		if !cursor.Retry() {
			break
		}
	}
}

// verifyFileContents reads the file through a fresh read only channel and
// checks every record against the generator.
func verifyFileContents(t *testing.T, mfs *fs.MemFS, name string, recordCount int) {
	t.Helper()
	channel, err := mfs.Open(name, fs.ModeRead)
	require.NoError(t, err)
	defer channel.Close()

	expected := make([]byte, testRecordSize)
	actual := make([]byte, testRecordSize)
	for i := 0; i < recordCount; i++ {
		generateRecordForID(int64(i), expected)
		_, err := channel.ReadAt(actual, int64(i*testRecordSize))
		require.NoErrorf(t, err, "record %d", i)
		require.Equalf(t, expected, actual, "record %d", i)
	}
}
