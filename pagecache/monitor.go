package pagecache

// Monitor observes cache activity. Callbacks run on the goroutine that
// triggered the event and must not call back into the cache.
type Monitor interface {
	// PagedIn fires after a page is faulted into a frame.
	PagedIn(fileID uint64, pageNo int64)
	// PagedOut fires after a dirty page is written back to its channel.
	PagedOut(fileID uint64, pageNo int64)
	// Evicted fires when a frame loses its binding to make room.
	Evicted(fileID uint64, pageNo int64)
	// FlushStarted fires at the beginning of a mapping flush.
	FlushStarted(fileID uint64)
	// FlushEnded fires at the end of a mapping flush with the number of
	// pages written.
	FlushEnded(fileID uint64, pagesWritten int)
}

// NullMonitor ignores every event.
var NullMonitor Monitor = nullMonitor{}

type nullMonitor struct{}

func (nullMonitor) PagedIn(uint64, int64)  {}
func (nullMonitor) PagedOut(uint64, int64) {}
func (nullMonitor) Evicted(uint64, int64)  {}
func (nullMonitor) FlushStarted(uint64)    {}
func (nullMonitor) FlushEnded(uint64, int) {}
