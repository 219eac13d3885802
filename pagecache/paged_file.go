package pagecache

import (
	"sync"
	"sync/atomic"
)

// PagedFile is one file's participation in the cache. All handles returned
// by Map for the same path share one PagedFile, one backing channel and one
// page translation table.
type PagedFile struct {
	cache *PageCache

	path string
	id   uint64

	filePageSize int
	io           *pageIO

	refs int // guarded by cache.mu

	closed atomic.Bool

	// pageCount is the high water mark: one past the highest page index
	// known to this mapping. It grows when an exclusive cursor extends the
	// file and never shrinks while the mapping lives.
	pageCount atomic.Int64

	transMu sync.RWMutex
	trans   map[int64]*frame
}

// Path returns the cleaned path this mapping was opened with.
func (pf *PagedFile) Path() string {
	return pf.path
}

// PageCount returns the current number of file pages, counting a trailing
// partial page as a whole one.
func (pf *PagedFile) PageCount() int64 {
	return pf.pageCount.Load()
}

// FilePageSize returns the page size this mapping was opened with.
func (pf *PagedFile) FilePageSize() int {
	return pf.filePageSize
}

// IO opens a cursor over this mapping starting at startPageID. Exactly one
// of FlagSharedLock and FlagExclusiveLock must be set.
func (pf *PagedFile) IO(startPageID int64, flags Flag) (*Cursor, error) {
	if err := flags.validate(); err != nil {
		return nil, err
	}
	if startPageID < 0 {
		return nil, ErrInvalidPageID
	}
	if pf.closed.Load() {
		return nil, ErrFileClosed
	}
	return &Cursor{
		pf:        pf,
		shared:    flags.shared(),
		noGrow:    flags.noGrow(),
		noFault:   flags.noFault(),
		startPage: startPageID,
		nextPage:  startPageID,
		curPage:   UnboundPageID,
	}, nil
}

// Flush writes back every dirty frame of this mapping and forces the
// channel to durable storage.
func (pf *PagedFile) Flush() error {
	if pf.closed.Load() {
		return ErrFileClosed
	}
	return pf.cache.flushFile(pf, true)
}

// growTo raises the high water mark to at least count pages.
func (pf *PagedFile) growTo(count int64) {
	for {
		cur := pf.pageCount.Load()
		if count <= cur {
			return
		}
		if pf.pageCount.CompareAndSwap(cur, count) {
			return
		}
	}
}

// lookup resolves a page index to its resident frame, or nil.
func (pf *PagedFile) lookup(pageNo int64) *frame {
	pf.transMu.RLock()
	f := pf.trans[pageNo]
	pf.transMu.RUnlock()
	return f
}

// install publishes the translation entry for a freshly loaded frame. When
// another fault won the race, the existing frame is returned and the caller
// must roll its own frame back.
func (pf *PagedFile) install(pageNo int64, f *frame) *frame {
	pf.transMu.Lock()
	defer pf.transMu.Unlock()
	if existing, ok := pf.trans[pageNo]; ok {
		return existing
	}
	pf.trans[pageNo] = f
	return nil
}

// drop removes the translation entry if it still points at f.
func (pf *PagedFile) drop(pageNo int64, f *frame) {
	pf.transMu.Lock()
	if pf.trans[pageNo] == f {
		delete(pf.trans, pageNo)
	}
	pf.transMu.Unlock()
}
