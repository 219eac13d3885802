package pagecache

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xpagecache/fs"
	"github.com/zhukovaskychina/xpagecache/logger"
	"github.com/zhukovaskychina/xpagecache/util"
)

const (
	// DefaultPageSize is the cache page size used when none is configured.
	DefaultPageSize = 16 * 1024
	// DefaultMaxPages bounds the number of resident frames.
	DefaultMaxPages = 8 * 1024
	// DefaultVictimSearchRounds bounds the eviction clock sweep before an
	// access fails with ErrNoVictimFrame.
	DefaultVictimSearchRounds = 256
)

// Config carries the page cache construction parameters.
type Config struct {
	// PageSize is the cache page size in bytes. Every mapped file page must
	// fit in one cache page.
	PageSize int
	// MaxPages is the fixed number of frames.
	MaxPages int
	// FlushInterval enables background flushing of dirty pages when
	// positive. Explicit Flush remains the only durability boundary.
	FlushInterval time.Duration
	// VictimSearchRounds bounds the eviction victim search.
	VictimSearchRounds int
	// FileSystem opens the backing channels. Required.
	FileSystem fs.FileSystem
	// Monitor observes cache activity; nil means no observer.
	Monitor Monitor
}

// PageCache is a shared fixed capacity buffer pool over paged files. Frames
// are allocated once at construction; pages fault in on demand, cold pages
// are evicted, and dirty pages are written back on eviction and on flush.
type PageCache struct {
	pageSize int
	pool     *framePool
	fs       fs.FileSystem
	monitor  Monitor

	mu       sync.Mutex
	mappings map[string]*PagedFile
	closed   bool

	stats cacheStats

	// emptyPage bounds offset validation for cursors at an unbound
	// position.
	emptyPage []byte

	stopOnce    sync.Once
	stopChan    chan struct{}
	flushTicker *time.Ticker
}

// New creates a page cache from config.
func New(config *Config) (*PageCache, error) {
	if config == nil || config.FileSystem == nil {
		return nil, errors.New("page cache config requires a file system")
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	rounds := config.VictimSearchRounds
	if rounds <= 0 {
		rounds = DefaultVictimSearchRounds
	}
	monitor := config.Monitor
	if monitor == nil {
		monitor = NullMonitor
	}

	pc := &PageCache{
		pageSize:  pageSize,
		pool:      newFramePool(maxPages, pageSize, rounds),
		fs:        config.FileSystem,
		monitor:   monitor,
		mappings:  make(map[string]*PagedFile),
		emptyPage: make([]byte, pageSize),
		stopChan:  make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		pc.flushTicker = time.NewTicker(config.FlushInterval)
		go pc.flushLoop()
	}
	return pc, nil
}

// PageSize returns the cache page size.
func (pc *PageCache) PageSize() int {
	return pc.pageSize
}

// Stats returns a snapshot of the cache counters, including a gauge of the
// frames currently pinned by cursors.
func (pc *PageCache) Stats() Stats {
	stats := pc.stats.snapshot()
	for _, f := range pc.pool.frames {
		if f.pins.Load() > 0 {
			stats.PinnedFrames++
		}
	}
	return stats
}

// Map opens the named file into the cache. Mapping an already mapped file
// shares its channel and translation table; the page size must agree.
func (pc *PageCache) Map(path string, filePageSize int) (*PagedFile, error) {
	key := filepath.Clean(path)

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return nil, ErrCacheClosed
	}
	if filePageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if filePageSize > pc.pageSize {
		return nil, ErrPageSizeTooLarge
	}

	if pf, ok := pc.mappings[key]; ok {
		if pf.filePageSize != filePageSize {
			return nil, ErrPageSizeConflict
		}
		pf.refs++
		return pf, nil
	}

	channel, err := pc.fs.Open(key, fs.ModeReadWrite)
	if err != nil {
		return nil, errors.Annotatef(err, "map %s", key)
	}
	size, err := channel.Size()
	if err != nil {
		channel.Close()
		return nil, errors.Annotatef(err, "size of %s", key)
	}

	pf := &PagedFile{
		cache:        pc,
		path:         key,
		id:           util.HashString(key),
		filePageSize: filePageSize,
		io:           &pageIO{channel: channel, filePageSize: filePageSize},
		refs:         1,
		trans:        make(map[int64]*frame),
	}
	pf.pageCount.Store((size + int64(filePageSize) - 1) / int64(filePageSize))
	pc.mappings[key] = pf

	logger.Debugf("mapped %s id=%x pages=%d filePageSize=%d", key, pf.id, pf.PageCount(), filePageSize)
	return pf, nil
}

// Unmap drops one reference to the named mapping. The last unmap flushes
// the mapping, releases its frames and closes the channel. Unmapping while
// cursors still pin pages of the mapping is rejected with ErrMappingBusy.
// A writeback failure likewise aborts the unmap and leaves the mapping
// intact, so the dirty pages stay reachable for a retry.
func (pc *PageCache) Unmap(path string) error {
	key := filepath.Clean(path)

	pc.mu.Lock()
	defer pc.mu.Unlock()
	pf, ok := pc.mappings[key]
	if !ok {
		return ErrNotMapped
	}
	pf.refs--
	if pf.refs > 0 {
		return nil
	}

	pf.closed.Store(true)
	if err := pc.releaseMapping(pf, false); err != nil {
		pf.closed.Store(false)
		pf.refs++
		return err
	}

	var firstErr error
	if err := pf.io.force(); err != nil {
		firstErr = errors.Annotatef(err, "force %s", key)
	}
	if err := pf.io.close(); err != nil && firstErr == nil {
		firstErr = errors.Annotatef(err, "close %s", key)
	}
	delete(pc.mappings, key)
	logger.Debugf("unmapped %s id=%x", key, pf.id)
	return firstErr
}

// Flush writes back every dirty page of every mapping and forces the
// channels.
func (pc *PageCache) Flush() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return ErrCacheClosed
	}
	files := make([]*PagedFile, 0, len(pc.mappings))
	for _, pf := range pc.mappings {
		files = append(files, pf)
	}
	pc.mu.Unlock()

	var firstErr error
	for _, pf := range files {
		if err := pc.flushFile(pf, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes and closes every mapping, mapped or not yet unmapped alike,
// then marks the cache closed. Every channel is attempted; the first error
// is returned after the rest have been tried.
func (pc *PageCache) Close() error {
	pc.stopBackground()

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return ErrCacheClosed
	}
	pc.closed = true

	var firstErr error
	for key, pf := range pc.mappings {
		pf.closed.Store(true)
		if err := pc.releaseMapping(pf, true); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := pf.io.force(); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "force %s", key)
		}
		if err := pf.io.close(); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "close %s", key)
		}
		delete(pc.mappings, key)
	}
	return firstErr
}

// flushFile writes back the dirty frames of one mapping. Frames pinned by
// an exclusive cursor are waited for, so any write whose pin was released
// before the flush began is durable when it returns.
func (pc *PageCache) flushFile(pf *PagedFile, force bool) error {
	pc.monitor.FlushStarted(pf.id)
	var firstErr error
	written := 0
	for _, f := range pc.pool.frames {
		f.mu.Lock()
		if f.file == pf && f.dirty {
			if err := pf.io.writePage(f.pageNo, f.buf); err != nil {
				f.poisoned = true
				if firstErr == nil {
					firstErr = fmt.Errorf("flush page %d of %s: %w", f.pageNo, pf.path, err)
				}
			} else {
				f.dirty = false
				f.poisoned = false
				written++
				pc.stats.flushes.Add(1)
				pc.monitor.PagedOut(pf.id, f.pageNo)
			}
		}
		f.mu.Unlock()
	}
	if force {
		if err := pf.io.force(); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "force %s", pf.path)
		}
	}
	pc.monitor.FlushEnded(pf.id, written)
	return firstErr
}

// releaseMapping writes back and unbinds every frame of a mapping. A frame
// whose writeback fails keeps its binding and its dirty page, poisoned, so
// a later flush or unmap retry can still reach it. Without force a frame
// still pinned by a live cursor aborts with ErrMappingBusy; with force such
// frames are skipped and logged.
func (pc *PageCache) releaseMapping(pf *PagedFile, force bool) error {
	var firstErr error
	for _, f := range pc.pool.frames {
		if !f.claim() {
			f.mu.Lock()
			owned := f.file == pf
			f.mu.Unlock()
			if !owned {
				continue
			}
			if force {
				logger.Warnf("releasing %s with page %d still pinned", pf.path, f.pageNo)
				continue
			}
			return ErrMappingBusy
		}
		f.mu.Lock()
		if f.file != pf {
			f.mu.Unlock()
			f.pins.Store(0)
			continue
		}
		f.beginMutation()
		if f.dirty {
			if err := pf.io.writePage(f.pageNo, f.buf); err != nil {
				// keep the page: the frame stays bound, dirty and
				// poisoned so a later flush or unmap retry can still
				// write it back
				f.poisoned = true
				if firstErr == nil {
					firstErr = fmt.Errorf("write back page %d of %s: %w", f.pageNo, pf.path, err)
				}
				f.endMutation()
				f.mu.Unlock()
				f.pins.Store(0)
				continue
			}
			f.dirty = false
			pc.stats.flushes.Add(1)
			pc.monitor.PagedOut(pf.id, f.pageNo)
		}
		pf.drop(f.pageNo, f)
		f.file = nil
		f.pageNo = UnboundPageID
		f.poisoned = false
		f.usage.Store(0)
		f.endMutation()
		f.mu.Unlock()
		f.pins.Store(0)
	}
	return firstErr
}

func (pc *PageCache) flushLoop() {
	for {
		select {
		case <-pc.stopChan:
			return
		case <-pc.flushTicker.C:
			if err := pc.Flush(); err != nil {
				logger.Debugf("background flush: %v", err)
			}
		}
	}
}

func (pc *PageCache) stopBackground() {
	pc.stopOnce.Do(func() {
		close(pc.stopChan)
		if pc.flushTicker != nil {
			pc.flushTicker.Stop()
		}
	})
}
