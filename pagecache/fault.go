package pagecache

import (
	"fmt"
	"runtime"

	"github.com/zhukovaskychina/xpagecache/logger"
)

// pin resolves (pf, pageNo) to a pinned frame, faulting the page in on a
// miss. With noFault set a miss returns (nil, nil) instead.
//
// A shared pin raises the pin count and revalidates the binding; the
// binding cannot change under a held pin, so the validation is final. An
// exclusive pin additionally takes the frame mutex for the whole pin
// duration and opens a mutation window, which is what serializes exclusive
// cursors per page and makes overlapping shared read windows retry.
func (pc *PageCache) pin(pf *PagedFile, pageNo int64, exclusive bool, noFault bool) (*frame, error) {
	for {
		if pf.closed.Load() {
			return nil, ErrFileClosed
		}
		f := pf.lookup(pageNo)
		if f == nil {
			if noFault {
				return nil, nil
			}
			got, err := pc.fault(pf, pageNo, exclusive)
			if err == errFaultRaced {
				continue
			}
			if err != nil {
				return nil, err
			}
			pc.stats.misses.Add(1)
			return got, nil
		}
		if exclusive {
			f.mu.Lock()
			if !f.boundTo(pf, pageNo) {
				f.mu.Unlock()
				continue
			}
			if !f.tryPin() {
				// The fault engine claimed the frame before we got the
				// mutex. Back off without holding it, or the engine can
				// never finish rebinding.
				f.mu.Unlock()
				runtime.Gosched()
				continue
			}
			f.beginMutation()
			f.touch()
			pc.stats.hits.Add(1)
			return f, nil
		}
		if !f.tryPin() {
			runtime.Gosched()
			continue
		}
		if !f.boundTo(pf, pageNo) {
			f.unpin()
			continue
		}
		f.touch()
		pc.stats.hits.Add(1)
		return f, nil
	}
}

// fault loads (pf, pageNo) into a victim frame. On success the frame is
// returned pinned once for the caller; an exclusive caller keeps the frame
// mutex and an open mutation window, exactly as pin would have left it.
func (pc *PageCache) fault(pf *PagedFile, pageNo int64, exclusive bool) (*frame, error) {
	victim, err := pc.pool.acquireVictim()
	if err != nil {
		return nil, err
	}
	victim.beginMutation()

	if victim.dirty {
		owner := victim.file
		if werr := owner.io.writePage(victim.pageNo, victim.buf); werr != nil {
			// Keep the page; the frame sits out of victim rotation until
			// the owning mapping flushes it successfully.
			victim.poisoned = true
			pc.releaseFrame(victim)
			logger.Errorf("eviction writeback of page %d in %s failed: %v", victim.pageNo, owner.path, werr)
			return nil, fmt.Errorf("evict page %d of %s: %w", victim.pageNo, owner.path, werr)
		}
		victim.dirty = false
		pc.monitor.PagedOut(owner.id, victim.pageNo)
	}

	if victim.file != nil {
		victim.file.drop(victim.pageNo, victim)
		pc.monitor.Evicted(victim.file.id, victim.pageNo)
		pc.stats.evictions.Add(1)
	}

	victim.file = pf
	victim.pageNo = pageNo

	if pageNo < pf.pageCount.Load() {
		if rerr := pf.io.readPage(pageNo, victim.buf); rerr != nil {
			victim.file = nil
			victim.pageNo = UnboundPageID
			pc.releaseFrame(victim)
			return nil, rerr
		}
	} else {
		for i := range victim.buf {
			victim.buf[i] = 0
		}
	}

	if pf.install(pageNo, victim) != nil {
		victim.file = nil
		victim.pageNo = UnboundPageID
		pc.releaseFrame(victim)
		return nil, errFaultRaced
	}

	pc.stats.faults.Add(1)
	pc.monitor.PagedIn(pf.id, pageNo)
	victim.touch()

	if exclusive {
		victim.pins.Store(1)
		return victim, nil
	}
	victim.endMutation()
	victim.mu.Unlock()
	victim.pins.Store(1)
	return victim, nil
}

// releaseFrame hands a claimed frame back to the pool: window closed, mutex
// released, pin count reset.
func (pc *PageCache) releaseFrame(f *frame) {
	f.endMutation()
	f.mu.Unlock()
	f.pins.Store(0)
}
