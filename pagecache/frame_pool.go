package pagecache

import (
	"runtime"
	"sync/atomic"
	"time"
)

// framePool owns the fixed set of frames and picks eviction victims with a
// clock sweep. Every pin heats a frame up; every sweep over it cools it
// down, so any frame that stays unpinned becomes claimable within at most
// maxUsage laps. The search is bounded: when it exhausts its rounds the
// caller gets ErrNoVictimFrame instead of blocking forever.
type framePool struct {
	frames []*frame
	hand   atomic.Uint64
	rounds int
}

func newFramePool(maxPages, pageSize, rounds int) *framePool {
	pool := &framePool{
		frames: make([]*frame, maxPages),
		rounds: rounds,
	}
	for i := range pool.frames {
		pool.frames[i] = newFrame(pageSize)
	}
	return pool
}

// acquireVictim returns a frame claimed for rebinding, with its mutex held.
// Poisoned frames are skipped; they stay out of rotation until their
// mapping flushes them successfully.
func (p *framePool) acquireVictim() (*frame, error) {
	n := uint64(len(p.frames))
	for round := 0; round < p.rounds; round++ {
		for i := uint64(0); i < n; i++ {
			f := p.frames[p.hand.Add(1)%n]
			if u := f.usage.Load(); u > 0 {
				f.usage.CompareAndSwap(u, u-1)
				continue
			}
			if !f.claim() {
				continue
			}
			f.mu.Lock()
			if f.poisoned {
				f.mu.Unlock()
				f.pins.Store(0)
				continue
			}
			return f, nil
		}
		if round%32 == 31 {
			time.Sleep(time.Millisecond)
		} else {
			runtime.Gosched()
		}
	}
	return nil, ErrNoVictimFrame
}
