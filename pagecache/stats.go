package pagecache

import "sync/atomic"

type cacheStats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	faults    atomic.Uint64
	evictions atomic.Uint64
	flushes   atomic.Uint64
}

// Stats is a point in time snapshot of the cache counters. PinnedFrames is
// a gauge: the number of frames held by at least one cursor at the moment
// of the snapshot.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Faults       uint64
	Evictions    uint64
	Flushes      uint64
	PinnedFrames int
}

func (s *cacheStats) snapshot() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Faults:    s.faults.Load(),
		Evictions: s.evictions.Load(),
		Flushes:   s.flushes.Load(),
	}
}

// HitRate returns the fraction of page accesses served without a fault.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
