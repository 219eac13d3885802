package pagecache

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// pinEvicting is the pin count of a frame claimed by the fault engine. No
// cursor can pin a claimed frame, and the engine can only claim a frame
// whose pin count is zero.
const pinEvicting int32 = -1

// maxUsage caps the eviction clock stamp so that a hot frame cools down
// within a bounded number of sweeps.
const maxUsage int32 = 5

// frame is one cache page sized buffer plus its metadata.
//
// The binding fields (file, pageNo) are written only while the frame is
// claimed (pins == pinEvicting) with mu held, and are therefore stable for
// any goroutine that holds a pin or mu. The buffer itself follows the
// version seqlock: the version is odd while a mutation window is open, and
// a reader that observes the same even version before and after copying
// bytes out has observed a consistent page.
type frame struct {
	mu sync.Mutex // held by the exclusive pinner, the fault engine and flush

	buf []byte

	version atomic.Uint64
	pins    atomic.Int32
	usage   atomic.Int32

	file   *PagedFile
	pageNo int64

	dirty    bool // guarded by mu
	poisoned bool // guarded by mu; set when an eviction writeback failed
}

func newFrame(pageSize int) *frame {
	return &frame{
		buf:    make([]byte, pageSize),
		pageNo: UnboundPageID,
	}
}

func (f *frame) boundTo(pf *PagedFile, pageNo int64) bool {
	return f.file == pf && f.pageNo == pageNo
}

// tryPin raises the pin count. It fails only while the fault engine owns
// the frame.
func (f *frame) tryPin() bool {
	for {
		p := f.pins.Load()
		if p < 0 {
			return false
		}
		if f.pins.CompareAndSwap(p, p+1) {
			return true
		}
	}
}

func (f *frame) unpin() {
	f.pins.Add(-1)
}

// claim takes exclusive ownership of an unpinned frame for rebinding.
func (f *frame) claim() bool {
	return f.pins.CompareAndSwap(0, pinEvicting)
}

// beginMutation opens a mutation window; the version becomes odd.
func (f *frame) beginMutation() {
	f.version.Add(1)
}

// endMutation closes the window; the version becomes even again.
func (f *frame) endMutation() {
	f.version.Add(1)
}

// beginRead waits out any open mutation window and returns the even version
// a read window starts from.
func (f *frame) beginRead() uint64 {
	for {
		v := f.version.Load()
		if v&1 == 0 {
			return v
		}
		runtime.Gosched()
	}
}

// touch heats the frame up for the eviction clock.
func (f *frame) touch() {
	for {
		u := f.usage.Load()
		if u >= maxUsage {
			return
		}
		if f.usage.CompareAndSwap(u, u+1) {
			return
		}
	}
}
