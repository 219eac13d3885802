package pagecache

import "fmt"

// UnboundPageID is returned by CurrentPageID before the first successful
// advance and after Rewind.
const UnboundPageID int64 = -1

// Cursor iterates over the pages of one mapping with one access mode. A
// cursor pins at most one frame at a time: the pin is taken by a successful
// advance and released by the next advance, Rewind or Close.
//
// Every read or write of a pinned page must be framed in a retry loop:
//
//	for {
//		cursor.SetOffset(0)
//		value = cursor.GetByte()
//		if !cursor.Retry() {
//			break
//		}
//	}
//
// Exclusive cursors never retry; shared cursors retry whenever their read
// window overlapped a writer or a rebind, and have had their offset reset
// to the start of the window.
//
// A cursor is not safe for concurrent use by multiple goroutines.
type Cursor struct {
	pf *PagedFile

	shared  bool
	noGrow  bool
	noFault bool

	startPage int64
	nextPage  int64
	curPage   int64

	frame  *frame
	offset int

	windowOpen   bool
	windowOffset int
	snapshot     uint64

	closed bool
}

// Next advances to the next page index. It returns false past the last
// file page when growing is disabled.
func (c *Cursor) Next() (bool, error) {
	return c.advance(c.nextPage)
}

// NextTo positions the cursor at an explicit page index. Growth semantics
// and the return value match Next.
func (c *Cursor) NextTo(pageNo int64) (bool, error) {
	if pageNo < 0 {
		return false, ErrInvalidPageID
	}
	return c.advance(pageNo)
}

func (c *Cursor) advance(pageNo int64) (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}
	c.unpinCurrent()
	if c.pf.closed.Load() {
		return false, ErrFileClosed
	}
	if c.noGrow && pageNo >= c.pf.pageCount.Load() {
		return false, nil
	}

	f, err := c.pf.cache.pin(c.pf, pageNo, !c.shared, c.noFault)
	if err != nil {
		return false, err
	}
	if f != nil && !c.noGrow {
		c.pf.growTo(pageNo + 1)
	}

	c.frame = f
	c.curPage = pageNo
	c.nextPage = pageNo + 1
	c.offset = 0
	c.windowOffset = 0
	c.windowOpen = false
	return true, nil
}

// Rewind resets the cursor so that the next advance visits the start page
// again. Any current pin is released.
func (c *Cursor) Rewind() {
	if c.closed {
		return
	}
	c.unpinCurrent()
	c.nextPage = c.startPage
	c.offset = 0
}

// CurrentPageID returns the page index the cursor is bound to, or
// UnboundPageID when it is not bound to any page.
func (c *Cursor) CurrentPageID() int64 {
	return c.curPage
}

// Close releases the cursor. Idempotent.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.unpinCurrent()
	c.closed = true
}

func (c *Cursor) unpinCurrent() {
	f := c.frame
	c.frame = nil
	c.curPage = UnboundPageID
	c.windowOpen = false
	if f == nil {
		return
	}
	if c.shared {
		f.unpin()
		return
	}
	f.endMutation()
	f.unpin()
	f.mu.Unlock()
}

// SetOffset moves the byte cursor within the current page.
func (c *Cursor) SetOffset(offset int) {
	if offset < 0 || offset > len(c.pageBuf()) {
		panic(fmt.Sprintf("pagecache: offset %d out of range [0, %d]", offset, len(c.pageBuf())))
	}
	c.offset = offset
}

// Offset returns the current byte offset within the page.
func (c *Cursor) Offset() int {
	return c.offset
}

// GetByte reads one byte and advances the offset. On an unbound position it
// is a no-op returning zero.
func (c *Cursor) GetByte() byte {
	if c.frame == nil {
		return 0
	}
	c.openWindow()
	c.checkBounds(1)
	b := c.frame.buf[c.offset]
	c.offset++
	return b
}

// PutByte writes one byte and advances the offset. Only exclusive cursors
// may write.
func (c *Cursor) PutByte(b byte) {
	if c.frame == nil {
		return
	}
	c.requireWritable()
	c.openWindow()
	c.checkBounds(1)
	c.frame.buf[c.offset] = b
	c.offset++
	c.frame.dirty = true
}

// GetBytes fills p from the current offset and advances it. On an unbound
// position it is a no-op.
func (c *Cursor) GetBytes(p []byte) {
	if c.frame == nil {
		return
	}
	c.openWindow()
	c.checkBounds(len(p))
	copy(p, c.frame.buf[c.offset:c.offset+len(p)])
	c.offset += len(p)
}

// PutBytes writes p at the current offset and advances it.
func (c *Cursor) PutBytes(p []byte) {
	if c.frame == nil {
		return
	}
	c.requireWritable()
	c.openWindow()
	c.checkBounds(len(p))
	copy(c.frame.buf[c.offset:c.offset+len(p)], p)
	c.offset += len(p)
	c.frame.dirty = true
}

// Retry reports whether the read window just finished was torn and must be
// rerun. On true the offset has been reset to the start of the window. For
// exclusive cursors it always returns false; the write is authoritative.
func (c *Cursor) Retry() bool {
	if c.closed || c.frame == nil || !c.shared {
		c.windowOpen = false
		return false
	}
	if !c.windowOpen {
		return false
	}
	if c.frame.version.Load() == c.snapshot {
		c.windowOpen = false
		return false
	}
	c.offset = c.windowOffset
	c.snapshot = c.frame.beginRead()
	return true
}

// openWindow starts a read or write window at the first byte access after
// an advance or a completed window.
func (c *Cursor) openWindow() {
	if c.windowOpen {
		return
	}
	c.windowOpen = true
	c.windowOffset = c.offset
	if c.shared {
		c.snapshot = c.frame.beginRead()
	}
}

func (c *Cursor) checkBounds(n int) {
	if c.offset+n > len(c.frame.buf) {
		panic(fmt.Sprintf("pagecache: access of %d bytes at offset %d exceeds page size %d", n, c.offset, len(c.frame.buf)))
	}
}

func (c *Cursor) requireWritable() {
	if c.shared {
		panic("pagecache: write through a shared cursor")
	}
}

// pageBuf returns the buffer bounds reference for offset validation; the
// cache page size is the bound whether or not a frame is bound.
func (c *Cursor) pageBuf() []byte {
	if c.frame != nil {
		return c.frame.buf
	}
	return c.pf.cache.emptyPage
}
