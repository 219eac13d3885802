package pagecache

import (
	"fmt"
	"io"
	"sync"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xpagecache/fs"
)

// pageIO reads and writes single file pages at their channel offset.
// Writebacks are serialized per mapping; reads may run in parallel.
type pageIO struct {
	channel      fs.StoreChannel
	filePageSize int

	writeMu sync.Mutex
}

// readPage fills buf with the page at pageNo. A short read at the end of
// the file leaves the remainder of the cache page zeroed.
func (p *pageIO) readPage(pageNo int64, buf []byte) error {
	offset := pageNo * int64(p.filePageSize)
	n, err := p.channel.ReadAt(buf[:p.filePageSize], offset)
	if err != nil && err != io.EOF {
		return errors.Annotatef(err, "read page %d at offset %d", pageNo, offset)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// writePage writes exactly one file page from buf, extending the file as
// needed.
func (p *pageIO) writePage(pageNo int64, buf []byte) error {
	offset := pageNo * int64(p.filePageSize)
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.channel.WriteAt(buf[:p.filePageSize], offset); err != nil {
		return fmt.Errorf("write page %d at offset %d: %w", pageNo, offset, err)
	}
	return nil
}

func (p *pageIO) force() error {
	return p.channel.Force(false)
}

func (p *pageIO) close() error {
	return p.channel.Close()
}
