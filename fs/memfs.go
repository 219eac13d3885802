package fs

import (
	"io"
	"sync"
)

// MemFS is an in memory FileSystem. It keeps every file as a byte slice and
// counts open channels, which makes it suitable for tests that assert on
// channel lifecycle.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
	open  int
}

// NewMemFS returns an empty in memory file system.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memFile)}
}

type memFile struct {
	mu   sync.RWMutex
	data []byte
}

// Open implements FileSystem.
func (mfs *MemFS) Open(name string, mode string) (StoreChannel, error) {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	file, ok := mfs.files[name]
	switch mode {
	case ModeRead:
		if !ok {
			return nil, ErrFileNotFound
		}
	case ModeReadWrite:
		if !ok {
			file = &memFile{}
			mfs.files[name] = file
		}
	case ModeTruncate:
		if !ok {
			file = &memFile{}
			mfs.files[name] = file
		} else {
			file.mu.Lock()
			file.data = nil
			file.mu.Unlock()
		}
	default:
		return nil, ErrInvalidMode
	}

	mfs.open++
	return &memChannel{fs: mfs, file: file, readOnly: mode == ModeRead}, nil
}

// OpenFiles returns the number of channels opened and not yet closed.
func (mfs *MemFS) OpenFiles() int {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()
	return mfs.open
}

// FileSize returns the length of the named file, or -1 when absent.
func (mfs *MemFS) FileSize(name string) int64 {
	mfs.mu.Lock()
	file, ok := mfs.files[name]
	mfs.mu.Unlock()
	if !ok {
		return -1
	}
	file.mu.RLock()
	defer file.mu.RUnlock()
	return int64(len(file.data))
}

type memChannel struct {
	fs       *MemFS
	file     *memFile
	readOnly bool

	mu     sync.Mutex
	closed bool
}

func (c *memChannel) ReadAt(p []byte, off int64) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	c.file.mu.RLock()
	defer c.file.mu.RUnlock()

	if off >= int64(len(c.file.data)) {
		return 0, io.EOF
	}
	n := copy(p, c.file.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (c *memChannel) WriteAt(p []byte, off int64) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if c.readOnly {
		return 0, ErrReadOnly
	}
	c.file.mu.Lock()
	defer c.file.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(c.file.data)) {
		grown := make([]byte, end)
		copy(grown, c.file.data)
		c.file.data = grown
	}
	copy(c.file.data[off:end], p)
	return len(p), nil
}

func (c *memChannel) Size() (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	c.file.mu.RLock()
	defer c.file.mu.RUnlock()
	return int64(len(c.file.data)), nil
}

func (c *memChannel) Force(metadata bool) error {
	_ = metadata
	return c.check()
}

func (c *memChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	c.closed = true

	c.fs.mu.Lock()
	c.fs.open--
	c.fs.mu.Unlock()
	return nil
}

func (c *memChannel) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	return nil
}
