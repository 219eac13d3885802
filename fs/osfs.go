package fs

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// OSFileSystem opens files on the local disk.
type OSFileSystem struct{}

// NewOSFileSystem returns a FileSystem backed by the operating system.
func NewOSFileSystem() FileSystem {
	return &OSFileSystem{}
}

// Open implements FileSystem.
func (ofs *OSFileSystem) Open(name string, mode string) (StoreChannel, error) {
	var flag int
	switch mode {
	case ModeRead:
		flag = os.O_RDONLY
	case ModeReadWrite:
		flag = os.O_RDWR | os.O_CREATE
	case ModeTruncate:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	default:
		return nil, ErrInvalidMode
	}

	if mode != ModeRead {
		dir := filepath.Dir(name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Annotatef(err, "create directory %s", dir)
		}
	}

	file, err := os.OpenFile(name, flag, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, errors.Annotatef(err, "open file %s", name)
	}
	return &osChannel{file: file, readOnly: mode == ModeRead}, nil
}

type osChannel struct {
	file     *os.File
	readOnly bool
}

func (c *osChannel) ReadAt(p []byte, off int64) (int, error) {
	return c.file.ReadAt(p, off)
}

func (c *osChannel) WriteAt(p []byte, off int64) (int, error) {
	if c.readOnly {
		return 0, ErrReadOnly
	}
	return c.file.WriteAt(p, off)
}

func (c *osChannel) Size() (int64, error) {
	info, err := c.file.Stat()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return info.Size(), nil
}

func (c *osChannel) Force(metadata bool) error {
	// os.File.Sync forces data and metadata both; a data only sync is not
	// portable, so the metadata flag collapses into one full sync.
	_ = metadata
	return c.file.Sync()
}

func (c *osChannel) Close() error {
	return c.file.Close()
}
