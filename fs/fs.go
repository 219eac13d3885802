package fs

import (
	"errors"
	"io"
)

// Open modes accepted by a FileSystem.
const (
	ModeRead      = "r"
	ModeReadWrite = "rw"
	ModeTruncate  = "w"
)

var (
	ErrInvalidMode   = errors.New("invalid open mode")
	ErrFileNotFound  = errors.New("file not found")
	ErrChannelClosed = errors.New("channel is closed")
	ErrReadOnly      = errors.New("channel is read only")
)

// FileSystem opens files as store channels. Implementations are safe for
// concurrent use.
type FileSystem interface {
	// Open opens the named file. Mode "r" opens read only and fails if the
	// file does not exist. Mode "rw" opens read write, creating the file if
	// needed. Mode "w" creates or truncates the file.
	Open(name string, mode string) (StoreChannel, error)
}

// StoreChannel is positional I/O over one file. ReadAt returns io.EOF on a
// short read at the end of the file. WriteAt writes all bytes or fails, and
// extends the file as needed.
type StoreChannel interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current file length in bytes.
	Size() (int64, error)

	// Force pushes written bytes to durable storage. When metadata is true
	// the file metadata is forced as well.
	Force(metadata bool) error

	Close() error
}
