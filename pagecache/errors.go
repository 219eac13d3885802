package pagecache

import "errors"

// Lifecycle errors
var (
	ErrCacheClosed  = errors.New("page cache is closed")
	ErrFileClosed   = errors.New("paged file is closed")
	ErrCursorClosed = errors.New("cursor is closed")
	ErrNotMapped    = errors.New("file is not mapped")
	ErrMappingBusy  = errors.New("mapping still has pinned pages")
)

// Argument errors
var (
	ErrInvalidFlags     = errors.New("exactly one of shared or exclusive lock is required")
	ErrInvalidPageSize  = errors.New("file page size must be positive")
	ErrPageSizeTooLarge = errors.New("file page size exceeds cache page size")
	ErrPageSizeConflict = errors.New("file already mapped with a different page size")
	ErrInvalidPageID    = errors.New("page id must be non-negative")
)

// Resource errors
var (
	ErrNoVictimFrame = errors.New("no evictable frame available")
)

// errFaultRaced signals that another cursor installed the page while a fault
// was in flight. Internal to the pin loop, never surfaced.
var errFaultRaced = errors.New("page faulted by another cursor")
