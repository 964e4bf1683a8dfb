package clouddrive

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// DownloadState describes the hydration status of one file.
type DownloadState string

const (
	// DownloadNone means no hydration is in flight for the file.
	DownloadNone DownloadState = "none"
	// DownloadInProgress means a hydration request is being serviced.
	DownloadInProgress DownloadState = "in_progress"
)

// ErrNotExist is returned when a relative path resolves to nothing in either
// the local tree or the cloud tier.
var ErrNotExist = errors.New("clouddrive: file does not exist")

// Info describes one file as seen through the drive: whether the bytes are on
// local disk, whether a durable cloud copy exists, and whether a download is
// in flight.
type Info struct {
	RelPath      string
	IsDir        bool
	SizeBytes    int64
	ModTime      time.Time
	LocalPresent bool
	RemoteReady  bool
	Download     DownloadState
}

// Drive is the cloud-tier file interface the storage core consumes. A Drive
// spans two tiers: the library's local tree (fast, evictable) and a durable
// cloud copy. Implementations must be safe for concurrent use.
//
// Drives move and report bytes; they never decide policy. Eviction decisions
// belong to the budget enforcer, hydration decisions to the presence tracker
// and its callers.
type Drive interface {
	// Root returns the absolute path of the library's local tree.
	Root() string

	// Stat reports the file's current two-tier state. Returns ErrNotExist
	// when the path resolves to nothing in either tier.
	Stat(ctx context.Context, relPath string) (Info, error)

	// Walk enumerates the cloud tier recursively, calling fn for every file.
	// Walk is driven by the cloud tier (not the local tree) so evicted files
	// are still visible. Returning an error from fn aborts the walk.
	Walk(ctx context.Context, fn func(Info) error) error

	// RequestHydration asks the drive to begin downloading the file's bytes
	// to the local tree. It returns once the request is accepted; completion
	// is observed through Stat.
	RequestHydration(ctx context.Context, relPath string) error

	// EvictLocal removes the local copy of a file. It does not touch the
	// cloud copy. Callers must confirm RemoteReady via Stat first.
	EvictLocal(ctx context.Context, relPath string) error

	// Put copies a source file into the local tree at relPath and uploads it
	// to the cloud tier, so the file is immediately both local and durable.
	Put(ctx context.Context, srcPath, relPath string) error
}

// MediaExtensions lists the file extensions treated as library media.
var MediaExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".m4v":  {},
	".mov":  {},
	".avi":  {},
	".webm": {},
}

// IsMediaPath reports whether a path's extension marks it as library media.
func IsMediaPath(path string) bool {
	_, ok := MediaExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
