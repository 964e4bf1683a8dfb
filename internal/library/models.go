package library

import "time"

// StorageMode selects how a library balances local disk against the cloud
// tier.
type StorageMode string

const (
	// ModeKeepAllLocal keeps every asset hydrated; no eviction occurs.
	ModeKeepAllLocal StorageMode = "keep_all_local"
	// ModeOptimizeStorage evicts cold local copies to stay under the budget.
	ModeOptimizeStorage StorageMode = "optimize_storage"
)

// ProcessStatus is the persisted per-kind processing state of an asset. It
// survives restarts; the live task queue is rebuilt around it.
type ProcessStatus string

const (
	ProcessNone      ProcessStatus = ""
	ProcessQueued    ProcessStatus = "queued"
	ProcessRunning   ProcessStatus = "running"
	ProcessSucceeded ProcessStatus = "succeeded"
	ProcessFailed    ProcessStatus = "failed"
)

// Library is one managed media library rooted in a cloud-synced tree.
type Library struct {
	ID               int64
	Name             string
	RootDir          string
	StorageMode      StorageMode
	CacheBudgetBytes int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Asset is one media item. RelPath is the path within the library's cloud
// tree and is unique per library.
type Asset struct {
	ID               int64
	UUID             string
	LibraryID        int64
	FolderID         *int64
	RelPath          string
	Title            string
	SizeBytes        int64
	DurationSeconds  float64
	Pinned           bool
	LastAccessed     *time.Time
	ImportStatus     ProcessStatus
	TranscribeStatus ProcessStatus
	TranscriptPath   string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Folder is a node in a library's folder hierarchy. A nil ParentID marks a
// top-level folder.
type Folder struct {
	ID        int64
	LibraryID int64
	ParentID  *int64
	Name      string
	CreatedAt time.Time
}

// Playlist groups assets in user-defined order. Membership is many-to-many:
// one asset may appear in any number of playlists.
type Playlist struct {
	ID        int64
	LibraryID int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
