package ipc

import (
	"time"

	"icebox/internal/library"
	"icebox/internal/tasks"
)

// Task is the wire representation of one background task.
type Task struct {
	ID        int64     `json:"id"`
	AssetID   int64     `json:"asset_id"`
	LibraryID int64     `json:"library_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromTask converts a store task to its wire form.
func FromTask(task *tasks.Task) Task {
	return Task{
		ID:        task.ID,
		AssetID:   task.AssetID,
		LibraryID: task.LibraryID,
		Kind:      string(task.Kind),
		Status:    string(task.Status),
		Attempts:  task.Attempts,
		LastError: task.LastError,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

// Asset is the wire representation of one library asset, optionally
// annotated with its live presence state.
type Asset struct {
	ID               int64      `json:"id"`
	UUID             string     `json:"uuid"`
	RelPath          string     `json:"rel_path"`
	Title            string     `json:"title"`
	SizeBytes        int64      `json:"size_bytes"`
	DurationSeconds  float64    `json:"duration_seconds"`
	Pinned           bool       `json:"pinned"`
	LastAccessed     *time.Time `json:"last_accessed,omitempty"`
	ImportStatus     string     `json:"import_status"`
	TranscribeStatus string     `json:"transcribe_status"`
	TranscriptPath   string     `json:"transcript_path"`
	ErrorMessage     string     `json:"error_message"`
	Presence         string     `json:"presence"`
}

// FromAsset converts a store asset to its wire form.
func FromAsset(asset *library.Asset) Asset {
	return Asset{
		ID:               asset.ID,
		UUID:             asset.UUID,
		RelPath:          asset.RelPath,
		Title:            asset.Title,
		SizeBytes:        asset.SizeBytes,
		DurationSeconds:  asset.DurationSeconds,
		Pinned:           asset.Pinned,
		LastAccessed:     asset.LastAccessed,
		ImportStatus:     string(asset.ImportStatus),
		TranscribeStatus: string(asset.TranscribeStatus),
		TranscriptPath:   asset.TranscriptPath,
		ErrorMessage:     asset.ErrorMessage,
	}
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon status information.
type StatusResponse struct {
	Running          bool                      `json:"running"`
	PID              int                       `json:"pid"`
	LockPath         string                    `json:"lock_path"`
	LibraryDBPath    string                    `json:"library_db_path"`
	TasksDBPath      string                    `json:"tasks_db_path"`
	LibraryID        int64                     `json:"library_id"`
	LibraryName      string                    `json:"library_name"`
	StorageMode      string                    `json:"storage_mode"`
	CacheBudgetBytes int64                     `json:"cache_budget_bytes"`
	AssetCount       int                       `json:"asset_count"`
	LocalBytes       int64                     `json:"local_bytes"`
	LocalCount       int                       `json:"local_count"`
	CloudOnlyCount   int                       `json:"cloud_only_count"`
	Downloading      []int64                   `json:"downloading"`
	ApplyingPolicy   bool                      `json:"applying_policy"`
	WorkersRunning   bool                      `json:"workers_running"`
	LastError        string                    `json:"last_error"`
	Queue            QueueHealthResponse       `json:"queue"`
	QueueStats       map[string]map[string]int `json:"queue_stats"`
	Dependencies     []DependencyStatus        `json:"dependencies,omitempty"`
}

// DependencyStatus reports the availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail"`
}

// ImportRequest queues a batch of source files for import.
type ImportRequest struct {
	Sources []string `json:"sources"`
}

// ImportResult reports the outcome for one source in a batch.
type ImportResult struct {
	Source  string `json:"source"`
	AssetID int64  `json:"asset_id,omitempty"`
	TaskID  int64  `json:"task_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ImportResponse contains per-source outcomes.
type ImportResponse struct {
	Results []ImportResult `json:"results"`
}

// ReconcileRequest triggers a cloud-tree reconciliation.
type ReconcileRequest struct{}

// ReconcileResponse reports the scan outcome.
type ReconcileResponse struct {
	Scanned  int `json:"scanned"`
	Existing int `json:"existing"`
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

// PolicyApplyRequest runs one storage-policy pass.
type PolicyApplyRequest struct{}

// PolicySetRequest changes the storage policy before applying it.
type PolicySetRequest struct {
	Mode        string `json:"mode"`
	BudgetBytes int64  `json:"budget_bytes"`
}

// PolicyResponse reports one policy pass.
type PolicyResponse struct {
	Mode            string `json:"mode"`
	Coalesced       bool   `json:"coalesced"`
	Hydrated        int    `json:"hydrated"`
	Examined        int    `json:"examined"`
	Evicted         int    `json:"evicted"`
	EvictedBytes    int64  `json:"evicted_bytes"`
	Skipped         int    `json:"skipped"`
	FinalLocalBytes int64  `json:"final_local_bytes"`
}

// AssetListRequest lists every asset. WithPresence annotates each with its
// live presence state at the cost of a drive probe per asset.
type AssetListRequest struct {
	WithPresence bool `json:"with_presence"`
}

// AssetListResponse contains asset entries.
type AssetListResponse struct {
	Assets []Asset `json:"assets"`
}

// FetchRequest asks the daemon to bring an asset's bytes local.
type FetchRequest struct {
	AssetID int64 `json:"asset_id"`
}

// FetchResponse reports the presence state after the request was accepted.
type FetchResponse struct {
	State string `json:"state"`
}

// AssetStateRequest probes one asset's presence state.
type AssetStateRequest struct {
	AssetID int64 `json:"asset_id"`
}

// AssetStateResponse reports the probe result.
type AssetStateResponse struct {
	State string `json:"state"`
}

// PinRequest sets or clears the eviction exemption on an asset.
type PinRequest struct {
	AssetID int64 `json:"asset_id"`
	Pinned  bool  `json:"pinned"`
}

// PinResponse acknowledges the pin change.
type PinResponse struct {
	Pinned bool `json:"pinned"`
}

// QueueListRequest filters task listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains task entries.
type QueueListResponse struct {
	Tasks []Task `json:"tasks"`
}

// QueueRetryRequest retries failed tasks. Empty list means all failed tasks.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried tasks.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueClearRequest removes task records by scope.
type QueueClearRequest struct {
	Scope string `json:"scope"` // "all", "succeeded", or "failed"
}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// LogTailRequest reads daemon log lines from an offset. A negative offset
// means "the last Limit lines". Follow waits up to WaitMillis for new lines.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int64 `json:"wait_millis"`
}

// LogTailResponse carries log lines plus the next read offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
