package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAsset inserts a new asset record. A missing UUID is generated;
// timestamps are set here. The (library, rel_path) pair must be unique.
func (s *Store) CreateAsset(ctx context.Context, asset *Asset) (*Asset, error) {
	if asset == nil {
		return nil, errors.New("asset is nil")
	}
	if asset.LibraryID == 0 {
		return nil, errors.New("asset library is required")
	}
	if asset.RelPath == "" {
		return nil, errors.New("asset rel_path is required")
	}
	if asset.UUID == "" {
		asset.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assets (
            uuid, library_id, folder_id, rel_path, title, size_bytes, duration_seconds,
            pinned, last_accessed, import_status, transcribe_status, transcript_path,
            error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.UUID,
		asset.LibraryID,
		nullableInt64(asset.FolderID),
		asset.RelPath,
		asset.Title,
		asset.SizeBytes,
		asset.DurationSeconds,
		boolToInt(asset.Pinned),
		nullableTime(asset.LastAccessed),
		string(asset.ImportStatus),
		string(asset.TranscribeStatus),
		nullableString(asset.TranscriptPath),
		nullableString(asset.ErrorMessage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	s.changes.publish(Change{Kind: ChangeAsset, LibraryID: asset.LibraryID, AssetID: id})
	return s.GetAsset(ctx, id)
}

// GetAsset fetches an asset by identifier. Returns nil when absent.
func (s *Store) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// GetAssetByUUID fetches an asset by its stable identifier. Returns nil when
// absent.
func (s *Store) GetAssetByUUID(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE uuid = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset by uuid: %w", err)
	}
	return asset, nil
}

// FindAssetByRelPath fetches the asset at a library-relative path. Returns
// nil when absent.
func (s *Store) FindAssetByRelPath(ctx context.Context, libraryID int64, relPath string) (*Asset, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE library_id = ? AND rel_path = ?`,
		libraryID,
		relPath,
	)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find asset by rel_path: %w", err)
	}
	return asset, nil
}

// AssetsByLibrary returns all assets in a library ordered by rel_path.
func (s *Store) AssetsByLibrary(ctx context.Context, libraryID int64) ([]*Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM assets WHERE library_id = ? ORDER BY rel_path`,
		libraryID,
	)
	if err != nil {
		return nil, fmt.Errorf("query assets by library: %w", err)
	}
	defer rows.Close()
	return collectAssets(rows)
}

// AssetsByFolder returns the assets directly inside a folder. A nil folderID
// selects assets with no folder.
func (s *Store) AssetsByFolder(ctx context.Context, libraryID int64, folderID *int64) ([]*Asset, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if folderID == nil {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+assetColumns+` FROM assets WHERE library_id = ? AND folder_id IS NULL ORDER BY rel_path`,
			libraryID,
		)
	} else {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+assetColumns+` FROM assets WHERE library_id = ? AND folder_id = ? ORDER BY rel_path`,
			libraryID,
			*folderID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query assets by folder: %w", err)
	}
	defer rows.Close()
	return collectAssets(rows)
}

// UpdateAsset persists changes to an existing asset record.
func (s *Store) UpdateAsset(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	asset.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE assets
         SET folder_id = ?, rel_path = ?, title = ?, size_bytes = ?, duration_seconds = ?,
             pinned = ?, last_accessed = ?, import_status = ?, transcribe_status = ?,
             transcript_path = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableInt64(asset.FolderID),
		asset.RelPath,
		asset.Title,
		asset.SizeBytes,
		asset.DurationSeconds,
		boolToInt(asset.Pinned),
		nullableTime(asset.LastAccessed),
		string(asset.ImportStatus),
		string(asset.TranscribeStatus),
		nullableString(asset.TranscriptPath),
		nullableString(asset.ErrorMessage),
		asset.UpdatedAt.Format(time.RFC3339Nano),
		asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	s.changes.publish(Change{Kind: ChangeAsset, LibraryID: asset.LibraryID, AssetID: asset.ID})
	return nil
}

// TouchAccessed records an access (playback open) for eviction ordering.
func (s *Store) TouchAccessed(ctx context.Context, assetID int64, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE assets SET last_accessed = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		assetID,
	)
	if err != nil {
		return fmt.Errorf("touch accessed: %w", err)
	}
	return nil
}

// SetPinned marks or unmarks an asset as never-evict.
func (s *Store) SetPinned(ctx context.Context, assetID int64, pinned bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE assets SET pinned = ?, updated_at = ? WHERE id = ?`,
		boolToInt(pinned),
		time.Now().UTC().Format(time.RFC3339Nano),
		assetID,
	)
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d not found", assetID)
	}
	s.changes.publish(Change{Kind: ChangeAsset, AssetID: assetID})
	return nil
}

// SetProcessingStatus persists the per-kind processing state of an asset.
// Kind must be "import" or "transcribe". The error message is cleared unless
// the new status is failed.
func (s *Store) SetProcessingStatus(ctx context.Context, assetID int64, kind string, status ProcessStatus, errMsg string) error {
	var column string
	switch kind {
	case "import":
		column = "import_status"
	case "transcribe":
		column = "transcribe_status"
	default:
		return fmt.Errorf("unknown task kind %q", kind)
	}
	if status != ProcessFailed {
		errMsg = ""
	}
	query := `UPDATE assets SET ` + column + ` = ?, error_message = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(
		ctx,
		query,
		string(status),
		nullableString(errMsg),
		time.Now().UTC().Format(time.RFC3339Nano),
		assetID,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d not found", assetID)
	}
	s.changes.publish(Change{Kind: ChangeAsset, AssetID: assetID})
	return nil
}

// SetTranscriptPath records where a finished transcript landed.
func (s *Store) SetTranscriptPath(ctx context.Context, assetID int64, path string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE assets SET transcript_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(path),
		time.Now().UTC().Format(time.RFC3339Nano),
		assetID,
	)
	if err != nil {
		return fmt.Errorf("set transcript path: %w", err)
	}
	return nil
}

// DeleteAsset removes an asset record. Playlist entries referencing it are
// removed by cascade.
func (s *Store) DeleteAsset(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		s.changes.publish(Change{Kind: ChangeAsset, AssetID: id})
	}
	return affected > 0, nil
}

const assetColumns = "id, uuid, library_id, folder_id, rel_path, title, size_bytes, duration_seconds, pinned, last_accessed, import_status, transcribe_status, transcript_path, error_message, created_at, updated_at"

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		asset           Asset
		folderID        sql.NullInt64
		pinned          sql.NullInt64
		lastAccessedRaw sql.NullString
		importStatus    string
		transcribeStat  string
		transcriptPath  sql.NullString
		errorMessage    sql.NullString
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&asset.ID,
		&asset.UUID,
		&asset.LibraryID,
		&folderID,
		&asset.RelPath,
		&asset.Title,
		&asset.SizeBytes,
		&asset.DurationSeconds,
		&pinned,
		&lastAccessedRaw,
		&importStatus,
		&transcribeStat,
		&transcriptPath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	if folderID.Valid {
		id := folderID.Int64
		asset.FolderID = &id
	}
	asset.Pinned = pinned.Valid && pinned.Int64 != 0
	asset.ImportStatus = ProcessStatus(importStatus)
	asset.TranscribeStatus = ProcessStatus(transcribeStat)
	asset.TranscriptPath = transcriptPath.String
	asset.ErrorMessage = errorMessage.String

	if lastAccessedRaw.Valid {
		if accessed, err := parseTimeString(lastAccessedRaw.String); err == nil {
			asset.LastAccessed = &accessed
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		asset.UpdatedAt = updated
	}
	return &asset, nil
}

func collectAssets(rows *sql.Rows) ([]*Asset, error) {
	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
