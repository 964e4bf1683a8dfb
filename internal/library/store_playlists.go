package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreatePlaylist inserts an empty playlist.
func (s *Store) CreatePlaylist(ctx context.Context, libraryID int64, name string) (*Playlist, error) {
	if name == "" {
		return nil, errors.New("playlist name is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO playlists (library_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		libraryID,
		name,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert playlist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	s.changes.publish(Change{Kind: ChangePlaylist, LibraryID: libraryID})
	return s.GetPlaylist(ctx, id)
}

// GetPlaylist fetches a playlist by identifier. Returns nil when absent.
func (s *Store) GetPlaylist(ctx context.Context, id int64) (*Playlist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id)
	playlist, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get playlist: %w", err)
	}
	return playlist, nil
}

// PlaylistsByLibrary returns a library's playlists ordered by name.
func (s *Store) PlaylistsByLibrary(ctx context.Context, libraryID int64) ([]*Playlist, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+playlistColumns+` FROM playlists WHERE library_id = ? ORDER BY name`,
		libraryID,
	)
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	return playlists, rows.Err()
}

// AddToPlaylist appends an asset to the end of a playlist. Adding an asset
// already in the playlist is a no-op.
func (s *Store) AddToPlaylist(ctx context.Context, playlistID, assetID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	row := tx.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM playlist_entries WHERE playlist_id = ?`,
		playlistID,
	)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO playlist_entries (playlist_id, asset_id, position) VALUES (?, ?, ?)`,
		playlistID,
		assetID,
		next,
	); err != nil {
		return fmt.Errorf("insert playlist entry: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE playlists SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		playlistID,
	); err != nil {
		return fmt.Errorf("touch playlist: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.changes.publish(Change{Kind: ChangePlaylist, AssetID: assetID})
	return nil
}

// RemoveFromPlaylist drops an asset from a playlist. Positions of later
// entries are left sparse; ordering only requires monotonicity.
func (s *Store) RemoveFromPlaylist(ctx context.Context, playlistID, assetID int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM playlist_entries WHERE playlist_id = ? AND asset_id = ?`,
		playlistID,
		assetID,
	)
	if err != nil {
		return false, fmt.Errorf("delete playlist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		s.changes.publish(Change{Kind: ChangePlaylist, AssetID: assetID})
	}
	return affected > 0, nil
}

// PlaylistAssets returns a playlist's assets in playlist order.
func (s *Store) PlaylistAssets(ctx context.Context, playlistID int64) ([]*Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixedAssetColumns+`
         FROM assets a
         JOIN playlist_entries pe ON pe.asset_id = a.id
         WHERE pe.playlist_id = ?
         ORDER BY pe.position`,
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("query playlist assets: %w", err)
	}
	defer rows.Close()
	return collectAssets(rows)
}

// DeletePlaylist removes a playlist and its entries. Member assets are
// untouched.
func (s *Store) DeletePlaylist(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete playlist: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		s.changes.publish(Change{Kind: ChangePlaylist})
	}
	return affected > 0, nil
}

const playlistColumns = "id, library_id, name, created_at, updated_at"

const prefixedAssetColumns = "a.id, a.uuid, a.library_id, a.folder_id, a.rel_path, a.title, a.size_bytes, a.duration_seconds, a.pinned, a.last_accessed, a.import_status, a.transcribe_status, a.transcript_path, a.error_message, a.created_at, a.updated_at"

func scanPlaylist(scanner interface{ Scan(dest ...any) error }) (*Playlist, error) {
	var (
		playlist   Playlist
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&playlist.ID, &playlist.LibraryID, &playlist.Name, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		playlist.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		playlist.UpdatedAt = updated
	}
	return &playlist, nil
}
