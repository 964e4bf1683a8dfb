package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateFolder inserts a folder. A nil parentID creates a top-level folder;
// otherwise the parent must belong to the same library.
func (s *Store) CreateFolder(ctx context.Context, libraryID int64, parentID *int64, name string) (*Folder, error) {
	if name == "" {
		return nil, errors.New("folder name is required")
	}
	if parentID != nil {
		parent, err := s.GetFolder(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("parent folder %d not found", *parentID)
		}
		if parent.LibraryID != libraryID {
			return nil, fmt.Errorf("parent folder %d belongs to a different library", *parentID)
		}
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO folders (library_id, parent_id, name, created_at) VALUES (?, ?, ?, ?)`,
		libraryID,
		nullableInt64(parentID),
		name,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	s.changes.publish(Change{Kind: ChangeFolder, LibraryID: libraryID})
	return s.GetFolder(ctx, id)
}

// GetFolder fetches a folder by identifier. Returns nil when absent.
func (s *Store) GetFolder(ctx context.Context, id int64) (*Folder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	folder, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return folder, nil
}

// FoldersByParent returns a folder's direct children ordered by name. A nil
// parentID selects the library's top-level folders.
func (s *Store) FoldersByParent(ctx context.Context, libraryID int64, parentID *int64) ([]*Folder, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+folderColumns+` FROM folders WHERE library_id = ? AND parent_id IS NULL ORDER BY name`,
			libraryID,
		)
	} else {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+folderColumns+` FROM folders WHERE library_id = ? AND parent_id = ? ORDER BY name`,
			libraryID,
			*parentID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query folders by parent: %w", err)
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

// RenameFolder changes a folder's display name.
func (s *Store) RenameFolder(ctx context.Context, id int64, name string) error {
	if name == "" {
		return errors.New("folder name is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE folders SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename folder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("folder %d not found", id)
	}
	s.changes.publish(Change{Kind: ChangeFolder})
	return nil
}

// DeleteFolder removes a folder. Child folders cascade; assets inside keep
// their records with the folder reference cleared.
func (s *Store) DeleteFolder(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete folder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		s.changes.publish(Change{Kind: ChangeFolder})
	}
	return affected > 0, nil
}

const folderColumns = "id, library_id, parent_id, name, created_at"

func scanFolder(scanner interface{ Scan(dest ...any) error }) (*Folder, error) {
	var (
		folder     Folder
		parentID   sql.NullInt64
		createdRaw string
	)
	if err := scanner.Scan(&folder.ID, &folder.LibraryID, &parentID, &folder.Name, &createdRaw); err != nil {
		return nil, err
	}
	if parentID.Valid {
		id := parentID.Int64
		folder.ParentID = &id
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		folder.CreatedAt = created
	}
	return &folder, nil
}
