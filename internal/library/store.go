package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"icebox/internal/config"
)

// Store manages library metadata persistence backed by SQLite.
type Store struct {
	db      *sql.DB
	path    string
	changes *changeHub
}

// Open initializes or connects to the metadata database under the configured
// data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "library.db"))
}

// OpenPath opens the metadata database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, changes: newChangeHub()}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection and drops all change
// subscribers.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.changes.close()
	return s.db.Close()
}

// Subscribe registers a change-event observer. See changeHub for delivery
// semantics.
func (s *Store) Subscribe() (<-chan Change, func()) {
	return s.changes.subscribe()
}

// NotifyExternalChange records that the database was modified outside this
// process (the store's own cloud replication) and wakes subscribers.
func (s *Store) NotifyExternalChange() {
	s.changes.publish(Change{Kind: ChangeExternal})
}

// CreateLibrary inserts a library with the given policy.
func (s *Store) CreateLibrary(ctx context.Context, name, rootDir string, mode StorageMode, budgetBytes int64) (*Library, error) {
	if name == "" {
		return nil, errors.New("library name is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO libraries (name, root_dir, storage_mode, cache_budget_bytes, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		name,
		rootDir,
		string(mode),
		budgetBytes,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert library: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	s.changes.publish(Change{Kind: ChangeLibrary, LibraryID: id})
	return s.GetLibrary(ctx, id)
}

// GetLibrary fetches a library by identifier. Returns nil when absent.
func (s *Store) GetLibrary(ctx context.Context, id int64) (*Library, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id)
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get library: %w", err)
	}
	return lib, nil
}

// GetLibraryByName fetches a library by its unique name. Returns nil when
// absent.
func (s *Store) GetLibraryByName(ctx context.Context, name string) (*Library, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE name = ?`, name)
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get library by name: %w", err)
	}
	return lib, nil
}

// ListLibraries returns all libraries ordered by creation time.
func (s *Store) ListLibraries(ctx context.Context) ([]*Library, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+libraryColumns+` FROM libraries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	var libs []*Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}

// UpdatePolicy applies a storage policy to a library in one step. The policy
// is never partially applied; enforcement picks the new values up on its next
// pass.
func (s *Store) UpdatePolicy(ctx context.Context, libraryID int64, mode StorageMode, budgetBytes int64) (*Library, error) {
	if mode != ModeKeepAllLocal && mode != ModeOptimizeStorage {
		return nil, fmt.Errorf("unknown storage mode %q", mode)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE libraries SET storage_mode = ?, cache_budget_bytes = ?, updated_at = ? WHERE id = ?`,
		string(mode),
		budgetBytes,
		time.Now().UTC().Format(time.RFC3339Nano),
		libraryID,
	)
	if err != nil {
		return nil, fmt.Errorf("update policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("library %d not found", libraryID)
	}
	s.changes.publish(Change{Kind: ChangeLibrary, LibraryID: libraryID})
	return s.GetLibrary(ctx, libraryID)
}

const libraryColumns = "id, name, root_dir, storage_mode, cache_budget_bytes, created_at, updated_at"

func scanLibrary(scanner interface{ Scan(dest ...any) error }) (*Library, error) {
	var (
		lib        Library
		mode       string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&lib.ID, &lib.Name, &lib.RootDir, &mode, &lib.CacheBudgetBytes, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	lib.StorageMode = StorageMode(mode)
	if created, err := parseTimeString(createdRaw); err == nil {
		lib.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		lib.UpdatedAt = updated
	}
	return &lib, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
