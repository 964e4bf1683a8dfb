package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"icebox/internal/config"
)

// Store manages task persistence backed by SQLite. The task database lives
// next to the metadata database but is independent of it: clearing tasks
// never touches asset records.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database under the configured
// data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "tasks.db"))
}

// OpenPath opens the task database at an explicit path.
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

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue inserts a task unless a non-terminal task for (assetID, kind)
// already exists. The returned bool reports whether a new task was created;
// when false, the existing active task is returned unchanged.
func (s *Store) Enqueue(ctx context.Context, assetID, libraryID int64, kind Kind, payloadJSON string) (*Task, bool, error) {
	if !ValidKind(kind) {
		return nil, false, fmt.Errorf("unknown task kind %q", kind)
	}

	existing, err := s.ActiveForAsset(ctx, assetID, kind)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (asset_id, library_id, kind, status, attempts, last_error, payload_json, next_run_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, NULL, ?, ?, ?, ?)`,
		assetID,
		libraryID,
		string(kind),
		StatusQueued,
		nullableString(payloadJSON),
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		// A concurrent enqueue can win the race; the partial unique index
		// rejects the duplicate and the winner is returned instead.
		if isUniqueViolation(err) {
			winner, lookupErr := s.ActiveForAsset(ctx, assetID, kind)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// ActiveForAsset returns the non-terminal task for (assetID, kind), or nil.
func (s *Store) ActiveForAsset(ctx context.Context, assetID int64, kind Kind) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE asset_id = ? AND kind = ? AND status IN (?, ?)
         LIMIT 1`,
		assetID,
		string(kind),
		StatusQueued,
		StatusRunning,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active task lookup: %w", err)
	}
	return task, nil
}

// GetByID fetches a task by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ClaimNext atomically claims the oldest due queued task of the given kind:
// FIFO within kind, skipping tasks whose retry backoff has not elapsed. The
// claim increments the attempt counter. Returns nil when nothing is due.
func (s *Store) ClaimNext(ctx context.Context, kind Kind, now time.Time) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nowStr := now.UTC().Format(time.RFC3339Nano)
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE kind = ? AND status = ? AND next_run_at <= ?
         ORDER BY id LIMIT 1`,
		string(kind),
		StatusQueued,
		nowStr,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable task: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		StatusRunning,
		nowStr,
		nowStr,
		task.ID,
	); err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return s.GetByID(ctx, task.ID)
}

// MarkSucceeded transitions a task to its terminal success state.
func (s *Store) MarkSucceeded(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, last_error = NULL, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		StatusSucceeded,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	return nil
}

// MarkFailed transitions a task to its terminal failure state.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, last_error = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Requeue returns a running task to the queue, scheduled to run after the
// given delay. When restoreAttempt is true the attempt consumed by the claim
// is handed back — used for hydration waits, which are not failures.
func (s *Store) Requeue(ctx context.Context, id int64, delay time.Duration, message string, restoreAttempt bool) error {
	now := time.Now().UTC()
	decrement := 0
	if restoreAttempt {
		decrement = 1
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, attempts = MAX(attempts - ?, 0), last_error = ?,
             next_run_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusQueued,
		decrement,
		nullableString(message),
		now.Add(delay).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ActiveAssetIDs returns the assets referenced by any non-terminal task.
// The budget enforcer treats these assets as ineligible for eviction.
func (s *Store) ActiveAssetIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT asset_id FROM tasks WHERE status IN (?, ?)`,
		StatusQueued,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("query active assets: %w", err)
	}
	defer rows.Close()

	active := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		active[id] = struct{}{}
	}
	return active, rows.Err()
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var items []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, rows.Err()
}

// TasksByAsset returns every task for one asset, oldest first.
func (s *Store) TasksByAsset(ctx context.Context, assetID int64) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE asset_id = ? ORDER BY id`,
		assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("tasks by asset: %w", err)
	}
	defer rows.Close()

	var items []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, rows.Err()
}

const taskColumns = "id, asset_id, library_id, kind, status, attempts, last_error, payload_json, next_run_at, last_heartbeat, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task         Task
		kindStr      string
		statusStr    string
		lastError    sql.NullString
		payload      sql.NullString
		nextRunRaw   string
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&task.ID,
		&task.AssetID,
		&task.LibraryID,
		&kindStr,
		&statusStr,
		&task.Attempts,
		&lastError,
		&payload,
		&nextRunRaw,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task.Kind = Kind(kindStr)
	task.Status = Status(statusStr)
	task.LastError = lastError.String
	task.PayloadJSON = payload.String

	if next, err := parseTimeString(nextRunRaw); err == nil {
		task.NextRunAt = next
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			task.LastHeartbeat = &heartbeat
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return &task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
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

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}
