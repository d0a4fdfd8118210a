// Package history persists terminal download outcomes in a local SQLite
// file and tracks which of them have been pushed to users.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Record statuses. The engine's "complete" becomes "completed" here;
// "error" and "removed" carry over as-is.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusRemoved   = "removed"
)

// Record is one history row. Files and Extra are opaque JSON blobs that
// round-trip through the store untouched.
type Record struct {
	ID           int64
	GID          string
	Name         string
	Status       string
	Timestamp    time.Time
	Size         int64
	ErrorCode    int
	ErrorMessage string
	Files        json.RawMessage
	Notified     bool
	Extra        json.RawMessage
}

// StorageError wraps any database failure surfaced by the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithMaxHistory bounds how many records are retained; older rows are
// trimmed after each upsert. Zero or negative disables trimming.
func WithMaxHistory(n int) StoreOption {
	return func(s *Store) { s.maxHistory = n }
}

// Store is the SQLite-backed history store.
// All goroutines serialize through one connection (SetMaxOpenConns(1))
// so concurrent writers never hit SQLITE_BUSY.
type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	maxHistory int
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath, creating the
// parent directory if needed.
func New(dbPath string, opts ...StoreOption) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("create db dir", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, storageErr("open", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger, maxHistory: 100}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("history store opened", "path", dbPath)
	return s, nil
}

// Init creates the schema.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS download_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gid TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			size INTEGER,
			error_code INTEGER,
			error_message TEXT,
			files TEXT,
			notified INTEGER DEFAULT 0,
			extra TEXT
		)`,
		`PRAGMA journal_mode = WAL`,
		`CREATE INDEX IF NOT EXISTS idx_gid ON download_history(gid)`,
		`CREATE INDEX IF NOT EXISTS idx_timestamp ON download_history(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_status ON download_history(status)`,
	}
	for _, ddl := range stmts {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return storageErr("init", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes a record keyed by GID. An existing row keeps its id and its
// notified flag; only MarkNotified may set notified. Returns the row id.
func (s *Store) Upsert(ctx context.Context, rec Record) (int64, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	files := blobOrNil(rec.Files)
	extra := blobOrNil(rec.Extra)

	// A single statement keeps racing first-time writers for the same gid
	// from tripping over the UNIQUE index. The conflict branch leaves
	// notified alone.
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO download_history
			(gid, name, status, timestamp, size, error_code, error_message, files, notified, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(gid) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			timestamp = excluded.timestamp,
			size = excluded.size,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			files = excluded.files,
			extra = excluded.extra`,
		rec.GID, rec.Name, rec.Status, rec.Timestamp.Unix(), rec.Size,
		rec.ErrorCode, rec.ErrorMessage, files, extra); err != nil {
		return 0, storageErr("upsert", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM download_history WHERE gid = ?`, rec.GID).Scan(&id); err != nil {
		return 0, storageErr("upsert select id", err)
	}

	if err := s.trim(ctx); err != nil {
		s.logger.Warn("history trim failed", "error", err)
	}
	s.logger.Debug("history upserted", "gid", rec.GID, "status", rec.Status, "id", id)
	return id, nil
}

// List returns one page of records ordered newest first, plus the total
// count for the filter. statusFilter of "" matches everything. Pages out of
// range yield an empty slice with the true total.
func (s *Store) List(ctx context.Context, page, pageSize int, statusFilter string) ([]Record, int, error) {
	if page < 1 {
		page = 1
	}
	where, args := "", []any{}
	if statusFilter != "" {
		where = " WHERE status = ?"
		args = append(args, statusFilter)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM download_history"+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("list count", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.db.QueryContext(ctx,
		selectCols+where+" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, storageErr("list", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, 0, storageErr("list scan", err)
	}
	return recs, total, nil
}

// GetByGID returns the record for gid, or nil when none exists.
func (s *Store) GetByGID(ctx context.Context, gid string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectCols+" WHERE gid = ?", gid)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get by gid", err)
	}
	return &rec, nil
}

// Search returns records whose name or error message contains keyword
// (case-insensitive), paginated like List.
func (s *Store) Search(ctx context.Context, keyword string, page, pageSize int) ([]Record, int, error) {
	if page < 1 {
		page = 1
	}
	pattern := "%" + keyword + "%"

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM download_history WHERE name LIKE ? OR error_message LIKE ?`,
		pattern, pattern).Scan(&total); err != nil {
		return nil, 0, storageErr("search count", err)
	}

	rows, err := s.db.QueryContext(ctx,
		selectCols+` WHERE name LIKE ? OR error_message LIKE ?
		 ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		pattern, pattern, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, storageErr("search", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, 0, storageErr("search scan", err)
	}
	return recs, total, nil
}

// ListUnnotifiedTerminal returns completed and errored records whose
// notification has not gone out yet, newest first.
func (s *Store) ListUnnotifiedTerminal(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` WHERE notified = 0 AND status IN (?, ?) ORDER BY timestamp DESC`,
		StatusCompleted, StatusError)
	if err != nil {
		return nil, storageErr("list unnotified", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, storageErr("list unnotified scan", err)
	}
	return recs, nil
}

// MarkNotified flags the record for gid as notified. Returns false when no
// such record exists.
func (s *Store) MarkNotified(ctx context.Context, gid string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE download_history SET notified = 1 WHERE gid = ?`, gid)
	if err != nil {
		return false, storageErr("mark notified", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("mark notified", err)
	}
	return n > 0, nil
}

// Clear deletes all history and returns how many rows went away.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM download_history`)
	if err != nil {
		return 0, storageErr("clear", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear", err)
	}
	s.logger.Info("history cleared", "deleted", n)
	return n, nil
}

// trim drops the oldest rows beyond maxHistory.
func (s *Store) trim(ctx context.Context) error {
	if s.maxHistory <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM download_history
		WHERE id NOT IN (
			SELECT id FROM download_history
			ORDER BY timestamp DESC, id DESC LIMIT ?
		)`, s.maxHistory)
	if err != nil {
		return storageErr("trim", err)
	}
	return nil
}

const selectCols = `SELECT id, gid, name, status, timestamp, size,
	error_code, error_message, files, notified, extra FROM download_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		ts         int64
		size       sql.NullInt64
		errCode    sql.NullInt64
		errMsg     sql.NullString
		files      sql.NullString
		extra      sql.NullString
		notifiedIn int
	)
	err := row.Scan(&rec.ID, &rec.GID, &rec.Name, &rec.Status, &ts, &size,
		&errCode, &errMsg, &files, &notifiedIn, &extra)
	if err != nil {
		return Record{}, err
	}
	rec.Timestamp = time.Unix(ts, 0)
	rec.Size = size.Int64
	rec.ErrorCode = int(errCode.Int64)
	rec.ErrorMessage = errMsg.String
	if files.Valid {
		rec.Files = json.RawMessage(files.String)
	}
	if extra.Valid {
		rec.Extra = json.RawMessage(extra.String)
	}
	rec.Notified = notifiedIn != 0
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func blobOrNil(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
