package object

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/me/mudd/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a Store. Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Object CRUD ---

// CreateObject inserts a new scripted object, assigning its ID and GUID.
func (s *SQLiteStore) CreateObject(ctx context.Context, obj *model.Object) error {
	if obj.GUID == "" {
		obj.GUID = uuid.New().String()
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}
	s.logger.Debug("sql", "op", "insert", "table", "objects", "name", obj.Name)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (guid, name, source, next_handle, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		obj.GUID, obj.Name, obj.Source, obj.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("object id: %w", err)
	}
	if id <= 0 || id > 0xffff {
		return fmt.Errorf("object table full: id %d out of range", id)
	}
	obj.ID = uint16(id)
	return nil
}

func (s *SQLiteStore) GetObject(ctx context.Context, id uint16) (*model.Object, error) {
	s.logger.Debug("sql", "op", "select", "table", "objects", "id", id)
	return s.scanObject(s.db.QueryRowContext(ctx,
		`SELECT id, guid, name, source, created_at FROM objects WHERE id = ?`, id))
}

func (s *SQLiteStore) GetObjectByName(ctx context.Context, name string) (*model.Object, error) {
	s.logger.Debug("sql", "op", "select", "table", "objects", "name", name)
	return s.scanObject(s.db.QueryRowContext(ctx,
		`SELECT id, guid, name, source, created_at FROM objects WHERE name = ?`, name))
}

func (s *SQLiteStore) scanObject(row *sql.Row) (*model.Object, error) {
	var obj model.Object
	var createdAt string

	err := row.Scan(&obj.ID, &obj.GUID, &obj.Name, &obj.Source, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	obj.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &obj, nil
}

func (s *SQLiteStore) ListObjects(ctx context.Context) ([]*model.Object, error) {
	s.logger.Debug("sql", "op", "select", "table", "objects")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guid, name, source, created_at FROM objects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Object
	for rows.Next() {
		var obj model.Object
		var createdAt string
		if err := rows.Scan(&obj.ID, &obj.GUID, &obj.Name, &obj.Source, &createdAt); err != nil {
			return nil, err
		}
		obj.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &obj)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountObjects(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&n)
	return n, err
}

// NextHandle allocates the next callout handle for an object, wrapping at
// 65535 and skipping 0.
func (s *SQLiteStore) NextHandle(ctx context.Context, objID uint16) (uint16, error) {
	var h int
	err := s.db.QueryRowContext(ctx,
		`SELECT next_handle FROM objects WHERE id = ?`, objID).Scan(&h)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("object %d not found", objID)
	}
	if err != nil {
		return 0, err
	}

	next := h + 1
	if next > 0xffff {
		next = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE objects SET next_handle = ? WHERE id = ?`, next, objID); err != nil {
		return 0, err
	}
	return uint16(h), nil
}

// --- Callout dataspace ---

func (s *SQLiteStore) PutCallout(ctx context.Context, rec *model.CalloutRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "callout_args",
		"object_id", rec.ObjectID, "handle", rec.Handle)

	argsJSON, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO callout_args (object_id, handle, method, args, stored, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ObjectID, rec.Handle, rec.Method, string(argsJSON), rec.Stored,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetCallout(ctx context.Context, objID, handle uint16) (*model.CalloutRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "callout_args",
		"object_id", objID, "handle", handle)

	var rec model.CalloutRecord
	var argsJSON, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT object_id, handle, method, args, stored, created_at
		 FROM callout_args WHERE object_id = ? AND handle = ?`, objID, handle,
	).Scan(&rec.ObjectID, &rec.Handle, &rec.Method, &argsJSON, &rec.Stored, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &rec, nil
}

func (s *SQLiteStore) DeleteCallout(ctx context.Context, objID, handle uint16) error {
	s.logger.Debug("sql", "op", "delete", "table", "callout_args",
		"object_id", objID, "handle", handle)

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM callout_args WHERE object_id = ? AND handle = ?`, objID, handle)
	return err
}

// DeleteAllCallouts drops every callout record, returning how many were
// removed. Used at boot when there is no snapshot to match them against.
func (s *SQLiteStore) DeleteAllCallouts(ctx context.Context) (int64, error) {
	s.logger.Debug("sql", "op", "delete", "table", "callout_args", "all", true)

	res, err := s.db.ExecContext(ctx, `DELETE FROM callout_args`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) ListCallouts(ctx context.Context) ([]*model.CalloutRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "callout_args")

	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, handle, method, args, stored, created_at
		 FROM callout_args ORDER BY object_id, handle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CalloutRecord
	for rows.Next() {
		var rec model.CalloutRecord
		var argsJSON, createdAt string
		if err := rows.Scan(&rec.ObjectID, &rec.Handle, &rec.Method, &argsJSON,
			&rec.Stored, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
