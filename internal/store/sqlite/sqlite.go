package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/maloquacious/gamingdb/internal/store"
	_ "modernc.org/sqlite"
)

var errNotOpened = errors.New("database not opened")

// SQLiteStore implements the Store interface using modernc.org/sqlite.
type SQLiteStore struct {
	dbPath         string
	db             *sql.DB
	expectedSchema string
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLiteStore.
func New(dbPath string, expectedSchema string) *SQLiteStore {
	return &SQLiteStore{
		dbPath:         dbPath,
		expectedSchema: expectedSchema,
	}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Open opens the SQLite database for writing with safe defaults.
// The file is created if it does not exist.
func (s *SQLiteStore) Open() error {
	db, err := sql.Open("sqlite", fileURI(s.dbPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas below are per-connection
	db.SetMaxOpenConns(1)

	// Rollback journal, not WAL: probes open the file read-only and WAL
	// would need a writable -shm beside it.
	pragmas := []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s.db = db
	return nil
}

// OpenReadOnly opens an existing database without the ability to create or
// modify it. busyTimeout bounds how long a query waits on a locked file.
func (s *SQLiteStore) OpenReadOnly(busyTimeout time.Duration) error {
	dsn := fmt.Sprintf("%s?mode=ro&_pragma=busy_timeout(%d)", fileURI(s.dbPath), busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database read-only: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db
	return nil
}

// fileURI escapes path into a file: URI so that '?', '#' and '%' in file
// names are not read as DSN syntax.
func fileURI(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates the gaming schema and records version in schema_migrations.
// It is safe to call on a database that already has the schema.
func (s *SQLiteStore) InitSchema(ctx context.Context, version string) error {
	if s.db == nil {
		return errNotOpened
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, strftime('%s', 'now'))`, version)
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Seed inserts the seed rows. Rows already present are left alone, so
// repeated calls do not grow the tables.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	if s.db == nil {
		return errNotOpened
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ai := range seedAppInfo {
		if _, err := tx.ExecContext(ctx, upsertAppInfo, ai.Key, ai.Value); err != nil {
			return fmt.Errorf("failed to seed app_info %q: %w", ai.Key, err)
		}
	}
	for _, u := range seedUsers {
		if _, err := tx.ExecContext(ctx, insertUser, u.Username, u.Email, u.DisplayName, u.Locale, u.Username, u.Email); err != nil {
			return fmt.Errorf("failed to seed user %q: %w", u.Username, err)
		}
	}
	for _, g := range seedGames {
		if _, err := tx.ExecContext(ctx, insertGame, g.Code, g.Title, g.Description, g.Category, g.Active, g.Code); err != nil {
			return fmt.Errorf("failed to seed game %q: %w", g.Code, err)
		}
	}
	for _, sc := range seedScores {
		if _, err := tx.ExecContext(ctx, insertScore, sc.Score, sc.GameCode, sc.Username, sc.Score); err != nil {
			return fmt.Errorf("failed to seed score %s/%s: %w", sc.GameCode, sc.Username, err)
		}
	}
	for _, ev := range seedEvents {
		if _, err := tx.ExecContext(ctx, insertEvent, ev.Type, ev.Props, ev.Username, ev.GameCode, ev.Type, ev.Props); err != nil {
			return fmt.Errorf("failed to seed event %q: %w", ev.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// QuickCheck runs PRAGMA quick_check and returns its first row ("ok" on a
// sound database). Files that are not SQLite databases fail here.
func (s *SQLiteStore) QuickCheck(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", errNotOpened
	}

	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return "", fmt.Errorf("quick_check failed: %w", err)
	}
	return result, nil
}

// CheckState returns the current state of the datastore.
func (s *SQLiteStore) CheckState(ctx context.Context) (store.StoreState, error) {
	if s.db == nil {
		return store.StateMissing, errNotOpened
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('schema_migrations', ?)`, readyTable).Scan(&count)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to check schema tables: %w", err)
	}

	if count < 2 {
		return store.StateUninitialized, nil
	}

	version, err := s.GetSchemaVersion(ctx)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to get schema version: %w", err)
	}

	if version != s.expectedSchema {
		return store.StateVersionMismatch, nil
	}

	return store.StateReady, nil
}

// GetSchemaVersion returns the current schema version from the database.
func (s *SQLiteStore) GetSchemaVersion(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", errNotOpened
	}

	var version string
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_migrations ORDER BY applied_at DESC, rowid DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}

	return version, nil
}

// Stats counts user tables and app_info rows.
func (s *SQLiteStore) Stats(ctx context.Context) (store.Stats, error) {
	if s.db == nil {
		return store.Stats{}, errNotOpened
	}

	var st store.Stats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`).Scan(&st.Tables)
	if err != nil {
		return st, fmt.Errorf("failed to count tables: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_info`).Scan(&st.AppInfoRecords); err != nil {
		return st, fmt.Errorf("failed to count app_info: %w", err)
	}
	return st, nil
}

// Tables lists user table names in alphabetical order.
func (s *SQLiteStore) Tables(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CountRows returns the number of rows in table. table must be one of the
// names returned by Tables.
func (s *SQLiteStore) CountRows(ctx context.Context, table string) (int, error) {
	if s.db == nil {
		return 0, errNotOpened
	}

	var n int
	// table names cannot be bound as parameters
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
