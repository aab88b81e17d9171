package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/hupe1980/rangeidx/codec"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/selection"
)

const driver = "sqlite"

// ErrCorrupt is returned for databases without the expected tables.
var ErrCorrupt = errors.New("sqlitestore: corrupt index database")

// Store implements index.Store.
type Store struct {
	logger *slog.Logger
}

var _ index.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Name() string      { return "sqlite" }
func (s *Store) Extension() string { return ".db" }

// Save writes idx to a new database at path. path must not exist.
func (s *Store) Save(ctx context.Context, path string, idx *index.Index) error {
	db, err := sql.Open(driver, path)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	// The file is written once to a temporary name and renamed into place.
	for _, pragma := range []string{"PRAGMA journal_mode = OFF", "PRAGMA synchronous = OFF"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := idx.Schema()
	for _, stmt := range createStatements(schema) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: create: %w", err)
		}
	}

	schemaJSON, err := codec.Default.Marshal(schema)
	if err != nil {
		return err
	}
	for k, v := range map[string]string{"resource": idx.Resource(), "schema": string(schemaJSON)} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("sqlitestore: meta: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, insertStatement(schema))
	if err != nil {
		return fmt.Errorf("sqlitestore: prepare insert: %w", err)
	}
	defer insert.Close()

	args := make([]any, 3+len(schema))
	for i := range idx.Len() {
		e := idx.Entry(i)
		args[0], args[1], args[2] = e.Path, e.Offset, e.Length
		for j, k := range schema {
			if v, ok := e.Attrs[k]; ok {
				args[3+j] = v
			} else {
				args[3+j] = nil
			}
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlitestore: insert entry %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", idx.Version())); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Debug("index saved", "path", path, "entries", idx.Len(), "schema", len(schema))
	return nil
}

// Load reads the whole index stored at path.
func (s *Store) Load(ctx context.Context, path string) (*index.Index, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.Index(ctx)
}

// DB is an opened index database.
type DB struct {
	db       *sql.DB
	resource string
	schema   []string
	version  int
}

// Open opens the database at path and checks its version.
func Open(ctx context.Context, path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, path)
	if err != nil {
		return nil, err
	}
	db := &DB{db: sqlDB}
	if err := db.readMeta(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) readMeta(ctx context.Context) error {
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&d.version); err != nil {
		return err
	}
	if d.version != index.Version {
		return fmt.Errorf("sqlitestore: %w: have %d, want %d", index.ErrVersionMismatch, d.version, index.Version)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	var haveSchema bool
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		switch k {
		case "resource":
			d.resource = v
		case "schema":
			if err := codec.Default.Unmarshal([]byte(v), &d.schema); err != nil {
				return fmt.Errorf("%w: schema: %v", ErrCorrupt, err)
			}
			haveSchema = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if !haveSchema {
		return fmt.Errorf("%w: missing schema", ErrCorrupt)
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// Resource returns the indexed resource.
func (d *DB) Resource() string { return d.resource }

// Schema returns the attribute names in discovery order.
func (d *DB) Schema() []string { return d.schema }

// Index loads every entry in insertion order.
func (d *DB) Index(ctx context.Context) (*index.Index, error) {
	entries, err := d.query(ctx, selectStatement(d.schema)+" ORDER BY rowid", nil)
	if err != nil {
		return nil, err
	}
	return index.New(d.resource, d.version, d.schema, entries)
}

// Lookup returns the entries matching sel with the same semantics and
// ordering as index.Index.Lookup. Scalar and list constraints are
// evaluated by SQLite, predicates in Go.
func (d *DB) Lookup(ctx context.Context, sel selection.Selection, opts ...index.LookupOption) ([]index.Entry, error) {
	o := index.NewLookupOptions(opts...)

	known := make(map[string]bool, len(d.schema))
	for _, k := range d.schema {
		known[k] = true
	}

	var (
		where []string
		args  []any
		preds = make(selection.Selection)
	)
	for _, k := range sel.Constrained() {
		if !known[k] {
			if err := o.Unknown(k); err != nil {
				return nil, err
			}
			continue
		}
		v := sel[k]
		if !v.Enumerable() {
			preds[k] = v
			continue
		}
		values := v.Values()
		if len(values) == 0 {
			return nil, nil
		}
		where = append(where, fmt.Sprintf("e.%s IN (%s)", column(k), placeholders(len(values))))
		for _, s := range values {
			args = append(args, s)
		}
	}

	q := selectStatement(d.schema)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY (SELECT MIN(f.rowid) FROM entries f WHERE f."path" = e."path"), e."offset", e.rowid`

	entries, err := d.query(ctx, q, args)
	if err != nil || len(preds) == 0 {
		return entries, err
	}
	out := entries[:0]
	for _, e := range entries {
		if preds.Match(e.Attrs) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *DB) query(ctx context.Context, q string, args []any) ([]index.Entry, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query: %w", err)
	}
	defer rows.Close()

	vals := make([]sql.NullString, len(d.schema))
	dest := make([]any, 3+len(d.schema))
	var out []index.Entry
	for rows.Next() {
		var e index.Entry
		dest[0], dest[1], dest[2] = &e.Path, &e.Offset, &e.Length
		for i := range vals {
			dest[3+i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		e.Attrs = make(map[string]string, len(d.schema))
		for i, k := range d.schema {
			if vals[i].Valid {
				e.Attrs[k] = vals[i].String
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func createStatements(schema []string) []string {
	cols := []string{`"path" TEXT NOT NULL`, `"offset" INTEGER NOT NULL`, `"length" INTEGER NOT NULL`}
	for _, k := range schema {
		cols = append(cols, column(k)+" TEXT")
	}
	stmts := []string{
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE entries (` + strings.Join(cols, ", ") + `)`,
		`CREATE INDEX idx_entries_path ON entries ("path", "offset")`,
	}
	for i, k := range schema {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX idx_entries_%d ON entries (%s)", i, column(k)))
	}
	return stmts
}

func insertStatement(schema []string) string {
	cols := []string{`"path"`, `"offset"`, `"length"`}
	for _, k := range schema {
		cols = append(cols, column(k))
	}
	return fmt.Sprintf("INSERT INTO entries (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders(len(cols)))
}

func selectStatement(schema []string) string {
	cols := []string{`e."path"`, `e."offset"`, `e."length"`}
	for _, k := range schema {
		cols = append(cols, "e."+column(k))
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM entries e"
}

// column returns the quoted column name of attribute k.
func column(k string) string {
	return `"i_` + strings.ReplaceAll(k, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
