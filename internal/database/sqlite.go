package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cs-go/internal/cs"
	"cs-go/internal/database/migrations"
	"cs-go/internal/model"
	"cs-go/internal/schema"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements cs.Database on SQLite. Tables follow the
// schema registry; their columns are checked against it at open time.
type SQLiteDatabase struct {
	db       *sql.DB
	registry *schema.Registry
}

// NewSQLiteDatabase opens the database at path (or ":memory:"), applies
// pending migrations and refuses a dirty or mismatched schema version. Every
// registered kind must have a table with the declared columns.
func NewSQLiteDatabase(path string, registry *schema.Registry) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := migrations.Status(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	s := &SQLiteDatabase{db: db, registry: registry}
	if err := s.verifySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenConnection opens a SQLite connection. The pool is limited to one
// connection so ":memory:" databases are shared and writes are serialized.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// verifySchema compares each registered kind with its table's columns.
func (s *SQLiteDatabase) verifySchema() error {
	for _, kind := range s.registry.Kinds() {
		columns, err := s.columns(kind.Name)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			return &cs.ConfigurationError{Key: kind.Name, Reason: "no table for registered kind"}
		}
		for _, f := range kind.Fields {
			if !columns[f.Name] {
				return &cs.ConfigurationError{Key: kind.Name, Reason: fmt.Sprintf("table has no column %s", f.Name)}
			}
		}
	}
	return nil
}

func (s *SQLiteDatabase) columns(table string) (map[string]bool, error) {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("reading columns of %s: %w", table, err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// Record operations

func (s *SQLiteDatabase) Upsert(e model.Entity) error {
	kind, err := s.registry.Kind(e.Kind())
	if err != nil {
		return err
	}
	rec := e.Record()
	if err := kind.Check(rec); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	id, ok := rec[schema.IDField].(int64)
	if !ok {
		return fmt.Errorf("%s record has no id", kind.Name)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", quote(kind.Name)), id).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking %s %d: %w", kind.Name, id, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if missing := kind.MissingRequired(rec); len(missing) > 0 {
			return fmt.Errorf("creating %s %d: missing required fields %s", kind.Name, id, strings.Join(missing, ", "))
		}
	}

	query, args := upsertStatement(kind.Name, rec)
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("upserting %s %d: %w", kind.Name, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s %d: %w", kind.Name, id, err)
	}
	return nil
}

// upsertStatement merges only the columns present in rec.
func upsertStatement(table string, rec schema.Record) (string, []any) {
	keys := rec.Keys()
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	var sets []string
	for i, k := range keys {
		cols[i] = quote(k)
		marks[i] = "?"
		args[i] = rec[k]
		if k != schema.IDField {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", quote(k), quote(k)))
		}
	}

	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) %s",
		quote(table), strings.Join(cols, ", "), strings.Join(marks, ", "), conflict)
	return query, args
}

func (s *SQLiteDatabase) Get(kindName string, id int64) (schema.Record, error) {
	recs, err := s.Find(kindName, schema.Record{schema.IDField: id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *SQLiteDatabase) Find(kindName string, eq schema.Record) ([]schema.Record, error) {
	kind, err := s.registry.Kind(kindName)
	if err != nil {
		return nil, err
	}
	if err := kind.Check(eq); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	var conds []string
	var args []any
	for _, k := range eq.Keys() {
		conds = append(conds, quote(k)+" = ?")
		args = append(args, eq[k])
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return s.query(kind, where, args...)
}

func (s *SQLiteDatabase) FindPending(kindName string) ([]schema.Record, error) {
	kind, err := s.trackedKind(kindName)
	if err != nil {
		return nil, err
	}
	return s.query(kind, " WHERE "+pendingCondition)
}

func (s *SQLiteDatabase) CountPending(kindName string) (int64, error) {
	kind, err := s.trackedKind(kindName)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", quote(kind.Name), pendingCondition)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending %s: %w", kind.Name, err)
	}
	return n, nil
}

// pendingCondition matches model.IsPending.
const pendingCondition = "(saved_at IS NULL OR (updated_at IS NOT NULL AND saved_at < updated_at))"

func (s *SQLiteDatabase) trackedKind(name string) (*schema.Kind, error) {
	kind, err := s.registry.Kind(name)
	if err != nil {
		return nil, err
	}
	if !kind.TracksSaves {
		return nil, fmt.Errorf("kind %s does not track saves", name)
	}
	return kind, nil
}

// query selects every declared column of kind in storage order and drops
// null values from the returned records.
func (s *SQLiteDatabase) query(kind *schema.Kind, where string, args ...any) ([]schema.Record, error) {
	cols := make([]string, len(kind.Fields))
	for i, f := range kind.Fields {
		cols[i] = quote(f.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY rowid", strings.Join(cols, ", "), quote(kind.Name), where)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", kind.Name, err)
	}
	defer rows.Close()

	var recs []schema.Record
	for rows.Next() {
		dest := make([]any, len(kind.Fields))
		for i, f := range kind.Fields {
			dest[i] = scanTarget(f.Type)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", kind.Name, err)
		}

		rec := schema.Record{}
		for i, f := range kind.Fields {
			if v, ok := scannedValue(dest[i]); ok {
				rec[f.Name] = v
			}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", kind.Name, err)
	}
	return recs, nil
}

func scanTarget(t schema.FieldType) any {
	switch t {
	case schema.Integer:
		return &sql.NullInt64{}
	case schema.Boolean:
		return &sql.NullBool{}
	default:
		return &sql.NullString{}
	}
}

func scannedValue(dest any) (any, bool) {
	switch v := dest.(type) {
	case *sql.NullInt64:
		return v.Int64, v.Valid
	case *sql.NullBool:
		return v.Bool, v.Valid
	case *sql.NullString:
		return v.String, v.Valid
	}
	return nil, false
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Sync run history

func (s *SQLiteDatabase) CreateSyncRun(run *model.SyncRun) error {
	_, err := s.db.Exec(
		"INSERT INTO sync_runs (id, started_at, status) VALUES (?, ?, ?)",
		run.ID, run.StartedAt.UTC(), run.Status,
	)
	if err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FinishSyncRun(run *model.SyncRun) error {
	var finished any
	if run.FinishedAt.Valid {
		finished = run.FinishedAt.Time.UTC()
	}
	res, err := s.db.Exec(`UPDATE sync_runs
		SET finished_at = ?, status = ?, courses_traversed = ?, files_saved = ?,
		    links_saved = ?, items_failed = ?, error = ?
		WHERE id = ?`,
		finished, run.Status, run.CoursesTraversed, run.FilesSaved,
		run.LinksSaved, run.ItemsFailed, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing sync run: no run with id %s", run.ID)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncRuns(limit int) ([]*model.SyncRun, error) {
	q := `SELECT id, started_at, finished_at, status, courses_traversed, files_saved,
		links_saved, items_failed, error
		FROM sync_runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.SyncRun
	for rows.Next() {
		run := &model.SyncRun{}
		var started time.Time
		if err := rows.Scan(&run.ID, &started, &run.FinishedAt, &run.Status, &run.CoursesTraversed,
			&run.FilesSaved, &run.LinksSaved, &run.ItemsFailed, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		run.StartedAt = started
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ cs.Database = (*SQLiteDatabase)(nil)
