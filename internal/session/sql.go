package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// SQL drivers accepted by OpenSQLStore.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQLStore keeps documents as JSON payloads in a sessions table. It works
// against SQLite and Postgres through database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// OpenSQLStore opens the database and ensures the sessions table exists.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: unsupported sql driver %q", ErrSessionIO, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSessionIO, driver, err)
	}
	s := &SQLStore{db: db, driver: driver, now: time.Now}
	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ensureTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS sessions (
		name TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: ensure sessions table: %v", ErrSessionIO, err)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, name string, doc Document) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := JSON.Marshal(doc)
	if err != nil {
		return err
	}
	q := s.rebind(`INSERT INTO sessions(name,payload,updated_at) VALUES(?,?,?)
		ON CONFLICT(name) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, baseName(name), string(data), s.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("%w: upsert session %s: %v", ErrSessionIO, name, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, name string) (Document, error) {
	if err := validName(name); err != nil {
		return Document{}, err
	}
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM sessions WHERE name=?`), baseName(name)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: select session %s: %v", ErrSessionIO, name, err)
	}
	return JSON.Unmarshal([]byte(payload))
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sessions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrSessionIO, err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: scan session name: %v", ErrSessionIO, err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrSessionIO, err)
	}
	return names, nil
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE name=?`), baseName(name))
	if err != nil {
		return fmt.Errorf("%w: delete session %s: %v", ErrSessionIO, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}
