// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/dialect"
)

// State is the Migration Persistence component, backed by one _Migration
// table per namespace (schema name on Postgres/MySQL, the database file
// itself on SQLite).
type State struct {
	conn   dbconn.DB
	schema string
}

// New returns a State bound to conn, scoped to schema (ignored on SQLite).
func New(conn dbconn.DB, schema string) *State {
	return &State{conn: conn, schema: schema}
}

func (s *State) table() string {
	return s.conn.Dialect().Qualify(s.schema, "_Migration")
}

// Init creates the _Migration table if it does not already exist.
func (s *State) Init(ctx context.Context) error {
	var ddl string
	switch s.conn.Dialect() {
	case dialect.Postgres:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			revision           SERIAL PRIMARY KEY,
			name               TEXT NOT NULL,
			datamodel          TEXT NOT NULL,
			status             TEXT NOT NULL,
			applied            INTEGER NOT NULL DEFAULT 0,
			rolled_back        INTEGER NOT NULL DEFAULT 0,
			datamodel_steps    TEXT NOT NULL,
			database_migration TEXT NOT NULL,
			errors             TEXT NOT NULL DEFAULT '[]',
			started_at         TIMESTAMP(3) NOT NULL DEFAULT now(),
			finished_at        TIMESTAMP(3)
		)`, s.table())
	case dialect.Mysql:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			revision           INTEGER AUTO_INCREMENT PRIMARY KEY,
			name               TEXT NOT NULL,
			datamodel          TEXT NOT NULL,
			status             VARCHAR(32) NOT NULL,
			applied            INTEGER NOT NULL DEFAULT 0,
			rolled_back        INTEGER NOT NULL DEFAULT 0,
			datamodel_steps    TEXT NOT NULL,
			database_migration TEXT NOT NULL,
			errors             TEXT NOT NULL,
			started_at         DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
			finished_at        DATETIME(3) NULL
		)`, s.table())
	case dialect.Sqlite:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			revision           INTEGER PRIMARY KEY AUTOINCREMENT,
			name               TEXT NOT NULL,
			datamodel          TEXT NOT NULL,
			status             TEXT NOT NULL,
			applied            INTEGER NOT NULL DEFAULT 0,
			rolled_back        INTEGER NOT NULL DEFAULT 0,
			datamodel_steps    TEXT NOT NULL,
			database_migration TEXT NOT NULL,
			errors             TEXT NOT NULL DEFAULT '[]',
			started_at         INTEGER NOT NULL,
			finished_at        INTEGER
		)`, s.table())
	}
	_, err := s.conn.ExecContext(ctx, ddl)
	return err
}

// Reset deletes all persisted migration records and, per §4.B, drops the
// schema on Postgres/MySQL or the database file on SQLite. Dropping an
// open SQLite file out from under the live *sql.DB handle is not possible
// through database/sql, so SQLite instead drops every user table — the
// closest achievable equivalent of "start over", documented as a deviation
// in the accompanying design notes.
func (s *State) Reset(ctx context.Context) error {
	switch s.conn.Dialect() {
	case dialect.Postgres:
		_, err := s.conn.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.conn.Dialect().Quote(s.schema)))
		if err != nil {
			return err
		}
		_, err = s.conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", s.conn.Dialect().Quote(s.schema)))
		return err
	case dialect.Mysql:
		_, err := s.conn.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", s.conn.Dialect().Quote(s.schema)))
		if err != nil {
			return err
		}
		_, err = s.conn.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", s.conn.Dialect().Quote(s.schema)))
		return err
	case dialect.Sqlite:
		return s.dropAllSqliteTables(ctx)
	}
	return fmt.Errorf("state: unsupported dialect %v", s.conn.Dialect())
}

func (s *State) dropAllSqliteTables(ctx context.Context) error {
	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, name := range names {
		if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", dialect.Sqlite.Quote(name))); err != nil {
			return err
		}
	}
	return nil
}

const selectColumns = "revision, name, datamodel, status, applied, rolled_back, datamodel_steps, database_migration, errors, started_at, finished_at"

// Last returns the most recent migration with status Success, by descending
// revision, or nil if none exists.
func (s *State) Last(ctx context.Context) (*Migration, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE status = %s ORDER BY revision DESC LIMIT 1",
		selectColumns, s.table(), s.placeholder(1))
	return s.scanOne(ctx, query, string(StatusSuccess))
}

// MostRecent returns the single most recent migration record regardless of
// status, or nil if none exists — used to detect whether the log currently
// ends on a watch migration, which Last (Success-only) cannot see.
func (s *State) MostRecent(ctx context.Context) (*Migration, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY revision DESC LIMIT 1", selectColumns, s.table())
	return s.scanOne(ctx, query)
}

// ByName returns the most recent migration with the given name (watch
// migrations re-use a name across updates), or nil if none exists.
func (s *State) ByName(ctx context.Context, name string) (*Migration, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE name = %s ORDER BY revision DESC LIMIT 1",
		selectColumns, s.table(), s.placeholder(1))
	return s.scanOne(ctx, query, name)
}

// LoadAll returns every migration record, ordered by ascending revision.
func (s *State) LoadAll(ctx context.Context) ([]*Migration, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY revision ASC", selectColumns, s.table())
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Migration
	for rows.Next() {
		m, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *State) scanOne(ctx context.Context, query string, args ...interface{}) (*Migration, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return s.scanRow(rows)
}

func (s *State) scanRow(rows *sql.Rows) (*Migration, error) {
	var m Migration
	var datamodelText, stepsText, errorsText string
	var started, finished interface{}

	if err := rows.Scan(&m.Revision, &m.Name, &datamodelText, &m.Status, &m.Applied, &m.RolledBack,
		&stepsText, &m.DatabaseMigration, &errorsText, &started, &finished); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(datamodelText), &m.Datamodel); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stepsText), &m.DatamodelSteps); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errorsText), &m.Errors); err != nil {
		return nil, err
	}

	t, err := s.decodeTime(started)
	if err != nil {
		return nil, err
	}
	m.StartedAt = t

	if finished != nil {
		ft, err := s.decodeTime(finished)
		if err != nil {
			return nil, err
		}
		m.FinishedAt = &ft
	}

	return &m, nil
}

func (s *State) decodeTime(v interface{}) (time.Time, error) {
	if s.conn.Dialect() == dialect.Sqlite {
		ms, ok := v.(int64)
		if !ok {
			return time.Time{}, fmt.Errorf("state: expected int64 epoch-millis, got %T", v)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("state: expected time.Time, got %T", v)
	}
	return t, nil
}

func (s *State) encodeTime(t time.Time) interface{} {
	if s.conn.Dialect() == dialect.Sqlite {
		return t.UnixMilli()
	}
	return t
}

// Create inserts a new migration record and returns its assigned revision.
func (s *State) Create(ctx context.Context, m *Migration) (int64, error) {
	datamodelText, err := json.Marshal(m.Datamodel)
	if err != nil {
		return 0, err
	}
	stepsText, err := json.Marshal(m.DatamodelSteps)
	if err != nil {
		return 0, err
	}
	if m.Errors == nil {
		m.Errors = []string{}
	}
	errorsText, err := json.Marshal(m.Errors)
	if err != nil {
		return 0, err
	}

	cols := "name, datamodel, status, applied, rolled_back, datamodel_steps, database_migration, errors, started_at"
	args := []interface{}{m.Name, string(datamodelText), m.Status, m.Applied, m.RolledBack,
		string(stepsText), m.DatabaseMigration, string(errorsText), s.encodeTime(m.StartedAt)}

	if s.conn.Dialect() == dialect.Postgres {
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING revision",
			s.table(), cols, s.placeholders(len(args)))
		rows, err := s.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var revision int64
		if err := dbconn.ScanFirstValue(rows, &revision); err != nil {
			return 0, err
		}
		m.Revision = revision
		return revision, nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table(), cols, s.placeholders(len(args)))
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	revision, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.Revision = revision
	return revision, nil
}

// Update persists changes to an existing migration record, matched by
// revision.
func (s *State) Update(ctx context.Context, m *Migration) error {
	errorsText, err := json.Marshal(m.Errors)
	if err != nil {
		return err
	}

	var finished interface{}
	if m.FinishedAt != nil {
		finished = s.encodeTime(*m.FinishedAt)
	}

	query := fmt.Sprintf(`UPDATE %s SET status = %s, applied = %s, rolled_back = %s,
		database_migration = %s, errors = %s, finished_at = %s WHERE revision = %s`,
		s.table(), s.placeholder(1), s.placeholder(2), s.placeholder(3),
		s.placeholder(4), s.placeholder(5), s.placeholder(6), s.placeholder(7))

	_, err = s.conn.ExecContext(ctx, query, m.Status, m.Applied, m.RolledBack,
		m.DatabaseMigration, string(errorsText), finished, m.Revision)
	return err
}

// placeholder returns the positional bind placeholder for n, in the dialect
// syntax ($n for Postgres, ? elsewhere).
func (s *State) placeholder(n int) string {
	if s.conn.Dialect() == dialect.Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *State) placeholders(count int) string {
	out := ""
	for i := 1; i <= count; i++ {
		if i > 1 {
			out += ", "
		}
		out += s.placeholder(i)
	}
	return out
}
