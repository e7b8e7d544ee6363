// SPDX-License-Identifier: Apache-2.0

// Package dbconn is the connector-agnostic DB capability layer: a thin
// wrapper over *sql.DB that retries lock-timeout errors with backoff,
// independently of which of the three dialects is on the other end.
package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nexusdm/dmengine/pkg/dialect"
)

const (
	maxBackoffDuration = 1 * time.Minute
	backoffInterval    = 1 * time.Second
)

// DB is the capability surface the rest of the engine needs from a
// connection, independent of the underlying driver.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error
	Dialect() dialect.Dialect
	Close() error
}

// RDB wraps a *sql.DB for one dialect and retries on lock-contention errors
// using an exponential backoff with jitter, the way pgroll's RDB does for
// Postgres alone; here the retry predicate is dialect-aware.
type RDB struct {
	SQL *sql.DB
	D   dialect.Dialect
}

// Open opens a connection for d using dsn and configures pool limits the way
// pgroll's connection setup does (capped concurrency, since DDL migrations
// are run sequentially and a large pool only adds lock contention).
func Open(d dialect.Dialect, dsn string) (*RDB, error) {
	driverName, err := driverNameFor(d)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	return &RDB{SQL: sqlDB, D: d}, nil
}

func driverNameFor(d dialect.Dialect) (string, error) {
	switch d {
	case dialect.Postgres:
		return "postgres", nil
	case dialect.Mysql:
		return "mysql", nil
	case dialect.Sqlite:
		return "sqlite", nil
	}
	return "", errors.New("dbconn: unsupported dialect")
}

func (db *RDB) Dialect() dialect.Dialect { return db.D }

func (db *RDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		res, err := db.SQL.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if isLockTimeout(db.D, err) {
			if err := sleepCtx(ctx, b.Duration()); err != nil {
				return nil, err
			}
			continue
		}
		return nil, err
	}
}

func (db *RDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		rows, err := db.SQL.QueryContext(ctx, query, args...)
		if err == nil {
			return rows, nil
		}
		if isLockTimeout(db.D, err) {
			if err := sleepCtx(ctx, b.Duration()); err != nil {
				return nil, err
			}
			continue
		}
		return nil, err
	}
}

func (db *RDB) WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		tx, err := db.SQL.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		err = f(ctx, tx)
		if err == nil {
			return tx.Commit()
		}

		if errRollback := tx.Rollback(); errRollback != nil {
			return errRollback
		}

		if isLockTimeout(db.D, err) {
			if err := sleepCtx(ctx, b.Duration()); err != nil {
				return err
			}
			continue
		}
		return err
	}
}

func (db *RDB) Close() error { return db.SQL.Close() }

// isLockTimeout recognizes each dialect's lock_timeout/lock-wait error under
// its own driver's error type: Postgres "55P03" (lock_not_available), MySQL
// 1205 (ER_LOCK_WAIT_TIMEOUT), SQLite SQLITE_BUSY.
func isLockTimeout(d dialect.Dialect, err error) bool {
	switch d {
	case dialect.Postgres:
		pqErr := &pq.Error{}
		return errors.As(err, &pqErr) && pqErr.Code == "55P03"
	case dialect.Mysql:
		myErr := &mysql.MySQLError{}
		return errors.As(err, &myErr) && myErr.Number == 1205
	case dialect.Sqlite:
		sqliteErr := &sqlite.Error{}
		return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_BUSY
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ScanFirstValue scans the first value of rows, assuming a single row with a
// single column.
func ScanFirstValue[T any](rows *sql.Rows, dest *T) error {
	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}
