// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/nexusdm/dmengine/internal/connstr"
	"github.com/nexusdm/dmengine/pkg/config"
	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/dialect"
)

// cliExitCode maps a CLI failure to the stable exit code §6 promises:
// 0 success, 1 datamodel parse error, everything else a connector failure.
type cliExitCode int

const (
	exitSuccess            cliExitCode = 0
	exitDatamodelParseErr  cliExitCode = 1
	exitCannotConnect      cliExitCode = 2
	exitDatabaseExists     cliExitCode = 3
	exitCreateFailed       cliExitCode = 4
)

// cliError carries the exit code a cli subcommand failure should produce,
// distinct from the JSON-RPC error codes used once the engine is serving
// commands.
type cliError struct {
	code cliExitCode
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

// ExitCode maps an error returned from Execute to the process exit code
// promised by §6: 0 on nil, 1 for a plain error (treated as a datamodel
// parse error, the common case for a misconfigured engine invocation), or
// the cliError's own code when the failure originated in the cli
// subcommand's stable CliError -> int mapping.
func ExitCode(err error) int {
	if err == nil {
		return int(exitSuccess)
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return int(ce.code)
	}
	return int(exitDatamodelParseErr)
}

func cliCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "cli",
		Short: "Utility datasource checks used by tooling that embeds the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCli(cmd.Context())
		},
	}
	config.CliFlags(c)
	return c
}

func runCli(ctx context.Context) error {
	datasource := config.Datasource()
	if datasource == "" {
		return &cliError{code: exitCannotConnect, err: fmt.Errorf("cli: --datasource is required")}
	}

	parsed, err := connstr.Parse(datasource)
	if err != nil {
		return &cliError{code: exitCannotConnect, err: err}
	}

	switch {
	case config.CanConnectToDatabase():
		return checkCanConnect(ctx, parsed)
	case config.CreateDatabase():
		return createDatabase(ctx, parsed)
	default:
		return &cliError{code: exitCannotConnect, err: fmt.Errorf("cli: one of --can_connect_to_database or --create_database is required")}
	}
}

func checkCanConnect(ctx context.Context, parsed connstr.Parsed) error {
	connectCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout())
	defer cancel()

	rdb, err := dbconn.Open(parsed.Dialect, parsed.DSN)
	if err != nil {
		return &cliError{code: exitCannotConnect, err: err}
	}
	defer rdb.Close()

	if err := rdb.SQL.PingContext(connectCtx); err != nil {
		return &cliError{code: exitCannotConnect, err: err}
	}
	return nil
}

// createDatabase creates the database named in the datasource if it does
// not already exist. SQLite has no server-side "create database" step: the
// file is created implicitly on first connection.
func createDatabase(ctx context.Context, parsed connstr.Parsed) error {
	if parsed.Dialect == dialect.Sqlite {
		rdb, err := dbconn.Open(parsed.Dialect, parsed.DSN)
		if err != nil {
			return &cliError{code: exitCreateFailed, err: err}
		}
		defer rdb.Close()
		return nil
	}

	adminDSN, dbName, err := adminConnection(parsed)
	if err != nil {
		return &cliError{code: exitCreateFailed, err: err}
	}

	admin, err := dbconn.Open(parsed.Dialect, adminDSN)
	if err != nil {
		return &cliError{code: exitCannotConnect, err: err}
	}
	defer admin.Close()

	connectCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout())
	defer cancel()

	_, err = admin.SQL.ExecContext(connectCtx, fmt.Sprintf("CREATE DATABASE %s", parsed.Dialect.Quote(dbName)))
	if err != nil {
		if isDuplicateDatabase(err) {
			return nil
		}
		return &cliError{code: exitCreateFailed, err: err}
	}
	return nil
}

// isDuplicateDatabase recognizes Postgres's duplicate_database error
// (42P04), returned when the target database already exists — treated as
// success, since --create_database is idempotent.
func isDuplicateDatabase(err error) bool {
	pqErr := &pq.Error{}
	return errors.As(err, &pqErr) && pqErr.Code == "42P04"
}

// adminConnection returns a DSN for connecting without naming the target
// database, plus the target database name to create — Postgres connects to
// its own admin database "postgres". MySQL is not supported: it returns an
// error.
func adminConnection(parsed connstr.Parsed) (dsn, dbName string, err error) {
	switch parsed.Dialect {
	case dialect.Postgres:
		u, err := url.Parse(parsed.DSN)
		if err != nil {
			return "", "", err
		}
		dbName = strings.TrimPrefix(u.Path, "/")
		u.Path = "/postgres"
		return u.String(), dbName, nil
	case dialect.Mysql:
		return "", "", fmt.Errorf("cli: --create_database requires an admin connection for mysql, not yet configured")
	}
	return "", "", fmt.Errorf("cli: --create_database unsupported for dialect %v", parsed.Dialect)
}
