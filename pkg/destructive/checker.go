// SPDX-License-Identifier: Apache-2.0

// Package destructive is the Destructive-Changes Checker (component G): it
// scans a SqlMigration's original steps for edits that would discard data
// against the live database, before the Migration Applier commits to them.
package destructive

import (
	"context"
	"fmt"

	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/engineerr"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// Diagnostics collects the warnings and errors produced by a check.
type Diagnostics struct {
	Warnings []string
	Errors   []string
}

func (d Diagnostics) HasWarnings() bool { return len(d.Warnings) > 0 }

// Check inspects originalSteps against before, the schema they were
// computed from, querying conn for row counts.
func Check(ctx context.Context, conn dbconn.DB, before *sqlschema.Schema, originalSteps []sqldiff.SqlMigrationStep) (Diagnostics, error) {
	var diag Diagnostics

	for _, step := range originalSteps {
		switch s := step.(type) {
		case *sqldiff.DropTable:
			if err := checkDropTable(ctx, conn, before, &diag, s.Name); err != nil {
				return diag, err
			}
		case *sqldiff.DropTables:
			for _, name := range s.Names {
				if err := checkDropTable(ctx, conn, before, &diag, name); err != nil {
					return diag, err
				}
			}
		case *sqldiff.AlterTable:
			for _, change := range s.Changes {
				drop, ok := change.(*sqldiff.DropColumn)
				if !ok {
					continue
				}
				if err := checkDropColumn(ctx, conn, before, &diag, s.Table, drop.Name); err != nil {
					return diag, err
				}
			}
		}
	}

	return diag, nil
}

// checkDropTable resolves table against before, the schema the steps were
// computed from: a reference to a table absent there signals an inferrer
// bug rather than a real destructive change, and is reported as Generic
// rather than risked as a query against a name that may not exist live.
func checkDropTable(ctx context.Context, conn dbconn.DB, before *sqlschema.Schema, diag *Diagnostics, table string) error {
	if before.GetTable(table) == nil {
		return engineerr.ConnectorError{
			Kind:    engineerr.ConnectorGeneric,
			Message: fmt.Sprintf("drop table %q references a table absent from the prior schema", table),
		}
	}
	n, err := countRows(ctx, conn, fmt.Sprintf("SELECT COUNT(*) FROM %s", conn.Dialect().Quote(table)))
	if err != nil {
		return err
	}
	if n > 0 {
		diag.Warnings = append(diag.Warnings, fmt.Sprintf(
			"You are about to drop the table `%s`, which is not empty (%d rows).", table, n))
	}
	return nil
}

func checkDropColumn(ctx context.Context, conn dbconn.DB, before *sqlschema.Schema, diag *Diagnostics, table, column string) error {
	t := before.GetTable(table)
	if t == nil || t.GetColumn(column) == nil {
		diag.Errors = append(diag.Errors, fmt.Sprintf("drop column %q on %q references a column absent from the prior schema", column, table))
		return nil
	}
	d := conn.Dialect()
	query := fmt.Sprintf("SELECT COUNT(%s) FROM %s WHERE %s IS NOT NULL",
		d.Quote(column), d.Quote(table), d.Quote(column))
	n, err := countRows(ctx, conn, query)
	if err != nil {
		return err
	}
	if n > 0 {
		diag.Warnings = append(diag.Warnings, fmt.Sprintf(
			"You are about to drop the column `%s` on the `%s` table, which still contains %d non-null values.",
			column, table, n))
	}
	return nil
}

func countRows(ctx context.Context, conn dbconn.DB, query string) (int64, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if err := dbconn.ScanFirstValue(rows, &n); err != nil {
		return 0, err
	}
	return n, nil
}
