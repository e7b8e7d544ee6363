// SPDX-License-Identifier: Apache-2.0

// Package applier is the Step Applier and Migration Applier (components H
// and I): it executes a SqlMigration's rendered steps against the live
// database and coordinates apply/unapply, including watch-mode coalescing.
package applier

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/engineerr"
	"github.com/nexusdm/dmengine/pkg/pgerr"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlrender"
	"github.com/nexusdm/dmengine/pkg/state"
)

// Applier executes migrations against one connected database, updating
// state as it goes.
type Applier struct {
	conn   dbconn.DB
	state  *state.State
	schema string
}

// New returns an Applier bound to conn, persisting progress through st.
func New(conn dbconn.DB, st *state.State, schema string) *Applier {
	return &Applier{conn: conn, state: st, schema: schema}
}

// ApplyStep executes the rendered DDL for corrected_steps[i] and writes the
// updated applied count back to persistence. It reports whether steps
// remain after i. Each step runs in its own transaction — cross-step
// atomicity is not provided, since SQLite and MySQL DDL is not
// transactional uniformly.
func (a *Applier) ApplyStep(ctx context.Context, m *state.Migration, steps sqldiff.SqlMigrationSteps, i int) (bool, error) {
	if i < 0 || i >= len(steps) {
		return false, fmt.Errorf("applier: step index %d out of range (have %d steps)", i, len(steps))
	}

	stmts, err := sqlrender.Render(steps[i], a.conn.Dialect(), a.schema)
	if err != nil {
		return false, err
	}

	var failedStmt string
	err = a.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				failedStmt = stmt
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.Status = state.StatusFailure
		m.Errors = append(m.Errors, engineerr.ExecutionError{Step: i, SQL: failedStmt, Message: classifiedMessage(err)}.Error())
		if updateErr := a.state.Update(ctx, m); updateErr != nil {
			return false, updateErr
		}
		return false, nil
	}

	m.Applied = i + 1
	if err := a.state.Update(ctx, m); err != nil {
		return false, err
	}

	return i+1 < len(steps), nil
}

// classifiedMessage prefixes err's message with its constraint-violation
// name when recognizable, so a caller reading the persisted migration's
// Errors field can tell a NOT NULL failure from a unique-constraint clash
// without parsing the driver-specific text.
func classifiedMessage(err error) string {
	if kind := pgerr.Classify(err); kind != "" {
		return kind + ": " + err.Error()
	}
	return err.Error()
}
