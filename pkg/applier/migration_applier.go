// SPDX-License-Identifier: Apache-2.0

package applier

import (
	"context"
	"fmt"
	"time"

	"encoding/json"

	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/describer"
	"github.com/nexusdm/dmengine/pkg/destructive"
	"github.com/nexusdm/dmengine/pkg/sqlcalc"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlrender"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
	"github.com/nexusdm/dmengine/pkg/state"
)

func jsonOf(s *sqlschema.Schema) (json.RawMessage, error) {
	return json.Marshal(s)
}

// ApplyInput is one applyMigration command's payload (§4.J), already
// decoded off the wire.
type ApplyInput struct {
	MigrationID string
	Steps       datamodel.MigrationSteps
	Force       bool
}

// ApplyResult is returned to the caller whether or not the migration was
// actually persisted: a non-empty Warnings with Force=false means nothing
// was committed.
type ApplyResult struct {
	Datamodel *datamodel.Datamodel
	SQLSteps  []string
	Warnings  []string
	Errors    []string
	Migration *state.Migration
}

// Apply coordinates the full top-level applyMigration command: watch-mode
// coalescing, inference, the destructive-changes check, and — unless the
// check produced warnings and force is false — persistence and execution.
func (a *Applier) Apply(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
	last, err := a.state.MostRecent(ctx)
	if err != nil {
		return nil, err
	}

	baseDatamodel, err := a.coalescingBase(ctx, last)
	if err != nil {
		return nil, err
	}

	calc := datamodel.NewCalculator()
	nextDatamodel, err := calc.Infer(baseDatamodel, in.Steps)
	if err != nil {
		return nil, err
	}

	beforeSchema, err := describer.Describe(ctx, a.conn, a.schema)
	if err != nil {
		return nil, err
	}
	afterSchema, err := sqlcalc.Calculate(nextDatamodel)
	if err != nil {
		return nil, err
	}
	sqlSteps := sqldiff.Diff(beforeSchema, afterSchema)
	rollbackSteps := sqldiff.Diff(afterSchema, beforeSchema)

	diag, err := destructive.Check(ctx, a.conn, beforeSchema, sqlSteps)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{
		Datamodel: nextDatamodel,
		Warnings:  diag.Warnings,
		Errors:    diag.Errors,
	}
	for _, step := range sqlSteps {
		stmts, err := sqlrender.Render(step, a.conn.Dialect(), a.schema)
		if err != nil {
			return nil, err
		}
		result.SQLSteps = append(result.SQLSteps, stmts...)
	}

	if diag.HasWarnings() && !in.Force {
		// §9 open question: preserved as observed — no record is written;
		// the caller must re-submit with force=true.
		return result, nil
	}

	m := &state.Migration{
		Name:           in.MigrationID,
		Datamodel:      nextDatamodel,
		Status:         state.StatusInProgress,
		DatamodelSteps: in.Steps,
		StartedAt:      time.Now().UTC(),
	}
	beforeJSON, _ := jsonOf(beforeSchema)
	afterJSON, _ := jsonOf(afterSchema)
	m.DatabaseMigration = state.DatabaseMigration{
		Before:   beforeJSON,
		After:    afterJSON,
		Steps:    sqlSteps,
		Rollback: rollbackSteps,
	}

	if _, err := a.state.Create(ctx, m); err != nil {
		return nil, err
	}

	for i := 0; i < len(sqlSteps); {
		more, err := a.ApplyStep(ctx, m, sqlSteps, i)
		if err != nil {
			return nil, err
		}
		if m.Status == state.StatusFailure {
			result.Migration = m
			result.Errors = append(result.Errors, m.Errors...)
			return result, nil
		}
		if !more {
			break
		}
		i++
	}

	m.Status = state.StatusSuccess
	finished := time.Now().UTC()
	m.FinishedAt = &finished
	if err := a.state.Update(ctx, m); err != nil {
		return nil, err
	}

	result.Migration = m
	return result, nil
}

// coalescingBase implements §4.I's watch-mode coalescing: if the most
// recent migration is a watch migration, the base for inference is the
// datamodel of the most recent *non-watch* migration, discarding the watch
// steps entirely — the caller's steps already encompass the full intended
// delta from that stable point.
func (a *Applier) coalescingBase(ctx context.Context, last *state.Migration) (*datamodel.Datamodel, error) {
	if last == nil {
		return datamodel.New(), nil
	}
	if !last.IsWatch() {
		return last.Datamodel, nil
	}

	all, err := a.state.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Status == state.StatusSuccess && !all[i].IsWatch() {
			return all[i].Datamodel, nil
		}
	}
	return datamodel.New(), nil
}

// Unapply rolls back the most recent migration: renders and executes its
// stored rollback steps in order.
func (a *Applier) Unapply(ctx context.Context) (rolledBack, newActive string, err error) {
	m, err := a.state.Last(ctx)
	if err != nil {
		return "", "", err
	}
	if m == nil {
		return "", "", fmt.Errorf("applier: no migration to unapply")
	}

	m.Status = state.StatusRollingBack
	if err := a.state.Update(ctx, m); err != nil {
		return "", "", err
	}

	for _, step := range m.DatabaseMigration.Rollback {
		stmts, err := sqlrender.Render(step, a.conn.Dialect(), a.schema)
		if err != nil {
			return "", "", err
		}
		for _, stmt := range stmts {
			if _, execErr := a.conn.ExecContext(ctx, stmt); execErr != nil {
				m.Status = state.StatusRollbackFailure
				m.Errors = append(m.Errors, execErr.Error())
				a.state.Update(ctx, m)
				return "", "", execErr
			}
		}
		m.RolledBack++
	}

	m.Status = state.StatusRollbackSuccess
	if err := a.state.Update(ctx, m); err != nil {
		return "", "", err
	}

	all, err := a.state.LoadAll(ctx)
	if err != nil {
		return "", "", err
	}
	var newActiveName string
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Revision != m.Revision && all[i].Status == state.StatusSuccess {
			newActiveName = all[i].Name
			break
		}
	}

	return m.Name, newActiveName, nil
}
