// SPDX-License-Identifier: Apache-2.0

// Package enginelog is responsible for logging engine activity: migration
// lifecycle, individual SQL step execution, and destructive-change warnings.
package enginelog

import (
	"github.com/pterm/pterm"

	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/state"
)

// Logger is responsible for logging all engine activity.
type Logger interface {
	LogMigrationStart(*state.Migration)
	LogMigrationComplete(*state.Migration)
	LogMigrationRollback(*state.Migration)
	LogMigrationRollbackComplete(*state.Migration)

	LogStepStart(index int, sql string)
	LogStepComplete(index int, sql string)
	LogStepFailed(index int, sql string, err error)

	LogDatamodelStep(step datamodel.MigrationStep)
	LogDestructiveWarning(warning string)

	Info(msg string, args ...any)
}

type engineLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// NewLogger returns a Logger backed by pterm's structured logger, the way
// it is configured across the rest of the engine's CLI surface.
func NewLogger() Logger {
	return &engineLogger{logger: pterm.DefaultLogger}
}

// NewNoopLogger returns a Logger that discards everything, for use in tests
// and library embeddings that don't want engine output on stdout/stderr.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *engineLogger) LogMigrationStart(m *state.Migration) {
	l.logger.Info("starting migration", l.logger.Args([]any{
		"name", m.Name,
		"step_count", len(m.DatamodelSteps),
	}))
}

func (l *engineLogger) LogMigrationComplete(m *state.Migration) {
	l.logger.Info("completed migration", l.logger.Args([]any{
		"name", m.Name,
		"status", string(m.Status),
		"applied", m.Applied,
	}))
}

func (l *engineLogger) LogMigrationRollback(m *state.Migration) {
	l.logger.Info("rolling back migration", l.logger.Args([]any{
		"name", m.Name,
	}))
}

func (l *engineLogger) LogMigrationRollbackComplete(m *state.Migration) {
	l.logger.Info("rolled back migration", l.logger.Args([]any{
		"name", m.Name,
		"status", string(m.Status),
		"rolled_back", m.RolledBack,
	}))
}

func (l *engineLogger) LogStepStart(index int, sql string) {
	l.logger.Info("executing step", l.logger.Args("index", index, "sql", sql))
}

func (l *engineLogger) LogStepComplete(index int, sql string) {
	l.logger.Info("step complete", l.logger.Args("index", index))
}

func (l *engineLogger) LogStepFailed(index int, sql string, err error) {
	l.logger.Error("step failed", l.logger.Args("index", index, "sql", sql, "error", err.Error()))
}

func (l *engineLogger) LogDatamodelStep(step datamodel.MigrationStep) {
	l.logger.Info("applying datamodel step", l.logger.Args("step", string(datamodel.StepNameOf(step))))
}

func (l *engineLogger) LogDestructiveWarning(warning string) {
	l.logger.Warn(warning)
}

func (l *engineLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args))
}

func (l *noopLogger) LogMigrationStart(m *state.Migration)            {}
func (l *noopLogger) LogMigrationComplete(m *state.Migration)         {}
func (l *noopLogger) LogMigrationRollback(m *state.Migration)         {}
func (l *noopLogger) LogMigrationRollbackComplete(m *state.Migration) {}
func (l *noopLogger) LogStepStart(index int, sql string)              {}
func (l *noopLogger) LogStepComplete(index int, sql string)           {}
func (l *noopLogger) LogStepFailed(index int, sql string, err error)  {}
func (l *noopLogger) LogDatamodelStep(step datamodel.MigrationStep)   {}
func (l *noopLogger) LogDestructiveWarning(warning string)            {}
func (l *noopLogger) Info(msg string, args ...any)                    {}
