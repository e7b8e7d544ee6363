// SPDX-License-Identifier: Apache-2.0

// Package rpcapi is the Command / RPC Layer (component J): it decodes
// line-delimited JSON-RPC 2.0 requests, dispatches them to the engine's
// core components, and encodes the results back onto the wire.
package rpcapi

import (
	"github.com/nexusdm/dmengine/pkg/datamodel"
)

// InferMigrationStepsInput is the payload of the inferMigrationSteps command:
// the datamodel steps required to go from a base datamodel to a target one.
type InferMigrationStepsInput struct {
	BaseDatamodel   *datamodel.Datamodel `json:"baseDatamodel"`
	TargetDatamodel *datamodel.Datamodel `json:"targetDatamodel"`
}

// InferMigrationStepsOutput is inferMigrationSteps's result.
type InferMigrationStepsOutput struct {
	DatamodelSteps datamodel.MigrationSteps `json:"datamodelSteps"`
}

// CalculateDatamodelInput is the payload of the calculateDatamodel command.
type CalculateDatamodelInput struct {
	BaseDatamodel  *datamodel.Datamodel     `json:"baseDatamodel"`
	DatamodelSteps datamodel.MigrationSteps `json:"datamodelSteps"`
}

// CalculateDatamodelOutput is calculateDatamodel's result: the rendered
// textual form of the resulting datamodel.
type CalculateDatamodelOutput struct {
	Datamodel string `json:"datamodel"`
}

// CalculateDatabaseStepsInput is the payload of the calculateDatabaseSteps
// command: the steps assumed already applied to the live database, plus the
// steps to compute SQL for.
type CalculateDatabaseStepsInput struct {
	AssumedDatamodelSteps datamodel.MigrationSteps `json:"assumedDatamodelSteps"`
	DatamodelSteps        datamodel.MigrationSteps `json:"datamodelSteps"`
}

// CalculateDatabaseStepsOutput is calculateDatabaseSteps's result.
type CalculateDatabaseStepsOutput struct {
	Datamodel string   `json:"datamodel"`
	SQLSteps  []string `json:"databaseSteps"`
}

// ApplyMigrationInput is the payload of the applyMigration command.
type ApplyMigrationInput struct {
	MigrationID string                   `json:"migrationId"`
	Steps       datamodel.MigrationSteps `json:"steps"`
	Force       bool                     `json:"force,omitempty"`
}

// ApplyMigrationOutput is applyMigration's result.
type ApplyMigrationOutput struct {
	Datamodel string   `json:"datamodel"`
	SQLSteps  []string `json:"databaseSteps"`
	Warnings  []string `json:"warnings"`
	Errors    []string `json:"errors"`
}

// UnapplyMigrationOutput is unapplyMigration's result. The command takes no
// input.
type UnapplyMigrationOutput struct {
	RolledBack string `json:"rolledBack"`
	NewActive  string `json:"active"`
}

// MigrationProgressInput is the payload of the migrationProgress command.
type MigrationProgressInput struct {
	MigrationID string `json:"migrationId"`
}

// MigrationProgressOutput is migrationProgress's result.
type MigrationProgressOutput struct {
	Status     string `json:"status"`
	Applied    int    `json:"applied"`
	RolledBack int    `json:"rolledBack"`
	StartedAt  int64  `json:"startedAt"`
	FinishedAt *int64 `json:"finishedAt,omitempty"`
}

// MigrationSummary is one entry of listMigrations's result.
type MigrationSummary struct {
	Name      string `json:"name"`
	Revision  int64  `json:"revision"`
	Status    string `json:"status"`
	StartedAt int64  `json:"startedAt"`
}

// ListMigrationsOutput is listMigrations's result. The command takes no
// input.
type ListMigrationsOutput struct {
	Migrations []MigrationSummary `json:"migrations"`
}

// ResetOutput is reset's result: an empty object. The command takes no
// input.
type ResetOutput struct{}
