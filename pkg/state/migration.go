// SPDX-License-Identifier: Apache-2.0

// Package state is the Migration Persistence layer (component B): it reads
// and writes the _Migration table that records every migration an engine
// instance has attempted against one datasource.
package state

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
)

// Status is the lifecycle state of a persisted Migration.
type Status string

const (
	StatusPending         Status = "Pending"
	StatusInProgress      Status = "InProgress"
	StatusSuccess         Status = "Success"
	StatusFailure         Status = "Failure"
	StatusRollingBack     Status = "RollingBack"
	StatusRollbackSuccess Status = "RollbackSuccess"
	StatusRollbackFailure Status = "RollbackFailure"
)

// watchPrefix marks a migration name as speculative; such records remain in
// the log but play no role in convergence once superseded by a non-watch
// migration (§4.I watch-mode coalescing).
const watchPrefix = "watch"

// IsWatch reports whether name marks a speculative watch migration.
func IsWatch(name string) bool {
	return strings.HasPrefix(name, watchPrefix)
}

// DatabaseMigration is the versioned envelope persisted in the
// database_migration column: the imperative SQL steps plus enough context
// to render a rollback and re-run the destructive check against the schema
// they were computed from.
type DatabaseMigration struct {
	Version int                        `json:"version"`
	Before  json.RawMessage            `json:"before"`
	After   json.RawMessage            `json:"after"`
	Steps   sqldiff.SqlMigrationSteps  `json:"steps"`
	Rollback sqldiff.SqlMigrationSteps `json:"rollback"`
}

const currentDatabaseMigrationVersion = 1

// Value implements driver.Valuer.
func (m DatabaseMigration) Value() (driver.Value, error) {
	if m.Version == 0 {
		m.Version = currentDatabaseMigrationVersion
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *DatabaseMigration) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return errors.New("state: type assertion to []byte failed for database_migration")
		}
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, m); err != nil {
		return err
	}
	if m.Version != currentDatabaseMigrationVersion {
		return fmt.Errorf("state: unsupported database_migration version %d (this engine reads version %d)",
			m.Version, currentDatabaseMigrationVersion)
	}
	return nil
}

// Migration is one row of the _Migration table.
type Migration struct {
	Revision int64 `json:"revision"`

	Name               string              `json:"name"`
	Datamodel          *datamodel.Datamodel `json:"datamodel"`
	Status             Status              `json:"status"`
	Applied            int                 `json:"applied"`
	RolledBack         int                 `json:"rolledBack"`
	DatamodelSteps     datamodel.MigrationSteps `json:"datamodelSteps"`
	DatabaseMigration  DatabaseMigration   `json:"databaseMigration"`
	Errors             []string            `json:"errors"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// IsWatch reports whether this migration record is a speculative watch
// migration.
func (m *Migration) IsWatch() bool { return IsWatch(m.Name) }
