// SPDX-License-Identifier: Apache-2.0

// Package describer is the Schema Describer (component A): it reads the
// live catalog of a connected database and produces a sqlschema.Schema, the
// same shape the Schema Calculator derives from a Datamodel, so the two can
// be diffed directly.
package describer

import (
	"context"
	"fmt"

	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// Describe introspects schemaName (ignored for SQLite, which has a single
// implicit schema per file) and returns its current sqlschema.Schema.
func Describe(ctx context.Context, conn dbconn.DB, schemaName string) (*sqlschema.Schema, error) {
	switch conn.Dialect() {
	case dialect.Postgres:
		return describePostgres(ctx, conn, schemaName)
	case dialect.Mysql:
		return describeMysql(ctx, conn, schemaName)
	case dialect.Sqlite:
		return describeSqlite(ctx, conn)
	}
	return nil, fmt.Errorf("describer: unsupported dialect %v", conn.Dialect())
}
