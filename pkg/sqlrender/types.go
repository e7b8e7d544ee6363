// SPDX-License-Identifier: Apache-2.0

// Package sqlrender is the SQL Renderer: it emits dialect-specific DDL
// strings for a SqlMigrationStep, one step potentially producing several
// statements (notably SQLite's table-copy emulation of ALTER TABLE).
package sqlrender

import (
	"github.com/nexusdm/dmengine/pkg/dialect"
)

// columnType maps a sqlschema.Column's dialect-neutral logical type to the
// concrete type name for d. logicalType may be a plain family name
// ("text", "integer", ...) or "enum:Name" for an enum-typed column, which
// every dialect here stores as its native text type (none of the three
// connectors use native enum columns in this renderer; enum membership is
// validated at the application layer, matching how the Schema Calculator
// leaves CHECK-constraint emission out of scope).
func columnType(d dialect.Dialect, logicalType string, autoIncrement bool) string {
	if len(logicalType) > 5 && logicalType[:5] == "enum:" {
		logicalType = "string"
	}

	switch d {
	case dialect.Postgres:
		switch logicalType {
		case "integer":
			if autoIncrement {
				return "serial"
			}
			return "integer"
		case "text", "string":
			return "text"
		case "float":
			return "double precision"
		case "boolean":
			return "boolean"
		case "timestamp":
			return "timestamptz"
		case "json":
			return "jsonb"
		case "bytes":
			return "bytea"
		}
	case dialect.Mysql:
		switch logicalType {
		case "integer":
			if autoIncrement {
				return "int auto_increment"
			}
			return "int"
		case "text", "string":
			return "text"
		case "float":
			return "double"
		case "boolean":
			return "boolean"
		case "timestamp":
			return "datetime(3)"
		case "json":
			return "json"
		case "bytes":
			return "blob"
		}
	case dialect.Sqlite:
		switch logicalType {
		case "integer":
			if autoIncrement {
				return "integer" // combined with INTEGER PRIMARY KEY elsewhere for rowid aliasing
			}
			return "integer"
		case "text", "string":
			return "text"
		case "float":
			return "real"
		case "boolean":
			return "boolean"
		case "timestamp":
			return "datetime"
		case "json":
			return "text"
		case "bytes":
			return "blob"
		}
	}

	return logicalType
}

func fkAction(action string) string {
	switch action {
	case "Cascade":
		return "CASCADE"
	case "SetNull":
		return "SET NULL"
	case "", "None":
		return "NO ACTION"
	}
	return action
}
