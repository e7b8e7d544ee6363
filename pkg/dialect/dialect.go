// SPDX-License-Identifier: Apache-2.0

// Package dialect captures the three SQL dialects the engine supports as a
// tagged variant plus per-dialect dispatch helpers, rather than a type
// hierarchy: dialect differences are data (quote characters, schema
// qualification rules), not behaviour that warrants its own interface
// implementation per concern.
package dialect

import "fmt"

// Dialect is one of the three supported SQL dialects.
type Dialect string

const (
	Sqlite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	Mysql    Dialect = "mysql"
)

// Valid reports whether d is one of the known dialects.
func (d Dialect) Valid() bool {
	switch d {
	case Sqlite, Postgres, Mysql:
		return true
	}
	return false
}

// SupportsSchemas reports whether the dialect has a schema/namespace
// concept distinct from the database itself. SQLite does not.
func (d Dialect) SupportsSchemas() bool {
	return d == Postgres || d == Mysql
}

// SupportsRenameIndex reports whether the dialect has a native
// ALTER INDEX/RENAME INDEX statement. SQLite does not, so index renames
// are expanded to drop+create there.
func (d Dialect) SupportsRenameIndex() bool {
	return d == Postgres || d == Mysql
}

// SupportsReturning reports whether INSERT .. RETURNING is available to
// read back an auto-generated id in one round trip.
func (d Dialect) SupportsReturning() bool {
	return d == Postgres
}

// Quote quotes an identifier per the dialect's rules: PostgreSQL and SQLite
// use double quotes, MySQL uses backticks. Any quote character embedded in
// the identifier is doubled, matching each dialect's escaping rule.
func (d Dialect) Quote(ident string) string {
	q := byte('"')
	if d == Mysql {
		q = '`'
	}
	out := make([]byte, 0, len(ident)+2)
	out = append(out, q)
	for i := 0; i < len(ident); i++ {
		if ident[i] == q {
			out = append(out, q)
		}
		out = append(out, ident[i])
	}
	out = append(out, q)
	return string(out)
}

// Qualify returns the quoted, schema-qualified reference to table. SQLite
// has no schema concept and so never qualifies.
func (d Dialect) Qualify(schema, table string) string {
	if d == Sqlite || schema == "" {
		return d.Quote(table)
	}
	return fmt.Sprintf("%s.%s", d.Quote(schema), d.Quote(table))
}

// Parse converts a dialect name (as found on a datasource URL scheme) into
// a Dialect.
func Parse(name string) (Dialect, error) {
	switch name {
	case "sqlite", "file":
		return Sqlite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return Mysql, nil
	}
	return "", fmt.Errorf("unknown dialect: %q", name)
}
