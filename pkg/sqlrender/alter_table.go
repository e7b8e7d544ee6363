// SPDX-License-Identifier: Apache-2.0

package sqlrender

import (
	"fmt"

	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

func renderAlterTable(s *sqldiff.AlterTable, d dialect.Dialect, schema string) ([]string, error) {
	if d == dialect.Sqlite && needsTableRebuild(s.Changes) {
		return renderSqliteTableRebuild(s, schema)
	}

	var stmts []string
	table := d.Qualify(schema, s.Table)

	for _, change := range s.Changes {
		switch c := change.(type) {
		case *sqldiff.AddColumn:
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, renderColumnDef(c.Column, d)))
			if c.ForeignKey != nil {
				stmts = append(stmts, renderAddForeignKey(table, c.ForeignKey, d, schema))
			}
		case *sqldiff.DropColumn:
			if c.DroppedForeignKey != "" {
				stmts = append(stmts, renderDropConstraint(table, c.DroppedForeignKey, d))
			}
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, d.Quote(c.Name)))
		case *sqldiff.AlterColumn:
			stmts = append(stmts, renderAlterColumn(table, c, d, schema, s.ResultingTable)...)
		}
	}

	return stmts, nil
}

// needsTableRebuild reports whether any change requires SQLite's
// table-copy emulation of ALTER TABLE: SQLite can natively ADD COLUMN and
// DROP COLUMN, but has no ALTER COLUMN (type, nullability, default, or
// foreign-key changes on an existing column).
func needsTableRebuild(changes []sqldiff.TableChange) bool {
	for _, c := range changes {
		if _, ok := c.(*sqldiff.AlterColumn); ok {
			return true
		}
	}
	return false
}

// alterColumnDef builds the column definition MySQL's MODIFY COLUMN needs
// to restate in full. resulting is the AlterTable step's final table shape;
// its copy of this column already reflects every field the diff changed, so
// it is preferred over reassembling one from the individual New* deltas
// (which carry only what changed, not what stayed the same).
func alterColumnDef(c *sqldiff.AlterColumn, d dialect.Dialect, resulting *sqlschema.Table) string {
	if resulting != nil {
		if col := resulting.GetColumn(c.Name); col != nil {
			return renderColumnDef(col, d)
		}
	}

	col := &sqlschema.Column{Name: c.Name}
	if c.NewType != nil {
		col.Type = *c.NewType
	}
	if c.NewNullable != nil {
		col.Nullable = *c.NewNullable
	}
	col.Default = c.NewDefault
	if c.NewAutoIncrement != nil {
		col.AutoIncrement = *c.NewAutoIncrement
	}
	return renderColumnDef(col, d)
}

func renderAddForeignKey(table string, fk *sqlschema.ForeignKey, d dialect.Dialect, schema string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", table, renderForeignKeyDef(fk, d, schema))
}

func renderDropConstraint(table, name string, d dialect.Dialect) string {
	if d == dialect.Mysql {
		return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, d.Quote(name))
	}
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, d.Quote(name))
}

func renderAlterColumn(table string, c *sqldiff.AlterColumn, d dialect.Dialect, schema string, resulting *sqlschema.Table) []string {
	var stmts []string
	column := d.Quote(c.Name)

	switch d {
	case dialect.Postgres:
		if c.NewType != nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", table, column, columnType(d, *c.NewType, false)))
		}
		if c.NewNullable != nil {
			if *c.NewNullable {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, column))
			} else {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, column))
			}
		}
		if c.NewDefault != nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, column, formatDefault(*c.NewDefault)))
		}
	case dialect.Mysql:
		// MySQL has no standalone ALTER COLUMN for type/nullability/default:
		// MODIFY COLUMN must restate the column's complete definition, so
		// any one of those three changes requires re-deriving all three
		// from the resulting table rather than just the field that changed.
		if c.NewType != nil || c.NewNullable != nil || c.NewDefault != nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, alterColumnDef(c, d, resulting)))
		}
	}

	if c.DropForeignKey != "" {
		stmts = append(stmts, renderDropConstraint(table, c.DropForeignKey, d))
	}
	if c.NewForeignKey != nil {
		stmts = append(stmts, renderAddForeignKey(table, c.NewForeignKey, d, schema))
	}

	return stmts
}
