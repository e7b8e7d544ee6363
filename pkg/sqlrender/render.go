// SPDX-License-Identifier: Apache-2.0

package sqlrender

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// Render emits the DDL statements for one SqlMigrationStep under d. schema
// is the namespace to qualify table references with; ignored for SQLite.
func Render(step sqldiff.SqlMigrationStep, d dialect.Dialect, schema string) ([]string, error) {
	switch s := step.(type) {
	case *sqldiff.CreateTable:
		return []string{renderCreateTable(s.Table, d, schema)}, nil
	case *sqldiff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", d.Qualify(schema, s.Name))}, nil
	case *sqldiff.DropTables:
		stmts := make([]string, len(s.Names))
		for i, name := range s.Names {
			stmts[i] = fmt.Sprintf("DROP TABLE %s", d.Qualify(schema, name))
		}
		return stmts, nil
	case *sqldiff.RenameTable:
		return renderRenameTable(s, d, schema), nil
	case *sqldiff.AlterTable:
		return renderAlterTable(s, d, schema)
	case *sqldiff.CreateIndex:
		return []string{renderCreateIndex(s.Table, s.Index, d, schema)}, nil
	case *sqldiff.DropIndex:
		return []string{renderDropIndex(s, d, schema)}, nil
	case *sqldiff.AlterIndex:
		return renderAlterIndex(s, d, schema), nil
	}
	return nil, fmt.Errorf("sqlrender: unsupported step %T", step)
}

func renderCreateTable(t *sqlschema.Table, d dialect.Dialect, schema string) string {
	var cols []string
	colNames := sortedKeys(t.Columns)
	for _, name := range colNames {
		cols = append(cols, renderColumnDef(t.Columns[name], d))
	}
	if len(t.PrimaryKey) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(t.PrimaryKey, d)))
	}
	for _, fkName := range sortedKeys(t.ForeignKeys) {
		cols = append(cols, renderForeignKeyDef(t.ForeignKeys[fkName], d, schema))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Qualify(schema, t.Name), strings.Join(cols, ",\n  "))
}

func renderColumnDef(c *sqlschema.Column, d dialect.Dialect) string {
	parts := []string{d.Quote(c.Name), columnType(d, c.Type, c.AutoIncrement)}
	if d == dialect.Sqlite && c.AutoIncrement {
		// SQLite's rowid-aliasing autoincrement requires an INTEGER primary
		// key column. Here we just force the column type to integer; the
		// key itself comes from renderCreateTable's table-level PRIMARY KEY
		// clause, which it emits whenever t.PrimaryKey is non-empty.
		parts[1] = "integer"
	}
	if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	if c.Default != nil {
		parts = append(parts, fmt.Sprintf("DEFAULT %s", formatDefault(*c.Default)))
	}
	return strings.Join(parts, " ")
}

func formatDefault(value string) string {
	// Defaults that already look like SQL expressions (function calls,
	// numeric literals) pass through; everything else is quoted as a
	// string literal.
	if value == "" {
		return "''"
	}
	if strings.HasSuffix(value, ")") || isNumeric(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r == '.' {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func renderForeignKeyDef(fk *sqlschema.ForeignKey, d dialect.Dialect, schema string) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		d.Quote(fk.Name),
		quoteList(fk.Columns, d),
		d.Qualify(schema, fk.ReferencedTable),
		quoteList(fk.ReferencedColumns, d),
		fkAction(fk.OnDelete),
	)
}

func quoteList(names []string, d dialect.Dialect) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderRenameTable(s *sqldiff.RenameTable, d dialect.Dialect, schema string) []string {
	switch d {
	case dialect.Mysql:
		return []string{fmt.Sprintf("RENAME TABLE %s TO %s", d.Qualify(schema, s.From), d.Qualify(schema, s.To))}
	default:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Qualify(schema, s.From), d.Quote(s.To))}
	}
}

func renderCreateIndex(table string, ix *sqlschema.Index, d dialect.Dialect, schema string) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	// SQLite and Postgres namespace indexes at the schema level, not under
	// the table, but still require the fully-qualified table name in the ON
	// clause. MySQL namespaces indexes per-table, which CREATE INDEX .. ON
	// table already expresses without any further qualification.
	indexIdent := d.Quote(ix.Name)
	if d != dialect.Mysql && schema != "" {
		indexIdent = d.Qualify(schema, ix.Name)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, indexIdent, d.Qualify(schema, table), quoteList(ix.Columns, d))
}

func renderDropIndex(s *sqldiff.DropIndex, d dialect.Dialect, schema string) string {
	switch d {
	case dialect.Mysql:
		return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(s.Name), d.Qualify(schema, s.Table))
	default:
		ident := d.Quote(s.Name)
		if schema != "" {
			ident = d.Qualify(schema, s.Name)
		}
		return fmt.Sprintf("DROP INDEX %s", ident)
	}
}

func renderAlterIndex(s *sqldiff.AlterIndex, d dialect.Dialect, schema string) []string {
	switch d {
	case dialect.Postgres:
		old := d.Qualify(schema, s.OldName)
		return []string{fmt.Sprintf("ALTER INDEX %s RENAME TO %s", old, d.Quote(s.NewName))}
	case dialect.Mysql:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME INDEX %s TO %s", d.Qualify(schema, s.Table), d.Quote(s.OldName), d.Quote(s.NewName))}
	default: // sqlite has no ALTER INDEX; expand to drop+create.
		return []string{
			renderDropIndex(&sqldiff.DropIndex{Table: s.Table, Name: s.OldName}, d, schema),
			renderCreateIndex(s.Table, &sqlschema.Index{Name: s.NewName, Unique: s.Unique, Columns: s.Columns}, d, schema),
		}
	}
}

// newTempTableSuffix returns a short unique suffix for SQLite's table-copy
// ALTER TABLE emulation, so concurrent or retried migrations never collide
// on the scratch table name.
func newTempTableSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
