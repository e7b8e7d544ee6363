// SPDX-License-Identifier: Apache-2.0

package sqlrender

import (
	"fmt"
	"strings"

	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// renderSqliteTableRebuild emulates an in-place ALTER COLUMN by copying the
// table through a scratch table, following SQLite's documented "twelve
// steps" procedure (minus the foreign-key-check toggling steps, which
// nothing in the engine performs).
func renderSqliteTableRebuild(s *sqldiff.AlterTable, schema string) ([]string, error) {
	if s.ResultingTable == nil {
		return nil, fmt.Errorf("sqlrender: alterTable on %q needs a resulting table shape for sqlite", s.Table)
	}

	temp := s.Table + "_" + newTempTableSuffix()
	added := addedColumnNames(s.Changes)

	var common []string
	for _, name := range sortedKeys(s.ResultingTable.Columns) {
		if !added[name] {
			common = append(common, name)
		}
	}

	stmts := []string{
		renderCreateTable(withName(s.ResultingTable, temp), dialect.Sqlite, schema),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			dialect.Sqlite.Quote(temp), strings.Join(quoteNames(common), ", "), strings.Join(quoteNames(common), ", "), dialect.Sqlite.Quote(s.Table)),
		fmt.Sprintf("DROP TABLE %s", dialect.Sqlite.Quote(s.Table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", dialect.Sqlite.Quote(temp), dialect.Sqlite.Quote(s.Table)),
	}
	return stmts, nil
}

func addedColumnNames(changes []sqldiff.TableChange) map[string]bool {
	added := map[string]bool{}
	for _, c := range changes {
		if a, ok := c.(*sqldiff.AddColumn); ok {
			added[a.Column.Name] = true
		}
	}
	return added
}

func quoteNames(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = dialect.Sqlite.Quote(n)
	}
	return quoted
}

// withName returns a shallow copy of t under a different name, used to
// render the scratch table's CREATE TABLE statement without mutating the
// step's own ResultingTable.
func withName(t *sqlschema.Table, name string) *sqlschema.Table {
	clone := *t
	clone.Name = name
	return &clone
}
