// SPDX-License-Identifier: Apache-2.0

package sqldiff

import (
	"slices"

	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// Diff computes the ordered list of SqlMigrationSteps that converge before
// onto after, per §4.E:
//
//  1. table set diff (by name): after-only -> CreateTable, before-only ->
//     DropTable/DropTables.
//  2. paired tables: column diff -> AddColumn/DropColumn/AlterColumn.
//  3. index diff with rename detection (matched by column-tuple equality).
//  4. foreign-key diff driven by the column diff, carried on the
//     AddColumn/DropColumn/AlterColumn step that introduced the change.
//  5. ordering: CreateTable, then DropIndex, then AlterTable, then the
//     remaining index steps (CreateIndex/AlterIndex), then
//     DropTable/DropTables, ties broken alphabetically — this guarantees a
//     CreateTable always precedes any AlterTable that references it via a
//     new foreign key, a DropTable always follows any AlterTable that
//     removed a foreign key pointing to it, and an index drop on a column
//     always precedes the AlterTable that alters or drops that column.
func Diff(before, after *sqlschema.Schema) []SqlMigrationStep {
	var createSteps, alterSteps, dropIndexSteps, otherIndexSteps, dropSteps []SqlMigrationStep

	beforeNames := sortedTableNames(before)
	afterNames := sortedTableNames(after)

	for _, name := range afterNames {
		if before.GetTable(name) == nil {
			createSteps = append(createSteps, &CreateTable{Table: after.GetTable(name)})
		}
	}

	var dropped []string
	for _, name := range beforeNames {
		if after.GetTable(name) == nil {
			dropped = append(dropped, name)
		}
	}
	if len(dropped) == 1 {
		dropSteps = append(dropSteps, &DropTable{Name: dropped[0]})
	} else if len(dropped) > 1 {
		dropSteps = append(dropSteps, &DropTables{Names: dropped})
	}

	for _, name := range afterNames {
		bt := before.GetTable(name)
		at := after.GetTable(name)
		if bt == nil || at == nil {
			continue
		}
		if changes := diffColumns(bt, at); len(changes) > 0 {
			alterSteps = append(alterSteps, &AlterTable{Table: name, Changes: changes, ResultingTable: at})
		}
		for _, ixStep := range diffIndexes(name, bt, at) {
			if _, ok := ixStep.(*DropIndex); ok {
				dropIndexSteps = append(dropIndexSteps, ixStep)
			} else {
				otherIndexSteps = append(otherIndexSteps, ixStep)
			}
		}
	}

	var out []SqlMigrationStep
	out = append(out, createSteps...)
	out = append(out, dropIndexSteps...)
	out = append(out, alterSteps...)
	out = append(out, otherIndexSteps...)
	out = append(out, dropSteps...)
	return out
}

func sortedTableNames(s *sqlschema.Schema) []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func sortedColumnNames(t *sqlschema.Table) []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func diffColumns(before, after *sqlschema.Table) []TableChange {
	var changes []TableChange

	beforeNames := sortedColumnNames(before)
	afterNames := sortedColumnNames(after)

	for _, name := range afterNames {
		if before.GetColumn(name) == nil {
			changes = append(changes, &AddColumn{
				Column:     after.GetColumn(name),
				ForeignKey: foreignKeyForColumn(after, name),
			})
		}
	}

	for _, name := range beforeNames {
		if after.GetColumn(name) == nil {
			changes = append(changes, &DropColumn{
				Name:              name,
				DroppedForeignKey: foreignKeyNameForColumn(before, name),
			})
		}
	}

	for _, name := range afterNames {
		bc := before.GetColumn(name)
		ac := after.GetColumn(name)
		if bc == nil || ac == nil {
			continue
		}
		if alter := diffColumn(before, after, name, bc, ac); alter != nil {
			changes = append(changes, alter)
		}
	}

	return changes
}

func diffColumn(beforeTable, afterTable *sqlschema.Table, name string, bc, ac *sqlschema.Column) *AlterColumn {
	var alter AlterColumn
	changed := false

	if bc.Type != ac.Type {
		t := ac.Type
		alter.NewType = &t
		changed = true
	}
	if bc.Nullable != ac.Nullable {
		n := ac.Nullable
		alter.NewNullable = &n
		changed = true
	}
	if !stringPtrEqual(bc.Default, ac.Default) {
		alter.NewDefault = ac.Default
		changed = true
	}
	if bc.AutoIncrement != ac.AutoIncrement {
		a := ac.AutoIncrement
		alter.NewAutoIncrement = &a
		changed = true
	}

	oldFK := foreignKeyForColumn(beforeTable, name)
	newFK := foreignKeyForColumn(afterTable, name)
	if !foreignKeyEqual(oldFK, newFK) {
		if oldFK != nil {
			alter.DropForeignKey = oldFK.Name
		}
		alter.NewForeignKey = newFK
		changed = true
	}

	if !changed {
		return nil
	}
	alter.Name = name
	return &alter
}

func foreignKeyForColumn(t *sqlschema.Table, column string) *sqlschema.ForeignKey {
	names := make([]string, 0, len(t.ForeignKeys))
	for name := range t.ForeignKeys {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fk := t.ForeignKeys[name]
		if slices.Contains(fk.Columns, column) {
			return fk
		}
	}
	return nil
}

func foreignKeyNameForColumn(t *sqlschema.Table, column string) string {
	if fk := foreignKeyForColumn(t, column); fk != nil {
		return fk.Name
	}
	return ""
}

func foreignKeyEqual(a, b *sqlschema.ForeignKey) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.ReferencedTable == b.ReferencedTable &&
		slices.Equal(a.ReferencedColumns, b.ReferencedColumns) &&
		a.OnDelete == b.OnDelete &&
		a.OnUpdate == b.OnUpdate
}

func stringPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// diffIndexes matches indexes by column-tuple equality (rename detection):
// two indexes with the same column set but different names produce a single
// AlterIndex rather than a drop+create pair. Indexes with no column-tuple
// match in the other schema produce CreateIndex/DropIndex.
func diffIndexes(table string, before, after *sqlschema.Table) []SqlMigrationStep {
	var steps []SqlMigrationStep

	beforeNames := sortedIndexNames(before)
	afterNames := sortedIndexNames(after)

	matchedBefore := map[string]bool{}
	matchedAfter := map[string]bool{}

	for _, bn := range beforeNames {
		bi := before.Indexes[bn]
		for _, an := range afterNames {
			if matchedAfter[an] {
				continue
			}
			ai := after.Indexes[an]
			if slices.Equal(bi.Columns, ai.Columns) && bi.Unique == ai.Unique {
				matchedBefore[bn] = true
				matchedAfter[an] = true
				if bn != an {
					steps = append(steps, &AlterIndex{
						Table: table, OldName: bn, NewName: an,
						Columns: ai.Columns, Unique: ai.Unique,
					})
				}
				break
			}
		}
	}

	for _, an := range afterNames {
		if !matchedAfter[an] {
			steps = append(steps, &CreateIndex{Table: table, Index: after.Indexes[an]})
		}
	}
	for _, bn := range beforeNames {
		if !matchedBefore[bn] {
			steps = append(steps, &DropIndex{Table: table, Name: bn})
		}
	}

	return steps
}

func sortedIndexNames(t *sqlschema.Table) []string {
	names := make([]string, 0, len(t.Indexes))
	for name := range t.Indexes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
