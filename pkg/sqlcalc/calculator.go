// SPDX-License-Identifier: Apache-2.0

// Package sqlcalc is the Schema Calculator: it projects a declarative
// Datamodel onto the SQL schema required to store it.
package sqlcalc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// Calculate projects dm onto the SQL schema that implements it, per the
// rules in §4.D: one table per non-embedded model, scalar-list side tables,
// inlined or join-table relations, and unique indexes for `@unique`/
// `@@unique` fields.
func Calculate(dm *datamodel.Datamodel) (*sqlschema.Schema, error) {
	s := sqlschema.New("")

	for _, m := range dm.Models {
		if m.Embedded {
			continue
		}
		t := calculateTable(dm, m)
		s.AddTable(t.Name, t)
	}

	for _, m := range dm.Models {
		if m.Embedded {
			continue
		}
		for _, f := range m.Fields {
			if !f.Type.IsRelation() {
				continue
			}
			rel := f.Type.Relation
			if f.Arity == datamodel.ArityList && isManyToMany(dm, m, f) {
				addRelationTable(s, dm, m, f, rel)
			}
		}
	}

	for _, m := range dm.Models {
		if m.Embedded {
			continue
		}
		for _, f := range m.Fields {
			if f.Type.IsRelation() || f.Arity != datamodel.ArityList {
				continue
			}
			addScalarListTable(s, m, f)
		}
	}

	return s, nil
}

func calculateTable(dm *datamodel.Datamodel, m *datamodel.Model) *sqlschema.Table {
	t := &sqlschema.Table{
		Name:        m.TableName(),
		PrimaryKey:  m.PrimaryKeyFields(),
		Columns:     map[string]*sqlschema.Column{},
		Indexes:     map[string]*sqlschema.Index{},
		ForeignKeys: map[string]*sqlschema.ForeignKey{},
	}

	// Translate the primary key field names (datamodel names) to physical
	// column names.
	if len(t.PrimaryKey) > 0 {
		phys := make([]string, len(t.PrimaryKey))
		for i, name := range t.PrimaryKey {
			if f := m.FieldByName(name); f != nil {
				phys[i] = f.ColumnName()
			} else {
				phys[i] = name
			}
		}
		t.PrimaryKey = phys
	}

	for _, f := range m.Fields {
		switch {
		case f.Type.IsRelation():
			addRelationColumnsOrSideTable(dm, m, t, f)
		case f.Arity == datamodel.ArityList:
			// Scalar list: side table, not a column on this table.
			continue
		default:
			t.AddColumn(f.ColumnName(), scalarColumn(f))
		}

		if f.IsUnique {
			ixName := fmt.Sprintf("%s.%s", t.Name, f.ColumnName())
			t.AddIndex(ixName, &sqlschema.Index{Name: ixName, Unique: true, Columns: []string{f.ColumnName()}})
		}
	}

	for _, ix := range m.Indexes {
		cols := physicalColumns(m, ix.Fields)
		name := ix.Name
		if name == "" {
			name = fmt.Sprintf("%s.%s", t.Name, strings.Join(ix.Fields, "_"))
		}
		t.AddIndex(name, &sqlschema.Index{
			Name:    name,
			Unique:  ix.Kind == datamodel.IndexKindUnique,
			Columns: cols,
		})
	}

	return t
}

func scalarColumn(f *datamodel.Field) *sqlschema.Column {
	c := &sqlschema.Column{
		Name:     f.ColumnName(),
		Type:     scalarType(f),
		Nullable: f.Arity == datamodel.ArityOptional,
		Unique:   f.IsUnique,
	}
	if f.Default != nil {
		if f.Default.Literal != nil {
			c.Default = f.Default.Literal
		}
		switch f.Default.Function {
		case "autoincrement()":
			c.AutoIncrement = true
		case "cuid()", "uuid()", "now()":
			// Left to the engine/application layer to supply at insert
			// time; no static column default is emitted.
		}
	}
	return c
}

func scalarType(f *datamodel.Field) string {
	if f.Type.IsEnum() {
		return "enum:" + f.Type.EnumName
	}
	switch f.Type.Scalar {
	case datamodel.ScalarString:
		return "text"
	case datamodel.ScalarInt:
		return "integer"
	case datamodel.ScalarFloat:
		return "float"
	case datamodel.ScalarBoolean:
		return "boolean"
	case datamodel.ScalarDateTime:
		return "timestamp"
	case datamodel.ScalarJSON:
		return "json"
	case datamodel.ScalarBytes:
		return "bytes"
	}
	return "text"
}

// isManyToMany reports whether the relation field f on model m represents
// the m-n side of a relation, i.e. the opposite model also has a list field
// pointing back at m through the same relation.
func isManyToMany(dm *datamodel.Datamodel, m *datamodel.Model, f *datamodel.Field) bool {
	other := dm.ModelByName(f.Type.Relation.ReferencedModel)
	if other == nil {
		return false
	}
	for _, of := range other.Fields {
		if !of.Type.IsRelation() || of.Arity != datamodel.ArityList {
			continue
		}
		if of.Type.Relation.ReferencedModel != m.Name {
			continue
		}
		if relationName(m, f) == relationName(other, of) {
			return true
		}
	}
	return false
}

func relationName(m *datamodel.Model, f *datamodel.Field) string {
	if f.Type.Relation.Name != "" {
		return f.Type.Relation.Name
	}
	// Synthesized name: the two model names in a stable, alphabetic order.
	names := []string{m.Name, f.Type.Relation.ReferencedModel}
	sort.Strings(names)
	return strings.Join(names, "To")
}

// addRelationColumnsOrSideTable handles 1-1/1-n relation fields: if this
// field owns the foreign key, it gets inlined FK columns on this table.
// m-n relations are skipped here and handled by addRelationTable, which
// creates the join table once, from whichever side of the relation Calculate
// reaches first (see isManyToMany/addRelationTable in Calculate).
func addRelationColumnsOrSideTable(dm *datamodel.Datamodel, m *datamodel.Model, t *sqlschema.Table, f *datamodel.Field) {
	rel := f.Type.Relation
	if f.Arity == datamodel.ArityList && isManyToMany(dm, m, f) {
		return
	}
	if len(rel.Fields) == 0 {
		// The "back" side of a 1-n relation carries no columns.
		return
	}

	other := dm.ModelByName(rel.ReferencedModel)
	refCols := physicalColumns(other, rel.ReferencedFields)
	localCols := make([]string, len(rel.Fields))
	for i, name := range rel.Fields {
		lf := m.FieldByName(name)
		col := name
		if lf != nil {
			col = lf.ColumnName()
			t.AddColumn(col, &sqlschema.Column{
				Name:     col,
				Type:     scalarTypeOf(other, rel.ReferencedFields[0]),
				Nullable: f.Arity == datamodel.ArityOptional,
			})
		}
		localCols[i] = col
	}

	fkName := fmt.Sprintf("%s_%s_fkey", t.Name, strings.Join(localCols, "_"))
	t.ForeignKeys[fkName] = &sqlschema.ForeignKey{
		Name:              fkName,
		Columns:           localCols,
		ReferencedTable:   other.TableName(),
		ReferencedColumns: refCols,
		OnDelete:          string(rel.OnDelete),
	}
}

func scalarTypeOf(m *datamodel.Model, fieldName string) string {
	if f := m.FieldByName(fieldName); f != nil {
		return scalarType(f)
	}
	return "text"
}

// addRelationTable emits the join table for an m-n relation, named
// `_{relationName}` with columns A and B (both FKs, alphabetically assigned
// by model name) and a unique index on (A, B).
func addRelationTable(s *sqlschema.Schema, dm *datamodel.Datamodel, m *datamodel.Model, f *datamodel.Field, rel *datamodel.Relation) {
	name := "_" + relationName(m, f)
	if s.GetTable(name) != nil {
		// Already created from the other side of the relation.
		return
	}

	other := dm.ModelByName(rel.ReferencedModel)
	modelA, modelB := m, other
	if modelB.Name < modelA.Name {
		modelA, modelB = modelB, modelA
	}

	pkA := physicalColumns(modelA, modelA.PrimaryKeyFields())
	pkB := physicalColumns(modelB, modelB.PrimaryKeyFields())

	t := &sqlschema.Table{
		Name: name,
		Columns: map[string]*sqlschema.Column{
			"A": {Name: "A", Type: scalarTypeOf(modelA, modelA.PrimaryKeyFields()[0])},
			"B": {Name: "B", Type: scalarTypeOf(modelB, modelB.PrimaryKeyFields()[0])},
		},
		Indexes: map[string]*sqlschema.Index{},
		ForeignKeys: map[string]*sqlschema.ForeignKey{
			name + "_A_fkey": {
				Name: name + "_A_fkey", Columns: []string{"A"},
				ReferencedTable: modelA.TableName(), ReferencedColumns: pkA, OnDelete: "Cascade",
			},
			name + "_B_fkey": {
				Name: name + "_B_fkey", Columns: []string{"B"},
				ReferencedTable: modelB.TableName(), ReferencedColumns: pkB, OnDelete: "Cascade",
			},
		},
	}
	uniqName := name + "_AB_unique"
	t.AddIndex(uniqName, &sqlschema.Index{Name: uniqName, Unique: true, Columns: []string{"A", "B"}})

	s.AddTable(name, t)
}

// scalarListTableName returns the side-table name for a scalar-list field,
// `{table}_{column}` per §4.D.
func scalarListTableName(m *datamodel.Model, f *datamodel.Field) string {
	return m.TableName() + "_" + f.ColumnName()
}

// addScalarListTable emits the side table a scalar-list field (e.g.
// `tags String[]`) is stored in, since no dialect here has a native array
// column type. Per §4.D: columns `nodeId` (FK to the owning row),
// `position` (its index in the list), and `value` (the scalar itself), with
// primary key (nodeId, position) so list order and row ownership are both
// enforced at the schema level.
func addScalarListTable(s *sqlschema.Schema, m *datamodel.Model, f *datamodel.Field) {
	name := scalarListTableName(m, f)
	if s.GetTable(name) != nil {
		return
	}

	pkFields := m.PrimaryKeyFields()
	nodeIDCol, nodeIDType := "nodeId", "integer"
	if len(pkFields) > 0 {
		nodeIDCol = physicalColumns(m, pkFields[:1])[0]
		nodeIDType = scalarTypeOf(m, pkFields[0])
	}

	fkName := name + "_nodeId_fkey"
	t := &sqlschema.Table{
		Name: name,
		Columns: map[string]*sqlschema.Column{
			"nodeId":   {Name: "nodeId", Type: nodeIDType},
			"position": {Name: "position", Type: "integer"},
			"value":    {Name: "value", Type: scalarType(f)},
		},
		PrimaryKey: []string{"nodeId", "position"},
		Indexes:    map[string]*sqlschema.Index{},
		ForeignKeys: map[string]*sqlschema.ForeignKey{
			fkName: {
				Name:              fkName,
				Columns:           []string{"nodeId"},
				ReferencedTable:   m.TableName(),
				ReferencedColumns: []string{nodeIDCol},
				OnDelete:          "Cascade",
			},
		},
	}
	s.AddTable(name, t)
}

func physicalColumns(m *datamodel.Model, fieldNames []string) []string {
	out := make([]string, len(fieldNames))
	for i, name := range fieldNames {
		if f := m.FieldByName(name); f != nil {
			out[i] = f.ColumnName()
		} else {
			out[i] = name
		}
	}
	return out
}
