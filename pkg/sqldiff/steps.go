// SPDX-License-Identifier: Apache-2.0

// Package sqldiff is the Schema Differ: it computes the ordered list of
// imperative SqlMigrationSteps needed to turn a "before" SqlSchema into an
// "after" SqlSchema, and defines the SqlMigrationStep/TableChange tagged
// variants that list carries.
package sqldiff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// StepName identifies the concrete type of a SqlMigrationStep.
type StepName string

const (
	StepNameCreateTable StepName = "createTable"
	StepNameDropTable   StepName = "dropTable"
	StepNameDropTables  StepName = "dropTables"
	StepNameRenameTable StepName = "renameTable"
	StepNameAlterTable  StepName = "alterTable"
	StepNameCreateIndex StepName = "createIndex"
	StepNameDropIndex   StepName = "dropIndex"
	StepNameAlterIndex  StepName = "alterIndex"
)

// SqlMigrationStep is one imperative edit to a live SQL schema.
type SqlMigrationStep interface {
	sqlMigrationStep()
}

// TableChangeName identifies the concrete type of a TableChange.
type TableChangeName string

const (
	TableChangeNameAddColumn   TableChangeName = "addColumn"
	TableChangeNameDropColumn  TableChangeName = "dropColumn"
	TableChangeNameAlterColumn TableChangeName = "alterColumn"
)

// TableChange is one column-level edit inside an AlterTable step.
type TableChange interface {
	tableChange()
}

type (
	CreateTable struct {
		Table *sqlschema.Table `json:"table"`
	}

	DropTable struct {
		Name string `json:"name"`
	}

	DropTables struct {
		Names []string `json:"names"`
	}

	RenameTable struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	AlterTable struct {
		Table   string        `json:"table"`
		Changes []TableChange `json:"changes"`

		// ResultingTable is the complete "after" shape of the table, carried
		// so dialects without in-place ALTER COLUMN (SQLite) can rebuild the
		// table from scratch, and MySQL's MODIFY COLUMN can restate a full
		// column definition, without re-querying schema state. It is
		// serialized with the step; renderers that don't need it ignore it.
		ResultingTable *sqlschema.Table `json:"resultingTable,omitempty"`
	}

	CreateIndex struct {
		Table string           `json:"table"`
		Index *sqlschema.Index `json:"index"`
	}

	DropIndex struct {
		Table string `json:"table"`
		Name  string `json:"name"`
	}

	AlterIndex struct {
		Table   string `json:"table"`
		OldName string `json:"oldName"`
		NewName string `json:"newName"`

		// Columns and Unique describe the (unchanged) shape of the index
		// being renamed, carried so dialects without a native rename
		// statement (SQLite) can expand this into drop+create.
		Columns []string `json:"columns,omitempty"`
		Unique  bool     `json:"unique,omitempty"`
	}
)

func (*CreateTable) sqlMigrationStep() {}
func (*DropTable) sqlMigrationStep()   {}
func (*DropTables) sqlMigrationStep()  {}
func (*RenameTable) sqlMigrationStep() {}
func (*AlterTable) sqlMigrationStep()  {}
func (*CreateIndex) sqlMigrationStep() {}
func (*DropIndex) sqlMigrationStep()   {}
func (*AlterIndex) sqlMigrationStep()  {}

type (
	AddColumn struct {
		Column     *sqlschema.Column   `json:"column"`
		ForeignKey *sqlschema.ForeignKey `json:"foreignKey,omitempty"`
	}

	DropColumn struct {
		Name string `json:"name"`
		// DroppedForeignKey is the name of a foreign key dropped along with
		// the column, if any, so the renderer can emit DROP CONSTRAINT
		// before DROP COLUMN where the dialect requires it.
		DroppedForeignKey string `json:"droppedForeignKey,omitempty"`
	}

	AlterColumn struct {
		Name string `json:"name"`

		NewType          *string `json:"newType,omitempty"`
		NewNullable      *bool   `json:"newNullable,omitempty"`
		NewDefault       *string `json:"newDefault,omitempty"`
		NewAutoIncrement *bool   `json:"newAutoIncrement,omitempty"`

		// DropForeignKey and NewForeignKey describe a foreign-key
		// re-creation driven by this column's change: the old FK (if any)
		// is dropped by name and the new one (if any) created in its
		// place.
		DropForeignKey string                `json:"dropForeignKey,omitempty"`
		NewForeignKey  *sqlschema.ForeignKey `json:"newForeignKey,omitempty"`
	}
)

func (*AddColumn) tableChange()   {}
func (*DropColumn) tableChange()  {}
func (*AlterColumn) tableChange() {}

// StepNameOf returns the tagged-variant name for a SqlMigrationStep.
func StepNameOf(s SqlMigrationStep) StepName {
	switch s.(type) {
	case *CreateTable:
		return StepNameCreateTable
	case *DropTable:
		return StepNameDropTable
	case *DropTables:
		return StepNameDropTables
	case *RenameTable:
		return StepNameRenameTable
	case *AlterTable:
		return StepNameAlterTable
	case *CreateIndex:
		return StepNameCreateIndex
	case *DropIndex:
		return StepNameDropIndex
	case *AlterIndex:
		return StepNameAlterIndex
	}
	panic(fmt.Errorf("unknown sql migration step for %T", s))
}

func stepFromName(name StepName) (SqlMigrationStep, error) {
	switch name {
	case StepNameCreateTable:
		return &CreateTable{}, nil
	case StepNameDropTable:
		return &DropTable{}, nil
	case StepNameDropTables:
		return &DropTables{}, nil
	case StepNameRenameTable:
		return &RenameTable{}, nil
	case StepNameAlterTable:
		return &AlterTable{}, nil
	case StepNameCreateIndex:
		return &CreateIndex{}, nil
	case StepNameDropIndex:
		return &DropIndex{}, nil
	case StepNameAlterIndex:
		return &AlterIndex{}, nil
	}
	return nil, fmt.Errorf("unknown sql migration step type: %v", name)
}

// TableChangeNameOf returns the tagged-variant name for a TableChange.
func TableChangeNameOf(c TableChange) TableChangeName {
	switch c.(type) {
	case *AddColumn:
		return TableChangeNameAddColumn
	case *DropColumn:
		return TableChangeNameDropColumn
	case *AlterColumn:
		return TableChangeNameAlterColumn
	}
	panic(fmt.Errorf("unknown table change for %T", c))
}

func tableChangeFromName(name TableChangeName) (TableChange, error) {
	switch name {
	case TableChangeNameAddColumn:
		return &AddColumn{}, nil
	case TableChangeNameDropColumn:
		return &DropColumn{}, nil
	case TableChangeNameAlterColumn:
		return &AlterColumn{}, nil
	}
	return nil, fmt.Errorf("unknown table change type: %v", name)
}

// SqlMigrationSteps is an ordered list of SqlMigrationStep with
// tagged-variant JSON encoding.
type SqlMigrationSteps []SqlMigrationStep

func (v *SqlMigrationSteps) UnmarshalJSON(data []byte) error {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		*v = SqlMigrationSteps{}
		return nil
	}
	steps := make([]SqlMigrationStep, len(raw))
	for i, obj := range raw {
		if len(obj) != 1 {
			return fmt.Errorf("multiple keys in sql migration step object at index %d: %v",
				i, strings.Join(slices.Collect(maps.Keys(obj)), ", "))
		}
		var name StepName
		var body json.RawMessage
		for k, b := range obj {
			name, body = StepName(k), b
		}
		step, err := stepFromName(name)
		if err != nil {
			return err
		}
		if err := decodeStepBody(name, body, step); err != nil {
			return err
		}
		steps[i] = step
	}
	*v = steps
	return nil
}

// decodeStepBody decodes the body of a tagged step, special-casing
// AlterTable so its nested TableChange list also goes through the
// tagged-variant decoder.
func decodeStepBody(name StepName, body json.RawMessage, step SqlMigrationStep) error {
	if name != StepNameAlterTable {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(step); err != nil {
			return fmt.Errorf("decode sql migration step [%v]: %w", name, err)
		}
		return nil
	}

	var shape struct {
		Table          string            `json:"table"`
		Changes        []json.RawMessage `json:"changes"`
		ResultingTable *sqlschema.Table  `json:"resultingTable,omitempty"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return fmt.Errorf("decode sql migration step [%v]: %w", name, err)
	}
	alter := step.(*AlterTable)
	alter.Table = shape.Table
	alter.ResultingTable = shape.ResultingTable
	alter.Changes = make([]TableChange, len(shape.Changes))
	for i, raw := range shape.Changes {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		if len(obj) != 1 {
			return fmt.Errorf("multiple keys in table change object at index %d", i)
		}
		var cname TableChangeName
		var cbody json.RawMessage
		for k, b := range obj {
			cname, cbody = TableChangeName(k), b
		}
		change, err := tableChangeFromName(cname)
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(cbody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(change); err != nil {
			return fmt.Errorf("decode table change [%v]: %w", cname, err)
		}
		alter.Changes[i] = change
	}
	return nil
}

func (v SqlMigrationSteps) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte(`[]`), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range v {
		if i != 0 {
			buf.WriteByte(',')
		}
		encoded, err := encodeStep(s)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`{"`)
		buf.WriteString(string(StepNameOf(s)))
		buf.WriteString(`":`)
		buf.Write(encoded)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func encodeStep(s SqlMigrationStep) ([]byte, error) {
	alter, ok := s.(*AlterTable)
	if !ok {
		return json.Marshal(s)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"table":%s,"changes":[`, mustJSON(alter.Table))
	for i, c := range alter.Changes {
		if i != 0 {
			buf.WriteByte(',')
		}
		body, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`{"`)
		buf.WriteString(string(TableChangeNameOf(c)))
		buf.WriteString(`":`)
		buf.Write(body)
		buf.WriteByte('}')
	}
	buf.WriteString("]")
	if alter.ResultingTable != nil {
		resulting, err := json.Marshal(alter.ResultingTable)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"resultingTable":`)
		buf.Write(resulting)
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

func mustJSON(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
