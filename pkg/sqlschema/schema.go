// SPDX-License-Identifier: Apache-2.0

// Package sqlschema is the in-memory representation of a live SQL schema:
// the shape produced by the Schema Calculator and the Schema Describer
// alike, and diffed by the Schema Differ.
package sqlschema

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// New returns an empty schema.
func New(name string) *Schema {
	return &Schema{
		Name:   name,
		Tables: make(map[string]*Table),
	}
}

// Schema represents a database schema (namespace).
type Schema struct {
	// Name is the name of the schema/namespace. Unused for SQLite, which
	// has no namespacing concept.
	Name string `json:"name"`

	// Tables is a map of table name -> table.
	Tables map[string]*Table `json:"tables"`
}

// Table represents a table in the schema.
type Table struct {
	Name string `json:"name"`

	Comment string `json:"comment,omitempty"`

	Columns map[string]*Column `json:"columns"`

	Indexes map[string]*Index `json:"indexes"`

	PrimaryKey []string `json:"primaryKey"`

	ForeignKeys map[string]*ForeignKey `json:"foreignKeys"`
}

// Column represents a column in a table.
type Column struct {
	Name string `json:"name"`

	// Type is the dialect-neutral logical type family, e.g. "integer",
	// "text", "boolean", "timestamp". Dialect-specific rendering is the SQL
	// Renderer's responsibility.
	Type string `json:"type"`

	Default       *string `json:"default,omitempty"`
	Nullable      bool    `json:"nullable"`
	Unique        bool    `json:"unique,omitempty"`
	AutoIncrement bool    `json:"autoIncrement,omitempty"`

	Comment string `json:"comment,omitempty"`
}

// Index represents an index on a table.
type Index struct {
	Name string `json:"name"`

	Unique bool `json:"unique"`

	// Columns is the ordered set of key columns the index is defined on.
	Columns []string `json:"columns"`
}

// ForeignKey represents a foreign key on a table.
type ForeignKey struct {
	Name string `json:"name"`

	Columns []string `json:"columns"`

	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`

	OnDelete string `json:"onDelete,omitempty"`
	OnUpdate string `json:"onUpdate,omitempty"`
}

// GetTable returns a table by name, or nil.
func (s *Schema) GetTable(name string) *Table {
	if s.Tables == nil {
		return nil
	}
	return s.Tables[name]
}

// AddTable adds a table to the schema.
func (s *Schema) AddTable(name string, t *Table) {
	if s.Tables == nil {
		s.Tables = make(map[string]*Table)
	}
	s.Tables[name] = t
}

// RemoveTable removes a table from the schema.
func (s *Schema) RemoveTable(name string) {
	delete(s.Tables, name)
}

// RenameTable renames a table in the schema.
func (s *Schema) RenameTable(from, to string) {
	if t, ok := s.Tables[from]; ok {
		t.Name = to
		s.Tables[to] = t
		delete(s.Tables, from)
	}
}

// GetColumn returns a column by name, or nil.
func (t *Table) GetColumn(name string) *Column {
	if t.Columns == nil {
		return nil
	}
	return t.Columns[name]
}

// AddColumn adds a column to the table.
func (t *Table) AddColumn(name string, c *Column) {
	if t.Columns == nil {
		t.Columns = make(map[string]*Column)
	}
	t.Columns[name] = c
}

// RemoveColumn removes a column from the table.
func (t *Table) RemoveColumn(name string) {
	delete(t.Columns, name)
}

// GetIndex returns an index by name, or nil.
func (t *Table) GetIndex(name string) *Index {
	if t.Indexes == nil {
		return nil
	}
	return t.Indexes[name]
}

// AddIndex adds an index to the table.
func (t *Table) AddIndex(name string, ix *Index) {
	if t.Indexes == nil {
		t.Indexes = make(map[string]*Index)
	}
	t.Indexes[name] = ix
}

// RemoveIndex removes an index from the table.
func (t *Table) RemoveIndex(name string) {
	delete(t.Indexes, name)
}

// GetForeignKey returns a foreign key by name, or nil.
func (t *Table) GetForeignKey(name string) *ForeignKey {
	if t.ForeignKeys == nil {
		return nil
	}
	return t.ForeignKeys[name]
}

// AddForeignKey adds a foreign key to the table.
func (t *Table) AddForeignKey(name string, fk *ForeignKey) {
	if t.ForeignKeys == nil {
		t.ForeignKeys = make(map[string]*ForeignKey)
	}
	t.ForeignKeys[name] = fk
}

// RemoveForeignKey removes a foreign key from the table.
func (t *Table) RemoveForeignKey(name string) {
	delete(t.ForeignKeys, name)
}

// Value implements driver.Valuer so a *Schema can be persisted as a single
// JSON-encoded column.
func (s Schema) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner so a *Schema can be read back from a
// JSON-encoded column.
func (s *Schema) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, s)
}
