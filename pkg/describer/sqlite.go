// SPDX-License-Identifier: Apache-2.0

package describer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

// describeSqlite introspects via PRAGMA statements rather than
// information_schema, which SQLite does not implement.
func describeSqlite(ctx context.Context, conn dbconn.DB) (*sqlschema.Schema, error) {
	s := sqlschema.New("")

	tableRows, err := conn.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	var names []string
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			tableRows.Close()
			return nil, err
		}
		names = append(names, name)
		s.AddTable(name, &sqlschema.Table{Name: name})
	}
	if err := tableRows.Err(); err != nil {
		tableRows.Close()
		return nil, err
	}
	tableRows.Close()

	for _, name := range names {
		t := s.GetTable(name)
		if err := fillSqliteColumns(ctx, conn, t); err != nil {
			return nil, err
		}
		if err := fillSqliteIndexes(ctx, conn, t); err != nil {
			return nil, err
		}
		if err := fillSqliteForeignKeys(ctx, conn, t); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// PRAGMA statements don't accept bound parameters, so the (trusted,
// internally-sourced) table name is interpolated directly.
func fillSqliteColumns(ctx context.Context, conn dbconn.DB, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var cid int
		var name, declType string
		var notNull, pkOrdinal int
		var def sql.NullString
		if err := rows.Scan(&cid, &name, &declType, &notNull, &def, &pkOrdinal); err != nil {
			return err
		}
		col := &sqlschema.Column{
			Name:          name,
			Type:          sqliteTypeToLogical(declType),
			Nullable:      notNull == 0,
			AutoIncrement: pkOrdinal == 1 && declType == "INTEGER",
		}
		if def.Valid {
			col.Default = &def.String
		}
		t.AddColumn(name, col)
		if pkOrdinal > 0 {
			pk = append(pk, name)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(pk) > 0 {
		t.PrimaryKey = pk
	}
	return nil
}

func sqliteTypeToLogical(declType string) string {
	switch declType {
	case "INTEGER":
		return "integer"
	case "TEXT":
		return "text"
	case "REAL":
		return "float"
	case "BOOLEAN":
		return "boolean"
	case "DATETIME":
		return "timestamp"
	case "BLOB":
		return "bytes"
	}
	return "text"
}

func fillSqliteIndexes(ctx context.Context, conn dbconn.DB, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	type indexMeta struct {
		name   string
		unique bool
		origin string
	}
	var metas []indexMeta
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return err
		}
		metas = append(metas, indexMeta{name: name, unique: unique == 1, origin: origin})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range metas {
		if m.origin == "pk" {
			continue
		}
		cols, err := sqliteIndexColumns(ctx, conn, m.name)
		if err != nil {
			return err
		}
		t.AddIndex(m.name, &sqlschema.Index{Name: m.name, Unique: m.unique, Columns: cols})
	}
	return nil
}

func sqliteIndexColumns(ctx context.Context, conn dbconn.DB, indexName string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", indexName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name string
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func fillSqliteForeignKeys(ctx context.Context, conn dbconn.DB, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", t.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	fks := map[int]*sqlschema.ForeignKey{}
	var order []int
	for rows.Next() {
		var id, seq int
		var table, from, to, onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return err
		}
		fk, ok := fks[id]
		if !ok {
			fk = &sqlschema.ForeignKey{
				Name:            fmt.Sprintf("fk_%s_%d", t.Name, id),
				ReferencedTable: table,
				OnDelete:        sqliteFKAction(onDelete),
				OnUpdate:        sqliteFKAction(onUpdate),
			}
			fks[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range order {
		t.AddForeignKey(fks[id].Name, fks[id])
	}
	return nil
}

func sqliteFKAction(action string) string {
	switch action {
	case "CASCADE":
		return "Cascade"
	case "SET NULL":
		return "SetNull"
	}
	return "None"
}
