// SPDX-License-Identifier: Apache-2.0

package describer

import (
	"context"
	"database/sql"

	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

func describeMysql(ctx context.Context, conn dbconn.DB, schemaName string) (*sqlschema.Schema, error) {
	s := sqlschema.New(schemaName)

	tableRows, err := conn.QueryContext(ctx, `
		SELECT table_name, table_comment
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'`, schemaName)
	if err != nil {
		return nil, err
	}
	defer tableRows.Close()

	var names []string
	for tableRows.Next() {
		var name, comment string
		if err := tableRows.Scan(&name, &comment); err != nil {
			return nil, err
		}
		s.AddTable(name, &sqlschema.Table{Name: name, Comment: comment})
		names = append(names, name)
	}
	if err := tableRows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		t := s.GetTable(name)
		if err := fillMysqlColumns(ctx, conn, schemaName, t); err != nil {
			return nil, err
		}
		if err := fillMysqlIndexes(ctx, conn, schemaName, t); err != nil {
			return nil, err
		}
		if err := fillMysqlForeignKeys(ctx, conn, schemaName, t); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func fillMysqlColumns(ctx context.Context, conn dbconn.DB, schemaName string, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', column_default, extra LIKE '%auto_increment%'
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, schemaName, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, dataType string
		var nullable, autoIncrement bool
		var def sql.NullString
		if err := rows.Scan(&name, &dataType, &nullable, &def, &autoIncrement); err != nil {
			return err
		}
		col := &sqlschema.Column{
			Name:          name,
			Type:          mysqlTypeToLogical(dataType),
			Nullable:      nullable,
			AutoIncrement: autoIncrement,
		}
		if def.Valid {
			col.Default = &def.String
		}
		t.AddColumn(name, col)
	}

	return rows.Err()
}

func mysqlTypeToLogical(dataType string) string {
	switch dataType {
	case "int", "bigint", "smallint", "tinyint":
		return "integer"
	case "varchar", "text", "char", "mediumtext", "longtext":
		return "text"
	case "double", "float", "decimal":
		return "float"
	case "tinyint(1)", "boolean":
		return "boolean"
	case "datetime", "timestamp":
		return "timestamp"
	case "json":
		return "json"
	case "blob", "varbinary", "mediumblob", "longblob":
		return "bytes"
	}
	return dataType
}

func fillMysqlIndexes(ctx context.Context, conn dbconn.DB, schemaName string, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, `
		SELECT index_name, non_unique = 0,
		       GROUP_CONCAT(column_name ORDER BY seq_in_index)
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ?
		GROUP BY index_name, non_unique`, schemaName, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var unique bool
		var columnsCSV string
		if err := rows.Scan(&name, &unique, &columnsCSV); err != nil {
			return err
		}
		columns := splitCSV(columnsCSV)
		if name == "PRIMARY" {
			t.PrimaryKey = columns
			continue
		}
		t.AddIndex(name, &sqlschema.Index{Name: name, Unique: unique, Columns: columns})
	}

	return rows.Err()
}

func fillMysqlForeignKeys(ctx context.Context, conn dbconn.DB, schemaName string, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, `
		SELECT kcu.constraint_name, kcu.column_name, kcu.referenced_table_name, kcu.referenced_column_name,
		       rc.delete_rule, rc.update_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
		  ON rc.constraint_schema = kcu.table_schema AND rc.constraint_name = kcu.constraint_name
		WHERE kcu.table_schema = ? AND kcu.table_name = ? AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.ordinal_position`, schemaName, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	fks := map[string]*sqlschema.ForeignKey{}
	var order []string
	for rows.Next() {
		var name, column, refTable, refColumn, onDelete, onUpdate string
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onDelete, &onUpdate); err != nil {
			return err
		}
		fk, ok := fks[name]
		if !ok {
			fk = &sqlschema.ForeignKey{
				Name: name, ReferencedTable: refTable,
				OnDelete: mysqlFKAction(onDelete), OnUpdate: mysqlFKAction(onUpdate),
			}
			fks[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range order {
		t.AddForeignKey(name, fks[name])
	}
	return nil
}

func mysqlFKAction(rule string) string {
	switch rule {
	case "CASCADE":
		return "Cascade"
	case "SET NULL":
		return "SetNull"
	}
	return "None"
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
