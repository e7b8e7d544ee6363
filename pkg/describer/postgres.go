// SPDX-License-Identifier: Apache-2.0

package describer

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

func describePostgres(ctx context.Context, conn dbconn.DB, schemaName string) (*sqlschema.Schema, error) {
	s := sqlschema.New(schemaName)

	tableRows, err := conn.QueryContext(ctx, `
		SELECT c.relname, obj_description(c.oid, 'pg_class')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind = 'r'`, schemaName)
	if err != nil {
		return nil, err
	}
	defer tableRows.Close()

	var names []string
	for tableRows.Next() {
		var name string
		var comment sql.NullString
		if err := tableRows.Scan(&name, &comment); err != nil {
			return nil, err
		}
		s.AddTable(name, &sqlschema.Table{Name: name, Comment: comment.String})
		names = append(names, name)
	}
	if err := tableRows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		t := s.GetTable(name)
		if err := fillPostgresColumns(ctx, conn, schemaName, t); err != nil {
			return nil, err
		}
		if err := fillPostgresIndexes(ctx, conn, schemaName, t); err != nil {
			return nil, err
		}
		if err := fillPostgresForeignKeys(ctx, conn, schemaName, t); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func fillPostgresColumns(ctx context.Context, conn dbconn.DB, schemaName string, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, `
		SELECT column_name, udt_name, is_nullable = 'YES', column_default,
		       column_default LIKE 'nextval(%'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, udt string
		var nullable, autoIncrement bool
		var def sql.NullString
		if err := rows.Scan(&name, &udt, &nullable, &def, &autoIncrement); err != nil {
			return err
		}
		col := &sqlschema.Column{
			Name:          name,
			Type:          pgTypeToLogical(udt),
			Nullable:      nullable,
			AutoIncrement: autoIncrement,
		}
		if def.Valid && !autoIncrement {
			col.Default = &def.String
		}
		t.AddColumn(name, col)
	}

	return rows.Err()
}

func pgTypeToLogical(udt string) string {
	switch udt {
	case "int4", "int8", "int2":
		return "integer"
	case "text", "varchar", "bpchar":
		return "text"
	case "float4", "float8", "numeric":
		return "float"
	case "bool":
		return "boolean"
	case "timestamptz", "timestamp":
		return "timestamp"
	case "jsonb", "json":
		return "json"
	case "bytea":
		return "bytes"
	}
	return udt
}

func fillPostgresIndexes(ctx context.Context, conn dbconn.DB, schemaName string, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, `
		SELECT i.relname, ix.indisunique, ix.indisprimary,
		       array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum))
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class c ON c.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1 AND c.relname = $2
		GROUP BY i.relname, ix.indisunique, ix.indisprimary`, schemaName, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var unique, primary bool
		var columns pq.StringArray
		if err := rows.Scan(&name, &unique, &primary, &columns); err != nil {
			return err
		}
		if primary {
			t.PrimaryKey = []string(columns)
			continue
		}
		t.AddIndex(name, &sqlschema.Index{Name: name, Unique: unique, Columns: []string(columns)})
	}

	return rows.Err()
}

func fillPostgresForeignKeys(ctx context.Context, conn dbconn.DB, schemaName string, t *sqlschema.Table) error {
	rows, err := conn.QueryContext(ctx, `
		SELECT con.conname,
		       array_agg(DISTINCT att.attname) FILTER (WHERE att.attnum = ANY(con.conkey)),
		       ref.relname,
		       array_agg(DISTINCT fatt.attname) FILTER (WHERE fatt.attnum = ANY(con.confkey)),
		       con.confdeltype, con.confupdtype
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_class ref ON ref.oid = con.confrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute att ON att.attrelid = c.oid
		JOIN pg_attribute fatt ON fatt.attrelid = ref.oid
		WHERE con.contype = 'f' AND n.nspname = $1 AND c.relname = $2
		GROUP BY con.conname, ref.relname, con.confdeltype, con.confupdtype`, schemaName, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, refTable, onDelete, onUpdate string
		var columns, refColumns pq.StringArray
		if err := rows.Scan(&name, &columns, &refTable, &refColumns, &onDelete, &onUpdate); err != nil {
			return err
		}
		t.AddForeignKey(name, &sqlschema.ForeignKey{
			Name:              name,
			Columns:           []string(columns),
			ReferencedTable:   refTable,
			ReferencedColumns: []string(refColumns),
			OnDelete:          pgFKAction(onDelete),
			OnUpdate:          pgFKAction(onUpdate),
		})
	}

	return rows.Err()
}

func pgFKAction(code string) string {
	switch code {
	case "c":
		return "Cascade"
	case "n":
		return "SetNull"
	}
	return "None"
}
