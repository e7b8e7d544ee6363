// SPDX-License-Identifier: Apache-2.0

package destructive_test

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/destructive"
	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

type fakeConn struct{ db *sql.DB }

func (f fakeConn) ExecContext(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	return f.db.ExecContext(ctx, q, args...)
}
func (f fakeConn) QueryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return f.db.QueryContext(ctx, q, args...)
}
func (f fakeConn) WithRetryableTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
func (f fakeConn) Dialect() dialect.Dialect { return dialect.Sqlite }
func (f fakeConn) Close() error             { return f.db.Close() }

func openFakeConn(t *testing.T) fakeConn {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return fakeConn{db: db}
}

func schemaWithTestTable() *sqlschema.Schema {
	s := sqlschema.New("")
	s.AddTable("Test", &sqlschema.Table{
		Name: "Test",
		Columns: map[string]*sqlschema.Column{
			"id":            {Name: "id", Type: "text"},
			"puppiesCount":  {Name: "puppiesCount", Type: "integer", Nullable: true},
		},
	})
	return s
}

func TestCheckDropNonEmptyTableWarns(t *testing.T) {
	conn := openFakeConn(t)
	_, err := conn.db.Exec(`CREATE TABLE Test (id TEXT)`)
	require.NoError(t, err)
	_, err = conn.db.Exec(`INSERT INTO Test (id) VALUES ('test')`)
	require.NoError(t, err)

	diag, err := destructive.Check(context.Background(), conn, schemaWithTestTable(), []sqldiff.SqlMigrationStep{
		&sqldiff.DropTable{Name: "Test"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"You are about to drop the table `Test`, which is not empty (1 rows)."}, diag.Warnings)
}

func TestCheckDropColumnWithNonNullValuesWarns(t *testing.T) {
	conn := openFakeConn(t)
	_, err := conn.db.Exec(`CREATE TABLE Test (id TEXT, puppiesCount INTEGER)`)
	require.NoError(t, err)
	_, err = conn.db.Exec(`INSERT INTO Test VALUES ('a', 7), ('b', 8)`)
	require.NoError(t, err)

	diag, err := destructive.Check(context.Background(), conn, schemaWithTestTable(), []sqldiff.SqlMigrationStep{
		&sqldiff.AlterTable{Table: "Test", Changes: []sqldiff.TableChange{
			&sqldiff.DropColumn{Name: "puppiesCount"},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"You are about to drop the column `puppiesCount` on the `Test` table, which still contains 2 non-null values."}, diag.Warnings)
}

func TestCheckEmptyTableNoWarning(t *testing.T) {
	conn := openFakeConn(t)
	_, err := conn.db.Exec(`CREATE TABLE Test (id TEXT)`)
	require.NoError(t, err)

	diag, err := destructive.Check(context.Background(), conn, schemaWithTestTable(), []sqldiff.SqlMigrationStep{
		&sqldiff.DropTable{Name: "Test"},
	})
	require.NoError(t, err)
	require.False(t, diag.HasWarnings())
}
